// Package tags merges process-wide default tags with per-resource tags.
package tags

import (
	"dario.cat/mergo"
)

// NameKey is the tag most cloud consoles display as the resource name.
const NameKey = "Name"

// Merger holds the default tags applied to every resource. The defaults are
// copied on construction and never change afterwards.
type Merger struct {
	defaults map[string]string
}

// NewMerger creates a Merger with the given default tags.
func NewMerger(defaults map[string]string) *Merger {
	m := &Merger{defaults: make(map[string]string, len(defaults))}
	for k, v := range defaults {
		m.defaults[k] = v
	}
	return m
}

// Defaults returns a copy of the default tags.
func (m *Merger) Defaults() map[string]string {
	out := make(map[string]string)
	if m == nil {
		return out
	}
	for k, v := range m.defaults {
		out[k] = v
	}
	return out
}

// Merge returns the defaults with Name set to resourceName, then overlaid
// with additional. Keys in additional, Name included, win.
func (m *Merger) Merge(resourceName string, additional map[string]string) map[string]string {
	tags := m.Defaults()
	if resourceName != "" {
		tags[NameKey] = resourceName
	}
	if len(additional) > 0 {
		// Merge only fails on mismatched kinds, which two string maps can't have.
		_ = mergo.Merge(&tags, additional, mergo.WithOverride)
	}
	return tags
}
