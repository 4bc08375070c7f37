package topology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"corenet/internal/domain"
	"corenet/internal/observability"
	"corenet/internal/tags"
)

// Build error kinds.
var (
	ErrDependencyOrder = errors.New("dependency order violation")
	ErrProvisionFailed = errors.New("provision failed")
)

// BuildError reports the node at which a build stopped.
type BuildError struct {
	Kind   error
	NodeID string
	// Dependency is set for order violations: the id that was missing or
	// appeared too late.
	Dependency string
	Cause      error
	// Created is the object the provisioner made for NodeID before a later
	// step failed. Its ID is empty when nothing was created.
	Created domain.Handle
}

func (e *BuildError) Error() string {
	var msg string
	switch {
	case e.Dependency != "":
		msg = fmt.Sprintf("%v: node %q depends on %q", e.Kind, e.NodeID, e.Dependency)
	case e.Cause != nil:
		msg = fmt.Sprintf("%v: node %q: %v", e.Kind, e.NodeID, e.Cause)
	default:
		msg = fmt.Sprintf("%v: node %q", e.Kind, e.NodeID)
	}
	if e.Created.ID != "" {
		msg += fmt.Sprintf(" (left %s behind)", e.Created.ID)
	}
	return msg
}

func (e *BuildError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Provisioner turns a planned node into a live object. Implementations must
// tolerate being re-run against objects created by an earlier, failed run.
// When a node takes several calls and a later one fails, Provision returns
// the handle of the object already created together with the error.
type Provisioner interface {
	Provision(ctx context.Context, req domain.ProvisionRequest) (domain.Handle, error)
}

// Builder realizes node plans one node at a time.
type Builder struct {
	provisioner Provisioner
	tags        *tags.Merger
	logger      observability.Logger
	metrics     *observability.Metrics
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(l observability.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithMetrics sets the builder's metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// NewBuilder creates a Builder that provisions through p and tags every
// object with the defaults held by merger.
func NewBuilder(p Provisioner, merger *tags.Merger, opts ...Option) *Builder {
	b := &Builder{
		provisioner: p,
		tags:        merger,
		logger:      observability.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("builder")
	return b
}

// Build realizes nodes in list order. The list must already be sorted so
// that dependencies precede dependents; it is checked, not re-sorted.
//
// On failure Build returns the topology realized so far together with a
// *BuildError. Nothing is retried or rolled back.
func (b *Builder) Build(ctx context.Context, req domain.AddressSpaceRequest, nodes []domain.TopologyNode) (*domain.RealizedTopology, error) {
	req.Blocks = append([]domain.AddressBlock(nil), req.Blocks...)
	realized := &domain.RealizedTopology{
		Request: req,
		Handles: make(map[string]domain.Handle, len(nodes)),
		Subnets: make(map[string]domain.Handle),
	}
	if err := CheckOrder(nodes); err != nil {
		return realized, err
	}

	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return realized, &BuildError{Kind: ErrProvisionFailed, NodeID: node.ID, Cause: err}
		}

		pr, err := b.request(node, realized.Handles)
		if err != nil {
			return realized, err
		}

		b.logger.DebugContext(ctx, "provisioning node", "node_id", node.ID, "kind", node.Kind)
		start := time.Now()
		h, err := b.provisioner.Provision(ctx, pr)
		b.metrics.RecordProvision(string(node.Kind), time.Since(start), err)
		if err != nil {
			var coded interface{ ErrorCode() string }
			if errors.As(err, &coded) {
				b.metrics.RecordProviderError(coded.ErrorCode())
			}
			b.logger.ErrorContext(ctx, "provisioning failed", "node_id", node.ID, "kind", node.Kind, "handle", h.ID, "error", err)
			berr := &BuildError{Kind: ErrProvisionFailed, NodeID: node.ID, Cause: err}
			if h.ID != "" {
				if h.Kind == "" {
					h.Kind = node.Kind
				}
				berr.Created = h
			}
			return realized, berr
		}
		if h.Kind == "" {
			h.Kind = node.Kind
		}

		realized.Handles[node.ID] = h
		realized.Order = append(realized.Order, node.ID)
		if node.Kind == domain.KindSubnet {
			realized.Subnets[node.Attributes[domain.AttrBlockName]] = h
		}
		b.logger.InfoContext(ctx, "node realized", "node_id", node.ID, "kind", node.Kind, "handle", h.ID)
	}
	return realized, nil
}

// request assembles the provisioner input for a node from the handles
// realized so far.
func (b *Builder) request(node domain.TopologyNode, handles map[string]domain.Handle) (domain.ProvisionRequest, error) {
	deps := make(map[string]domain.Handle, len(node.DependsOn))
	for _, id := range node.DependsOn {
		h, ok := handles[id]
		if !ok {
			return domain.ProvisionRequest{}, &BuildError{Kind: ErrDependencyOrder, NodeID: node.ID, Dependency: id}
		}
		deps[id] = h
	}

	attrs := make(map[string]string, len(node.Attributes)+len(node.Refs))
	for k, v := range node.Attributes {
		attrs[k] = v
	}
	for attr, ref := range node.Refs {
		h, ok := deps[ref]
		if !ok {
			return domain.ProvisionRequest{}, &BuildError{Kind: ErrDependencyOrder, NodeID: node.ID, Dependency: ref}
		}
		attrs[attr] = h.ID
	}

	return domain.ProvisionRequest{
		NodeID:       node.ID,
		Kind:         node.Kind,
		Parent:       node.Parent,
		Attributes:   attrs,
		Tags:         b.tags.Merge(node.ID, node.Tags),
		Dependencies: deps,
	}, nil
}

// CheckOrder verifies that node ids are unique, that every dependency is a
// node of the list placed before its dependent, and that every reference is
// a declared dependency.
func CheckOrder(nodes []domain.TopologyNode) error {
	pos := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := pos[n.ID]; dup {
			return &BuildError{Kind: ErrDependencyOrder, NodeID: n.ID, Cause: errors.New("duplicate node id")}
		}
		pos[n.ID] = i
	}
	for i, n := range nodes {
		for _, dep := range n.DependsOn {
			if j, ok := pos[dep]; !ok || j >= i {
				return &BuildError{Kind: ErrDependencyOrder, NodeID: n.ID, Dependency: dep}
			}
		}
		for _, ref := range n.Refs {
			if !n.DependsOnNode(ref) {
				return &BuildError{Kind: ErrDependencyOrder, NodeID: n.ID, Dependency: ref}
			}
		}
	}
	return nil
}
