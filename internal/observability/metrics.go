package observability

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsConfig holds configuration for the metrics subsystem.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool
	// Namespace prefix for all metrics (default: corenet).
	Namespace string
	// Version is the application version for the info metric.
	Version string
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "corenet",
		Version:   "dev",
	}
}

// MetricsConfigFromEnv creates a MetricsConfig from environment variables.
// CORENET_METRICS_ENABLED: true/false (default: true)
// APP_VERSION: version string (default: dev)
func MetricsConfigFromEnv() MetricsConfig {
	cfg := DefaultMetricsConfig()
	if v := os.Getenv("CORENET_METRICS_ENABLED"); v != "" {
		cfg.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("APP_VERSION"); v != "" {
		cfg.Version = v
	}
	return cfg
}

// Metrics collects pipeline metrics on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	nodesProvisioned   *prometheus.CounterVec
	provisionDuration  *prometheus.HistogramVec
	providerErrors     *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	builds             *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline collectors. It returns nil
// when metrics are disabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	ns := cfg.Namespace
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodesProvisioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "nodes_provisioned_total",
			Help:      "Topology nodes handed to the provisioner, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		provisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "provision_duration_seconds",
			Help:      "Time spent realizing a single topology node.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 180},
		}, []string{"kind"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "provider_errors_total",
			Help:      "Provider API errors, by error code.",
		}, []string{"code"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "validation_failures_total",
			Help:      "Rejected address space requests, by reason.",
		}, []string{"reason"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "builds_total",
			Help:      "Network pipeline runs, by outcome.",
		}, []string{"outcome"}),
	}

	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "info",
		Help:        "Application information.",
		ConstLabels: prometheus.Labels{"version": cfg.Version},
	})
	info.Set(1)

	m.registry.MustRegister(
		info,
		m.nodesProvisioned,
		m.provisionDuration,
		m.providerErrors,
		m.validationFailures,
		m.builds,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordProvision records one provisioner call for a node kind.
func (m *Metrics) RecordProvision(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.nodesProvisioned.WithLabelValues(kind, outcome).Inc()
	m.provisionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordProviderError counts a provider API error code.
func (m *Metrics) RecordProviderError(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.providerErrors.WithLabelValues(code).Inc()
}

// RecordValidationFailure counts a rejected request.
func (m *Metrics) RecordValidationFailure(reason string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(reason).Inc()
}

// RecordBuild counts a completed pipeline run. Outcome is one of
// "success", "invalid" or "failed".
func (m *Metrics) RecordBuild(outcome string) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the current metrics in the Prometheus text format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
