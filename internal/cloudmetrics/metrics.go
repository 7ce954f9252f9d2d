// Package cloudmetrics accounts review activity for hosted deployments: a
// private prometheus registry pushed to the cloud endpoint, never exposed on
// the local /metrics handler.
package cloudmetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type metrics struct {
	requestsSubmitted  *prometheus.CounterVec
	reviewDecisions    *prometheus.CounterVec
	revocations        *prometheus.CounterVec
	orphanedRequests   prometheus.Counter
	organizationsTotal prometheus.Gauge
	memoryBytes        prometheus.Gauge
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		requestsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_cloud_requests_submitted_total",
			Help: "Verification requests submitted, by type.",
		}, []string{"type"}),
		reviewDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_cloud_review_decisions_total",
			Help: "Review decisions committed, by type and decision.",
		}, []string{"type", "decision"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_cloud_revocations_total",
			Help: "Approved claims revoked, by type.",
		}, []string{"type"}),
		orphanedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_cloud_orphaned_requests_total",
			Help: "Pending requests flagged because their authority lost its last admin.",
		}),
		organizationsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_cloud_organizations_total",
			Help: "Organizations in the directory.",
		}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_cloud_memory_bytes",
			Help: "Process memory obtained from the OS.",
		}),
	}
	if registry != nil {
		registry.MustRegister(
			m.requestsSubmitted,
			m.reviewDecisions,
			m.revocations,
			m.orphanedRequests,
			m.organizationsTotal,
			m.memoryBytes,
		)
	}
	return m
}

// CloudMetrics owns the accounting registry and the pusher draining it.
type CloudMetrics struct {
	registry   *prometheus.Registry
	pusher     Pusher
	metrics    *metrics
	instanceID string
	version    string
	logger     *zap.Logger
}

func New(registry *prometheus.Registry, pusher Pusher, instanceID, version string, logger *zap.Logger) *CloudMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &CloudMetrics{
		registry:   registry,
		pusher:     pusher,
		metrics:    newMetrics(registry),
		instanceID: instanceID,
		version:    version,
		logger:     logger.Named("cloudmetrics"),
	}
	setRecorder(&recorder{metrics: c.metrics})
	return c
}

// Push sends the current registry snapshot. A nil pusher makes it a no-op.
func (c *CloudMetrics) Push(ctx context.Context) error {
	if c == nil || c.pusher == nil {
		return nil
	}
	return c.pusher.Push(ctx, c.registry)
}

func (c *CloudMetrics) SetMemoryUsage(bytes uint64) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.memoryBytes.Set(float64(bytes))
}

func (c *CloudMetrics) SetOrganizationsTotal(count int64) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.organizationsTotal.Set(float64(count))
}
