package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	requestsSubmitted metric.Int64Counter
	reviewDecisions   metric.Int64Counter
	revocations       metric.Int64Counter
	orphanFlagged     metric.Int64Counter
	outboxEnqueued    metric.Int64Counter
	authzDenied       metric.Int64Counter
	rateLimitAllowed  metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "bridge"
	}
	meter := provider.Meter(name)

	requestsSubmitted, err := meter.Int64Counter("bridge_requests_submitted_total")
	if err != nil {
		return nil, err
	}
	reviewDecisions, err := meter.Int64Counter("bridge_review_decisions_total")
	if err != nil {
		return nil, err
	}
	revocations, err := meter.Int64Counter("bridge_revocations_total")
	if err != nil {
		return nil, err
	}
	orphanFlagged, err := meter.Int64Counter("bridge_orphan_flagged_total")
	if err != nil {
		return nil, err
	}
	outboxEnqueued, err := meter.Int64Counter("bridge_outbox_enqueued_total")
	if err != nil {
		return nil, err
	}
	authzDenied, err := meter.Int64Counter("bridge_authz_denied_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("bridge_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("bridge_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestsSubmitted: requestsSubmitted,
		reviewDecisions:   reviewDecisions,
		revocations:       revocations,
		orphanFlagged:     orphanFlagged,
		outboxEnqueued:    outboxEnqueued,
		authzDenied:       authzDenied,
		rateLimitAllowed:  rateLimitAllowed,
		rateLimitDenied:   rateLimitDenied,
	}, nil
}

// RecordRequestSubmitted increments submitted request counts.
func (m *Metrics) RecordRequestSubmitted(ctx context.Context, requestType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("request_type", strings.TrimSpace(requestType)))
	m.requestsSubmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReviewDecision increments terminal review decision counts.
func (m *Metrics) RecordReviewDecision(ctx context.Context, requestType, decision string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("request_type", strings.TrimSpace(requestType)),
		attribute.String("decision", strings.TrimSpace(decision)),
	)
	m.reviewDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRevocation increments revocation counts.
func (m *Metrics) RecordRevocation(ctx context.Context, requestType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("request_type", strings.TrimSpace(requestType)))
	m.revocations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrphanFlagged increments counts of requests stranded without a reviewer.
func (m *Metrics) RecordOrphanFlagged(ctx context.Context, requestType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("request_type", strings.TrimSpace(requestType)))
	m.orphanFlagged.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOutboxEnqueued increments outbox event counts.
func (m *Metrics) RecordOutboxEnqueued(ctx context.Context, topic string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("topic", strings.TrimSpace(topic)))
	m.outboxEnqueued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAuthzDenied increments authorization denial counts.
func (m *Metrics) RecordAuthzDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.authzDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":     {},
	"status_code":  {},
	"request_type": {},
	"decision":     {},
	"topic":        {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
