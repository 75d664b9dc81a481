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
	ordersIngested        metric.Int64Counter
	commissionsComputed   metric.Int64Counter
	commissionTransitions metric.Int64Counter
	syncRuns              metric.Int64Counter
	webhookRejections     metric.Int64Counter
	eventsPublished       metric.Int64Counter
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
		name = "commissionhub"
	}
	meter := provider.Meter(name)

	ordersIngested, err := meter.Int64Counter("commissionhub_orders_ingested_total")
	if err != nil {
		return nil, err
	}
	commissionsComputed, err := meter.Int64Counter("commissionhub_commissions_computed_total")
	if err != nil {
		return nil, err
	}
	commissionTransitions, err := meter.Int64Counter("commissionhub_commission_transitions_total")
	if err != nil {
		return nil, err
	}
	syncRuns, err := meter.Int64Counter("commissionhub_sync_runs_total")
	if err != nil {
		return nil, err
	}
	webhookRejections, err := meter.Int64Counter("commissionhub_webhook_rejections_total")
	if err != nil {
		return nil, err
	}
	eventsPublished, err := meter.Int64Counter("commissionhub_events_published_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ordersIngested:        ordersIngested,
		commissionsComputed:   commissionsComputed,
		commissionTransitions: commissionTransitions,
		syncRuns:              syncRuns,
		webhookRejections:     webhookRejections,
		eventsPublished:       eventsPublished,
	}, nil
}

// RecordOrderIngested counts ingestion outcomes: processed, already_processed or failed.
func (m *Metrics) RecordOrderIngested(ctx context.Context, source, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.ordersIngested.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCommissionComputed(ctx context.Context, ruleKind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("rule_kind", strings.TrimSpace(ruleKind)))
	m.commissionsComputed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCommissionTransition counts ledger status changes.
func (m *Metrics) RecordCommissionTransition(ctx context.Context, from, to string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("to", strings.TrimSpace(to)),
	)
	m.commissionTransitions.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordSyncRun(ctx context.Context, syncType, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("sync_type", strings.TrimSpace(syncType)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.syncRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordWebhookRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.webhookRejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordEventPublished(ctx context.Context, eventType string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", outcome),
	)
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"source":      {},
	"outcome":     {},
	"rule_kind":   {},
	"from":        {},
	"to":          {},
	"sync_type":   {},
	"status":      {},
	"status_code": {},
	"event_type":  {},
	"reason":      {},
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
