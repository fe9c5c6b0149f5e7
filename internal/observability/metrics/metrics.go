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
	recordsCreated metric.Int64Counter
	recordUpdates  metric.Int64Counter
	reviewExports  metric.Int64Counter
	authzDecisions metric.Int64Counter
	configReloads  metric.Int64Counter
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
		name = "freightdesk"
	}
	meter := provider.Meter(name)

	recordsCreated, err := meter.Int64Counter("freightdesk_ap_records_created_total")
	if err != nil {
		return nil, err
	}
	recordUpdates, err := meter.Int64Counter("freightdesk_ap_record_updates_total")
	if err != nil {
		return nil, err
	}
	reviewExports, err := meter.Int64Counter("freightdesk_ap_review_exports_total")
	if err != nil {
		return nil, err
	}
	authzDecisions, err := meter.Int64Counter("freightdesk_authorization_decisions_total")
	if err != nil {
		return nil, err
	}
	configReloads, err := meter.Int64Counter("freightdesk_config_reloads_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		recordsCreated: recordsCreated,
		recordUpdates:  recordUpdates,
		reviewExports:  reviewExports,
		authzDecisions: authzDecisions,
		configReloads:  configReloads,
	}, nil
}

// RecordAPRecordCreated increments AP record creation counts.
func (m *Metrics) RecordAPRecordCreated(ctx context.Context, orgID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("org_id", strings.TrimSpace(orgID)))
	m.recordsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAPRecordUpdate increments AP record update counts by outcome.
func (m *Metrics) RecordAPRecordUpdate(ctx context.Context, orgID, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_id", strings.TrimSpace(orgID)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.recordUpdates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReviewExport increments review export counts by format.
func (m *Metrics) RecordReviewExport(ctx context.Context, format string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("format", strings.TrimSpace(format)))
	m.reviewExports.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAuthorization increments authorization decisions.
func (m *Metrics) RecordAuthorization(ctx context.Context, object, action string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "granted"
	}
	attrs := FilterAttributes(
		attribute.String("object", strings.TrimSpace(object)),
		attribute.String("action", strings.TrimSpace(action)),
		attribute.String("outcome", outcome),
	)
	m.authzDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConfigReload increments hot config reload counts.
func (m *Metrics) RecordConfigReload(ctx context.Context, source, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.configReloads.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"org_id":      {},
	"endpoint":    {},
	"status_code": {},
	"outcome":     {},
	"format":      {},
	"object":      {},
	"action":      {},
	"source":      {},
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
