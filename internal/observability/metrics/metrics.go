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

// Metrics exposes billing-domain instruments.
type Metrics struct {
	invoicesIssued       metric.Int64Counter
	subscriptionTransits metric.Int64Counter
	paymentsAllocated    metric.Int64Counter
	remindersSent        metric.Int64Counter
	notificationsFailed  metric.Int64Counter
	invoiceNumberRetries metric.Int64Counter
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
		name = "crmbilling"
	}
	meter := provider.Meter(name)

	invoicesIssued, err := meter.Int64Counter("crmbilling_invoices_issued_total")
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("crmbilling_subscription_transitions_total")
	if err != nil {
		return nil, err
	}
	allocated, err := meter.Int64Counter("crmbilling_payments_allocated_total")
	if err != nil {
		return nil, err
	}
	reminders, err := meter.Int64Counter("crmbilling_reminders_sent_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("crmbilling_notifications_failed_total")
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("crmbilling_invoice_number_retries_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesIssued:       invoicesIssued,
		subscriptionTransits: transitions,
		paymentsAllocated:    allocated,
		remindersSent:        reminders,
		notificationsFailed:  notifications,
		invoiceNumberRetries: retries,
	}, nil
}

// RecordInvoiceIssued counts newly numbered invoices by kind.
func (m *Metrics) RecordInvoiceIssued(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.invoicesIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSubscriptionTransition counts state machine transitions.
func (m *Metrics) RecordSubscriptionTransition(ctx context.Context, from, to, event string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("event_type", event),
	)
	m.subscriptionTransits.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentsAllocated counts payments linked to invoices.
func (m *Metrics) RecordPaymentsAllocated(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.paymentsAllocated.Add(ctx, int64(count))
}

// RecordReminderSent counts reminder emails by rung.
func (m *Metrics) RecordReminderSent(ctx context.Context, reminderType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reminder_type", reminderType))
	m.remindersSent.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotificationFailed counts best-effort side effects that failed.
func (m *Metrics) RecordNotificationFailed(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", eventType))
	m.notificationsFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceNumberRetry counts duplicate-number retries during invoice creation.
func (m *Metrics) RecordInvoiceNumberRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoiceNumberRetries.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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
	"kind":          {},
	"from":          {},
	"to":            {},
	"event_type":    {},
	"reminder_type": {},
	"status_code":   {},
	"reason":        {},
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
