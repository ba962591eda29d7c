package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider initializes the Prometheus exporter and MeterProvider.
// It returns an http.Handler for the /metrics endpoint and a shutdown function.
func InitMeterProvider(serviceName string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(serviceResource(serviceName)),
	)

	otel.SetMeterProvider(mp)

	if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
		return nil, nil, err
	}

	return promhttp.Handler(), mp.Shutdown, nil
}

// Metrics holds the store's domain instruments. Built from the global meter
// provider, so it is a no-op until InitMeterProvider has run.
type Metrics struct {
	checkouts      otelmetric.Int64Counter
	gatewayLatency otelmetric.Float64Histogram
	notifications  otelmetric.Int64Counter
	expirations    otelmetric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/myhmtk/storefront")

	checkouts, err := meter.Int64Counter("store.checkouts",
		otelmetric.WithDescription("Checkout attempts by outcome"))
	if err != nil {
		return nil, err
	}

	gatewayLatency, err := meter.Float64Histogram("store.payment_gateway.duration",
		otelmetric.WithDescription("Payment session request latency"),
		otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter("store.payment_notifications",
		otelmetric.WithDescription("Payment notifications by outcome"))
	if err != nil {
		return nil, err
	}

	expirations, err := meter.Int64Counter("store.transactions.expired",
		otelmetric.WithDescription("Pending transactions moved to expired"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		checkouts:      checkouts,
		gatewayLatency: gatewayLatency,
		notifications:  notifications,
		expirations:    expirations,
	}, nil
}

func (m *Metrics) Checkout(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.checkouts.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) GatewayCall(ctx context.Context, started time.Time, err error) {
	if m == nil {
		return
	}
	m.gatewayLatency.Record(ctx, time.Since(started).Seconds(),
		otelmetric.WithAttributes(attribute.Bool("error", err != nil)))
}

func (m *Metrics) Notification(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) Expired(ctx context.Context, source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.expirations.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("source", source)))
}
