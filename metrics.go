package ygggo_pg

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all the metric instruments
type Metrics struct {
	// Connection lifecycle
	connectionsCreated metric.Int64Counter
	connectionsOpen    metric.Int64UpDownCounter
	createDuration     metric.Float64Histogram
	recycles           metric.Int64Counter
	detaches           metric.Int64Counter

	// Statement cache
	prepares metric.Int64Counter

	// Transactions
	transactions metric.Int64Counter
}

// EnableMetrics enables or disables metrics collection using the global
// meter provider. The change applies to existing connections too.
func (m *Manager) EnableMetrics(enabled bool) {
	if m == nil {
		return
	}
	if !enabled {
		m.obs.metrics.Store(nil)
		return
	}
	m.SetMeterProvider(otel.GetMeterProvider())
}

// SetMeterProvider enables metrics with a custom meter provider.
func (m *Manager) SetMeterProvider(provider metric.MeterProvider) {
	if m == nil || provider == nil {
		return
	}
	m.obs.metrics.Store(newMetrics(provider.Meter(instrumentationName)))
}

// newMetrics initializes all metric instruments
func newMetrics(meter metric.Meter) *Metrics {
	mt := &Metrics{}

	mt.connectionsCreated, _ = meter.Int64Counter(
		"ygggo_pg_connections_created_total",
		metric.WithDescription("Number of physical connections the manager tried to open"),
	)
	mt.connectionsOpen, _ = meter.Int64UpDownCounter(
		"ygggo_pg_connections_open",
		metric.WithDescription("Number of open physical connections"),
	)
	mt.createDuration, _ = meter.Float64Histogram(
		"ygggo_pg_connection_create_duration_seconds",
		metric.WithDescription("Duration of connection establishment"),
		metric.WithUnit("s"),
	)
	mt.recycles, _ = meter.Int64Counter(
		"ygggo_pg_recycles_total",
		metric.WithDescription("Number of recycle checks by outcome"),
	)
	mt.detaches, _ = meter.Int64Counter(
		"ygggo_pg_detaches_total",
		metric.WithDescription("Number of connections detached from the manager"),
	)
	mt.prepares, _ = meter.Int64Counter(
		"ygggo_pg_prepares_total",
		metric.WithDescription("Number of prepare calls by statement cache outcome"),
	)
	mt.transactions, _ = meter.Int64Counter(
		"ygggo_pg_transactions_total",
		metric.WithDescription("Number of transactions by outcome"),
	)
	return mt
}

func (o *observer) meters() *Metrics {
	if o == nil {
		return nil
	}
	return o.metrics.Load()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// recordCreate records a connection attempt
func (o *observer) recordCreate(ctx context.Context, duration time.Duration, err error) {
	mt := o.meters()
	if mt == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", statusOf(err)))
	mt.connectionsCreated.Add(ctx, 1, attrs)
	mt.createDuration.Record(ctx, duration.Seconds(), attrs)
	if err == nil {
		mt.connectionsOpen.Add(ctx, 1)
	}
}

// recordClosed records the end of a physical connection
func (o *observer) recordClosed(ctx context.Context) {
	mt := o.meters()
	if mt == nil {
		return
	}
	mt.connectionsOpen.Add(ctx, -1)
}

// recordRecycle records a recycle outcome: ok, closed or failed
func (o *observer) recordRecycle(ctx context.Context, result string) {
	mt := o.meters()
	if mt == nil {
		return
	}
	mt.recycles.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// recordDetach records a detached connection
func (o *observer) recordDetach(ctx context.Context) {
	mt := o.meters()
	if mt == nil {
		return
	}
	mt.detaches.Add(ctx, 1)
}

// recordPrepare records a prepare call as a cache hit or miss
func (o *observer) recordPrepare(ctx context.Context, hit bool, err error) {
	mt := o.meters()
	if mt == nil {
		return
	}
	cache := "miss"
	if hit {
		cache = "hit"
	}
	mt.prepares.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.String("status", statusOf(err)),
	))
}

// recordTransaction records a finished transaction: commit or rollback
func (o *observer) recordTransaction(ctx context.Context, outcome string, err error) {
	mt := o.meters()
	if mt == nil {
		return
	}
	mt.transactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("status", statusOf(err)),
	))
}
