package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "codesense"

// Metrics holds all CodeSense metric instruments.
type Metrics struct {
	RequestsTotal   metric.Int64Counter
	RequestErrors   metric.Int64Counter
	RequestDuration metric.Float64Histogram
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	ReadyReasons    metric.Int64Counter
	SessionsActive  metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RequestsTotal, err = meter.Int64Counter("codesense.requests.total",
		metric.WithDescription("Number of language server requests issued"))
	if err != nil {
		return nil, err
	}

	m.RequestErrors, err = meter.Int64Counter("codesense.requests.errors",
		metric.WithDescription("Number of language server requests that failed"))
	if err != nil {
		return nil, err
	}

	m.RequestDuration, err = meter.Float64Histogram("codesense.request.duration_seconds",
		metric.WithDescription("Language server request duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("codesense.cache.hits",
		metric.WithDescription("Number of symbol cache hits"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("codesense.cache.misses",
		metric.WithDescription("Number of symbol cache misses"))
	if err != nil {
		return nil, err
	}

	m.ReadyReasons, err = meter.Int64Counter("codesense.sessions.ready",
		metric.WithDescription("Sessions reaching ready, by winning signal"))
	if err != nil {
		return nil, err
	}

	m.SessionsActive, err = meter.Int64UpDownCounter("codesense.sessions.active",
		metric.WithDescription("Number of running language server sessions"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRequest records one completed request with its language and method.
func (m *Metrics) RecordRequest(ctx context.Context, language, method string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("method", method),
	)
	m.RequestsTotal.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordError records one failed request.
func (m *Metrics) RecordError(ctx context.Context, language, method string) {
	m.RequestErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("method", method),
	))
}

// RecordReady records which readiness signal won for a session.
func (m *Metrics) RecordReady(ctx context.Context, language, reason string) {
	m.ReadyReasons.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("reason", reason),
	))
}
