package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Upstream call outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeUpstreamErr = "upstream_error"
	OutcomeUnreachable = "unreachable"
	OutcomeTimeout     = "timeout"
	OutcomeCanceled    = "canceled"
)

var (
	metricsOnce              sync.Once
	metricsInitErr           error
	upstreamRequestCounter   metric.Int64Counter
	upstreamFailureCounter   metric.Int64Counter
	upstreamLatencyHistogram metric.Float64Histogram
	upstreamBytesCounter     metric.Int64Counter
)

// UpstreamMetrics captures the fields needed to record one upstream call.
type UpstreamMetrics struct {
	Route      string
	Method     string
	StatusCode int
	Outcome    string
	Duration   time.Duration
	BytesSent  int64
}

// RecordUpstreamMetrics emits counters and histograms that describe an upstream call.
func RecordUpstreamMetrics(ctx context.Context, m UpstreamMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("relay.route", m.Route),
		attribute.String("http.request.method", m.Method),
		attribute.String("relay.outcome", m.Outcome),
	}
	if m.StatusCode > 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", m.StatusCode))
	}

	upstreamRequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Duration > 0 {
		upstreamLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if m.BytesSent > 0 {
		upstreamBytesCounter.Add(ctx, m.BytesSent, metric.WithAttributes(attrs...))
	}

	switch m.Outcome {
	case OutcomeUnreachable, OutcomeTimeout:
		upstreamFailureCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("relay.upstream")

		upstreamRequestCounter, metricsInitErr = meter.Int64Counter(
			"relay.upstream.requests_total",
			metric.WithDescription("Upstream calls partitioned by route and outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		upstreamFailureCounter, metricsInitErr = meter.Int64Counter(
			"relay.upstream.failures_total",
			metric.WithDescription("Upstream calls that never produced a response"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		upstreamBytesCounter, metricsInitErr = meter.Int64Counter(
			"relay.upstream.response_bytes_total",
			metric.WithDescription("Response body bytes relayed from upstreams"),
			metric.WithUnit("By"),
		)
		if metricsInitErr != nil {
			return
		}

		upstreamLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"relay.upstream.duration_ms",
			metric.WithDescription("Observed upstream call latency including body relay"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
