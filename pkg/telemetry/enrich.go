package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordDispatchDecision annotates span with the dispatcher rule that
// answered the request and, for API paths, the matched route prefix.
func RecordDispatchDecision(span trace.Span, rule string, routePrefix string) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("relay.dispatch.rule", rule),
	}
	if routePrefix != "" {
		attrs = append(attrs, attribute.String("relay.route", routePrefix))
	}
	span.SetAttributes(attrs...)
}

// RecordUpstreamFailure adds an event describing a failed upstream call.
// Only the failure class is recorded; error text can carry hostnames.
func RecordUpstreamFailure(span trace.Span, outcome string) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent("relay.upstream.failure", trace.WithAttributes(
		attribute.String("relay.outcome", outcome),
	))
}
