package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestSetupProvider_BridgesUpstreamMetricsToRegistry(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})
	ResetMetricsForTest()

	registry := prometheus.NewRegistry()
	shutdown, err := SetupProvider(context.Background(), Config{
		ServiceName: "polis-relay",
		Environment: "staging",
		Registerer:  registry,
	})
	if err != nil {
		t.Fatalf("setup provider: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	if _, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); !ok {
		t.Fatalf("expected an SDK meter provider, got %T", otel.GetMeterProvider())
	}

	RecordUpstreamMetrics(context.Background(), UpstreamMetrics{
		Route:      "/openai",
		Method:     "POST",
		StatusCode: 200,
		Outcome:    OutcomeSuccess,
		Duration:   40 * time.Millisecond,
		BytesSent:  128,
	})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var names []string
	for _, family := range families {
		names = append(names, family.GetName())
		if strings.HasPrefix(family.GetName(), "relay_upstream_requests") {
			return
		}
	}
	t.Fatalf("relay_upstream_requests not exported, got %v", names)
}

func TestNewResource_EnvironmentAndTags(t *testing.T) {
	res, err := newResource(context.Background(), Config{
		ServiceName:  "polis-relay",
		Environment:  "staging",
		ResourceTags: map[string]string{"team": "platform"},
	})
	if err != nil {
		t.Fatalf("new resource: %v", err)
	}

	want := map[attribute.Key]string{
		"service.name":           "polis-relay",
		"deployment.environment": "staging",
		"team":                   "platform",
	}
	for key, expected := range want {
		value, ok := res.Set().Value(key)
		if !ok || value.AsString() != expected {
			t.Errorf("resource %s = %q, want %q", key, value.AsString(), expected)
		}
	}
}
