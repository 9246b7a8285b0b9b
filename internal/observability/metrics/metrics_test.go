package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("endpoint", "/api/packs"),
		attribute.String("pack", "left-pad"),
		attribute.String("result", "ok"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "pack" {
			t.Fatalf("expected pack label to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordPublish(context.Background(), "upload", "ok")
	m.RecordWebhookDelivery(context.Background(), "publish", true)
	m.RecordRateLimitDenied(context.Background(), "/api/packs", "publish")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "packhub"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordPublish(context.Background(), "release", "ok")
	m.RecordReleaseEvent(context.Background(), "ignored")
	m.RecordRateLimitAllowed(context.Background(), "/api/packs")
}
