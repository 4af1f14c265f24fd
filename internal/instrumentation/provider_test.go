package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestNewProviderDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create disabled provider: %v", err)
	}

	if provider.Enabled() {
		t.Error("provider should report disabled")
	}
	if provider.Metrics() == nil {
		t.Error("disabled provider must still return a no-op metrics recorder")
	}
	if provider.Tracer("test") == nil {
		t.Error("disabled provider must return a no-op tracer")
	}
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("shutdown of disabled provider: %v", err)
	}
}

func TestNewProviderPrometheus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := newTestProvider(t, ctx)

	if !provider.Enabled() {
		t.Error("provider should report enabled")
	}
	if provider.PrometheusHandler() == nil {
		t.Error("prometheus exporter should be available")
	}
	if provider.Tracer("test") == nil {
		t.Error("tracer should be available")
	}
}

func TestNewProviderUnknownExporter(t *testing.T) {
	ctx := context.Background()

	_, err := NewProvider(ctx, Config{
		ServiceName:     "test",
		Enabled:         true,
		MetricsExporter: "bogus",
		TracingExporter: ExporterNone,
	})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestProviderShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
