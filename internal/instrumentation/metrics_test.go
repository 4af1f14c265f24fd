package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, ctx context.Context) *Provider {
	t.Helper()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })
	return provider
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx).Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/health", 200, 100*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "POST", "/mcp", 500, 50*time.Millisecond)
}

func TestMetrics_RecordGraphOperation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx).Metrics()

	// Should not panic
	metrics.RecordGraphOperation(ctx, "list_messages", StatusSuccess, 200*time.Millisecond)
	metrics.RecordGraphOperation(ctx, "get_message", StatusError, 500*time.Millisecond)
	metrics.RecordGraphOperation(ctx, "resolve_folder", StatusSuccess, 100*time.Millisecond)
}

func TestMetrics_RecordOAuthTokenRefresh(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx).Metrics()

	// Should not panic
	metrics.RecordOAuthTokenRefresh(ctx, StatusSuccess)
	metrics.RecordOAuthTokenRefresh(ctx, StatusError)
}

func TestMetrics_RecordAuthResolution(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx).Metrics()

	// Should not panic
	metrics.RecordAuthResolution(ctx, StatusSuccess)
	metrics.RecordAuthResolution(ctx, StatusError)
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx).Metrics()

	// Should not panic
	metrics.RecordToolInvocation(ctx, "list_emails", StatusSuccess, 150*time.Millisecond)
	metrics.RecordToolInvocation(ctx, "search_emails", StatusError, 300*time.Millisecond)
}

func TestMetrics_ZeroValueIsNoOp(t *testing.T) {
	ctx := context.Background()
	m := &Metrics{}

	// All recorders must be safe before initialization
	m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
	m.RecordGraphOperation(ctx, "list_messages", StatusSuccess, time.Millisecond)
	m.RecordOAuthTokenRefresh(ctx, StatusSuccess)
	m.RecordAuthResolution(ctx, StatusSuccess)
	m.RecordToolInvocation(ctx, "list_emails", StatusSuccess, time.Millisecond)
}
