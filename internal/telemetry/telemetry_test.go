package telemetry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestResolveOTLPTarget(t *testing.T) {
	cases := []struct {
		raw      string
		protocol string
		endpoint string
		path     string
		insecure bool
	}{
		{raw: "collector", protocol: "grpc", endpoint: "collector:4317", insecure: true},
		{raw: "collector:9999", protocol: "grpc", endpoint: "collector:9999", insecure: true},
		{raw: "grpcs://collector", protocol: "grpc", endpoint: "collector:4317"},
		{raw: "http://collector/v1/traces/", protocol: "http", endpoint: "collector:4318", path: "/v1/traces", insecure: true},
		{raw: "https://collector:443", protocol: "http", endpoint: "collector:443"},
		{raw: "[::1]", protocol: "grpc", endpoint: "[::1]:4317", insecure: true},
		{raw: "HTTPS://collector/otlp", protocol: "http", endpoint: "collector:4318", path: "/otlp"},
	}
	for _, tc := range cases {
		got, err := resolveOTLPTarget(tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if got.protocol != tc.protocol || got.endpoint != tc.endpoint || got.path != tc.path || got.insecure != tc.insecure {
			t.Fatalf("%s: unexpected target %+v", tc.raw, got)
		}
	}
	for _, raw := range []string{"", "ftp://collector", "http://"} {
		if _, err := resolveOTLPTarget(raw); err == nil {
			t.Fatalf("%q: expected error", raw)
		}
	}
}

func TestSetupDisabled(t *testing.T) {
	bundle, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if bundle != nil {
		t.Fatalf("expected nil bundle when nothing is configured")
	}
	if err := bundle.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
	if bundle.MetricsAddr() != "" {
		t.Fatalf("expected empty metrics address")
	}
}

func TestSetupRuntimeMetricsNeedListener(t *testing.T) {
	if _, err := Setup(context.Background(), Config{RuntimeMetrics: true}); err == nil {
		t.Fatalf("expected error without metrics listen address")
	}
}

func TestMetricsEndpointServesInstruments(t *testing.T) {
	ctx := context.Background()
	bundle, err := Setup(ctx, Config{MetricsListen: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bundle.Shutdown(shutdownCtx)
	})

	counter, err := otel.Meter("pkt.systems/resultnav/telemetry_test").Int64Counter("resultnav.test.hits")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(ctx, 3)

	resp, err := http.Get("http://" + bundle.MetricsAddr() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "resultnav_test_hits") {
		t.Fatalf("expected test counter in metrics output, got:\n%s", body)
	}
}
