// Package telemetry wires OpenTelemetry for the resultnav CLI: OTLP trace
// export, a Prometheus /metrics listener backed by the OTel meter provider,
// Go runtime metrics and an optional pprof listener.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"pkt.systems/pslog"
	"pkt.systems/resultnav/internal/loggingutil"
)

// Config selects which telemetry surfaces Setup starts.
type Config struct {
	// ServiceName defaults to "resultnav".
	ServiceName string
	// OTLPEndpoint enables trace export: host[:port] (gRPC, insecure) or a
	// grpc://, grpcs://, http:// or https:// URL.
	OTLPEndpoint string
	// MetricsListen serves Prometheus metrics on /metrics.
	MetricsListen string
	// RuntimeMetrics adds Go runtime metrics; needs MetricsListen.
	RuntimeMetrics bool
	// PprofListen serves net/http/pprof on /debug/pprof/.
	PprofListen string
	Logger      pslog.Logger
}

// Bundle holds the running providers and listeners.
type Bundle struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsServer  *http.Server
	metricsLn      net.Listener
	pprofServer    *http.Server
	pprofLn        net.Listener
	logger         pslog.Logger
}

// otlpTarget is a parsed --otlp-endpoint value.
type otlpTarget struct {
	protocol string
	endpoint string
	path     string
	insecure bool
}

// otlpSchemes maps endpoint URL schemes to the exporter they select. The
// endpoint field holds the default port.
var otlpSchemes = map[string]otlpTarget{
	"grpc":  {protocol: "grpc", endpoint: "4317", insecure: true},
	"grpcs": {protocol: "grpc", endpoint: "4317"},
	"http":  {protocol: "http", endpoint: "4318", insecure: true},
	"https": {protocol: "http", endpoint: "4318"},
}

var (
	runtimeMetricsOnce sync.Once
	runtimeMetricsErr  error
)

// Setup starts the configured surfaces and installs the global tracer and
// meter providers. It returns nil when nothing is configured.
func Setup(ctx context.Context, cfg Config) (*Bundle, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	metricsListen := strings.TrimSpace(cfg.MetricsListen)
	pprofListen := strings.TrimSpace(cfg.PprofListen)
	if endpoint == "" && metricsListen == "" && pprofListen == "" && !cfg.RuntimeMetrics {
		return nil, nil
	}
	if cfg.RuntimeMetrics && metricsListen == "" {
		return nil, errors.New("telemetry: runtime metrics require a metrics listen address")
	}
	logger := loggingutil.WithSubsystem(cfg.Logger, "telemetry")
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "resultnav"
	}
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	b := &Bundle{logger: logger}
	fail := func(err error) (*Bundle, error) {
		_ = b.Shutdown(ctx)
		return nil, err
	}

	if endpoint != "" {
		target, err := resolveOTLPTarget(endpoint)
		if err != nil {
			return nil, err
		}
		exporter, err := newTraceExporter(ctx, target)
		if err != nil {
			return nil, err
		}
		b.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(b.tracerProvider)
		logger.Info("telemetry.tracing.enabled",
			"protocol", target.protocol,
			"endpoint", target.endpoint,
			"path", target.path,
			"insecure", target.insecure,
		)
	}

	if metricsListen != "" {
		registry := prometheus.NewRegistry()
		exporterOpts := []otelprometheus.Option{otelprometheus.WithRegisterer(registry)}
		if cfg.RuntimeMetrics {
			exporterOpts = append(exporterOpts, otelprometheus.WithProducer(otelruntime.NewProducer()))
		}
		exporter, err := otelprometheus.New(exporterOpts...)
		if err != nil {
			return fail(fmt.Errorf("telemetry: start prometheus exporter: %w", err))
		}
		b.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(b.meterProvider)
		if cfg.RuntimeMetrics {
			if err := startRuntimeMetrics(b.meterProvider); err != nil {
				return fail(err)
			}
			logger.Info("telemetry.runtime_metrics.enabled")
		}
		handler := otelhttp.NewHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), "metrics")
		b.metricsServer, b.metricsLn, err = serve(metricsListen, "/metrics", handler, logger)
		if err != nil {
			return fail(fmt.Errorf("telemetry: metrics listen: %w", err))
		}
		logger.Info("telemetry.metrics.enabled", "listen", b.metricsLn.Addr().String())
	}

	if pprofListen != "" {
		mux := http.NewServeMux()
		for name, fn := range map[string]http.HandlerFunc{
			"":        pprof.Index,
			"cmdline": pprof.Cmdline,
			"profile": pprof.Profile,
			"symbol":  pprof.Symbol,
			"trace":   pprof.Trace,
		} {
			mux.HandleFunc("/debug/pprof/"+name, fn)
		}
		b.pprofServer, b.pprofLn, err = serve(pprofListen, "/", mux, logger)
		if err != nil {
			return fail(fmt.Errorf("telemetry: pprof listen: %w", err))
		}
		logger.Info("telemetry.pprof.enabled", "listen", b.pprofLn.Addr().String())
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		// Retries while the collector is unreachable log at debug.
		if err == nil {
			return
		}
		if strings.Contains(err.Error(), "connections to become ready") {
			logger.Debug("telemetry.exporter.retry", "error", err)
			return
		}
		logger.Warn("telemetry.exporter.error", "error", err)
	}))
	return b, nil
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (b *Bundle) MetricsAddr() string {
	if b == nil || b.metricsLn == nil {
		return ""
	}
	return b.metricsLn.Addr().String()
}

// MeterProvider returns the SDK meter provider, or nil when metrics are off.
func (b *Bundle) MeterProvider() *sdkmetric.MeterProvider {
	if b == nil {
		return nil
	}
	return b.meterProvider
}

// Shutdown flushes exporters and stops the listeners.
func (b *Bundle) Shutdown(ctx context.Context) error {
	if b == nil {
		return nil
	}
	var errs []error
	if b.meterProvider != nil {
		if err := b.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
			b.logger.Warn("telemetry.shutdown.metric_failure", "error", err)
		}
	}
	for _, s := range []struct {
		name string
		srv  *http.Server
		ln   net.Listener
	}{
		{"metrics", b.metricsServer, b.metricsLn},
		{"pprof", b.pprofServer, b.pprofLn},
	} {
		if s.srv != nil {
			if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, fmt.Errorf("%s server shutdown: %w", s.name, err))
				b.logger.Warn("telemetry.shutdown.server_failure", "server", s.name, "error", err)
			}
		}
		if s.ln != nil {
			_ = s.ln.Close()
		}
	}
	if b.tracerProvider != nil {
		if err := b.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
			b.logger.Warn("telemetry.shutdown.trace_failure", "error", err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	b.logger.Debug("telemetry.shutdown.complete")
	return nil
}

func newTraceExporter(ctx context.Context, target otlpTarget) (sdktrace.SpanExporter, error) {
	const timeout = 10 * time.Second
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	if target.protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(target.endpoint), otlptracehttp.WithTimeout(timeout)}
		if target.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if target.path != "" {
			opts = append(opts, otlptracehttp.WithURLPath(target.path))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	} else {
		creds := credentials.NewClientTLSFromCert(nil, "")
		if target.insecure {
			creds = insecure.NewCredentials()
		}
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(target.endpoint),
			otlptracegrpc.WithTimeout(timeout),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(creds)),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: start %s trace exporter: %w", target.protocol, err)
	}
	return exporter, nil
}

func serve(addr, pattern string, handler http.Handler, logger pslog.Logger) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(pattern, handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("telemetry.serve_error", "addr", addr, "error", err)
		}
	}()
	return srv, ln, nil
}

func startRuntimeMetrics(provider metric.MeterProvider) error {
	if provider == nil {
		return errors.New("telemetry: meter provider unavailable")
	}
	runtimeMetricsOnce.Do(func() {
		runtimeMetricsErr = otelruntime.Start(otelruntime.WithMeterProvider(provider))
	})
	return runtimeMetricsErr
}

// resolveOTLPTarget accepts host[:port] (plain gRPC) or a grpc://, grpcs://,
// http:// or https:// URL. The http forms may carry a URL path.
func resolveOTLPTarget(raw string) (otlpTarget, error) {
	scheme, rest, hasScheme := strings.Cut(raw, "://")
	if !hasScheme {
		scheme, rest = "grpc", raw
	}
	target, ok := otlpSchemes[strings.ToLower(scheme)]
	if !ok {
		return otlpTarget{}, fmt.Errorf("telemetry: unknown OTLP scheme %q", scheme)
	}
	defaultPort := target.endpoint
	host, path, _ := strings.Cut(rest, "/")
	if host == "" {
		return otlpTarget{}, fmt.Errorf("telemetry: OTLP endpoint %q has no host", raw)
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(strings.Trim(host, "[]"), defaultPort)
	}
	target.endpoint = host
	if path = strings.Trim(path, "/"); path != "" {
		target.path = "/" + path
	}
	return target, nil
}
