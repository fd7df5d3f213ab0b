package resultnav

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

const instrumentationName = "pkt.systems/resultnav"

type navMetrics struct {
	started       metric.Int64Counter
	delivered     metric.Int64Counter
	deferred      metric.Int64Counter
	cancelled     metric.Int64Counter
	faults        metric.Int64Counter
	evicted       metric.Int64Counter
	txnDuration   metric.Int64Histogram
	registrations metric.Int64ObservableGauge
	pendingSize   metric.Int64ObservableGauge
	registration  metric.Registration
}

func newNavMetrics(logger pslog.Logger, stats func() Stats) *navMetrics {
	meter := otel.Meter(instrumentationName)
	m := &navMetrics{}
	var err error

	m.started, err = meter.Int64Counter(
		"resultnav.txn.started",
		metric.WithDescription("Transactions started by NavigateForResult"),
	)
	logMetricInitError(logger, "resultnav.txn.started", err)

	m.delivered, err = meter.Int64Counter(
		"resultnav.txn.delivered",
		metric.WithDescription("Results handed to a requester, by delivery path"),
	)
	logMetricInitError(logger, "resultnav.txn.delivered", err)

	m.deferred, err = meter.Int64Counter(
		"resultnav.txn.deferred",
		metric.WithDescription("Outcomes parked in the pending store"),
	)
	logMetricInitError(logger, "resultnav.txn.deferred", err)

	m.cancelled, err = meter.Int64Counter(
		"resultnav.txn.cancelled",
		metric.WithDescription("Transactions cancelled without a result"),
	)
	logMetricInitError(logger, "resultnav.txn.cancelled", err)

	m.faults, err = meter.Int64Counter(
		"resultnav.txn.faults",
		metric.WithDescription("Requester/responder pairing faults"),
	)
	logMetricInitError(logger, "resultnav.txn.faults", err)

	m.evicted, err = meter.Int64Counter(
		"resultnav.pending.evicted",
		metric.WithDescription("Pending outcomes dropped by age sweeps"),
	)
	logMetricInitError(logger, "resultnav.pending.evicted", err)

	m.txnDuration, err = meter.Int64Histogram(
		"resultnav.txn.duration_ms",
		metric.WithDescription("Time from transaction start to responder close"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "resultnav.txn.duration_ms", err)

	m.registrations, err = meter.Int64ObservableGauge(
		"resultnav.registry.size",
		metric.WithDescription("Registry entries, including ones not yet swept"),
	)
	logMetricInitError(logger, "resultnav.registry.size", err)

	m.pendingSize, err = meter.Int64ObservableGauge(
		"resultnav.pending.size",
		metric.WithDescription("Outcomes waiting for their requester"),
	)
	logMetricInitError(logger, "resultnav.pending.size", err)

	if stats != nil && m.registrations != nil && m.pendingSize != nil {
		m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			s := stats()
			o.ObserveInt64(m.registrations, int64(s.Registered))
			o.ObserveInt64(m.pendingSize, int64(s.Pending))
			return nil
		}, m.registrations, m.pendingSize)
		logMetricInitError(logger, "resultnav.callback", err)
	}
	return m
}

func (m *navMetrics) recordStarted(ctx context.Context, kind string) {
	if m == nil || m.started == nil {
		return
	}
	m.started.Add(metricContext(ctx), 1, metric.WithAttributes(attribute.String("resultnav.unit_kind", kind)))
}

func (m *navMetrics) recordDelivered(ctx context.Context, path string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.Add(metricContext(ctx), 1, metric.WithAttributes(attribute.String("resultnav.path", path)))
}

func (m *navMetrics) recordDeferred(ctx context.Context, success bool) {
	if m == nil || m.deferred == nil {
		return
	}
	m.deferred.Add(metricContext(ctx), 1, metric.WithAttributes(attribute.Bool("resultnav.success", success)))
}

func (m *navMetrics) recordCancelled(ctx context.Context, outcome string) {
	if m == nil || m.cancelled == nil {
		return
	}
	m.cancelled.Add(metricContext(ctx), 1, metric.WithAttributes(attribute.String("resultnav.outcome", outcome)))
}

func (m *navMetrics) recordFault(ctx context.Context, code string) {
	if m == nil || m.faults == nil {
		return
	}
	m.faults.Add(metricContext(ctx), 1, metric.WithAttributes(attribute.String("resultnav.fault", code)))
}

func (m *navMetrics) recordEvicted(ctx context.Context, n int) {
	if m == nil || m.evicted == nil || n == 0 {
		return
	}
	m.evicted.Add(metricContext(ctx), int64(n))
}

func (m *navMetrics) recordDuration(ctx context.Context, d time.Duration, outcome string) {
	if m == nil || m.txnDuration == nil || d < 0 {
		return
	}
	m.txnDuration.Record(metricContext(ctx), d.Milliseconds(), metric.WithAttributes(attribute.String("resultnav.outcome", outcome)))
}

func (m *navMetrics) close() {
	if m == nil || m.registration == nil {
		return
	}
	_ = m.registration.Unregister()
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
