package resultnav

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/pslog"
	"pkt.systems/resultnav/internal/clock"
	"pkt.systems/resultnav/internal/loggingutil"
	"pkt.systems/resultnav/internal/pending"
	"pkt.systems/resultnav/internal/registry"
)

// Navigator coordinates requester/responder transactions on top of a
// Presenter. One mutex guards the registry, the pending store and the
// dispatch table; result handlers and presenter calls run outside it.
type Navigator struct {
	presenter Presenter
	logger    pslog.Logger
	clock     clock.Clock
	newID     func() string
	maxAge    time.Duration
	metrics   *navMetrics
	tracer    trace.Tracer

	mu       sync.Mutex
	registry *registry.Registry[Requester]
	pending  *pending.Store
	dispatch dispatchTable
}

// Stats summarizes the transaction tables.
type Stats struct {
	// Registered counts registry entries, including dead ones not yet swept.
	Registered int
	// Pending counts undelivered outcomes.
	Pending int
}

// TxnStatus reports where a transaction id currently lives.
type TxnStatus int

const (
	// TxnUnknown means the id is in neither table: never issued, delivered,
	// consumed or dropped.
	TxnUnknown TxnStatus = iota
	// TxnRegistered means the transaction is outstanding.
	TxnRegistered
	// TxnPending means an outcome waits for its requester.
	TxnPending
)

func (s TxnStatus) String() string {
	switch s {
	case TxnRegistered:
		return "registered"
	case TxnPending:
		return "pending"
	default:
		return "unknown"
	}
}

// PendingInfo describes an undelivered outcome.
type PendingInfo struct {
	TxnID      string
	ResultType string
	Success    bool
	StoredAt   time.Time
}

// New constructs a Navigator.
func New(cfg Config) (*Navigator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := loggingutil.WithSubsystem(cfg.Logger, "resultnav", "navigator")
	n := &Navigator{
		presenter: cfg.Presenter,
		logger:    logger,
		clock:     cfg.Clock,
		newID:     cfg.NewTransactionID,
		maxAge:    cfg.PendingMaxAge,
		tracer:    otel.Tracer(instrumentationName),
		registry:  registry.New[Requester](cfg.Clock),
		pending:   pending.New(cfg.Clock),
		dispatch:  make(dispatchTable),
	}
	n.metrics = newNavMetrics(logger, n.Stats)
	return n, nil
}

// Shutdown releases the navigator's metric callbacks. Transactions are not
// affected.
func (n *Navigator) Shutdown() {
	if n == nil {
		return
	}
	n.metrics.close()
}

// NavigateForResult creates a unit of the given kind through the presenter,
// links it to requester as responder of a fresh transaction and displays it.
// The requester is held weakly: the navigator never keeps it alive.
//
// The result type R is named explicitly; T and P are inferred from requester:
//
//	err := resultnav.NavigateForResult[TextResult](ctx, nav, screen, "picker", nil)
//
// A requester already waiting on another transaction has its id overwritten.
func NavigateForResult[R any, T any, P interface {
	*T
	ResultReceiver[R]
}](ctx context.Context, n *Navigator, requester P, kind string, param any) error {
	if (*T)(requester) == nil {
		return ErrNilRequester
	}
	if n == nil {
		return errors.New("resultnav: navigator required")
	}
	ctx, span := n.tracer.Start(ctx, "resultnav.navigate_for_result",
		trace.WithAttributes(attribute.String("resultnav.unit_kind", kind)))
	defer span.End()

	unit, err := n.presenter.CreateUnit(ctx, kind, param)
	if err != nil {
		err = fmt.Errorf("resultnav: create %q: %w", kind, err)
		failSpan(span, err)
		return err
	}
	responder, ok := unit.(Responder)
	if !ok {
		err := fmt.Errorf("%w: kind %q built %T", ErrNotResponder, kind, unit)
		failSpan(span, err)
		return err
	}

	ref := registry.NewWeakRef((*T)(requester), func(t *T) Requester { return P(t) })
	n.mu.Lock()
	id := n.newID()
	requester.SetRequesterTransactionID(id)
	responder.SetResponderTransactionID(id)
	n.registry.Register(id, ref)
	n.mu.Unlock()

	span.SetAttributes(attribute.String("resultnav.txn_id", id))
	n.metrics.recordStarted(ctx, kind)
	n.logger.Debug("resultnav.txn.started",
		"txn_id", id,
		"kind", kind,
		"requester", fmt.Sprintf("%T", requester),
		"result_type", typeName(resultTypeOf[R]()),
	)

	if err := n.presenter.Display(ctx, unit); err != nil {
		n.mu.Lock()
		n.registry.Remove(id)
		if requester.RequesterTransactionID() == id {
			requester.SetRequesterTransactionID("")
		}
		if responder.ResponderTransactionID() == id {
			responder.SetResponderTransactionID("")
		}
		n.mu.Unlock()
		n.logger.Warn("resultnav.txn.display_failed", "txn_id", id, "kind", kind, "error", err)
		err = fmt.Errorf("resultnav: display %q: %w", kind, err)
		failSpan(span, err)
		return err
	}
	return nil
}

// CloseWithResult completes the responder's transaction with result and closes
// the responder. When the requester is alive, still waiting on this
// transaction and receptive, its OnResult runs before CloseWithResult returns;
// otherwise the result is parked until the requester calls ObtainResult.
//
// A responder without a transaction is simply closed. A requester that does
// not accept R yields a *Fault wrapping ErrTypeMismatch; the responder is
// closed regardless. The transaction is gone at that point and nothing is
// parked, but the requester still holds its transaction id: reset it with
// CancelTransaction, which only clears the id of an unregistered transaction.
func CloseWithResult[R any](ctx context.Context, n *Navigator, responder Responder, result R) error {
	if responder == nil {
		return ErrNilResponder
	}
	if n == nil {
		return errors.New("resultnav: navigator required")
	}
	ctx, span := n.tracer.Start(ctx, "resultnav.close_with_result")
	defer span.End()

	resultType := resultTypeOf[R]()
	var (
		receiver  ResultReceiver[R]
		fault     *Fault
		deferred  bool
		startedAt time.Time
	)

	n.mu.Lock()
	n.dispatch.register(resultType, deliverAs[R])
	id := responder.ResponderTransactionID()
	responder.SetResponderTransactionID("")
	if id != "" {
		requester, alive, registeredAt, _ := n.registry.Take(id)
		startedAt = registeredAt
		if alive && requester.RequesterTransactionID() == id && requester.CanReceiveResult() {
			if rr, ok := requester.(ResultReceiver[R]); ok {
				receiver = rr
			} else {
				fault = newFault(CodeTypeMismatch, ErrTypeMismatch, id, typeName(resultType), requester)
			}
		} else {
			n.pending.Put(id, pending.Entry{Type: resultType, Success: true, Payload: result})
			deferred = true
		}
	}
	n.mu.Unlock()

	span.SetAttributes(attribute.String("resultnav.txn_id", id))
	switch {
	case id == "":
		n.logger.Debug("resultnav.close.no_transaction", "responder", fmt.Sprintf("%T", responder))
	case fault != nil:
		n.metrics.recordFault(ctx, fault.Code)
		n.logger.Error("resultnav.close.type_mismatch",
			"txn_id", id,
			"result_type", fault.ResultType,
			"requester", fault.Unit,
		)
		failSpan(span, fault)
	case deferred:
		n.metrics.recordDeferred(ctx, true)
		n.metrics.recordDuration(ctx, n.since(startedAt), "deferred")
		n.logger.Debug("resultnav.close.deferred", "txn_id", id, "result_type", typeName(resultType))
	default:
		receiver.OnResult(result)
		n.mu.Lock()
		if receiver.RequesterTransactionID() == id {
			receiver.SetRequesterTransactionID("")
		}
		n.mu.Unlock()
		n.metrics.recordDelivered(ctx, "direct")
		n.metrics.recordDuration(ctx, n.since(startedAt), "delivered")
		n.logger.Debug("resultnav.close.delivered", "txn_id", id, "result_type", typeName(resultType))
	}

	_, closeErr := n.Close(ctx, responder)
	if fault == nil {
		return closeErr
	}
	if closeErr != nil {
		return errors.Join(fault, closeErr)
	}
	return fault
}

// Close closes unit through the presenter. A unit still waiting on a child
// transaction cancels it first, and a responder closed before posting a
// result abandons its transaction so the requester stops waiting.
func (n *Navigator) Close(ctx context.Context, unit any) (bool, error) {
	if unit == nil {
		return false, nil
	}
	if r, ok := unit.(Requester); ok {
		n.CancelTransaction(ctx, r)
	}
	if r, ok := unit.(Responder); ok {
		n.AbandonResponse(ctx, r)
	}
	closed, err := n.presenter.Close(ctx, unit)
	if err != nil {
		return closed, fmt.Errorf("resultnav: close %T: %w", unit, err)
	}
	return closed, nil
}

// CancelTransaction drops the child transaction unit is waiting on. When the
// registered requester is alive and receptive its id is simply cleared;
// otherwise a negative outcome is parked so a recreated requester can tell a
// cancelled transaction from one that never happened. It returns false when
// unit has no outstanding transaction.
func (n *Navigator) CancelTransaction(ctx context.Context, unit Requester) bool {
	if unit == nil {
		return false
	}
	n.mu.Lock()
	id := unit.RequesterTransactionID()
	if id == "" {
		n.mu.Unlock()
		return false
	}
	unit.SetRequesterTransactionID("")
	target, alive, _, found := n.registry.Take(id)
	if !found {
		n.mu.Unlock()
		n.logger.Debug("resultnav.cancel.unregistered", "txn_id", id)
		return true
	}
	outcome := n.cancelLocked(id, target, alive)
	n.mu.Unlock()

	n.metrics.recordCancelled(ctx, outcome)
	n.logger.Debug("resultnav.cancel."+outcome, "txn_id", id, "unit", fmt.Sprintf("%T", unit))
	return true
}

// AbandonResponse cancels the transaction a responder was created for when it
// closes without posting a result. A live, receptive requester still waiting
// on the transaction has its id cleared without an OnResult call; otherwise a
// negative outcome is parked for ObtainResult. It returns false when the
// responder holds no transaction.
func (n *Navigator) AbandonResponse(ctx context.Context, unit Responder) bool {
	if unit == nil {
		return false
	}
	n.mu.Lock()
	id := unit.ResponderTransactionID()
	if id == "" {
		n.mu.Unlock()
		return false
	}
	unit.SetResponderTransactionID("")
	target, alive, startedAt, found := n.registry.Take(id)
	if !found {
		// Already settled from the requester side or swept.
		n.mu.Unlock()
		n.logger.Debug("resultnav.abandon.settled", "txn_id", id)
		return true
	}
	if alive && target.RequesterTransactionID() != id {
		// The requester moved on to another transaction; nobody waits on this one.
		n.mu.Unlock()
		n.metrics.recordCancelled(ctx, "stale")
		n.logger.Debug("resultnav.abandon.stale", "txn_id", id)
		return true
	}
	outcome := n.cancelLocked(id, target, alive)
	n.mu.Unlock()

	n.metrics.recordCancelled(ctx, outcome)
	n.metrics.recordDuration(ctx, n.since(startedAt), "cancelled")
	n.logger.Debug("resultnav.abandon."+outcome, "txn_id", id, "responder", fmt.Sprintf("%T", unit))
	return true
}

// cancelLocked settles a cancelled transaction whose registry entry has been
// taken. Callers hold n.mu.
func (n *Navigator) cancelLocked(id string, target Requester, alive bool) string {
	if alive && target.CanReceiveResult() {
		if target.RequesterTransactionID() == id {
			target.SetRequesterTransactionID("")
		}
		return "silent"
	}
	n.pending.Put(id, pending.Entry{Success: false})
	return "recorded"
}

// ObtainResult delivers a parked outcome to r. It returns false when r is not
// receptive, waits on nothing, or has no outcome available; this is the common
// case and costs one map lookup. A cancelled transaction returns true without
// an OnResult call. A stored result that r cannot receive returns true and a
// *Fault wrapping ErrHandlerNotFound; the outcome is consumed either way.
func (n *Navigator) ObtainResult(ctx context.Context, r Requester) (bool, error) {
	if n == nil || r == nil {
		return false, nil
	}
	if !r.CanReceiveResult() {
		n.logger.Debug("resultnav.obtain.not_receptive", "unit", fmt.Sprintf("%T", r))
		return false, nil
	}

	n.mu.Lock()
	id := r.RequesterTransactionID()
	if id == "" {
		n.mu.Unlock()
		return false, nil
	}
	entry, ok := n.pending.Take(id)
	if !ok {
		n.mu.Unlock()
		return false, nil
	}
	r.SetRequesterTransactionID("")
	deliver, known := n.dispatch.lookup(entry.Type)
	n.mu.Unlock()

	if !entry.Success {
		n.logger.Debug("resultnav.obtain.cancelled", "txn_id", id)
		return true, nil
	}
	if !known || !deliver(r, entry.Payload) {
		fault := newFault(CodeHandlerNotFound, ErrHandlerNotFound, id, typeName(entry.Type), r)
		n.metrics.recordFault(ctx, fault.Code)
		n.logger.Error("resultnav.obtain.handler_not_found",
			"txn_id", id,
			"result_type", fault.ResultType,
			"requester", fault.Unit,
		)
		return true, fault
	}
	n.metrics.recordDelivered(ctx, "deferred")
	n.logger.Debug("resultnav.obtain.delivered", "txn_id", id, "result_type", typeName(entry.Type))
	return true, nil
}

// SweepPending evicts parked outcomes older than Config.PendingMaxAge and
// returns their ids. With a zero max age nothing is evicted. Sweeps only run
// when called.
func (n *Navigator) SweepPending(ctx context.Context) []string {
	if n == nil || n.maxAge <= 0 {
		return nil
	}
	n.mu.Lock()
	evicted := n.pending.EvictOlderThan(n.maxAge)
	n.mu.Unlock()
	if len(evicted) > 0 {
		n.metrics.recordEvicted(ctx, len(evicted))
		n.logger.Info("resultnav.pending.evicted", "count", len(evicted), "max_age", n.maxAge.String())
	}
	return evicted
}

// SweepRegistry purges registry entries whose requester has been reclaimed
// and returns the number removed.
func (n *Navigator) SweepRegistry() int {
	if n == nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.Sweep()
}

// Stats returns the current table sizes.
func (n *Navigator) Stats() Stats {
	if n == nil {
		return Stats{}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{Registered: n.registry.Len(), Pending: n.pending.Len()}
}

// Status reports which table holds id.
func (n *Navigator) Status(id string) TxnStatus {
	if n == nil || id == "" {
		return TxnUnknown
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case n.pending.Has(id):
		return TxnPending
	case n.registry.Contains(id):
		return TxnRegistered
	default:
		return TxnUnknown
	}
}

// Pending lists parked outcomes, oldest first.
func (n *Navigator) Pending() []PendingInfo {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	records := n.pending.Snapshot()
	n.mu.Unlock()
	out := make([]PendingInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, PendingInfo{
			TxnID:      rec.TxnID,
			ResultType: rec.Type,
			Success:    rec.Success,
			StoredAt:   rec.StoredAt,
		})
	}
	return out
}

// ResultType returns the declared type descriptor CloseWithResult records for R.
func ResultType[R any]() reflect.Type {
	return resultTypeOf[R]()
}

func (n *Navigator) since(t time.Time) time.Duration {
	if t.IsZero() {
		return -1
	}
	return clock.Since(n.clock, t)
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
