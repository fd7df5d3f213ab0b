// Package resultnav passes typed results from a responder unit back to the
// requester unit that launched it, even when the requester was destroyed and
// recreated in the meantime.
//
// A unit is anything a presentation layer creates, shows and tears down: a
// screen, a dialog, a wizard step. The Navigator sits between units and a
// Presenter that owns their lifetimes. Each NavigateForResult call opens one
// transaction, identified by an opaque id stored on both units.
//
// # Starting a transaction
//
//	type Main struct {
//	    resultnav.Unit
//	    text string
//	}
//
//	func (m *Main) OnResult(r sample.TextResult) { m.text = r.Text }
//
//	err := resultnav.NavigateForResult[sample.TextResult](ctx, nav, main, "child", nil)
//
// The navigator keeps only a weak reference to the requester. When the
// responder is done it calls CloseWithResult; if the requester is still alive,
// waiting on the same transaction and receptive, OnResult runs before
// CloseWithResult returns. Otherwise the outcome is parked in an in-memory
// pending store.
//
// # Surviving recreation
//
// A unit's transaction ids are the only state that must outlive it. Save them
// into the lifecycle framework's bundle before destruction and restore them
// into the recreated unit:
//
//	main.SaveState(bundle)   // writes "_tqId"
//	...
//	fresh.RestoreState(bundle)
//
// Unit.Initialize and Unit.ViewCreated each ask the navigator for a parked
// outcome once the unit is receptive, so the restored requester receives the
// result exactly once. A responder closed without a result (back navigation)
// parks a cancellation instead; ObtainResult reports it without calling
// OnResult.
//
// # Faults
//
// Pairing a requester with a responder of the wrong result type is a
// programming error. CloseWithResult returns a *Fault wrapping
// ErrTypeMismatch when the mismatch is detected immediately, and ObtainResult
// returns one wrapping ErrHandlerNotFound when it is detected on deferred
// delivery. Everything else (closing twice, cancelling with nothing
// outstanding, obtaining while not receptive) is a silent no-op.
//
// # Housekeeping
//
// Abandoned transactions are never expired implicitly. SweepRegistry drops
// entries whose requester was garbage collected and SweepPending, enabled by
// Config.PendingMaxAge, evicts outcomes nobody came back for.
package resultnav
