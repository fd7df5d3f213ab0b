package resultnav

import (
	"context"
	"fmt"
	"sync"
)

// InitState is the initialization half of a unit's readiness.
type InitState int

const (
	// Created is the state of a unit that has not started initializing.
	Created InitState = iota
	// Initializing means the setup callback is running.
	Initializing
	// Initialized means setup finished.
	Initialized
)

func (s InitState) String() string {
	switch s {
	case Created:
		return "created"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	default:
		return fmt.Sprintf("InitState(%d)", int(s))
	}
}

// ViewState is the presentation half of a unit's readiness.
type ViewState int

const (
	// ViewAbsent means no presentation surface has been created yet.
	ViewAbsent ViewState = iota
	// ViewPresent means the surface exists.
	ViewPresent
	// ViewDestroyed means the surface was torn down. It is terminal.
	ViewDestroyed
)

func (s ViewState) String() string {
	switch s {
	case ViewAbsent:
		return "absent"
	case ViewPresent:
		return "present"
	case ViewDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("ViewState(%d)", int(s))
	}
}

// SetupFunc is a unit's own initialization step.
type SetupFunc func(ctx context.Context) error

// UnitOption customizes Bind.
type UnitOption func(*Unit)

// WithSetup installs the setup step Initialize runs before marking the unit
// initialized.
func WithSetup(fn SetupFunc) UnitOption {
	return func(u *Unit) {
		u.setup = fn
	}
}

// Unit carries the transaction ids and readiness state of a unit taking part
// in transactions. Embed it by value in a unit struct, call Bind once the
// outer value exists, and let the presentation layer drive Initialize,
// ViewCreated and ViewDestroyed. Both transitions into a receptive state ask
// the navigator for a parked result.
//
//	type Picker struct {
//		resultnav.Unit
//		choice string
//	}
//
//	func NewPicker(nav *resultnav.Navigator) *Picker {
//		p := &Picker{}
//		p.Bind(nav, p, resultnav.WithSetup(p.load))
//		return p
//	}
type Unit struct {
	mu          sync.Mutex
	nav         *Navigator
	self        Requester
	setup       SetupFunc
	requesterID string
	responderID string
	init        InitState
	view        ViewState
}

// Bind attaches the navigator and the outer unit. self receives deferred
// results, so it must be the value that implements ResultReceiver.
func (u *Unit) Bind(nav *Navigator, self Requester, opts ...UnitOption) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.nav = nav
	u.self = self
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
}

// Navigator returns the bound navigator.
func (u *Unit) Navigator() *Navigator {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.nav
}

// RequesterTransactionID implements Requester.
func (u *Unit) RequesterTransactionID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requesterID
}

// SetRequesterTransactionID implements Requester.
func (u *Unit) SetRequesterTransactionID(id string) {
	u.mu.Lock()
	u.requesterID = id
	u.mu.Unlock()
}

// ResponderTransactionID implements Responder.
func (u *Unit) ResponderTransactionID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.responderID
}

// SetResponderTransactionID implements Responder.
func (u *Unit) SetResponderTransactionID(id string) {
	u.mu.Lock()
	u.responderID = id
	u.mu.Unlock()
}

// CanReceiveResult reports Initialized and ViewPresent.
func (u *Unit) CanReceiveResult() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.init == Initialized && u.view == ViewPresent
}

// State returns both halves of the readiness state.
func (u *Unit) State() (InitState, ViewState) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.init, u.view
}

// Initialize runs the setup step and marks the unit initialized, then asks
// for a parked result. It cannot be overridden: units customize it through
// WithSetup. A failed setup returns the unit to Created. Calling Initialize
// again after it started is a no-op.
func (u *Unit) Initialize(ctx context.Context) error {
	u.mu.Lock()
	if u.init != Created {
		u.mu.Unlock()
		return nil
	}
	u.init = Initializing
	setup := u.setup
	u.mu.Unlock()

	if setup != nil {
		if err := setup(ctx); err != nil {
			u.mu.Lock()
			u.init = Created
			u.mu.Unlock()
			return fmt.Errorf("resultnav: setup: %w", err)
		}
	}

	u.mu.Lock()
	u.init = Initialized
	u.mu.Unlock()
	_, err := u.obtain(ctx)
	return err
}

// ViewCreated records that the presentation surface exists and asks for a
// parked result. A destroyed view never comes back.
func (u *Unit) ViewCreated(ctx context.Context) error {
	u.mu.Lock()
	if u.view != ViewAbsent {
		u.mu.Unlock()
		return nil
	}
	u.view = ViewPresent
	u.mu.Unlock()
	_, err := u.obtain(ctx)
	return err
}

// ViewDestroyed records that the presentation surface was torn down.
func (u *Unit) ViewDestroyed() {
	u.mu.Lock()
	u.view = ViewDestroyed
	u.mu.Unlock()
}

// SaveState writes the unit's transaction ids to b.
func (u *Unit) SaveState(b Bundle) {
	SaveTransactionState(u, b)
}

// RestoreState reads the unit's transaction ids from b.
func (u *Unit) RestoreState(b Bundle) {
	RestoreTransactionState(u, b)
}

func (u *Unit) obtain(ctx context.Context) (bool, error) {
	if !u.CanReceiveResult() {
		return false, nil
	}
	u.mu.Lock()
	nav, self := u.nav, u.self
	u.mu.Unlock()
	if nav == nil {
		return false, nil
	}
	if self == nil {
		self = u
	}
	return nav.ObtainResult(ctx, self)
}
