// Package host is an in-process presentation host for resultnav. It builds
// units from registered factories, keeps a display stack of frames and
// simulates the platform lifecycle: back navigation, tombstoning a unit while
// its frame stays on the stack, and recreating it from its saved bundle.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"

	"pkt.systems/pslog"
	"pkt.systems/resultnav"
	"pkt.systems/resultnav/internal/bundlestore"
	"pkt.systems/resultnav/internal/loggingutil"
)

var (
	// ErrUnknownKind is returned when no factory is registered for a kind.
	ErrUnknownKind = errors.New("host: unknown unit kind")
	// ErrNoFrame is returned when a frame id is not on the stack.
	ErrNoFrame = errors.New("host: frame not found")
	// ErrEmptyStack is returned by Back on an empty stack.
	ErrEmptyStack = errors.New("host: display stack is empty")
	// ErrNotTombstoned is returned by Restore for a live frame.
	ErrNotTombstoned = errors.New("host: frame is not tombstoned")
	// ErrTombstoned is returned when an operation needs a live unit.
	ErrTombstoned = errors.New("host: frame is tombstoned")
)

// Factory builds a unit bound to nav. Units must be pointers.
type Factory func(nav *resultnav.Navigator, param any) (any, error)

// StateSaver is implemented by units that persist state beyond their
// transaction ids.
type StateSaver interface {
	SaveState(b resultnav.Bundle)
}

// StateRestorer is the counterpart of StateSaver.
type StateRestorer interface {
	RestoreState(b resultnav.Bundle)
}

type initializer interface {
	Initialize(ctx context.Context) error
}

type viewCreator interface {
	ViewCreated(ctx context.Context) error
}

type viewDestroyer interface {
	ViewDestroyed()
}

// Config configures a Host.
type Config struct {
	// Store keeps bundles of tombstoned units. Nil uses process memory.
	Store  bundlestore.Store
	Logger pslog.Logger
	// NewFrameID generates frame ids. Nil uses xid.
	NewFrameID func() string
}

// FrameInfo describes one entry of the display stack.
type FrameInfo struct {
	ID         string
	Kind       string
	Tombstoned bool
	// Unit is nil while the frame is tombstoned.
	Unit any
}

type frame struct {
	id         string
	kind       string
	param      any
	unit       any
	tombstoned bool
}

func (f *frame) info() FrameInfo {
	return FrameInfo{ID: f.id, Kind: f.kind, Tombstoned: f.tombstoned, Unit: f.unit}
}

// Host implements resultnav.Presenter. Call Attach with the navigator built
// on top of it before creating units.
type Host struct {
	store  bundlestore.Store
	logger pslog.Logger
	newID  func() string

	mu        sync.Mutex
	nav       *resultnav.Navigator
	factories map[string]Factory
	created   map[any]*frame
	stack     []*frame
	byUnit    map[any]*frame
}

var _ resultnav.Presenter = (*Host)(nil)

// New returns an empty host.
func New(cfg Config) *Host {
	store := cfg.Store
	if store == nil {
		store = bundlestore.NewMemory()
	}
	newID := cfg.NewFrameID
	if newID == nil {
		newID = func() string { return xid.New().String() }
	}
	return &Host{
		store:     store,
		logger:    loggingutil.WithSubsystem(cfg.Logger, "resultnav", "host"),
		newID:     newID,
		factories: make(map[string]Factory),
		created:   make(map[any]*frame),
		byUnit:    make(map[any]*frame),
	}
}

// Attach sets the navigator passed to factories.
func (h *Host) Attach(nav *resultnav.Navigator) {
	h.mu.Lock()
	h.nav = nav
	h.mu.Unlock()
}

// Navigator returns the attached navigator.
func (h *Host) Navigator() *resultnav.Navigator {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nav
}

// Register installs the factory for kind, replacing any previous one.
func (h *Host) Register(kind string, factory Factory) {
	h.mu.Lock()
	h.factories[kind] = factory
	h.mu.Unlock()
}

// CreateUnit implements resultnav.Presenter: it builds the unit and runs its
// initialization. The unit gets a frame id once created; it joins the stack
// on Display.
func (h *Host) CreateUnit(ctx context.Context, kind string, param any) (any, error) {
	unit, err := h.build(kind, param)
	if err != nil {
		return nil, err
	}
	if u, ok := unit.(initializer); ok {
		if err := u.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("host: initialize %q: %w", kind, err)
		}
	}
	f := &frame{id: h.newID(), kind: kind, param: param, unit: unit}
	h.mu.Lock()
	h.created[unit] = f
	h.mu.Unlock()
	h.logger.Trace("host.unit.created", "frame", f.id, "kind", kind)
	return unit, nil
}

func (h *Host) build(kind string, param any) (any, error) {
	h.mu.Lock()
	factory, ok := h.factories[kind]
	nav := h.nav
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	unit, err := factory(nav, param)
	if err != nil {
		return nil, fmt.Errorf("host: build %q: %w", kind, err)
	}
	if unit == nil {
		return nil, fmt.Errorf("host: factory for %q returned nil", kind)
	}
	return unit, nil
}

// Display implements resultnav.Presenter: it pushes the unit's frame and
// reports the view as created.
func (h *Host) Display(ctx context.Context, unit any) error {
	h.mu.Lock()
	f, ok := h.created[unit]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("host: display %T: unit was not created by this host", unit)
	}
	delete(h.created, unit)
	h.stack = append(h.stack, f)
	h.byUnit[unit] = f
	depth := len(h.stack)
	h.mu.Unlock()

	h.logger.Debug("host.frame.displayed", "frame", f.id, "kind", f.kind, "depth", depth)
	if v, ok := unit.(viewCreator); ok {
		return v.ViewCreated(ctx)
	}
	return nil
}

// Close implements resultnav.Presenter: it tears the view down and removes
// the frame. It returns false for a unit this host does not track. Closing the
// top frame reveals the one below, which collects a result parked for it.
func (h *Host) Close(ctx context.Context, unit any) (bool, error) {
	h.mu.Lock()
	f, ok := h.byUnit[unit]
	wasTop := false
	if ok {
		wasTop = len(h.stack) > 0 && h.stack[len(h.stack)-1] == f
		delete(h.byUnit, unit)
		h.removeLocked(f)
	} else if pf, created := h.created[unit]; created {
		delete(h.created, unit)
		f, ok = pf, true
	}
	h.mu.Unlock()
	if !ok {
		return false, nil
	}
	if v, ok := unit.(viewDestroyer); ok {
		v.ViewDestroyed()
	}
	h.logger.Debug("host.frame.closed", "frame", f.id, "kind", f.kind)
	if wasTop {
		return true, h.reveal(ctx)
	}
	return true, nil
}

// reveal lets a live top unit obtain a result that was parked while it was
// covered, as a platform does when a page becomes visible again.
func (h *Host) reveal(ctx context.Context) error {
	h.mu.Lock()
	nav := h.nav
	var unit any
	if n := len(h.stack); n > 0 && !h.stack[n-1].tombstoned {
		unit = h.stack[n-1].unit
	}
	h.mu.Unlock()
	r, ok := unit.(resultnav.Requester)
	if !ok || nav == nil {
		return nil
	}
	delivered, err := nav.ObtainResult(ctx, r)
	if delivered {
		h.logger.Debug("host.frame.revealed", "unit", fmt.Sprintf("%T", unit), "obtained", true)
	}
	return err
}

func (h *Host) removeLocked(f *frame) {
	for i, candidate := range h.stack {
		if candidate == f {
			h.stack = append(h.stack[:i], h.stack[i+1:]...)
			return
		}
	}
}

// Open creates and displays a root unit outside any transaction and returns
// its frame id.
func (h *Host) Open(ctx context.Context, kind string, param any) (string, error) {
	unit, err := h.CreateUnit(ctx, kind, param)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	id := h.created[unit].id
	h.mu.Unlock()
	if err := h.Display(ctx, unit); err != nil {
		return "", err
	}
	return id, nil
}

// Back closes the top frame the way a back gesture does: through the
// navigator, so an outstanding child transaction is cancelled and an
// unanswered responder abandons its transaction. A tombstoned top frame is
// discarded together with its bundle after the transaction ids saved in it
// are settled the same way.
func (h *Host) Back(ctx context.Context) (FrameInfo, error) {
	h.mu.Lock()
	if len(h.stack) == 0 {
		h.mu.Unlock()
		return FrameInfo{}, ErrEmptyStack
	}
	top := h.stack[len(h.stack)-1]
	info := top.info()
	nav := h.nav
	if top.tombstoned {
		h.removeLocked(top)
	}
	h.mu.Unlock()

	if info.Tombstoned {
		return info, h.discard(ctx, nav, info)
	}
	var err error
	if nav != nil {
		_, err = nav.Close(ctx, info.Unit)
	} else {
		_, err = h.Close(ctx, info.Unit)
	}
	return info, err
}

// discard settles the transactions recorded in a tombstoned frame's bundle
// and deletes the bundle.
func (h *Host) discard(ctx context.Context, nav *resultnav.Navigator, info FrameInfo) error {
	bundle, err := h.store.Load(ctx, info.ID)
	switch {
	case errors.Is(err, bundlestore.ErrNotFound):
		bundle = nil
	case err != nil:
		return fmt.Errorf("host: discard %s: %w", info.ID, err)
	}
	if nav != nil && len(bundle) > 0 {
		// Stands in for the unit that is never coming back.
		ids := &resultnav.Unit{}
		resultnav.RestoreTransactionState(ids, resultnav.MapBundle(bundle))
		cancelled := nav.CancelTransaction(ctx, ids)
		abandoned := nav.AbandonResponse(ctx, ids)
		h.logger.Debug("host.frame.settled", "frame", info.ID, "cancelled", cancelled, "abandoned", abandoned)
	}
	if err := h.store.Delete(ctx, info.ID); err != nil && !errors.Is(err, bundlestore.ErrNotFound) {
		return fmt.Errorf("host: discard bundle %s: %w", info.ID, err)
	}
	h.logger.Debug("host.frame.discarded", "frame", info.ID, "kind", info.Kind)
	return h.reveal(ctx)
}

// Tombstone saves the unit of frame id to the bundle store, destroys its view
// and drops the host's reference to it. The frame stays on the stack.
func (h *Host) Tombstone(ctx context.Context, id string) error {
	h.mu.Lock()
	f := h.findLocked(id)
	if f == nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoFrame, id)
	}
	if f.tombstoned {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTombstoned, id)
	}
	unit := f.unit
	h.mu.Unlock()

	bundle := resultnav.MapBundle{}
	if s, ok := unit.(StateSaver); ok {
		s.SaveState(bundle)
	} else {
		resultnav.SaveTransactionState(unit, bundle)
	}
	if err := h.store.Save(ctx, id, bundle); err != nil {
		return fmt.Errorf("host: tombstone %s: %w", id, err)
	}
	if v, ok := unit.(viewDestroyer); ok {
		v.ViewDestroyed()
	}

	h.mu.Lock()
	delete(h.byUnit, unit)
	f.unit = nil
	f.tombstoned = true
	h.mu.Unlock()
	h.logger.Debug("host.frame.tombstoned", "frame", id, "kind", f.kind, "keys", len(bundle))
	return nil
}

// Restore recreates the unit of a tombstoned frame from its bundle,
// initializes it and reports its view created, which lets it collect a
// result that arrived while it was gone.
func (h *Host) Restore(ctx context.Context, id string) (any, error) {
	h.mu.Lock()
	f := h.findLocked(id)
	if f == nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoFrame, id)
	}
	if !f.tombstoned {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotTombstoned, id)
	}
	kind, param := f.kind, f.param
	h.mu.Unlock()

	bundle, err := h.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("host: restore %s: %w", id, err)
	}
	unit, err := h.build(kind, param)
	if err != nil {
		return nil, err
	}
	if r, ok := unit.(StateRestorer); ok {
		r.RestoreState(resultnav.MapBundle(bundle))
	} else {
		resultnav.RestoreTransactionState(unit, resultnav.MapBundle(bundle))
	}

	h.mu.Lock()
	f.unit = unit
	f.tombstoned = false
	h.byUnit[unit] = f
	h.mu.Unlock()
	if err := h.store.Delete(ctx, id); err != nil && !errors.Is(err, bundlestore.ErrNotFound) {
		h.logger.Warn("host.bundle.delete_failed", "frame", id, "error", err)
	}
	h.logger.Debug("host.frame.restored", "frame", id, "kind", kind)

	if u, ok := unit.(initializer); ok {
		if err := u.Initialize(ctx); err != nil {
			return unit, fmt.Errorf("host: initialize %q: %w", kind, err)
		}
	}
	if v, ok := unit.(viewCreator); ok {
		if err := v.ViewCreated(ctx); err != nil {
			return unit, err
		}
	}
	return unit, nil
}

func (h *Host) findLocked(id string) *frame {
	for _, f := range h.stack {
		if f.id == id {
			return f
		}
	}
	return nil
}

// Top returns the top frame.
func (h *Host) Top() (FrameInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) == 0 {
		return FrameInfo{}, false
	}
	return h.stack[len(h.stack)-1].info(), true
}

// Frames returns the display stack, bottom first.
func (h *Host) Frames() []FrameInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]FrameInfo, 0, len(h.stack))
	for _, f := range h.stack {
		out = append(out, f.info())
	}
	return out
}

// Find returns the frame with the given id.
func (h *Host) Find(id string) (FrameInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f := h.findLocked(id); f != nil {
		return f.info(), true
	}
	return FrameInfo{}, false
}

// FrameOf returns the frame id of a live unit.
func (h *Host) FrameOf(unit any) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.byUnit[unit]; ok {
		return f.id, true
	}
	return "", false
}

// Store returns the bundle store.
func (h *Host) Store() bundlestore.Store {
	return h.store
}
