package resultnav

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/resultnav/internal/clock"
)

// fakePresenter builds units from registered factories and records what it
// displayed and closed. Display and Close drive the unit view state the way a
// presentation layer would.
type fakePresenter struct {
	mu         sync.Mutex
	nav        *Navigator
	factories  map[string]func(nav *Navigator, param any) any
	created    []any
	displayed  []any
	closed     []any
	displayErr error
}

func newFakePresenter() *fakePresenter {
	p := &fakePresenter{factories: make(map[string]func(*Navigator, any) any)}
	p.factories["reply"] = func(nav *Navigator, _ any) any {
		s := &replyScreen{}
		s.Bind(nav, s)
		return s
	}
	p.factories["relay"] = func(nav *Navigator, _ any) any {
		s := &relayScreen{}
		s.Bind(nav, s)
		return s
	}
	p.factories["inert"] = func(*Navigator, any) any {
		return &struct{ name string }{name: "inert"}
	}
	return p
}

func (p *fakePresenter) CreateUnit(ctx context.Context, kind string, param any) (any, error) {
	p.mu.Lock()
	factory, ok := p.factories[kind]
	nav := p.nav
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	unit := factory(nav, param)
	if init, ok := unit.(interface{ Initialize(context.Context) error }); ok {
		if err := init.Initialize(ctx); err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	p.created = append(p.created, unit)
	p.mu.Unlock()
	return unit, nil
}

func (p *fakePresenter) Display(ctx context.Context, unit any) error {
	p.mu.Lock()
	err := p.displayErr
	if err == nil {
		p.displayed = append(p.displayed, unit)
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if v, ok := unit.(interface{ ViewCreated(context.Context) error }); ok {
		return v.ViewCreated(ctx)
	}
	return nil
}

func (p *fakePresenter) Close(_ context.Context, unit any) (bool, error) {
	if v, ok := unit.(interface{ ViewDestroyed() }); ok {
		v.ViewDestroyed()
	}
	p.mu.Lock()
	p.closed = append(p.closed, unit)
	p.mu.Unlock()
	return true, nil
}

func (p *fakePresenter) lastCreated(t testing.TB) any {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.created) == 0 {
		t.Fatalf("expected a created unit")
	}
	return p.created[len(p.created)-1]
}

func (p *fakePresenter) wasClosed(unit any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.closed {
		if c == unit {
			return true
		}
	}
	return false
}

// textScreen is a requester receiving string results.
type textScreen struct {
	Unit
	got []string
}

func (s *textScreen) OnResult(v string) {
	s.got = append(s.got, v)
}

// replyScreen is a plain responder.
type replyScreen struct {
	Unit
}

// relayScreen answers its parent with a string and waits on an int child.
type relayScreen struct {
	Unit
	counts []int
}

func (s *relayScreen) OnResult(v int) {
	s.counts = append(s.counts, v)
}

// plainRequester implements the requester role without Unit so tests can
// flip receptiveness directly.
type plainRequester struct {
	id    string
	ready bool
	got   []string
}

func (r *plainRequester) RequesterTransactionID() string { return r.id }

func (r *plainRequester) SetRequesterTransactionID(id string) { r.id = id }

func (r *plainRequester) CanReceiveResult() bool { return r.ready }

func (r *plainRequester) OnResult(v string) { r.got = append(r.got, v) }

type testEnv struct {
	nav       *Navigator
	presenter *fakePresenter
	clock     *clock.Manual
}

func newTestEnv(t testing.TB, mutate ...func(*Config)) *testEnv {
	t.Helper()
	presenter := newFakePresenter()
	clk := clock.NewManual(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	var seq atomic.Int64
	cfg := Config{
		Presenter: presenter,
		Clock:     clk,
		NewTransactionID: func() string {
			return "txn-" + strconv.FormatInt(seq.Add(1), 10)
		},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	nav, err := New(cfg)
	if err != nil {
		t.Fatalf("new navigator: %v", err)
	}
	t.Cleanup(nav.Shutdown)
	presenter.nav = nav
	return &testEnv{nav: nav, presenter: presenter, clock: clk}
}

// readyText returns a receptive textScreen bound to the env navigator.
func (e *testEnv) readyText(t testing.TB) *textScreen {
	t.Helper()
	s := &textScreen{}
	s.Bind(e.nav, s)
	ctx := context.Background()
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := s.ViewCreated(ctx); err != nil {
		t.Fatalf("view created: %v", err)
	}
	return s
}

func (e *testEnv) startText(t testing.TB, requester *textScreen) *replyScreen {
	t.Helper()
	if err := NavigateForResult[string](context.Background(), e.nav, requester, "reply", nil); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	responder, ok := e.presenter.lastCreated(t).(*replyScreen)
	if !ok {
		t.Fatalf("expected *replyScreen responder")
	}
	return responder
}
