package registry

import (
	"runtime"
	"testing"
	"time"

	"pkt.systems/resultnav/internal/clock"
)

type node struct {
	name string
	pad  [64]byte
}

type named interface{ Name() string }

func (n *node) Name() string { return n.name }

func asNamed(n *node) named { return n }

type staticRef struct {
	v     named
	alive bool
}

func (s *staticRef) Resolve() (named, bool) { return s.v, s.alive }

func TestRegisterResolveRemove(t *testing.T) {
	reg := New[named](nil)
	n := &node{name: "main"}
	reg.Register("abc", NewWeakRef(n, asNamed))

	got, ok := reg.Resolve("abc")
	if !ok {
		t.Fatalf("expected live entry")
	}
	if got.Name() != "main" {
		t.Fatalf("expected main, got %q", got.Name())
	}
	reg.Remove("abc")
	reg.Remove("abc")
	if _, ok := reg.Resolve("abc"); ok {
		t.Fatalf("expected entry to be removed")
	}
	runtime.KeepAlive(n)
}

func TestRegisterOverwrites(t *testing.T) {
	reg := New[named](nil)
	reg.Register("abc", &staticRef{v: &node{name: "first"}, alive: true})
	reg.Register("abc", &staticRef{v: &node{name: "second"}, alive: true})
	got, ok := reg.Resolve("abc")
	if !ok || got.Name() != "second" {
		t.Fatalf("expected second to win, got %v %v", got, ok)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one entry, got %d", reg.Len())
	}
}

func TestResolvePurgesDeadEntries(t *testing.T) {
	reg := New[named](nil)
	ref := &staticRef{v: &node{name: "gone"}, alive: false}
	reg.Register("dead", ref)
	if _, ok := reg.Resolve("dead"); ok {
		t.Fatalf("expected dead entry to resolve as absent")
	}
	if reg.Contains("dead") {
		t.Fatalf("expected dead entry to be purged on resolve")
	}
}

func TestTakeReportsRegistrationTime(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)
	reg := New[named](clk)
	reg.Register("abc", &staticRef{v: &node{name: "main"}, alive: true})
	clk.Advance(time.Minute)

	v, alive, at, found := reg.Take("abc")
	if !found || !alive {
		t.Fatalf("expected live entry, found=%v alive=%v", found, alive)
	}
	if v.Name() != "main" {
		t.Fatalf("expected main, got %q", v.Name())
	}
	if !at.Equal(start) {
		t.Fatalf("expected registration at %v, got %v", start, at)
	}
	if _, _, _, found := reg.Take("abc"); found {
		t.Fatalf("expected second take to find nothing")
	}
}

func TestTakeDeadEntryIsFoundButNotAlive(t *testing.T) {
	reg := New[named](nil)
	reg.Register("abc", &staticRef{alive: false})
	_, alive, _, found := reg.Take("abc")
	if !found || alive {
		t.Fatalf("expected found=true alive=false, got found=%v alive=%v", found, alive)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected registry to be empty, got %d", reg.Len())
	}
}

func TestWeakRefDoesNotKeepRequesterAlive(t *testing.T) {
	reg := New[named](nil)
	register := func() {
		n := &node{name: "tombstoned"}
		reg.Register("abc", NewWeakRef(n, asNamed))
	}
	register()

	for i := 0; i < 5 && reg.Len() > 0; i++ {
		runtime.GC()
		reg.Sweep()
	}
	if reg.Len() != 0 {
		t.Fatalf("expected collected requester to be swept")
	}
	if _, ok := reg.Resolve("abc"); ok {
		t.Fatalf("expected collected requester to resolve as absent")
	}
}

func TestSweepKeepsLiveEntries(t *testing.T) {
	reg := New[named](nil)
	live := &node{name: "live"}
	reg.Register("live", NewWeakRef(live, asNamed))
	reg.Register("dead", &staticRef{alive: false})
	if removed := reg.Sweep(); removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, ok := reg.Resolve("live"); !ok {
		t.Fatalf("expected live entry to remain")
	}
	runtime.KeepAlive(live)
}
