package clock_test

import (
	"testing"
	"time"

	"pkt.systems/resultnav/internal/clock"
)

func TestRealNowUsesUTC(t *testing.T) {
	t.Parallel()

	now := clock.Real{}.Now()
	if loc := now.Location(); loc != time.UTC {
		t.Fatalf("expected UTC location, got %v", loc)
	}
	if delta := time.Since(now); delta < 0 || delta > time.Second {
		t.Fatalf("unexpected Now delta: %v", delta)
	}
}

func TestManualAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := clock.NewManual(start)
	if got := m.Now(); !got.Equal(start) {
		t.Fatalf("expected %v, got %v", start, got)
	}
	m.Advance(90 * time.Second)
	if got := clock.Since(m, start); got != 90*time.Second {
		t.Fatalf("expected 90s elapsed, got %v", got)
	}
	m.Advance(-time.Hour)
	if got := clock.Since(m, start); got != 90*time.Second {
		t.Fatalf("negative advance moved the clock: %v", got)
	}
}

func TestEnsureFallsBackToReal(t *testing.T) {
	t.Parallel()

	if _, ok := clock.Ensure(nil).(clock.Real); !ok {
		t.Fatalf("expected Real fallback")
	}
	m := clock.NewManual(time.Unix(0, 0))
	if clock.Ensure(m) != clock.Clock(m) {
		t.Fatalf("expected supplied clock to be returned")
	}
}
