package loggingutil

import (
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/resultnav/internal/testutil/testlog"
)

func TestEnsureLoggerFallsBackToNoop(t *testing.T) {
	if EnsureLogger(nil) == nil {
		t.Fatalf("expected non-nil logger")
	}
	if EnsureLogger(nil) != NoopLogger() {
		t.Fatalf("expected the shared noop logger")
	}
}

func TestWithSubsystemJoinsParts(t *testing.T) {
	logger, rec := testlog.NewRecorder(t, pslog.TraceLevel)
	WithSubsystem(logger, "resultnav", "", ".host.").Info("hello")
	entry, ok := rec.Find("hello")
	if !ok {
		t.Fatalf("expected entry to be recorded")
	}
	if got := entry.String("sys"); got != "resultnav.host" {
		t.Fatalf("expected sys=resultnav.host, got %q", got)
	}
}

func TestWithSubsystemWithoutPartsLeavesLoggerUntouched(t *testing.T) {
	logger, rec := testlog.NewRecorder(t, pslog.TraceLevel)
	WithSubsystem(logger, " ", "..").Info("plain")
	entry, ok := rec.Find("plain")
	if !ok {
		t.Fatalf("expected entry to be recorded")
	}
	if _, ok := entry.Fields["sys"]; ok {
		t.Fatalf("expected no sys field, got %v", entry.Fields)
	}
}
