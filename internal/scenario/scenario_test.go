package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/resultnav/internal/bundlestore"
)

var testStart = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func TestBuiltinScenariosPass(t *testing.T) {
	names := BuiltinNames()
	if len(names) < 5 {
		t.Fatalf("expected bundled scenarios, got %v", names)
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			sc, err := Builtin(name)
			if err != nil {
				t.Fatalf("builtin: %v", err)
			}
			result, err := Run(context.Background(), sc, Config{Start: testStart})
			if err != nil {
				t.Fatalf("run: %v\n%s", err, strings.Join(result.Transcript, "\n"))
			}
			if len(result.Transcript) != len(sc.Steps) {
				t.Fatalf("expected one transcript line per step, got %d for %d", len(result.Transcript), len(sc.Steps))
			}
		})
	}
}

func TestBuiltinUnknown(t *testing.T) {
	if _, err := Builtin("nope"); err == nil {
		t.Fatalf("expected unknown scenario error")
	}
}

func TestRunReportsFailedExpectation(t *testing.T) {
	scenarios, err := Parse(strings.NewReader(`
name: wrong
steps:
  - {op: open, kind: main, as: main}
  - {op: expect, unit: main, field: FinalText, equals: "something else"}
  - {op: back}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	result, err := Run(context.Background(), scenarios[0], Config{Start: testStart})
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %v", err)
	}
	if stepErr.Step != 2 || stepErr.Op != OpExpect {
		t.Fatalf("unexpected step error %+v", stepErr)
	}
	if len(result.Transcript) != 2 || !strings.HasPrefix(result.Transcript[1], "! step 2") {
		t.Fatalf("unexpected transcript %v", result.Transcript)
	}
}

func TestRunLeavesPendingForInspection(t *testing.T) {
	scenarios, err := Parse(strings.NewReader(`
name: parked
steps:
  - {op: open, kind: main, as: main}
  - {op: request, unit: main, as: child, text: Hi}
  - {op: tombstone, unit: main}
  - {op: reply, unit: child}
  - {op: wait, duration: 90s}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	result, err := Run(context.Background(), scenarios[0], Config{Start: testStart})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Pending) != 1 || !result.Pending[0].Success {
		t.Fatalf("expected one successful pending outcome, got %+v", result.Pending)
	}
	if age := result.Now.Sub(result.Pending[0].StoredAt); age != 90*time.Second {
		t.Fatalf("expected pending age 90s, got %s", age)
	}
	if !strings.HasSuffix(result.Pending[0].ResultType, "TextResult") {
		t.Fatalf("unexpected result type %q", result.Pending[0].ResultType)
	}
}

func TestRunTombstoneWithDiskStore(t *testing.T) {
	store, err := bundlestore.NewDisk(bundlestore.DiskConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("disk: %v", err)
	}
	sc, err := Builtin("tombstone")
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	if _, err := Run(context.Background(), sc, Config{Store: store, Start: testStart}); err != nil {
		t.Fatalf("run: %v", err)
	}
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".yaml" {
			t.Fatalf("expected restored bundle removed, found %s", entry.Name())
		}
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "name: x\nsteps:\n  - {op: back, bogus: 1}\n",
		"unknown op":    "name: x\nsteps:\n  - {op: fly}\n",
		"missing name":  "steps:\n  - {op: back}\n",
		"missing as":    "name: x\nsteps:\n  - {op: open, kind: main}\n",
		"bad duration":  "name: x\nsteps:\n  - {op: wait, duration: soon}\n",
		"missing count": "name: x\nsteps:\n  - {op: expect-pending}\n",
		"empty":         "",
	}
	for name, doc := range cases {
		if _, err := Parse(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}
}

func TestParseMultipleDocuments(t *testing.T) {
	scenarios, err := Parse(strings.NewReader("name: a\nsteps:\n  - {op: gc}\n---\nname: b\npendingMaxAge: 1m\nsteps:\n  - {op: sweep}\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(scenarios) != 2 || scenarios[1].Name != "b" || time.Duration(scenarios[1].PendingMaxAge) != time.Minute {
		t.Fatalf("unexpected scenarios %+v", scenarios)
	}
}
