package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/resultnav/internal/loggingutil"
	"pkt.systems/resultnav/internal/version"
)

func executeRootCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(pslog.NewStructured(io.Discard))
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

const parkedScenario = `name: parked
steps:
  - {op: open, kind: main, as: main}
  - {op: request, unit: main, as: child, text: Hi}
  - {op: tombstone, unit: main}
  - {op: reply, unit: child}
  - {op: wait, duration: 2m}
`

func TestVersionCommandPrintsCurrentVersion(t *testing.T) {
	stdout, stderr, err := executeRootCommand(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if stderr != "" {
		t.Fatalf("expected empty stderr, got %q", stderr)
	}
	want := version.Module() + " " + version.Current() + "\n"
	if stdout != want {
		t.Fatalf("unexpected stdout: got %q want %q", stdout, want)
	}
}

func TestVersionCommandVerbose(t *testing.T) {
	stdout, _, err := executeRootCommand(t, "version", "--verbose")
	if err != nil {
		t.Fatalf("version --verbose failed: %v", err)
	}
	if !strings.HasPrefix(stdout, version.Current()+" (") {
		t.Fatalf("unexpected stdout %q", stdout)
	}
}

func TestDemoRunsAllBuiltins(t *testing.T) {
	stdout, _, err := executeRootCommand(t, "demo")
	if err != nil {
		t.Fatalf("demo failed: %v\n%s", err, stdout)
	}
	for _, name := range []string{"immediate", "tombstone", "chain", "cancel", "sweep"} {
		if !strings.Contains(stdout, "== "+name+": PASS") {
			t.Fatalf("expected %s to pass, got:\n%s", name, stdout)
		}
	}
	if strings.Contains(stdout, "FAIL") {
		t.Fatalf("unexpected failure:\n%s", stdout)
	}
}

func TestDemoList(t *testing.T) {
	stdout, _, err := executeRootCommand(t, "demo", "--list")
	if err != nil {
		t.Fatalf("demo --list failed: %v", err)
	}
	if !strings.Contains(stdout, "tombstone") || strings.Contains(stdout, "PASS") {
		t.Fatalf("unexpected list output:\n%s", stdout)
	}
}

func TestDemoUnknownScenario(t *testing.T) {
	_, _, err := executeRootCommand(t, "demo", "nope")
	if err == nil || !strings.Contains(err.Error(), "no built-in scenario") {
		t.Fatalf("expected unknown scenario error, got %v", err)
	}
}

func TestDemoWithSealedDiskStore(t *testing.T) {
	dir := t.TempDir()
	stdout, _, err := executeRootCommand(t, "demo", "tombstone", "chain",
		"--bundle-store", "disk://"+filepath.ToSlash(dir), "--bundle-encrypt")
	if err != nil {
		t.Fatalf("demo failed: %v\n%s", err, stdout)
	}
	if strings.Count(stdout, ": PASS") != 2 {
		t.Fatalf("expected two passing scenarios, got:\n%s", stdout)
	}
}

func TestRunPrintsPendingWithAge(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "parked.yaml", parkedScenario)
	stdout, _, err := executeRootCommand(t, "run", path)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "== parked: PASS") {
		t.Fatalf("expected pass, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "result sample.TextResult, parked 2 minutes ago") {
		t.Fatalf("expected humanized pending age, got:\n%s", stdout)
	}
}

func TestRunReportsFailures(t *testing.T) {
	dir := t.TempDir()
	bad := writeScenario(t, dir, "bad.yaml", `name: bad
steps:
  - {op: open, kind: main, as: main}
  - {op: expect, unit: main, field: FinalText, equals: nope}
`)
	broken := writeScenario(t, dir, "broken.yaml", "name: broken\nsteps: [{op: fly}]\n")
	stdout, _, err := executeRootCommand(t, "run", bad, broken)
	if err == nil || !strings.Contains(err.Error(), "2 of 2 scenarios failed") {
		t.Fatalf("expected failure summary, got %v", err)
	}
	if !strings.Contains(stdout, "== bad: FAIL") || !strings.Contains(stdout, "== "+broken+": FAIL") {
		t.Fatalf("unexpected output:\n%s", stdout)
	}
}

func TestConfigFileSetsPendingMaxAge(t *testing.T) {
	dir := t.TempDir()
	cfg := writeScenario(t, dir, "resultnav.yaml", "pending-max-age: 1m\n")
	path := writeScenario(t, dir, "evict.yaml", parkedScenario+"  - {op: sweep}\n  - {op: expect-pending, count: 0}\n")
	stdout, _, err := executeRootCommand(t, "run", "--config", cfg, path)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "sweep evicted 1") {
		t.Fatalf("expected sweep to evict, got:\n%s", stdout)
	}
}

func TestEnvironmentSetsBundleStore(t *testing.T) {
	t.Setenv("RESULTNAV_BUNDLE_STORE", "ftp://nowhere")
	_, _, err := executeRootCommand(t, "demo", "immediate")
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("expected unsupported store error from env, got %v", err)
	}
}

func TestFileWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "watched.yaml", parkedScenario)
	other := writeScenario(t, dir, "other.yaml", parkedScenario)
	w, err := newFileWatcher([]string{path}, loggingutil.NoopLogger())
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Loop(ctx, func(p string) { changed <- p })
	}()

	if err := os.WriteFile(other, []byte(parkedScenario+"\n"), 0o644); err != nil {
		t.Fatalf("touch other: %v", err)
	}
	if err := os.WriteFile(path, []byte(parkedScenario+"\n"), 0o644); err != nil {
		t.Fatalf("touch watched: %v", err)
	}
	select {
	case got := <-changed:
		want, _ := filepath.Abs(path)
		if got != want {
			t.Fatalf("expected change for %s, got %s", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for change notification")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("loop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("loop did not stop after cancel")
	}
}
