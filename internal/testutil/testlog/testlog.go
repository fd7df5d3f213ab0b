// Package testlog captures structured pslog output in tests.
package testlog

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"pkt.systems/pslog"
)

// Entry is one decoded log line.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]any
	Raw     string
}

// Recorder collects entries written through the logger returned by NewRecorder.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns a structured logger at level that records every entry
// and mirrors it to t when t is non-nil.
func NewRecorder(t testing.TB, level pslog.Level) (pslog.Logger, *Recorder) {
	rec := &Recorder{}
	logger := pslog.NewStructured(&recordingWriter{t: t, recorder: rec})
	if level != pslog.NoLevel {
		logger = logger.LogLevel(level)
	}
	return logger, rec
}

// Events returns a copy of the recorded entries.
func (r *Recorder) Events() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Find returns the first entry whose message equals msg.
func (r *Recorder) Find(msg string) (Entry, bool) {
	for _, entry := range r.Events() {
		if entry.Message == msg {
			return entry, true
		}
	}
	return Entry{}, false
}

// Count returns how many entries carry message msg.
func (r *Recorder) Count(msg string) int {
	n := 0
	for _, entry := range r.Events() {
		if entry.Message == msg {
			n++
		}
	}
	return n
}

// String returns the string value stored under key, if any.
func (e Entry) String(key string) string {
	if v, ok := e.Fields[key].(string); ok {
		return v
	}
	return ""
}

type recordingWriter struct {
	t        testing.TB
	recorder *Recorder
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	for line := range bytes.SplitSeq(p, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		entry := parse(line)
		w.recorder.mu.Lock()
		w.recorder.entries = append(w.recorder.entries, entry)
		w.recorder.mu.Unlock()
		if w.t != nil {
			w.t.Log(string(line))
		}
	}
	return len(p), nil
}

func parse(line []byte) Entry {
	var payload map[string]any
	if err := json.Unmarshal(line, &payload); err != nil {
		return Entry{Level: "unknown", Message: "unparsed", Raw: string(line)}
	}
	lvl, _ := payload["lvl"].(string)
	msg, _ := payload["msg"].(string)
	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "ts" || k == "lvl" || k == "msg" {
			continue
		}
		fields[k] = v
	}
	return Entry{Level: lvl, Message: msg, Fields: fields, Raw: string(line)}
}
