// Package pending holds transaction outcomes that could not be delivered to
// their requester when the responder closed. Entries wait here until the
// requester, possibly recreated from persisted state, asks for them.
//
// A Store is not safe for concurrent use; see package registry for the
// locking contract.
package pending

import (
	"reflect"
	"sort"
	"time"

	"pkt.systems/resultnav/internal/clock"
)

// Entry is one stored outcome.
type Entry struct {
	// Type is the declared result type. It is nil for cancellations.
	Type     reflect.Type
	Success  bool
	Payload  any
	StoredAt time.Time
}

// Record describes an entry for inspection.
type Record struct {
	TxnID    string
	Type     string
	Success  bool
	StoredAt time.Time
}

// Store maps transaction ids to outcomes.
type Store struct {
	entries map[string]Entry
	clock   clock.Clock
}

// New constructs an empty store. A nil clock uses the system clock.
func New(clk clock.Clock) *Store {
	return &Store{
		entries: make(map[string]Entry),
		clock:   clock.Ensure(clk),
	}
}

// Put stores e under id, overwriting any previous outcome, and stamps StoredAt.
func (s *Store) Put(id string, e Entry) {
	if id == "" {
		return
	}
	e.StoredAt = s.clock.Now()
	s.entries[id] = e
}

// Take removes and returns the outcome stored under id.
func (s *Store) Take(id string) (Entry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	delete(s.entries, id)
	return e, true
}

// Has reports whether an outcome is stored under id.
func (s *Store) Has(id string) bool {
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of stored outcomes.
func (s *Store) Len() int {
	return len(s.entries)
}

// EvictOlderThan drops outcomes stored more than maxAge ago and returns their
// ids in sorted order. A non-positive maxAge evicts nothing.
func (s *Store) EvictOlderThan(maxAge time.Duration) []string {
	if maxAge <= 0 {
		return nil
	}
	cutoff := s.clock.Now().Add(-maxAge)
	var evicted []string
	for id, e := range s.entries {
		if e.StoredAt.Before(cutoff) {
			delete(s.entries, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Snapshot lists the stored outcomes ordered by storage time, then id.
func (s *Store) Snapshot() []Record {
	out := make([]Record, 0, len(s.entries))
	for id, e := range s.entries {
		rec := Record{TxnID: id, Success: e.Success, StoredAt: e.StoredAt}
		if e.Type != nil {
			rec.Type = e.Type.String()
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StoredAt.Equal(out[j].StoredAt) {
			return out[i].StoredAt.Before(out[j].StoredAt)
		}
		return out[i].TxnID < out[j].TxnID
	})
	return out
}
