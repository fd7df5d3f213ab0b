package txnid

import "testing"

func TestNewProducesDistinctHexIDs(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		if !Valid(id) {
			t.Fatalf("expected 32 hex chars, got %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestValidRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "abc", "0123456789abcdef0123456789abcdeg", "0123456789abcdef-0123456789abcde"} {
		if Valid(id) {
			t.Fatalf("expected %q to be invalid", id)
		}
	}
}
