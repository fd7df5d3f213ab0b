package resultnav

import "testing"

type responderOnly struct {
	id string
}

func (r *responderOnly) ResponderTransactionID() string { return r.id }

func (r *responderOnly) SetResponderTransactionID(id string) { r.id = id }

func TestTransactionStateRoundTrip(t *testing.T) {
	src := &relayScreen{}
	src.SetRequesterTransactionID("child")
	src.SetResponderTransactionID("parent")

	bundle := MapBundle{}
	SaveTransactionState(src, bundle)
	if bundle[RequesterStateKey] != "child" || bundle[ResponderStateKey] != "parent" {
		t.Fatalf("unexpected bundle %v", bundle)
	}

	dst := &relayScreen{}
	RestoreTransactionState(dst, bundle)
	if got := dst.RequesterTransactionID(); got != "child" {
		t.Fatalf("expected requester id child, got %q", got)
	}
	if got := dst.ResponderTransactionID(); got != "parent" {
		t.Fatalf("expected responder id parent, got %q", got)
	}
}

func TestIdleUnitPersistsAsAbsent(t *testing.T) {
	bundle := MapBundle{RequesterStateKey: "stale", ResponderStateKey: "stale"}
	idle := &relayScreen{}
	idle.SaveState(bundle)
	if _, ok := bundle.Get(RequesterStateKey); ok {
		t.Fatalf("expected requester key removed, got %v", bundle)
	}
	if _, ok := bundle.Get(ResponderStateKey); ok {
		t.Fatalf("expected responder key removed, got %v", bundle)
	}

	restored := &relayScreen{}
	restored.RestoreState(bundle)
	if restored.RequesterTransactionID() != "" || restored.ResponderTransactionID() != "" {
		t.Fatalf("expected absent ids to restore as empty")
	}
}

func TestRestoreLeavesFieldWhenKeyAbsent(t *testing.T) {
	r := &plainRequester{id: "keep"}
	RestoreRequesterState(r, MapBundle{})
	if r.id != "keep" {
		t.Fatalf("expected id untouched, got %q", r.id)
	}
}

func TestSingleRoleUsesOneKey(t *testing.T) {
	bundle := MapBundle{}
	SaveTransactionState(&responderOnly{id: "r1"}, bundle)
	if len(bundle) != 1 || bundle[ResponderStateKey] != "r1" {
		t.Fatalf("expected only %s, got %v", ResponderStateKey, bundle)
	}

	bundle = MapBundle{}
	SaveTransactionState(&plainRequester{id: "q1"}, bundle)
	if len(bundle) != 1 || bundle[RequesterStateKey] != "q1" {
		t.Fatalf("expected only %s, got %v", RequesterStateKey, bundle)
	}
}

func TestStateHelpersTolerateNil(t *testing.T) {
	SaveRequesterState(nil, MapBundle{})
	SaveResponderState(&responderOnly{}, nil)
	RestoreRequesterState(&plainRequester{}, nil)
	RestoreResponderState(nil, MapBundle{})
}
