package resultnav

const (
	// RequesterStateKey is the bundle key holding a unit's requester transaction id.
	RequesterStateKey = "_tqId"
	// ResponderStateKey is the bundle key holding a unit's responder transaction id.
	ResponderStateKey = "_trId"
)

// Bundle is the string-keyed state a lifecycle framework hands to a unit when
// it is saved before destruction and when it is recreated.
type Bundle interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MapBundle is a Bundle backed by a map.
type MapBundle map[string]string

// Get returns the value stored under key.
func (b MapBundle) Get(key string) (string, bool) {
	v, ok := b[key]
	return v, ok
}

// Set stores value under key.
func (b MapBundle) Set(key, value string) {
	b[key] = value
}

// Delete removes key.
func (b MapBundle) Delete(key string) {
	delete(b, key)
}

// SaveRequesterState writes r's requester id under RequesterStateKey. An idle
// requester removes the key so it restores as absent.
func SaveRequesterState(r Requester, b Bundle) {
	if r == nil || b == nil {
		return
	}
	saveID(b, RequesterStateKey, r.RequesterTransactionID())
}

// SaveResponderState writes r's responder id under ResponderStateKey.
func SaveResponderState(r Responder, b Bundle) {
	if r == nil || b == nil {
		return
	}
	saveID(b, ResponderStateKey, r.ResponderTransactionID())
}

// SaveTransactionState saves every transaction id unit carries, according to
// the roles it implements.
func SaveTransactionState(unit any, b Bundle) {
	if r, ok := unit.(Requester); ok {
		SaveRequesterState(r, b)
	}
	if r, ok := unit.(Responder); ok {
		SaveResponderState(r, b)
	}
}

// RestoreRequesterState sets r's requester id from b. A missing key leaves the
// field untouched.
func RestoreRequesterState(r Requester, b Bundle) {
	if r == nil || b == nil {
		return
	}
	if id, ok := b.Get(RequesterStateKey); ok {
		r.SetRequesterTransactionID(id)
	}
}

// RestoreResponderState sets r's responder id from b. A missing key leaves the
// field untouched.
func RestoreResponderState(r Responder, b Bundle) {
	if r == nil || b == nil {
		return
	}
	if id, ok := b.Get(ResponderStateKey); ok {
		r.SetResponderTransactionID(id)
	}
}

// RestoreTransactionState restores every transaction id unit carries.
func RestoreTransactionState(unit any, b Bundle) {
	if r, ok := unit.(Requester); ok {
		RestoreRequesterState(r, b)
	}
	if r, ok := unit.(Responder); ok {
		RestoreResponderState(r, b)
	}
}

func saveID(b Bundle, key, id string) {
	if id == "" {
		b.Delete(key)
		return
	}
	b.Set(key, id)
}
