package resultnav

// Requester is implemented by a unit that starts transactions and waits for
// their results.
type Requester interface {
	// RequesterTransactionID returns the id of the transaction this unit is
	// waiting on, or "" when none is outstanding.
	RequesterTransactionID() string
	SetRequesterTransactionID(id string)
	// CanReceiveResult reports whether the unit is fully initialized and its
	// presentation surface exists and has not been torn down.
	CanReceiveResult() bool
}

// ResultReceiver is a Requester that accepts results of type R. A unit
// receives exactly one result type.
type ResultReceiver[R any] interface {
	Requester
	OnResult(result R)
}

// Responder is implemented by a unit created to produce a result.
type Responder interface {
	// ResponderTransactionID returns the id of the transaction this unit is
	// answering, or "" once it has closed or was never part of one.
	ResponderTransactionID() string
	SetResponderTransactionID(id string)
}

// Transactor is a unit acting in both roles, an intermediate link in a chain.
type Transactor interface {
	Requester
	Responder
}
