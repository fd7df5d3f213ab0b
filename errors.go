package resultnav

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch reports a requester that does not accept the result type
	// a responder closed with.
	ErrTypeMismatch = errors.New("resultnav: requester does not accept result type")
	// ErrHandlerNotFound reports a deferred result that no handler on the
	// requester can receive.
	ErrHandlerNotFound = errors.New("resultnav: no result handler for stored type")
	// ErrNotResponder is returned when the presenter creates a unit that cannot
	// take part in a transaction as responder.
	ErrNotResponder = errors.New("resultnav: created unit is not a responder")
	// ErrNilRequester is returned when a transaction is started without a requester.
	ErrNilRequester = errors.New("resultnav: requester required")
	// ErrNilResponder is returned when a result is posted without a responder.
	ErrNilResponder = errors.New("resultnav: responder required")
	// ErrNoPresenter is returned by New when Config.Presenter is unset.
	ErrNoPresenter = errors.New("resultnav: presenter required")
)

const (
	// CodeTypeMismatch labels a Fault wrapping ErrTypeMismatch.
	CodeTypeMismatch = "type_mismatch"
	// CodeHandlerNotFound labels a Fault wrapping ErrHandlerNotFound.
	CodeHandlerNotFound = "handler_not_found"
)

// Fault describes a requester/responder pairing bug detected while delivering
// a result. It unwraps to ErrTypeMismatch or ErrHandlerNotFound.
type Fault struct {
	Code       string
	TxnID      string
	ResultType string
	Unit       string
	err        error
}

func newFault(code string, sentinel error, txnID, resultType string, unit any) *Fault {
	return &Fault{
		Code:       code,
		TxnID:      txnID,
		ResultType: resultType,
		Unit:       fmt.Sprintf("%T", unit),
		err:        sentinel,
	}
}

func (f *Fault) Error() string {
	if f == nil {
		return "resultnav: fault"
	}
	return fmt.Sprintf("%s: txn %s: result type %s on %s", f.err, f.TxnID, f.ResultType, f.Unit)
}

// Unwrap returns the sentinel error for errors.Is.
func (f *Fault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.err
}
