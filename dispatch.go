package resultnav

import "reflect"

// deliverFunc hands payload to r through its typed OnResult method. It
// reports false when r does not accept the payload's declared type.
type deliverFunc func(r Requester, payload any) bool

// dispatchTable maps declared result types to their delivery functions. It
// is filled by CloseWithResult, so every type stored in the pending store has
// an entry by the time it is looked up. Guarded by the navigator mutex.
type dispatchTable map[reflect.Type]deliverFunc

func resultTypeOf[R any]() reflect.Type {
	return reflect.TypeFor[R]()
}

func deliverAs[R any](r Requester, payload any) bool {
	receiver, ok := r.(ResultReceiver[R])
	if !ok {
		return false
	}
	var value R
	if payload != nil {
		v, ok := payload.(R)
		if !ok {
			return false
		}
		value = v
	}
	receiver.OnResult(value)
	return true
}

func (d dispatchTable) register(t reflect.Type, fn deliverFunc) {
	if _, ok := d[t]; !ok {
		d[t] = fn
	}
}

func (d dispatchTable) lookup(t reflect.Type) (deliverFunc, bool) {
	if t == nil {
		return nil, false
	}
	fn, ok := d[t]
	return fn, ok
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<none>"
	}
	return t.String()
}
