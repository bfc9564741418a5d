package instrument

import "github.com/vango-dev/fluxstore/pkg/store"

type multi []store.Observer

// Multi returns an observer that forwards every event to each non-nil
// observer in order.
func Multi(observers ...store.Observer) store.Observer {
	var m multi
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multi) StoreWrite(name string, keys int) {
	for _, o := range m {
		o.StoreWrite(name, keys)
	}
}

func (m multi) StoreEmit(name string, keys []string) func() {
	done := make([]func(), 0, len(m))
	for _, o := range m {
		if d := o.StoreEmit(name, keys); d != nil {
			done = append(done, d)
		}
	}
	return func() {
		for i := len(done) - 1; i >= 0; i-- {
			done[i]()
		}
	}
}

func (m multi) ListenerPanic(name string, recovered any) {
	for _, o := range m {
		o.ListenerPanic(name, recovered)
	}
}
