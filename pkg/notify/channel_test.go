package notify

import (
	"errors"
	"testing"
)

func TestChannelDeliversInRegistrationOrder(t *testing.T) {
	ch := NewChannel()
	var order []string

	a := NewListener(func(Change) { order = append(order, "a") })
	b := NewListener(func(Change) { order = append(order, "b") })
	ch.Subscribe(a)
	ch.Subscribe(b)

	ch.Emit(Change{Keys: []string{"k"}})

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
}

func TestChannelSubscribeTwiceInvokesOnce(t *testing.T) {
	ch := NewChannel()
	calls := 0
	l := NewListener(func(Change) { calls++ })

	ch.Subscribe(l)
	ch.Subscribe(l)
	ch.Subscribe(l)
	ch.Emit(Change{Keys: []string{"k"}})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if ch.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ch.Len())
	}
}

func TestChannelResubscribeMovesToEnd(t *testing.T) {
	ch := NewChannel()
	var order []string

	a := NewListener(func(Change) { order = append(order, "a") })
	b := NewListener(func(Change) { order = append(order, "b") })
	ch.Subscribe(a)
	ch.Subscribe(b)
	ch.Subscribe(a)

	ch.Emit(Change{Keys: []string{"k"}})

	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Errorf("order = %v, want [b a]", order)
	}
}

func TestChannelUnsubscribeIsIdempotent(t *testing.T) {
	ch := NewChannel()
	calls := 0
	l := NewListener(func(Change) { calls++ })

	ch.Subscribe(l)
	ch.Unsubscribe(l)
	ch.Unsubscribe(l)
	ch.Unsubscribe(nil)
	ch.Emit(Change{Keys: []string{"k"}})

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestChannelIsolatesListenerPanics(t *testing.T) {
	var recovered any
	ch := NewChannel(OnPanic(func(_ Change, _ Listener, r any, _ []byte) {
		recovered = r
	}))

	second := false
	ch.Subscribe(NewListener(func(Change) { panic("boom") }))
	ch.Subscribe(NewListener(func(Change) { second = true }))

	ch.Emit(Change{Keys: []string{"k"}})

	if !second {
		t.Error("second listener was not notified after the first panicked")
	}
	if recovered != "boom" {
		t.Errorf("recovered = %v, want boom", recovered)
	}
}

func TestChannelTypelessEmit(t *testing.T) {
	t.Run("lenient channel broadcasts", func(t *testing.T) {
		ch := NewChannel()
		got := false
		ch.Subscribe(NewListener(func(c Change) { got = !c.Typed() }))
		ch.Emit(Change{})
		if !got {
			t.Error("typeless change was not delivered")
		}
	})

	t.Run("strict channel panics", func(t *testing.T) {
		ch := NewChannel(Strict())
		defer func() {
			r := recover()
			var ue *UsageError
			err, ok := r.(error)
			if !ok || !errors.As(err, &ue) || ue.Code != CodeUntypedEmit {
				t.Errorf("recover() = %v, want UsageError %s", r, CodeUntypedEmit)
			}
		}()
		ch.Emit(Change{})
	})
}

func TestChangeForms(t *testing.T) {
	bare := Change{Keys: []string{"a"}}
	if k, ok := bare.Type(); !ok || k != "a" {
		t.Errorf("Type() = %q, %v", k, ok)
	}

	list := Change{Keys: []string{"a", "b"}}
	if _, ok := list.Type(); ok {
		t.Error("list form reported a bare type")
	}
	if !list.Has("b") || list.Has("c") {
		t.Error("Has mismatch")
	}
	if list.String() != "a,b" {
		t.Errorf("String() = %q", list.String())
	}
}
