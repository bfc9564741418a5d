package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/fluxstore/pkg/notify"
	"github.com/vango-dev/fluxstore/pkg/sched"
)

// recorder collects the changes a listener receives.
type recorder struct {
	notify.Listener
	changes [][]string
}

func newRecorder() *recorder {
	r := &recorder{}
	r.Listener = notify.NewListener(func(c notify.Change) {
		r.changes = append(r.changes, c.Keys)
	})
	return r
}

func newTestStore(opts ...Option) (*Store, *sched.Manual) {
	clock := sched.NewManual()
	opts = append([]Option{WithScheduler(clock), WithName("test")}, opts...)
	return New(opts...), clock
}

func TestGetReturnsSetValues(t *testing.T) {
	s, _ := newTestStore()

	s.Set("key", "value")
	s.SetValues(map[string]any{"foo": "bar"})

	if got := s.Get("key"); got != "value" {
		t.Errorf("Get(key) = %v, want value", got)
	}
	if got := s.Get("foo"); got != "bar" {
		t.Errorf("Get(foo) = %v, want bar", got)
	}
}

func TestGetFallsBackToDefaults(t *testing.T) {
	s, _ := newTestStore(WithDefaults(map[string]any{"classProperty": "classProperty"}))

	if got := s.Get("classProperty"); got != "classProperty" {
		t.Errorf("Get = %v, want default", got)
	}

	s.Set("classProperty", "setProperty")
	if got := s.Get("classProperty"); got != "setProperty" {
		t.Errorf("Get = %v, want setProperty", got)
	}
}

func TestGetDistinguishesZeroValuesFromUnset(t *testing.T) {
	s, _ := newTestStore(WithDefaults(map[string]any{"count": 10, "label": "x"}))

	s.Set("count", 0)
	s.Set("label", nil)

	if got := s.Get("count"); got != 0 {
		t.Errorf("Get(count) = %v, want 0", got)
	}
	if v, ok := s.Lookup("label"); !ok || v != nil {
		t.Errorf("Lookup(label) = %v, %v, want nil, true", v, ok)
	}
	if _, ok := s.Lookup("missing"); ok {
		t.Error("Lookup(missing) reported presence")
	}
}

func TestClearRestoresDefaults(t *testing.T) {
	s, clock := newTestStore(WithDefaults(map[string]any{"a": "default"}))
	rec := newRecorder()
	s.AddChangeListener(rec)

	s.SetImmediate("a", "set")
	s.SetImmediate("b", "set")
	rec.changes = nil

	s.Clear(false)
	if got := s.Get("a"); got != "default" {
		t.Errorf("Get(a) after Clear = %v, want default", got)
	}
	if got := s.Get("b"); got != nil {
		t.Errorf("Get(b) after Clear = %v, want nil", got)
	}

	clock.Advance(DefaultCoalesceWindow)
	if len(rec.changes) != 1 || !reflect.DeepEqual(rec.changes[0], []string{"a", "b"}) {
		t.Errorf("changes = %v, want [[a b]]", rec.changes)
	}
}

func TestClearEmptyTableDoesNotEmit(t *testing.T) {
	s, clock := newTestStore()
	rec := newRecorder()
	s.AddChangeListener(rec)

	s.Clear(true)
	s.Clear(false)
	clock.Flush()

	if len(rec.changes) != 0 {
		t.Errorf("changes = %v, want none", rec.changes)
	}
}

func TestClearImmediate(t *testing.T) {
	s, clock := newTestStore(WithValues(map[string]any{"x": 1}))
	rec := newRecorder()
	s.AddChangeListener(rec)

	s.Clear(true)

	if len(rec.changes) != 1 || !reflect.DeepEqual(rec.changes[0], []string{"x"}) {
		t.Errorf("changes = %v, want [[x]]", rec.changes)
	}
	if clock.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", clock.Pending())
	}
}

func TestSetCoalescesIntoOneNotification(t *testing.T) {
	s, clock := newTestStore()
	rec := newRecorder()
	s.AddChangeListener(rec)

	s.Set("key", "value")
	s.SetValues(map[string]any{"foo": "bar", "prop": "value"})
	s.Set("key", "again")

	if clock.Pending() != 1 {
		t.Fatalf("Pending() = %d, want a single timer", clock.Pending())
	}
	if len(rec.changes) != 0 {
		t.Fatalf("emitted before the window elapsed: %v", rec.changes)
	}

	clock.Advance(DefaultCoalesceWindow)

	want := [][]string{{"key", "foo", "prop"}}
	if !reflect.DeepEqual(rec.changes, want) {
		t.Errorf("changes = %v, want %v", rec.changes, want)
	}
	if got := s.Get("key"); got != "again" {
		t.Errorf("Get(key) = %v, want last write", got)
	}
}

func TestEmitChangeMergesExplicitTypesFirst(t *testing.T) {
	s, clock := newTestStore()
	rec := newRecorder()
	s.AddChangeListener(rec)

	s.Set("key", "value")
	s.SetValues(map[string]any{"foo": "bar", "prop": "value"})
	s.EmitChange("change")

	want := [][]string{{"change", "key", "foo", "prop"}}
	if !reflect.DeepEqual(rec.changes, want) {
		t.Errorf("changes = %v, want %v", rec.changes, want)
	}

	clock.Flush()
	if len(rec.changes) != 1 {
		t.Errorf("cancelled timer still emitted: %v", rec.changes)
	}
}

func TestEmitChangeResetsBuffer(t *testing.T) {
	s, _ := newTestStore()
	rec := newRecorder()
	s.AddChangeListener(rec)

	s.Set("key", "value")
	s.EmitChange()
	s.Set("foo", "bar")
	s.EmitChange()

	want := [][]string{{"key"}, {"foo"}}
	if !reflect.DeepEqual(rec.changes, want) {
		t.Errorf("changes = %v, want %v", rec.changes, want)
	}
}

func TestEmitChangeWithoutKeysStillBroadcasts(t *testing.T) {
	s, _ := newTestStore()
	rec := newRecorder()
	s.AddChangeListener(rec)

	s.EmitChange()

	if len(rec.changes) != 1 || len(rec.changes[0]) != 0 {
		t.Errorf("changes = %v, want one typeless change", rec.changes)
	}
}

func TestStrictStoreRejectsTypelessEmit(t *testing.T) {
	s, _ := newTestStore(WithStrictChannel())

	defer func() {
		ue, ok := recover().(*notify.UsageError)
		if !ok || ue.Code != notify.CodeUntypedEmit {
			t.Errorf("expected usage error %s", notify.CodeUntypedEmit)
		}
	}()
	s.EmitChange()
}

func TestSetImmediateCancelsPendingTimer(t *testing.T) {
	s, clock := newTestStore()
	rec := newRecorder()
	s.AddChangeListener(rec)

	s.Set("a", 1)
	s.SetImmediate("b", 2)

	if want := [][]string{{"a", "b"}}; !reflect.DeepEqual(rec.changes, want) {
		t.Errorf("changes = %v, want %v", rec.changes, want)
	}
	clock.Flush()
	if len(rec.changes) != 1 {
		t.Errorf("changes after flush = %v, want exactly one", rec.changes)
	}
}

func TestChangeListenersAddedOnce(t *testing.T) {
	s, _ := newTestStore()
	rec := newRecorder()

	s.AddChangeListener(rec)
	s.AddChangeListener(rec)
	s.AddChangeListener(rec)
	s.EmitChange("k")

	if len(rec.changes) != 1 {
		t.Errorf("listener called %d times, want 1", len(rec.changes))
	}
}

func TestRemovedListenerIsNotCalled(t *testing.T) {
	s, _ := newTestStore()
	rec := newRecorder()

	s.AddChangeListener(rec)
	s.RemoveChangeListener(rec)
	s.EmitChange("k")

	if len(rec.changes) != 0 {
		t.Errorf("removed listener was called: %v", rec.changes)
	}
}

func TestListenerPanicIsIsolated(t *testing.T) {
	obs := &countingObserver{}
	s, _ := newTestStore(WithObserver(obs))
	rec := newRecorder()

	s.AddChangeListener(notify.NewListener(func(notify.Change) { panic("bad listener") }))
	s.AddChangeListener(rec)
	s.EmitChange("k")

	if len(rec.changes) != 1 {
		t.Error("second listener was not notified")
	}
	if obs.panics != 1 {
		t.Errorf("observer panics = %d, want 1", obs.panics)
	}
	if obs.emits != 1 || obs.done != 1 {
		t.Errorf("observer emits/done = %d/%d, want 1/1", obs.emits, obs.done)
	}
}

func TestDisposedStoreDoesNotEmit(t *testing.T) {
	s, clock := newTestStore()
	rec := newRecorder()
	s.AddChangeListener(rec)

	s.Set("a", 1)
	s.Dispose()
	s.Dispose()
	clock.Flush()
	s.EmitChange("a")

	if len(rec.changes) != 0 {
		t.Errorf("disposed store emitted %v", rec.changes)
	}
	if s.Context().Err() == nil {
		t.Error("store context was not cancelled")
	}
}

func TestTriggerLoadDebounces(t *testing.T) {
	loads := 0
	s, clock := newTestStore(WithLoader(LoadFunc(func(context.Context, *Store) { loads++ })))

	s.TriggerLoad()
	s.TriggerLoad()
	s.TriggerLoad()
	clock.Advance(DefaultLoadDebounce)

	if loads != 1 {
		t.Fatalf("loads = %d, want 1", loads)
	}

	s.TriggerLoad()
	s.TriggerLoad()
	clock.Advance(DefaultLoadDebounce)

	if loads != 2 {
		t.Errorf("loads = %d, want 2", loads)
	}
}

func TestTriggerLoadWithoutLoader(t *testing.T) {
	s, clock := newTestStore()

	s.TriggerLoad()

	if clock.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", clock.Pending())
	}
}

func TestTriggerLoadCancelledByDispose(t *testing.T) {
	loads := 0
	s, clock := newTestStore(WithLoader(LoadFunc(func(context.Context, *Store) { loads++ })))

	s.TriggerLoad()
	s.Dispose()
	clock.Flush()

	if loads != 0 {
		t.Errorf("loads = %d, want 0", loads)
	}
}

func TestSetBindingLoadsOnChange(t *testing.T) {
	var bindings []any
	s, _ := newTestStore(WithLoader(LoadFunc(func(_ context.Context, s *Store) {
		bindings = append(bindings, s.Binding())
	})))

	s.SetBinding("a")
	s.SetBinding("a")
	s.SetBinding("b")
	s.SetBinding([]string{"x"})
	s.SetBinding([]string{"x"})

	if len(bindings) != 3 {
		t.Errorf("loads = %v, want 3 loads", bindings)
	}
}

func TestPropsChangeListeners(t *testing.T) {
	s, _ := newTestStore()
	var got []any

	s.OnPropsChange(func(map[string]any) { panic("broken") })
	remove := s.OnPropsChange(func(p map[string]any) { got = append(got, p["filter"]) })

	s.NotifyPropsChange(map[string]any{"filter": "open"})
	remove()
	s.NotifyPropsChange(map[string]any{"filter": "closed"})

	if len(got) != 1 || got[0] != "open" {
		t.Errorf("got = %v, want [open]", got)
	}
}

func TestBindIsStable(t *testing.T) {
	m := Func("inc", func(s *Store, args ...any) any {
		n, _ := s.Get("n").(int)
		s.SetImmediate("n", n+args[0].(int))
		return nil
	})
	s, _ := newTestStore(WithDefaults(map[string]any{"inc": m}))

	b1, b2 := s.Bind(m), s.Bind(m)
	if b1 != b2 {
		t.Error("Bind returned different wrappers for the same method")
	}

	b1.Call(2)
	if got := s.Get("n"); got != 2 {
		t.Errorf("Get(n) = %v, want 2", got)
	}
	if b1.Store() != s || b1.Method() != m {
		t.Error("bound accessors mismatch")
	}
}

func TestInvokeAndHandleAction(t *testing.T) {
	var payloads []any
	s, _ := newTestStore(
		WithDefaults(map[string]any{
			"onSave":   Func("onSave", func(_ *Store, args ...any) any { payloads = append(payloads, args[0]); return nil }),
			"notAFunc": "value",
		}),
		WithHandlers(map[string]string{"SAVE": "onSave", "BROKEN": "notAFunc"}),
	)

	if !s.HandleAction("SAVE", 1) {
		t.Error("HandleAction(SAVE) = false")
	}
	if s.HandleAction("BROKEN", 2) {
		t.Error("HandleAction(BROKEN) = true for a non-method handler")
	}
	if s.HandleAction("UNKNOWN", 3) || s.HandleAction("", 4) {
		t.Error("HandleAction ran for an unregistered action")
	}
	if _, err := s.Invoke("notAFunc"); !errors.Is(err, ErrNoMethod) {
		t.Errorf("Invoke(notAFunc) err = %v, want ErrNoMethod", err)
	}
	if len(payloads) != 1 || payloads[0] != 1 {
		t.Errorf("payloads = %v, want [1]", payloads)
	}
}

func TestHandleActionLogsMissingMethodOnce(t *testing.T) {
	var buf bytes.Buffer
	s, _ := newTestStore(
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithDefaults(map[string]any{"notAFunc": "value"}),
		WithHandlers(map[string]string{"BROKEN": "notAFunc"}),
	)

	if s.HandleAction("BROKEN", nil) {
		t.Fatal("HandleAction(BROKEN) = true")
	}
	if n := strings.Count(buf.String(), "level=WARN"); n != 1 {
		t.Errorf("warnings = %d, want 1\n%s", n, buf.String())
	}
}

func TestDefineKeepsExistingDefaults(t *testing.T) {
	s, _ := newTestStore(WithDefaults(map[string]any{"a": 1}))

	if s.Define("a", 2) {
		t.Error("Define overwrote an existing default")
	}
	if !s.Define("b", 3) || !s.HasDefault("b") {
		t.Error("Define did not add a new default")
	}
	if s.Get("a") != 1 {
		t.Errorf("Get(a) = %v, want 1", s.Get("a"))
	}
}

func TestSnapshotAndKeys(t *testing.T) {
	s, _ := newTestStore(WithValues(map[string]any{"a": 1}), WithKey("k"))
	s.Set("b", 2)

	if !reflect.DeepEqual(s.Keys(), []string{"a", "b"}) {
		t.Errorf("Keys() = %v", s.Keys())
	}
	snap := s.Snapshot()
	snap["a"] = 100
	if s.Get("a") != 1 {
		t.Error("Snapshot shares the table")
	}
	if s.Key() != "k" || s.ID() == "" || s.Name() != "test" {
		t.Error("identity accessors mismatch")
	}
}

func TestValuesLayersTableOverDefaults(t *testing.T) {
	s, _ := newTestStore(
		WithDefaults(map[string]any{"filter": "all", "count": 0}),
		WithValues(map[string]any{"count": 3}),
	)

	want := map[string]any{"filter": "all", "count": 3}
	if got := s.Values(); !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
	s.Clear(true)
	if got := s.Values()["count"]; got != 0 {
		t.Errorf("count after Clear = %v, want default 0", got)
	}
}

func TestCoalesceWindowOption(t *testing.T) {
	s, clock := newTestStore(WithCoalesceWindow(5 * time.Millisecond))
	rec := newRecorder()
	s.AddChangeListener(rec)

	s.Set("a", 1)
	clock.Advance(4 * time.Millisecond)
	if len(rec.changes) != 0 {
		t.Fatal("emitted before the configured window")
	}
	clock.Advance(time.Millisecond)
	if len(rec.changes) != 1 {
		t.Errorf("changes = %v, want one", rec.changes)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b any
		want bool
	}{
		{nil, nil, true},
		{nil, 1, false},
		{1, 1, true},
		{1, int64(1), false},
		{"a", "a", true},
		{[]int{1}, []int{1}, true},
		{map[string]int{"a": 1}, map[string]int{"a": 2}, false},
	}
	for _, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

type countingObserver struct {
	writes, emits, done, panics int
}

func (o *countingObserver) StoreWrite(string, int) { o.writes++ }

func (o *countingObserver) StoreEmit(string, []string) func() {
	o.emits++
	return func() { o.done++ }
}

func (o *countingObserver) ListenerPanic(string, any) { o.panics++ }

func TestLoadFallsBackToLoadMethod(t *testing.T) {
	calls := 0
	s, clock := newTestStore(WithDefaults(map[string]any{
		LoadMethod: Func(LoadMethod, func(s *Store, _ ...any) any {
			calls++
			return nil
		}),
	}))

	if !s.HasLoader() {
		t.Fatal("HasLoader() = false with a load method declared")
	}

	s.TriggerLoad()
	s.TriggerLoad()
	clock.Advance(DefaultLoadDebounce)

	if calls != 1 {
		t.Errorf("load method calls = %d, want 1", calls)
	}
}
