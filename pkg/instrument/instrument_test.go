package instrument

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/fluxstore/pkg/notify"
	"github.com/vango-dev/fluxstore/pkg/registry"
	"github.com/vango-dev/fluxstore/pkg/sched"
	"github.com/vango-dev/fluxstore/pkg/store"
)

// gathered returns the value of the series of metric name labelled label.
// Histograms report their sample count.
func gathered(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() != label {
					continue
				}
				switch {
				case m.GetCounter() != nil:
					return m.GetCounter().GetValue()
				case m.GetGauge() != nil:
					return m.GetGauge().GetValue()
				case m.GetHistogram() != nil:
					return float64(m.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	t.Fatalf("metric %s{%s} not found", name, label)
	return 0
}

func TestMetricsObserveStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))

	s := store.New(store.WithName("cart"), store.WithObserver(m))
	s.AddChangeListener(notify.NewListener(func(notify.Change) { panic("boom") }))

	s.SetValuesImmediate(map[string]any{"a": 1, "b": 2})

	if got := gathered(t, reg, "test_store_writes_total", "cart"); got != 2 {
		t.Errorf("writes = %v, want 2", got)
	}
	if got := gathered(t, reg, "test_store_emits_total", "cart"); got != 1 {
		t.Errorf("emits = %v, want 1", got)
	}
	if got := gathered(t, reg, "test_store_emit_duration_seconds", "cart"); got != 1 {
		t.Errorf("emit duration samples = %v, want 1", got)
	}
	if got := gathered(t, reg, "test_store_listener_panics_total", "cart"); got != 1 {
		t.Errorf("panics = %v, want 1", got)
	}
}

func TestMetricsObservePool(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	clock := sched.NewManual()

	pool := registry.New(func(key string) *store.Store {
		return store.New(store.WithKey(key))
	}, registry.WithName("carts"), registry.WithObserver(m), registry.WithScheduler(clock))

	pool.Get("a")
	pool.Get("b")
	if got := gathered(t, reg, "fluxstore_pool_size", "carts"); got != 2 {
		t.Errorf("pool size = %v, want 2", got)
	}

	pool.Free("a")
	clock.Flush()
	if got := gathered(t, reg, "fluxstore_pool_size", "carts"); got != 1 {
		t.Errorf("pool size = %v, want 1", got)
	}
	if got := gathered(t, reg, "fluxstore_pool_evictions_total", "carts"); got != 1 {
		t.Errorf("evictions = %v, want 1", got)
	}
}

type recordingTracer struct {
	noop.Tracer
	spans []string
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.spans = append(r.spans, name)
	return r.Tracer.Start(ctx, name, opts...)
}

func TestTracerRecordsEmissions(t *testing.T) {
	rt := &recordingTracer{}
	tr := NewTracer(WithTracer(rt), WithIncludeKeys(true))

	s := store.New(store.WithObserver(tr))
	s.SetImmediate("a", 1)
	tr.ListenerPanic("s", "boom")

	want := []string{"fluxstore.emit", "fluxstore.listener_panic"}
	if len(rt.spans) != len(want) {
		t.Fatalf("spans = %v, want %v", rt.spans, want)
	}
	for i := range want {
		if rt.spans[i] != want[i] {
			t.Errorf("spans = %v, want %v", rt.spans, want)
		}
	}
}

type countObserver struct {
	writes, emits, done, panics int
}

func (c *countObserver) StoreWrite(string, int) { c.writes++ }
func (c *countObserver) StoreEmit(string, []string) func() {
	c.emits++
	return func() { c.done++ }
}
func (c *countObserver) ListenerPanic(string, any) { c.panics++ }

func TestMultiForwards(t *testing.T) {
	a, b := &countObserver{}, &countObserver{}
	m := Multi(a, nil, b)

	m.StoreWrite("s", 1)
	m.StoreEmit("s", nil)()
	m.ListenerPanic("s", nil)

	for _, c := range []*countObserver{a, b} {
		if c.writes != 1 || c.emits != 1 || c.done != 1 || c.panics != 1 {
			t.Errorf("observer counts = %+v, want all 1", *c)
		}
	}
}
