// Package instrument provides observers that export store and pool activity.
//
// Metrics exports Prometheus metrics and implements both store.Observer and
// registry.Observer. Tracer records an OpenTelemetry span per change
// emission. Multi fans one observer slot out to several.
//
//	m := instrument.NewMetrics(instrument.WithNamespace("app"))
//	s := store.New(store.WithObserver(instrument.Multi(m, instrument.NewTracer())))
package instrument
