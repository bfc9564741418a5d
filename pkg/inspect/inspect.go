// Package inspect serves a development inspector for live stores.
//
// Routes:
//
//	GET  /stores                      list registered stores
//	GET  /stores/{id}                 snapshot of one store
//	GET  /stores/{id}/watch           websocket feed of its changes
//	POST /stores/{id}/actions/{type}  dispatch an action with a JSON payload
//	GET  /metrics                     Prometheus metrics
//
// The inspector exposes store contents and accepts actions. Mount it only on
// development or otherwise trusted listeners.
package inspect

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/fluxstore/pkg/store"
)

// Default timings of the watch feed.
const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultFeedBuffer   = 64
)

// Option configures an Inspector.
type Option func(*Inspector)

// WithLogger sets the structured logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Inspector) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithGatherer sets the metrics source of /metrics.
// Default: prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(i *Inspector) {
		i.gatherer = g
	}
}

// WithCheckOrigin sets the websocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(i *Inspector) {
		i.upgrader.CheckOrigin = fn
	}
}

// WithWriteTimeout sets the deadline for each websocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(i *Inspector) {
		i.writeTimeout = d
	}
}

// WithFeedBuffer sets how many undelivered events a watch feed holds before
// dropping new ones.
func WithFeedBuffer(n int) Option {
	return func(i *Inspector) {
		i.feedBuffer = n
	}
}

// Inspector tracks the stores it exposes.
type Inspector struct {
	mu     sync.RWMutex
	stores map[string]*store.Store

	upgrader     websocket.Upgrader
	gatherer     prometheus.Gatherer
	writeTimeout time.Duration
	feedBuffer   int
	logger       *slog.Logger

	token   string
	tracer  trace.Tracer
	metrics *requestMetrics
}

// New creates an inspector with no stores.
func New(opts ...Option) *Inspector {
	i := &Inspector{
		stores:       make(map[string]*store.Store),
		gatherer:     prometheus.DefaultGatherer,
		writeTimeout: DefaultWriteTimeout,
		feedBuffer:   DefaultFeedBuffer,
		logger:       slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Add exposes s.
func (i *Inspector) Add(s *store.Store) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stores[s.ID()] = s
}

// Remove stops exposing s.
func (i *Inspector) Remove(s *store.Store) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.stores, s.ID())
}

// Lookup returns the exposed store with the given ID.
func (i *Inspector) Lookup(id string) (*store.Store, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.stores[id]
	return s, ok
}

// Stores returns the exposed stores ordered by name, then ID.
func (i *Inspector) Stores() []*store.Store {
	i.mu.RLock()
	out := make([]*store.Store, 0, len(i.stores))
	for _, s := range i.stores {
		out = append(out, s)
	}
	i.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].Name() != out[b].Name() {
			return out[a].Name() < out[b].Name()
		}
		return out[a].ID() < out[b].ID()
	})
	return out
}

// Handler returns the inspector routes.
func (i *Inspector) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, i.observe, i.authorize)
	r.Get("/stores", i.handleList)
	r.Get("/stores/{id}", i.handleGet)
	r.Get("/stores/{id}/watch", i.handleWatch)
	r.Post("/stores/{id}/actions/{action}", i.handleAction)
	r.Handle("/metrics", promhttp.HandlerFor(i.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Summary describes a store in the list view.
type Summary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Key       any      `json:"key,omitempty"`
	Keys      []string `json:"keys"`
	Listeners int      `json:"listeners"`
	Disposed  bool     `json:"disposed"`
}

// Detail is a Summary plus the store's values.
type Detail struct {
	Summary
	Values map[string]any `json:"values"`
}

func summarize(s *store.Store) Summary {
	keys := s.Keys()
	if keys == nil {
		keys = []string{}
	}
	return Summary{
		ID:        s.ID(),
		Name:      s.Name(),
		Key:       printable(s.Key()),
		Keys:      keys,
		Listeners: s.ListenerCount(),
		Disposed:  s.IsDisposed(),
	}
}

func (i *Inspector) handleList(w http.ResponseWriter, _ *http.Request) {
	stores := i.Stores()
	out := make([]Summary, 0, len(stores))
	for _, s := range stores {
		out = append(out, summarize(s))
	}
	i.writeJSON(w, http.StatusOK, out)
}

func (i *Inspector) handleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := i.Lookup(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	i.writeJSON(w, http.StatusOK, Detail{
		Summary: summarize(s),
		Values:  printableMap(s.Values()),
	})
}

func (i *Inspector) handleAction(w http.ResponseWriter, r *http.Request) {
	s, ok := i.Lookup(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	var payload any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON payload: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	action := chi.URLParam(r, "action")
	if !s.HandleAction(action, payload) {
		http.Error(w, fmt.Sprintf("no handler for action %q", action), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (i *Inspector) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		i.logger.Error("inspect: encoding response failed", "error", err)
	}
}

// printable converts v into something encoding/json can always encode.
func printable(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *store.Method:
		return "method " + x.Name()
	case *store.Bound:
		return "method " + x.Method().Name()
	case *store.Store:
		return "store " + x.ID()
	case error:
		return x.Error()
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}

func printableMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = printable(v)
	}
	return out
}
