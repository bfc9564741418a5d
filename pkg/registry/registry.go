// Package registry pools store instances by binding key.
//
// A Pool hands out one instance per key and counts references. Releasing the
// last reference schedules the eviction after a grace period, so a view that
// unmounts and remounts within one render pass gets its store back instead of
// a fresh one.
//
//	carts := registry.New(func(userID string) *store.Store {
//	    return store.New(store.WithKey(userID))
//	}, registry.WithName("carts"))
//
//	s := carts.Get("u1")
//	defer carts.Free("u1")
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/fluxstore/pkg/sched"
)

// DefaultGracePeriod is how long an unreferenced instance stays pooled.
const DefaultGracePeriod = 50 * time.Millisecond

// Observer receives pool instrumentation events.
type Observer interface {
	// PoolSize is called whenever the number of pooled instances changes.
	PoolSize(pool string, size int)

	// PoolEviction is called when an instance is evicted.
	PoolEviction(pool string)
}

// Disposer is implemented by instances that release resources on eviction.
type Disposer interface {
	Dispose()
}

// Option configures a Pool.
type Option func(*config)

type config struct {
	name      string
	singleton bool
	grace     time.Duration
	sched     sched.Scheduler
	logger    *slog.Logger
	observer  Observer
}

// WithName sets the pool name used in logs and metrics.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// Singleton makes every Get return one shared instance regardless of key.
func Singleton() Option {
	return func(c *config) {
		c.singleton = true
	}
}

// WithGracePeriod sets the delay between the last Free and eviction.
func WithGracePeriod(d time.Duration) Option {
	return func(c *config) {
		c.grace = d
	}
}

// WithScheduler sets the scheduler for eviction timers.
func WithScheduler(s sched.Scheduler) Option {
	return func(c *config) {
		c.sched = sched.OrSystem(s)
	}
}

// WithLogger sets the structured logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver sets the instrumentation observer.
func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

type entry[S any] struct {
	value S
	refs  int
	evict sched.Timer
	gen   uint64
}

// Pool is a reference-counted instance pool for one store kind.
// It is safe for concurrent use.
type Pool[K comparable, S any] struct {
	cfg     config
	factory func(K) S

	mu      sync.Mutex
	entries map[K]*entry[S]

	single    S
	hasSingle bool
}

// New creates a pool that builds instances with factory.
func New[K comparable, S any](factory func(K) S, opts ...Option) *Pool[K, S] {
	cfg := config{
		grace:  DefaultGracePeriod,
		sched:  sched.System(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pool[K, S]{
		cfg:     cfg,
		factory: factory,
		entries: make(map[K]*entry[S]),
	}
}

// Get returns the instance for key.
//
// A singleton pool ignores key and lazily creates one shared instance. A zero
// key yields a new unpooled instance on every call. Otherwise the pooled
// instance is returned, created on first request, and its reference count
// is incremented; a pending eviction is cancelled.
func (p *Pool[K, S]) Get(key K) S {
	var zero K

	p.mu.Lock()

	if p.cfg.singleton {
		if !p.hasSingle {
			p.single = p.factory(key)
			p.hasSingle = true
		}
		s := p.single
		p.mu.Unlock()
		return s
	}

	if key == zero {
		p.mu.Unlock()
		return p.factory(key)
	}

	if e, ok := p.entries[key]; ok {
		if e.evict != nil {
			e.evict.Stop()
			e.evict = nil
			e.gen++
		}
		e.refs++
		v := e.value
		p.mu.Unlock()
		return v
	}

	e := &entry[S]{value: p.factory(key), refs: 1}
	p.entries[key] = e
	size := len(p.entries)
	p.mu.Unlock()

	p.observeSize(size)
	return e.value
}

// Free releases one reference to key. When the count reaches zero the
// instance is evicted after the grace period unless it is requested again.
// Freeing an unknown key, the zero key or a singleton is a no-op.
func (p *Pool[K, S]) Free(key K) {
	var zero K
	if p.cfg.singleton || key == zero {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok || e.refs == 0 {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}

	e.gen++
	gen := e.gen
	e.evict = p.cfg.sched.AfterFunc(p.cfg.grace, func() {
		p.evict(key, e, gen)
	})
}

// evict removes e if it is still unreferenced and no newer cycle started.
func (p *Pool[K, S]) evict(key K, e *entry[S], gen uint64) {
	p.mu.Lock()
	current, ok := p.entries[key]
	if !ok || current != e || e.gen != gen || e.refs > 0 {
		p.mu.Unlock()
		return
	}
	delete(p.entries, key)
	size := len(p.entries)
	p.mu.Unlock()

	p.cfg.logger.Debug("registry: evicted instance", "pool", p.cfg.name, "key", key)
	if d, ok := any(e.value).(Disposer); ok {
		d.Dispose()
	}
	if p.cfg.observer != nil {
		p.cfg.observer.PoolEviction(p.cfg.name)
	}
	p.observeSize(size)
}

// Len returns the number of pooled instances, including those awaiting eviction.
func (p *Pool[K, S]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// RefCount returns the reference count for key.
func (p *Pool[K, S]) RefCount(key K) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Each calls fn for every pooled instance.
func (p *Pool[K, S]) Each(fn func(key K, value S)) {
	p.mu.Lock()
	snapshot := make(map[K]S, len(p.entries))
	for k, e := range p.entries {
		snapshot[k] = e.value
	}
	p.mu.Unlock()

	for k, v := range snapshot {
		fn(k, v)
	}
}

func (p *Pool[K, S]) observeSize(size int) {
	if p.cfg.observer != nil {
		p.cfg.observer.PoolSize(p.cfg.name, size)
	}
}
