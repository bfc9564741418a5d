// Package app assembles the fluxstore runtime from a configuration: seed
// stores with their capabilities, the store pool, observers, state storage
// and the inspector server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"github.com/vango-dev/fluxstore/internal/config"
	fluxerrors "github.com/vango-dev/fluxstore/internal/errors"
	"github.com/vango-dev/fluxstore/pkg/capability"
	"github.com/vango-dev/fluxstore/pkg/inspect"
	"github.com/vango-dev/fluxstore/pkg/instrument"
	"github.com/vango-dev/fluxstore/pkg/persist"
	"github.com/vango-dev/fluxstore/pkg/registry"
	"github.com/vango-dev/fluxstore/pkg/sched"
	"github.com/vango-dev/fluxstore/pkg/store"
)

const tracerName = "fluxstore"

// ErrUnknownStore is returned by Store for names the configuration does not declare.
var ErrUnknownStore = errors.New("app: unknown store")

// Option configures an App.
type Option func(*App)

// WithLogger sets the structured logger. If nil, a logger at the configured
// level writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithScheduler sets the timer source of every store and the pool.
func WithScheduler(sc sched.Scheduler) Option {
	return func(a *App) {
		a.scheduler = sc
	}
}

// WithStorage overrides the state storage selected by the configuration.
func WithStorage(st persist.Storage) Option {
	return func(a *App) {
		a.storage = st
	}
}

// WithS3Client sets the client used by the s3 state backend.
func WithS3Client(client persist.S3API) Option {
	return func(a *App) {
		a.s3Client = client
	}
}

// App is a configured fluxstore runtime.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	scheduler sched.Scheduler
	storage   persist.Storage
	s3Client  persist.S3API

	metricsRegistry *prometheus.Registry
	metrics         *instrument.Metrics
	observer        store.Observer

	pool      *registry.Pool[string, *store.Store]
	inspector *inspect.Inspector

	mu          sync.Mutex
	seeds       map[string]*store.Store
	factoryErrs map[string]error
}

// New builds the runtime described by cfg and creates its seed stores.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:         cfg,
		seeds:       make(map[string]*store.Store),
		factoryErrs: make(map[string]error),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		level, err := cfg.Level()
		if err != nil {
			return nil, err
		}
		a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	a.scheduler = sched.OrSystem(a.scheduler)

	if a.storage == nil {
		st, err := a.newStorage()
		if err != nil {
			return nil, err
		}
		a.storage = st
	}

	a.metricsRegistry = prometheus.NewRegistry()
	a.metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var observers []store.Observer
	if !cfg.Metrics.Disabled {
		a.metrics = instrument.NewMetrics(
			instrument.WithNamespace(cfg.Metrics.Namespace),
			instrument.WithSubsystem(cfg.Metrics.Subsystem),
			instrument.WithRegistry(a.metricsRegistry),
		)
		observers = append(observers, a.metrics)
	}
	if cfg.Tracing.Enabled {
		observers = append(observers, instrument.NewTracer(instrument.WithIncludeKeys(cfg.Tracing.IncludeKeys)))
	}
	if len(observers) > 0 {
		a.observer = instrument.Multi(observers...)
	}

	poolOpts := []registry.Option{
		registry.WithName("seed"),
		registry.WithGracePeriod(cfg.Timing.GracePeriod.Duration()),
		registry.WithScheduler(a.scheduler),
		registry.WithLogger(a.logger),
	}
	if a.metrics != nil {
		poolOpts = append(poolOpts, registry.WithObserver(a.metrics))
	}
	a.pool = registry.New(a.newStore, poolOpts...)

	inspectOpts := []inspect.Option{
		inspect.WithLogger(a.logger),
		inspect.WithGatherer(a.metricsRegistry),
		inspect.WithWriteTimeout(cfg.Inspector.WriteTimeout.Duration()),
		inspect.WithFeedBuffer(cfg.Inspector.FeedBuffer),
		inspect.WithCheckOrigin(checkOrigin(cfg.Inspector.AllowedOrigins)),
		inspect.WithToken(cfg.Inspector.Token),
	}
	if !cfg.Metrics.Disabled {
		inspectOpts = append(inspectOpts, inspect.WithRequestMetrics(a.metricsRegistry, cfg.Metrics.Namespace))
	}
	if cfg.Tracing.Enabled {
		inspectOpts = append(inspectOpts, inspect.WithTracer(otel.Tracer(tracerName)))
	}
	a.inspector = inspect.New(inspectOpts...)

	for _, sc := range cfg.Stores {
		s := a.Acquire(sc.Name)
		a.mu.Lock()
		a.seeds[sc.Name] = s
		err := a.factoryErrs[sc.Name]
		a.mu.Unlock()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: store %q: %w", sc.Name, err)
		}
	}

	return a, nil
}

// newStore is the pool factory.
func (a *App) newStore(name string) *store.Store {
	sc, _ := a.cfg.Store(name)

	opts := []store.Option{
		store.WithName(name),
		store.WithScheduler(a.scheduler),
		store.WithCoalesceWindow(a.cfg.Timing.Coalesce.Duration()),
		store.WithLoadDebounce(a.cfg.Timing.LoadDebounce.Duration()),
		store.WithLogger(a.logger),
		store.WithDefaults(sc.Defaults),
		store.WithValues(sc.Values),
	}
	if sc.Key != "" {
		opts = append(opts, store.WithKey(sc.Key))
	}
	if sc.Strict {
		opts = append(opts, store.WithStrictChannel())
	}
	if a.observer != nil {
		opts = append(opts, store.WithObserver(a.observer))
	}
	s := store.New(opts...)

	caps, err := a.capabilities(sc)
	if err == nil {
		err = capability.Apply(s, caps...)
	}
	if err != nil {
		a.logger.Error("app: applying capabilities failed", "store", name, "error", err)
		a.mu.Lock()
		a.factoryErrs[name] = err
		a.mu.Unlock()
	}
	return s
}

func (a *App) capabilities(sc config.StoreConfig) ([]capability.Capability, error) {
	var caps []capability.Capability
	for _, name := range sc.Capabilities {
		switch name {
		case config.CapSortable:
			caps = append(caps, capability.Sortable(
				stringDefault(sc.Defaults, capability.KeySortProperty, ""),
				stringDefault(sc.Defaults, capability.KeySortDirection, "asc"),
			))
		case config.CapSearchable:
			caps = append(caps, capability.Searchable(capability.Buffer(a.cfg.Timing.SearchBuffer.Duration())))
		case config.CapFilterable:
			caps = append(caps, capability.Filterable())
		case config.CapStateful:
			c, err := capability.Stateful(sc.StateKey, sc.StateProperties, capability.Storage(a.storage))
			if err != nil {
				return nil, err
			}
			caps = append(caps, c)
		default:
			return nil, fmt.Errorf("unknown capability %q", name)
		}
	}
	return caps, nil
}

func stringDefault(defaults map[string]any, key, fallback string) string {
	if s, ok := defaults[key].(string); ok {
		return s
	}
	return fallback
}

func (a *App) newStorage() (persist.Storage, error) {
	switch a.cfg.State.Backend {
	case config.BackendS3:
		client := a.s3Client
		if client == nil {
			client = newS3Client(a.cfg.State)
		}
		return persist.NewS3(client, a.cfg.State.Bucket, a.cfg.State.Prefix), nil
	case config.BackendMemory, "":
		return persist.NewMemory(), nil
	default:
		return nil, fluxerrors.New("E124").WithDetail(fmt.Sprintf("state.backend %q", a.cfg.State.Backend))
	}
}

// newS3Client builds an S3 client from the state settings. Credentials come
// from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN.
func newS3Client(st config.StateConfig) *s3.Client {
	region := st.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	return s3.New(s3.Options{
		Region:       region,
		UsePathStyle: st.PathStyle,
		BaseEndpoint: optionalString(st.Endpoint),
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
			if id == "" || secret == "" {
				return aws.Credentials{}, errors.New("app: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
			}
			return aws.Credentials{
				AccessKeyID:     id,
				SecretAccessKey: secret,
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		})),
	})
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// checkOrigin accepts same-origin requests, requests without an Origin
// header and the listed origins.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the app logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Storage returns the state storage.
func (a *App) Storage() persist.Storage { return a.storage }

// Metrics returns the metrics registry served on /metrics.
func (a *App) Metrics() *prometheus.Registry { return a.metricsRegistry }

// Inspector returns the inspector exposing the seed stores.
func (a *App) Inspector() *inspect.Inspector { return a.inspector }

// Store returns the seed store with the given name.
func (a *App) Store(name string) (*store.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.seeds[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownStore, name)
	}
	return s, nil
}

// Acquire returns a pooled store for name, creating it from the declaration
// of the same name (or an empty declaration) on first use, and exposes it in
// the inspector. Release every acquired name with Release.
//
// An empty name yields a fresh store that is neither pooled nor inspected.
// The caller owns it and disposes it.
func (a *App) Acquire(name string) *store.Store {
	s := a.pool.Get(name)
	if name != "" {
		a.inspector.Add(s)
	}
	return s
}

// Release drops a reference taken by Acquire. The store is evicted and
// disposed after the grace period once nothing references it.
func (a *App) Release(name string) {
	if name == "" {
		return
	}
	if a.pool.RefCount(name) == 1 {
		a.pool.Each(func(key string, s *store.Store) {
			if key == name {
				a.inspector.Remove(s)
			}
		})
	}
	a.pool.Free(name)
}

// Handler returns the inspector routes.
func (a *App) Handler() http.Handler {
	return a.inspector.Handler()
}

// Serve runs the inspector server on the configured address until ctx is
// done, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Inspector.Addr)
	if err != nil {
		return fluxerrors.New("E141").Wrap(err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (a *App) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("inspector listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.Info("inspector shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Close releases the seed stores. They are disposed once the grace period
// elapses.
func (a *App) Close() {
	a.mu.Lock()
	seeds := a.seeds
	a.seeds = make(map[string]*store.Store)
	a.mu.Unlock()

	for name := range seeds {
		a.Release(name)
	}
}
