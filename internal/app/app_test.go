package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vango-dev/fluxstore/internal/config"
	"github.com/vango-dev/fluxstore/pkg/capability"
	"github.com/vango-dev/fluxstore/pkg/persist"
	"github.com/vango-dev/fluxstore/pkg/sched"
	"github.com/vango-dev/fluxstore/pkg/store"
)

const testConfig = `
timing:
  coalesce: 10ms
  grace_period: 50ms
stores:
  - name: todos
    key: list-1
    defaults:
      sortProperty: title
    values:
      count: 2
    capabilities: [sortable, searchable, stateful]
    state_key: todos
    state_properties: [sortProperty, sortDirection]
  - name: settings
    capabilities: [filterable]
`

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, data string, opts ...Option) (*App, *sched.Manual) {
	t.Helper()
	cfg, err := config.Parse([]byte(data))
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}
	clock := sched.NewManual()
	opts = append([]Option{WithLogger(quiet()), WithScheduler(clock)}, opts...)
	a, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(a.Close)
	return a, clock
}

func TestSeedStores(t *testing.T) {
	a, _ := newTestApp(t, testConfig)

	todos, err := a.Store("todos")
	if err != nil {
		t.Fatalf("Store(todos) error = %v", err)
	}
	if todos.Key() != "list-1" {
		t.Errorf("Key() = %v, want list-1", todos.Key())
	}
	if todos.Get("count") != 2 {
		t.Errorf("count = %v, want 2", todos.Get("count"))
	}
	for _, id := range []string{"Sortable", "Searchable", "Stateful"} {
		if !capability.Applied(todos, id) {
			t.Errorf("capability %s not applied", id)
		}
	}
	if got := capability.SortProperty(todos); got != "title" {
		t.Errorf("SortProperty = %q, want title", got)
	}
	if got := capability.SortDirection(todos); got != "asc" {
		t.Errorf("SortDirection = %q, want asc", got)
	}

	settings, err := a.Store("settings")
	if err != nil {
		t.Fatalf("Store(settings) error = %v", err)
	}
	if !capability.Applied(settings, "Filterable") {
		t.Error("Filterable not applied")
	}

	if _, err := a.Store("missing"); !errors.Is(err, ErrUnknownStore) {
		t.Errorf("Store(missing) error = %v, want ErrUnknownStore", err)
	}
	if got := len(a.Inspector().Stores()); got != 2 {
		t.Errorf("inspector exposes %d stores, want 2", got)
	}
}

func TestStatefulStoreSavesToConfiguredStorage(t *testing.T) {
	storage := persist.NewMemory()
	a, clock := newTestApp(t, testConfig, WithStorage(storage))

	todos, _ := a.Store("todos")
	if err := capability.SetSortDirection(todos, "desc"); err != nil {
		t.Fatal(err)
	}
	clock.Flush()

	state, err := storage.Read(context.Background(), "todos")
	if err != nil {
		t.Fatal(err)
	}
	if state["sortDirection"] != "desc" || state["sortProperty"] != "title" {
		t.Errorf("saved state = %v", state)
	}
}

type fakeS3 struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (f *fakeS3) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, &types.NoSuchKey{}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Backend(t *testing.T) {
	client := &fakeS3{}
	a, clock := newTestApp(t, testConfig+`
state:
  backend: s3
  bucket: states
  prefix: flux/
`, WithS3Client(client))

	if _, ok := a.Storage().(*persist.S3); !ok {
		t.Fatalf("Storage() = %T, want *persist.S3", a.Storage())
	}

	todos, _ := a.Store("todos")
	if err := capability.SetSortProperty(todos, "due"); err != nil {
		t.Fatal(err)
	}
	clock.Flush()

	client.mu.Lock()
	data, ok := client.puts["flux/todos.json"]
	client.mu.Unlock()
	if !ok {
		t.Fatalf("no object written, puts = %v", client.puts)
	}
	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatal(err)
	}
	if state["sortProperty"] != "due" {
		t.Errorf("saved state = %v", state)
	}
}

func TestMetricsObserveStores(t *testing.T) {
	a, _ := newTestApp(t, testConfig)

	todos, _ := a.Store("todos")
	todos.SetImmediate("count", 3)

	families, err := a.Metrics().Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{"fluxstore_store_writes_total", "fluxstore_store_emits_total", "fluxstore_pool_size"} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	a, _ := newTestApp(t, "metrics:\n  disabled: true\nstores:\n  - name: a\n")

	s, _ := a.Store("a")
	s.SetImmediate("x", 1)

	families, err := a.Metrics().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "fluxstore_") {
			t.Errorf("unexpected metric %s", f.GetName())
		}
	}
}

func TestAcquireAndRelease(t *testing.T) {
	a, clock := newTestApp(t, testConfig)

	s := a.Acquire("scratch")
	if again := a.Acquire("scratch"); again != s {
		t.Fatal("Acquire returned a different store for the same name")
	}
	if _, ok := a.Inspector().Lookup(s.ID()); !ok {
		t.Fatal("acquired store not exposed")
	}

	a.Release("scratch")
	a.Release("scratch")
	if _, ok := a.Inspector().Lookup(s.ID()); ok {
		t.Error("released store still exposed")
	}

	clock.Advance(50 * time.Millisecond)
	if !s.IsDisposed() {
		t.Error("released store not disposed after the grace period")
	}
	if fresh := a.Acquire("scratch"); fresh == s {
		t.Error("Acquire after eviction returned the disposed store")
	}
	a.Release("scratch")
}

func TestAcquireUnnamedIsNotTracked(t *testing.T) {
	a, clock := newTestApp(t, testConfig)
	before := len(a.Inspector().Stores())

	var acquired []*store.Store
	for range 3 {
		s := a.Acquire("")
		acquired = append(acquired, s)
		a.Release("")
	}
	clock.Flush()

	if after := len(a.Inspector().Stores()); after != before {
		t.Errorf("inspector stores = %d, want %d", after, before)
	}
	if acquired[0] == acquired[1] {
		t.Error("unnamed Acquire returned a pooled store")
	}
	for _, s := range acquired {
		if s.IsDisposed() {
			t.Error("Release disposed a caller-owned store")
		}
		s.Dispose()
	}
}

func TestCloseReleasesSeeds(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}
	clock := sched.NewManual()
	a, err := New(cfg, WithLogger(quiet()), WithScheduler(clock))
	if err != nil {
		t.Fatal(err)
	}
	todos, _ := a.Store("todos")

	a.Close()
	clock.Advance(50 * time.Millisecond)

	if !todos.IsDisposed() {
		t.Error("seed store not disposed after Close")
	}
	if _, err := a.Store("todos"); !errors.Is(err, ErrUnknownStore) {
		t.Errorf("Store after Close error = %v", err)
	}
}

func TestServeListener(t *testing.T) {
	a, _ := newTestApp(t, testConfig)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/stores")
	if err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(body.String(), `"name":"todos"`) {
		t.Errorf("GET /stores = %s", body.String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeListener() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeListener did not return after cancel")
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin", nil, "", true},
		{"same origin", nil, "http://example.com", true},
		{"foreign origin", nil, "http://evil.test", false},
		{"listed origin", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"wildcard", []string{"*"}, "http://evil.test", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example.com/stores/x/watch", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := checkOrigin(tt.allowed)(r); got != tt.want {
				t.Errorf("checkOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInspectorToken(t *testing.T) {
	t.Setenv("FLUXSTORE_TEST_TOKEN", "abc")
	a, _ := newTestApp(t, testConfig+"inspector:\n  token: ${FLUXSTORE_TEST_TOKEN}\n")

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stores")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/stores?token=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status with token = %d, want 200", resp.StatusCode)
	}
}
