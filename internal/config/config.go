package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/fluxstore/internal/errors"
	"github.com/vango-dev/fluxstore/pkg/capability"
	"github.com/vango-dev/fluxstore/pkg/inspect"
	"github.com/vango-dev/fluxstore/pkg/registry"
	"github.com/vango-dev/fluxstore/pkg/store"
)

const (
	// DefaultFileName is the configuration file looked up when none is given.
	DefaultFileName = "fluxstore.yaml"

	// DefaultAddr is the default inspector listen address.
	DefaultAddr = "127.0.0.1:7070"

	// DefaultNamespace is the default metrics namespace.
	DefaultNamespace = "fluxstore"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendS3     = "s3"
)

// Capability names accepted in StoreConfig.Capabilities.
const (
	CapSortable   = "sortable"
	CapSearchable = "searchable"
	CapFilterable = "filterable"
	CapStateful   = "stateful"
)

// Config is the root configuration structure.
type Config struct {
	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	Inspector InspectorConfig `yaml:"inspector"`
	Timing    TimingConfig    `yaml:"timing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	State     StateConfig     `yaml:"state"`

	// Stores are created at startup and exposed by the inspector.
	Stores []StoreConfig `yaml:"stores"`

	path string
}

// InspectorConfig configures the inspector HTTP server.
type InspectorConfig struct {
	// Addr is the listen address (host:port).
	Addr string `yaml:"addr"`

	// WriteTimeout bounds each websocket write.
	WriteTimeout Duration `yaml:"write_timeout"`

	// FeedBuffer is the number of undelivered events kept per watcher.
	FeedBuffer int `yaml:"feed_buffer"`

	// AllowedOrigins lists the websocket origins accepted besides same-origin
	// requests. "*" accepts every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Token, when set, is required as a bearer token or token query parameter.
	Token string `yaml:"token,omitempty"`
}

// TimingConfig holds the store and registry timings.
type TimingConfig struct {
	// Coalesce is the window that merges Set calls into one change.
	Coalesce Duration `yaml:"coalesce"`

	// LoadDebounce is the window that absorbs repeated load requests.
	LoadDebounce Duration `yaml:"load_debounce"`

	// GracePeriod delays eviction of unreferenced pooled stores.
	GracePeriod Duration `yaml:"grace_period"`

	// SearchBuffer delays loads after search term updates.
	SearchBuffer Duration `yaml:"search_buffer"`
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Disabled  bool   `yaml:"disabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// TracingConfig configures the OpenTelemetry observer.
type TracingConfig struct {
	Enabled     bool `yaml:"enabled"`
	IncludeKeys bool `yaml:"include_keys"`
}

// StateConfig selects where stateful stores save their state.
type StateConfig struct {
	// Backend is memory (default) or s3.
	Backend string `yaml:"backend"`

	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// StoreConfig declares a seed store.
type StoreConfig struct {
	Name   string `yaml:"name"`
	Key    string `yaml:"key"`
	Strict bool   `yaml:"strict"`

	Defaults map[string]any `yaml:"defaults"`
	Values   map[string]any `yaml:"values"`

	// Capabilities are applied in order. See the Cap constants.
	Capabilities []string `yaml:"capabilities"`

	// StateKey and StateProperties configure the stateful capability.
	StateKey        string   `yaml:"state_key"`
	StateProperties []string `yaml:"state_properties"`
}

// Has reports whether the store declares the named capability.
func (s StoreConfig) Has(capability string) bool {
	for _, c := range s.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Duration wraps time.Duration for YAML (un)marshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E140").
				WithDetail("No configuration file at " + path).
				WithSuggestion("Run 'fluxstore config' to print a default configuration")
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg, err := Parse(data)
	if err != nil {
		if fe, ok := err.(*errors.Error); ok && fe.Code == "E120" {
			fe.WithLocationFromYAML(path, fe.Wrapped)
		}
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// Parse parses YAML configuration data, applies defaults, expands
// environment variables and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.New("E120").
			Wrap(err).
			WithSuggestion("Check the YAML syntax and the field names")
	}

	cfg.applyDefaults()
	if err := cfg.expandEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the path the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Inspector.Addr == "" {
		c.Inspector.Addr = DefaultAddr
	}
	if c.Inspector.WriteTimeout == 0 {
		c.Inspector.WriteTimeout = Duration(inspect.DefaultWriteTimeout)
	}
	if c.Inspector.FeedBuffer == 0 {
		c.Inspector.FeedBuffer = inspect.DefaultFeedBuffer
	}

	if c.Timing.Coalesce == 0 {
		c.Timing.Coalesce = Duration(store.DefaultCoalesceWindow)
	}
	if c.Timing.LoadDebounce == 0 {
		c.Timing.LoadDebounce = Duration(store.DefaultLoadDebounce)
	}
	if c.Timing.GracePeriod == 0 {
		c.Timing.GracePeriod = Duration(registry.DefaultGracePeriod)
	}
	if c.Timing.SearchBuffer == 0 {
		c.Timing.SearchBuffer = Duration(capability.DefaultSearchBuffer)
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}

	if c.State.Backend == "" {
		c.State.Backend = BackendMemory
	}
}

func (c *Config) expandEnv() error {
	fields := []*string{
		&c.Inspector.Addr,
		&c.Inspector.Token,
		&c.State.Bucket,
		&c.State.Prefix,
		&c.State.Region,
		&c.State.Endpoint,
	}
	for _, f := range fields {
		v, err := expandEnvVars(*f)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	if _, _, err := net.SplitHostPort(c.Inspector.Addr); err != nil {
		return errors.New("E122").
			Wrap(err).
			WithDetail(fmt.Sprintf("inspector.addr %q is not host:port", c.Inspector.Addr))
	}
	if c.Inspector.WriteTimeout < 0 {
		return invalid("inspector.write_timeout", "must not be negative")
	}
	if c.Inspector.FeedBuffer < 0 {
		return invalid("inspector.feed_buffer", "must not be negative")
	}

	timings := []struct {
		name string
		d    Duration
	}{
		{"timing.coalesce", c.Timing.Coalesce},
		{"timing.load_debounce", c.Timing.LoadDebounce},
		{"timing.grace_period", c.Timing.GracePeriod},
		{"timing.search_buffer", c.Timing.SearchBuffer},
	}
	for _, t := range timings {
		if t.d < 0 {
			return invalid(t.name, "must not be negative")
		}
		if t.d.Duration() > time.Minute {
			return invalid(t.name, "must be at most 1m")
		}
	}

	switch c.State.Backend {
	case BackendMemory:
	case BackendS3:
		if c.State.Bucket == "" {
			return invalid("state.bucket", "is required for the s3 backend")
		}
	default:
		return errors.New("E124").
			WithDetail(fmt.Sprintf("state.backend %q is not memory or s3", c.State.Backend))
	}

	seen := make(map[string]bool, len(c.Stores))
	for i, s := range c.Stores {
		if s.Name == "" {
			return errors.New("E123").WithDetail(fmt.Sprintf("stores[%d] has no name", i))
		}
		if seen[s.Name] {
			return errors.New("E123").WithDetail(fmt.Sprintf("store %q is declared twice", s.Name))
		}
		seen[s.Name] = true

		caps := make(map[string]bool, len(s.Capabilities))
		for _, capName := range s.Capabilities {
			if caps[capName] {
				return errors.New("E123").
					WithDetail(fmt.Sprintf("store %q declares capability %q twice", s.Name, capName))
			}
			caps[capName] = true

			switch capName {
			case CapSortable, CapSearchable, CapFilterable:
			case CapStateful:
				if s.StateKey == "" {
					return invalid(fmt.Sprintf("stores[%d].state_key", i), "is required by the stateful capability")
				}
			default:
				return errors.New("E123").
					WithDetail(fmt.Sprintf("store %q declares unknown capability %q", s.Name, capName)).
					WithSuggestion("Use sortable, searchable, filterable or stateful")
			}
		}
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, invalid("log_level", fmt.Sprintf("%q is not debug, info, warn or error", c.LogLevel))
	}
	return level, nil
}

// Store returns the seed store declaration with the given name.
func (c *Config) Store(name string) (StoreConfig, bool) {
	for _, s := range c.Stores {
		if s.Name == name {
			return s, true
		}
	}
	return StoreConfig{}, false
}

func invalid(field, problem string) *errors.Error {
	return errors.New("E121").WithDetail(field + " " + problem)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part, present when a default was given
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var missing string
	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if missing != "" {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		value, ok := os.LookupEnv(name)
		if !ok {
			if hasDefault {
				return sub[3]
			}
			missing = name
			return match
		}
		return value
	})

	if missing != "" {
		return "", errors.New("E125").
			WithDetail(fmt.Sprintf("environment variable %q is not set", missing)).
			WithSuggestion(fmt.Sprintf("Export %s or use ${%s:-default}", missing, missing))
	}
	return result, nil
}
