package connect

import (
	"log/slog"

	"github.com/vango-dev/fluxstore/pkg/keymap"
	"github.com/vango-dev/fluxstore/pkg/resolve"
)

// DefaultStoreProp is the prop an Instance exposes its store under.
const DefaultStoreProp = "store"

// Option configures a subscription.
type Option func(*options)

type options struct {
	selection keymap.KeyMap
	refresh   func(resolve.Props)
	cleanup   func()
	extra     resolve.Props
	props     resolve.Props
	storeProp string
	logger    *slog.Logger
}

func buildOptions(opts []Option) options {
	o := options{
		storeProp: DefaultStoreProp,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSelection sets the key selection in any form keymap.Normalize accepts.
// Without a selection no props are resolved and every typed change refreshes.
func WithSelection(selection any) Option {
	normalized := keymap.Normalize(selection)
	return func(o *options) {
		o.selection = normalized
	}
}

// WithRefresh sets the callback that receives the merged props whenever a
// relevant change arrives.
func WithRefresh(fn func(resolve.Props)) Option {
	return func(o *options) {
		o.refresh = fn
	}
}

// WithCleanup sets a hook that runs once when the subscription is disposed.
func WithCleanup(fn func()) Option {
	return func(o *options) {
		o.cleanup = fn
	}
}

// WithExtraProps sets connector props layered above resolved values.
func WithExtraProps(p resolve.Props) Option {
	return func(o *options) {
		o.extra = p
	}
}

// WithProps sets the initial passthrough props.
func WithProps(p resolve.Props) Option {
	return func(o *options) {
		o.props = p
	}
}

// WithStoreProp renames the prop an Instance exposes its store under.
// An empty name disables it.
func WithStoreProp(name string) Option {
	return func(o *options) {
		o.storeProp = name
	}
}

// WithLogger sets the structured logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
