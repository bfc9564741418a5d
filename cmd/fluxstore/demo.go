package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/fluxstore/internal/app"
	"github.com/vango-dev/fluxstore/internal/config"
	"github.com/vango-dev/fluxstore/pkg/connect"
	"github.com/vango-dev/fluxstore/pkg/lineage"
	"github.com/vango-dev/fluxstore/pkg/resolve"
	"github.com/vango-dev/fluxstore/pkg/scope"
)

func demoCmd(load func() (*config.Config, error)) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk through the subscription model",
		Long: `Run a short scripted session against live stores:

  1. a view bound to one store refreshes once for coalesced writes
  2. a view over a store lineage sees the nearest store's value
  3. a disposed view is no longer refreshed
  4. an accessor subscribes to exactly the keys it read`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runDemo(ctx, cmd.OutOrStdout(), a)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Abort the demo after this long")

	return cmd
}

// refreshes collects the props views are refreshed with.
type refreshes chan resolve.Props

func (r refreshes) refresh(p resolve.Props) {
	r <- p
}

func (r refreshes) next(ctx context.Context) (resolve.Props, error) {
	select {
	case p := <-r:
		return p, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("demo: waiting for a refresh: %w", ctx.Err())
	}
}

// none reports whether no refresh arrives within d.
func (r refreshes) none(d time.Duration) bool {
	select {
	case <-r:
		return false
	case <-time.After(d):
		return true
	}
}

func runDemo(ctx context.Context, out io.Writer, a *app.App) error {
	window := a.Config().Timing.Coalesce.Duration()

	todos := a.Acquire("demo.todos")
	defer a.Release("demo.todos")
	prefs := a.Acquire("demo.prefs")
	defer a.Release("demo.prefs")

	step := func(n int, title string) {
		fmt.Fprintf(out, "\n%d. %s\n", n, title)
	}

	// 1. Single store, coalesced writes.
	step(1, "single store view")
	views := make(refreshes, 16)
	inst := connect.NewInstance(todos,
		connect.WithSelection([]string{"items", "filter"}),
		connect.WithRefresh(views.refresh),
	)
	inst.Mount(nil)
	defer inst.Dispose()

	todos.Set("items", []string{"write docs", "ship"})
	todos.Set("filter", "open")
	todos.Set("unrelated", true)
	p, err := views.next(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "   refreshed once: items=%v filter=%v\n", p["items"], p["filter"])
	if !views.none(2 * window) {
		return fmt.Errorf("demo: coalesced writes refreshed the view twice")
	}

	// 2. Lineage: prefs is outer, todos inner.
	step(2, "lineage view")
	root := scope.New(nil)
	defer root.Dispose()
	inner := lineage.Provide(lineage.Provide(root, prefs), todos)
	fmt.Fprintf(out, "   lineage: %s\n", names(lineage.From(inner)))

	themed := make(refreshes, 16)
	sub := connect.FromLineage(inner, lineage.Defines("theme"), connect.WithRefresh(themed.refresh),
		connect.WithSelection(map[string]any{"theme": "theme"}))
	prefs.SetImmediate("theme", "light")
	if sub.Update() {
		fmt.Fprintln(out, "   prefs now defines theme, view rebound")
	}
	sub.Mount()
	fmt.Fprintf(out, "   theme=%v\n", sub.Props()["theme"])

	todos.SetImmediate("theme", "dark")
	sub.Update()
	if p, err = themed.next(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "   todos defines theme too, nearest wins: theme=%v\n", p["theme"])

	// 3. Disposal.
	step(3, "disposed view")
	sub.Dispose()
	todos.SetImmediate("theme", "solarized")
	if !themed.none(2 * window) {
		return fmt.Errorf("demo: disposed view was refreshed")
	}
	fmt.Fprintf(out, "   no refresh after dispose (state %s)\n", sub.State())

	// 4. Accessor.
	step(4, "accessor")
	acc := connect.NewAccessor(resolve.Stores(prefs, todos))
	fmt.Fprintf(out, "   read theme=%v filter=%v\n", acc.Get("theme"), acc.Get("filter"))
	committed := acc.Commit()
	defer committed.Dispose()
	fmt.Fprintf(out, "   subscribed to %s\n", strings.Join(acc.Monitored(), ", "))

	fmt.Fprintln(out)
	return nil
}

func names(l *lineage.Lineage) string {
	stores := l.Stores()
	out := make([]string, len(stores))
	for i, s := range stores {
		out[i] = s.Name()
	}
	return strings.Join(out, " > ")
}
