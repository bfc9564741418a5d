package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/fluxstore/internal/config"
	fluxerrors "github.com/vango-dev/fluxstore/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┬  ┬ ┬─┐ ┬┌─┐┌┬┐┌─┐┬─┐┌─┐
  ├┤ │  │ │┌┴┬┘└─┐ │ │ │├┬┘├┤
  └  ┴─┘└─┘┴ └─└─┘ ┴ └─┘┴└─└─┘
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fluxerrors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "fluxstore",
		Short: "Keyed stores with coalesced change propagation",
		Long: `fluxstore runs keyed stores and shows how views follow them.

Stores publish keyed values, views declare the keys they need and are
refreshed exactly when one of them changes. This command serves an
inspector for configured stores and demonstrates the subscription model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default "+config.DefaultFileName+" when present)")

	load := func() (*config.Config, error) {
		return loadConfig(configPath)
	}

	rootCmd.AddCommand(
		serveCmd(load),
		demoCmd(load),
		configCmd(load),
		explainCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig loads path, or the default file when it exists, or the defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(config.DefaultFileName); err == nil {
		return config.Load(config.DefaultFileName)
	}
	return config.Default(), nil
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
