package main

import (
	"github.com/spf13/cobra"

	"github.com/vango-dev/fluxstore/internal/config"
)

func configCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration with every default applied as YAML.

Redirect the output to start a configuration file:
  fluxstore config > fluxstore.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
