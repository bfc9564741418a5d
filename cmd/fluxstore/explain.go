package main

import (
	"fmt"

	"github.com/spf13/cobra"

	fluxerrors "github.com/vango-dev/fluxstore/internal/errors"
)

func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain [code]",
		Short: "Explain an error code",
		Long: `Explain an error code, or list every code when none is given.

Examples:
  fluxstore explain
  fluxstore explain E101`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, code := range fluxerrors.GetAllCodes() {
					t, _ := fluxerrors.GetTemplate(code)
					fmt.Fprintf(out, "%s  %-8s %s\n", code, t.Category, t.Message)
				}
				return nil
			}

			if _, ok := fluxerrors.GetTemplate(args[0]); !ok {
				return fluxerrors.Newf(fluxerrors.CategoryCLI, "unknown error code %q", args[0]).
					WithSuggestion("Run 'fluxstore explain' to list the codes")
			}
			e := fluxerrors.New(args[0])
			if t, _ := fluxerrors.GetTemplate(args[0]); t.Hint != "" {
				e.WithSuggestion(t.Hint)
			}
			fmt.Fprint(out, e.Format())
			return nil
		},
	}
}
