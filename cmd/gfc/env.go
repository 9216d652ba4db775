package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gfc/internal/config"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List the recognized environment variables",
	Long:  `Print every GFC_* environment variable the dispatcher reads at startup, with defaults.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VARIABLE\tDEFAULT\tDESCRIPTION")
		for _, opt := range config.Options() {
			def := opt.Default
			if def == "" {
				def = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", opt.Env, def, opt.Description)
		}
		return w.Flush()
	},
}
