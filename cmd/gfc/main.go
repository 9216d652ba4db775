package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // Set during build with -ldflags

var rootCmd = &cobra.Command{
	Use:   "gfc",
	Short: "Webhook-triggered deployment dispatcher",
	Long: `gfc receives push webhooks from a source-control server, authenticates and
filters them, fetches the pushed commit over an authenticated transport, and
invokes an external deployment command against it.`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(versionCmd)
}
