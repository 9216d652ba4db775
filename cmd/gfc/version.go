package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Set during build with -ldflags.
	gitCommit = "unknown"
	buildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gfc version %s\n", version)
		fmt.Printf("  Git commit:  %s\n", gitCommit)
		fmt.Printf("  Build date:  %s\n", buildDate)
		fmt.Printf("  Go version:  %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:     %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}
