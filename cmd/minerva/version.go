package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set by build flags (-ldflags "-X main.Version=...").
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the minerva version, the commit it was built from, and the build environment.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("minerva %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		fmt.Printf("%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
