// Volt-ctl is a client for volt servers.
//
// It finds servers on the local network over mDNS and follows the
// messages a server broadcasts to its WebSocket clients.
//
// Usage:
//
//	volt-ctl discover [--timeout 5]
//	volt-ctl watch <ws-url>
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voltlabs/volt/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "volt-ctl",
	Short:         "Volt client utility",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var logLevel string

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("volt-ctl %s (commit: %s)\n", version.Version, version.Commit)
	},
}
