// Volt-server runs the volt HTTP and WebSocket front-ends.
//
// The HTTP front-end serves the demo JSON API (status, items, uploads and
// multipart snapshots); the WebSocket front-end accepts clients that
// receive messages posted to POST /broadcast.
//
// Usage:
//
//	volt-server serve [flags]
//	volt-server config init
//
// See 'volt-server serve --help' for available options.
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
	Use:   "volt-server",
	Short: "Volt HTTP and WebSocket server",
	Long: `An embeddable raw-socket HTTP and WebSocket server.

The HTTP front-end answers one request per connection and always closes
the connection after the response. The WebSocket front-end upgrades
clients and pushes broadcast messages to every connected client.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("volt-server %s (commit: %s)\n", version.Version, version.Commit)
	},
}
