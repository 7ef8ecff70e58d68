// Package main implements the localretrieve CLI: a single binary that can
// run the embedded database as a standalone HTTP/JSON-RPC server (serve) or
// act as a thin client against a running one (search, ping, stats).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// serverURL is the base URL used by every client subcommand.
var serverURL string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "localretrieve",
	Short:   "Embedded hybrid-search database, server, and client",
	Version: version,
	Long: `localretrieve is a single binary around an embedded SQLite + sqlite-vec
database with full-text and semantic search.

Run "localretrieve serve" to start the HTTP/JSON-RPC server, then use
the other subcommands (search, ping, stats) as a client against it.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8085", "localretrieve server URL")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("localretrieve\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
		return nil
	},
}
