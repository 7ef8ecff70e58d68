package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check server health",
	Long: `Check the health status of a running localretrieve server.

Examples:
  # Check health
  localretrieve ping

  # Check health on a different server
  localretrieve ping --server http://localhost:9090`,
	RunE: runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	client := newRPCClient(serverURL)

	health, err := client.health()
	if err != nil {
		return err
	}

	fmt.Printf("Server Status: %v\n", health["status"])
	fmt.Printf("Engine State:  %v\n", health["state"])
	fmt.Printf("Server URL:    %s\n", serverURL)
	return nil
}
