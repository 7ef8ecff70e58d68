package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report database and pipeline statistics",
	Long: `Report aggregate database- and embedding-pipeline-level statistics
from a running localretrieve server.

Examples:
  localretrieve stats
  localretrieve stats --server http://localhost:9090`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	client := newRPCClient(serverURL)

	var result map[string]any
	if err := client.call("getStats", map[string]any{}, &result); err != nil {
		return err
	}

	out, err := marshalForDisplay(result)
	if err != nil {
		return fmt.Errorf("failed to format stats: %w", err)
	}
	fmt.Println(out)
	return nil
}
