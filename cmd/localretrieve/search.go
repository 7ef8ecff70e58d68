package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchCollection string
	searchLimit      int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a keyword search against a running server",
	Long: `Run a keyword search against a running localretrieve server.

Examples:
  # Search the default collection
  localretrieve search "go concurrency patterns"

  # Search a specific collection with a limit
  localretrieve search --collection notes --limit 5 "database design"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchCollection, "collection", "default", "collection to search")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")
}

// searchResultRow mirrors the JSON shape of search.Result for display.
type searchResultRow struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchResponseBody struct {
	Results      []searchResultRow `json:"results"`
	TotalMatches int               `json:"totalMatches"`
	SearchTimeMS int64             `json:"searchTimeMs"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	client := newRPCClient(serverURL)

	var resp searchResponseBody
	err := client.call("searchText", map[string]any{
		"collection": searchCollection,
		"text":       args[0],
		"limit":      searchLimit,
	}, &resp)
	if err != nil {
		return err
	}

	if len(resp.Results) == 0 {
		fmt.Println("no results")
		return nil
	}

	for i, r := range resp.Results {
		fmt.Printf("%d. [%.4f] %s — %s\n", i+1, r.Score, r.ID, r.Title)
		if r.Content != "" {
			fmt.Printf("   %s\n", truncate(r.Content, 200))
		}
	}
	fmt.Printf("\n%d match(es), %dms\n", resp.TotalMatches, resp.SearchTimeMS)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// marshalForDisplay pretty-prints a value for commands that dump raw JSON.
func marshalForDisplay(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
