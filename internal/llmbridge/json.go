package llmbridge

import (
	"encoding/json"
	"regexp"
	"strings"
)

var codeFence = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\{.*\})\s*` + "```")

// extractJSONObject pulls the first top-level JSON object out of a model's
// response, tolerating a markdown code fence or leading/trailing prose
// around the strict JSON spec.md §4.6 asks for.
func extractJSONObject(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}

func parseStrictJSON(text string, out any) error {
	return json.Unmarshal([]byte(extractJSONObject(text)), out)
}
