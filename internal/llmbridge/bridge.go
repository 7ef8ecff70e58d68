package llmbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/localretrieve/localretrieve/internal/search"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxRetries  = 2
	defaultBaseBackoff = 1 * time.Second
	defaultRateLimit   = 2.0 // requests/sec
	defaultBurst       = 4
)

// Config selects and configures one provider variant.
type Config struct {
	// Provider is "anthropic" (default), "openai", "openrouter" or "custom".
	Provider string
	APIKey   string
	Model    string
	// BaseURL overrides the provider's default endpoint; required for
	// "custom".
	BaseURL string
	Timeout    time.Duration
	MaxRetries int
	// HTTPReferer and Title are OpenRouter-only attribution headers.
	HTTPReferer string
	Title       string
}

// Searcher is the subset of internal/search.Engine SearchWithLLM needs,
// kept as an interface so the bridge can be tested without a live SQL
// engine.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// Bridge is the unified entry point for call/enhance_query/
// summarize_results/search_with_llm (spec.md §4.6). It owns retry/backoff
// and rate limiting uniformly across whichever Provider is configured;
// individual providers perform a single, un-retried round trip.
type Bridge struct {
	provider     Provider
	providerName string
	model        string
	limiter      *rate.Limiter
	maxRetries   int
	searcher     Searcher
}

// New builds a Bridge from cfg. searcher may be nil; it is only required by
// SearchWithLLM.
func New(cfg Config, searcher Searcher) (*Bridge, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "anthropic"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var p Provider
	var err error
	switch provider {
	case "anthropic":
		p, err = newAnthropicProvider(cfg, timeout)
	case "openai", "openrouter", "custom":
		p, err = newLangchainProvider(cfg, timeout)
	default:
		return nil, newError(CategoryInvalidConfig, "llmbridge", "New", fmt.Errorf("unknown provider %q", provider))
	}
	if err != nil {
		return nil, err
	}

	return &Bridge{
		provider:     p,
		providerName: provider,
		model:        cfg.Model,
		limiter:      rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries:   maxRetries,
		searcher:     searcher,
	}, nil
}

// Call sends prompt to the configured provider, retrying transient failures
// with exponential backoff (2^n * 1s) up to the configured limit.
func (b *Bridge) Call(ctx context.Context, prompt string, opts CallOptions) (*CallResult, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, newError(CategoryTimeout, "llmbridge", "Call", err)
	}

	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(int64(1)<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, newError(CategoryTimeout, "llmbridge", "Call", ctx.Err())
			}
		}

		result, err := b.provider.Call(ctx, prompt, opts)
		if err == nil {
			if result.Provider == "" {
				result.Provider = b.providerName
			}
			if result.Model == "" {
				result.Model = b.model
			}
			return &result, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, newError(CategoryProviderError, "llmbridge", "Call", fmt.Errorf("max retries exceeded: %w", lastErr))
}

// EnhancedQuery is the strict-JSON shape enhance_query asks the model for.
type EnhancedQuery struct {
	EnhancedQuery string   `json:"enhancedQuery"`
	Suggestions   []string `json:"suggestions"`
	Intent        string   `json:"intent,omitempty"`
	Confidence    float64  `json:"confidence"`
}

// EnhanceQuery asks the model to rewrite query into a better search query,
// returning structured suggestions and an optional detected intent.
func (b *Bridge) EnhanceQuery(ctx context.Context, query string, opts CallOptions) (*EnhancedQuery, error) {
	result, err := b.Call(ctx, enhanceQueryPrompt(query), opts)
	if err != nil {
		return nil, err
	}

	var out EnhancedQuery
	if err := parseStrictJSON(result.Text, &out); err != nil {
		return nil, newParseError("llmbridge", "EnhanceQuery", err, result.Text)
	}
	return &out, nil
}

// Summary is the strict-JSON shape summarize_results asks the model for.
type Summary struct {
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"keyPoints"`
	Themes     []string `json:"themes"`
	Confidence float64  `json:"confidence"`
}

// SummarizeResults asks the model to summarize a result set into a short
// narrative plus structured key points and themes.
func (b *Bridge) SummarizeResults(ctx context.Context, results []search.Result, opts CallOptions) (*Summary, error) {
	result, err := b.Call(ctx, summarizeResultsPrompt(results), opts)
	if err != nil {
		return nil, err
	}

	var out Summary
	if err := parseStrictJSON(result.Text, &out); err != nil {
		return nil, newParseError("llmbridge", "SummarizeResults", err, result.Text)
	}
	return &out, nil
}

// SearchWithLLMOptions toggles the optional enhancement/summarization
// stages around a plain search.
type SearchWithLLMOptions struct {
	EnhanceQuery     bool        `json:"enhanceQuery"`
	SummarizeResults bool        `json:"summarizeResults"`
	CallOptions      CallOptions `json:"callOptions"`
}

// SearchWithLLMResult merges the optional LLM stages with the search
// response and reports the three timing components spec.md §4.6 requires.
type SearchWithLLMResult struct {
	Query         string           `json:"query"`
	EnhancedQuery *EnhancedQuery   `json:"enhancedQuery,omitempty"`
	Results       []search.Result  `json:"results"`
	Summary       *Summary         `json:"summary,omitempty"`
	SearchTimeMS  int64            `json:"searchTimeMs"`
	LLMTimeMS     int64            `json:"llmTimeMs"`
	TotalTimeMS   int64            `json:"totalTimeMs"`
}

// SearchWithLLM optionally enhances req's query text, runs the search, and
// optionally summarizes the results, in that order.
func (b *Bridge) SearchWithLLM(ctx context.Context, req search.Request, opts SearchWithLLMOptions) (*SearchWithLLMResult, error) {
	if b.searcher == nil {
		return nil, newError(CategoryInvalidConfig, "llmbridge", "SearchWithLLM", errors.New("no search engine configured"))
	}

	start := time.Now()
	var llmElapsed time.Duration
	out := &SearchWithLLMResult{Query: req.Query.Text}

	effectiveReq := req
	if opts.EnhanceQuery {
		t0 := time.Now()
		eq, err := b.EnhanceQuery(ctx, req.Query.Text, opts.CallOptions)
		llmElapsed += time.Since(t0)
		if err != nil {
			return nil, err
		}
		out.EnhancedQuery = eq
		if strings.TrimSpace(eq.EnhancedQuery) != "" {
			effectiveReq.Query.Text = eq.EnhancedQuery
		}
	}

	searchStart := time.Now()
	resp, err := b.searcher.Search(ctx, effectiveReq)
	searchElapsed := time.Since(searchStart)
	if err != nil {
		return nil, err
	}
	out.Results = resp.Results

	if opts.SummarizeResults {
		t0 := time.Now()
		summary, err := b.SummarizeResults(ctx, resp.Results, opts.CallOptions)
		llmElapsed += time.Since(t0)
		if err != nil {
			return nil, err
		}
		out.Summary = summary
	}

	out.SearchTimeMS = searchElapsed.Milliseconds()
	out.LLMTimeMS = llmElapsed.Milliseconds()
	out.TotalTimeMS = time.Since(start).Milliseconds()
	return out, nil
}

func enhanceQueryPrompt(query string) string {
	return fmt.Sprintf(`You are a search query optimizer. Rewrite the user query to improve recall and precision against a hybrid keyword/vector search index. Respond with strict JSON only, no prose, exactly matching this shape:
{"enhancedQuery": string, "suggestions": [string], "intent": string, "confidence": number between 0 and 1}

Query: %s`, query)
}

func summarizeResultsPrompt(results []search.Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, r.Title, truncate(r.Content, 500))
	}
	return fmt.Sprintf(`Summarize the following search results for a user. Respond with strict JSON only, no prose, exactly matching this shape:
{"summary": string, "keyPoints": [string], "themes": [string], "confidence": number between 0 and 1}

Results:
%s`, b.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
