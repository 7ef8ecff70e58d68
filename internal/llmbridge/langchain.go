package llmbridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// headerInjectingTransport adds provider attribution headers langchaingo's
// openai client has no first-class option for — OpenRouter's optional
// HTTP-Referer and X-Title headers (spec.md §6.4).
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// langchainProvider backs the OpenAI-compatible, OpenRouter-compatible and
// custom-endpoint provider variants through langchaingo's chat-completions
// client, since all three speak the same wire schema.
type langchainProvider struct {
	llm   *openai.LLM
	model string
	name  string
}

func newLangchainProvider(cfg Config, timeout time.Duration) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, newError(CategoryInvalidConfig, "llmbridge", "newLangchainProvider", errors.New("API key required"))
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	baseURL := cfg.BaseURL
	if cfg.Provider == "openrouter" && baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	if cfg.Provider == "custom" && baseURL == "" {
		return nil, newError(CategoryInvalidConfig, "llmbridge", "newLangchainProvider", errors.New("custom provider requires base_url"))
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.Provider == "openrouter" {
		httpClient.Transport = &headerInjectingTransport{headers: map[string]string{
			"HTTP-Referer": cfg.HTTPReferer,
			"X-Title":      cfg.Title,
		}}
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
		openai.WithHTTPClient(httpClient),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, newError(CategoryInvalidConfig, "llmbridge", "newLangchainProvider", err)
	}

	name := cfg.Provider
	if name == "" {
		name = "openai"
	}

	return &langchainProvider{llm: llm, model: model, name: name}, nil
}

func (p *langchainProvider) Call(ctx context.Context, prompt string, opts CallOptions) (CallResult, error) {
	genOpts := []llms.CallOption{llms.WithModel(p.model)}
	if opts.Temperature > 0 {
		genOpts = append(genOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		genOpts = append(genOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	var messages []llms.MessageContent
	if opts.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, opts.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	resp, err := p.llm.GenerateContent(ctx, messages, genOpts...)
	if err != nil {
		return CallResult{}, classifyLangchainError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return CallResult{}, newError(CategoryParse, "llmbridge", "langchain.Call", errors.New("empty response from provider"))
	}

	choice := resp.Choices[0]
	finish := FinishStop
	if choice.StopReason == "length" || choice.StopReason == "max_tokens" {
		finish = FinishLength
	}

	return CallResult{
		Text:         choice.Content,
		FinishReason: finish,
		Model:        p.model,
		Provider:     p.name,
	}, nil
}

// classifyLangchainError maps a langchaingo client error onto the
// categorized taxonomy. langchaingo doesn't expose a stable typed status
// code across providers, so anything that isn't a context error is treated
// as a retryable provider error and left to Bridge's retry budget.
func classifyLangchainError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return newError(CategoryTimeout, "llmbridge", "langchain.Call", ctx.Err())
	}
	return &retryableError{err: newError(CategoryProviderError, "llmbridge", "langchain.Call", err)}
}
