package llmbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// anthropicProvider speaks Anthropic's native messages API directly over
// net/http, matching spec.md §6.4's "messages/system+user" wire shape for
// Anthropic-compatible providers.
type anthropicProvider struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newAnthropicProvider(cfg Config, timeout time.Duration) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, newError(CategoryInvalidConfig, "llmbridge", "newAnthropicProvider", errors.New("anthropic API key required"))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	return &anthropicProvider{
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
	System      string              `json:"system,omitempty"`
	Messages    []anthropicMessage  `json:"messages"`
}

type anthropicContentBlock struct {
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Call sends a single messages request. Retries and rate limiting are
// handled by Bridge; this is one attempt.
func (a *anthropicProvider) Call(ctx context.Context, prompt string, opts CallOptions) (CallResult, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		System:      opts.SystemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return CallResult{}, newError(CategoryInvalidConfig, "llmbridge", "anthropic.Call", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return CallResult{}, newError(CategoryInvalidConfig, "llmbridge", "anthropic.Call", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return CallResult{}, newError(CategoryTimeout, "llmbridge", "anthropic.Call", ctx.Err())
		}
		return CallResult{}, &retryableError{err: newError(CategoryNetwork, "llmbridge", "anthropic.Call", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CallResult{}, newError(CategoryNetwork, "llmbridge", "anthropic.Call", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return CallResult{}, newProviderError("llmbridge", "anthropic.Call", resp.StatusCode, msg)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CallResult{}, newError(CategoryParse, "llmbridge", "anthropic.Call", err)
	}
	if len(parsed.Content) == 0 {
		return CallResult{}, newError(CategoryParse, "llmbridge", "anthropic.Call", fmt.Errorf("empty response from provider"))
	}

	finish := FinishStop
	if parsed.StopReason == "max_tokens" {
		finish = FinishLength
	}

	return CallResult{
		Text:         parsed.Content[0].Text,
		FinishReason: finish,
		Usage: &Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		Model: parsed.Model,
	}, nil
}
