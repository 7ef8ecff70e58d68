// Package llmbridge provides a provider-agnostic client for remote
// chat-completion-style endpoints: query enhancement, result summarization
// and generic prompt calls, with uniform retry/backoff, rate limiting and
// error categorization applied regardless of which provider backs a call.
package llmbridge

import "context"

// FinishReason mirrors the provider-agnostic finish states of spec.md §4.6.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
)

// Usage reports token accounting when the provider exposes it.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// CallOptions tunes a single completion request.
type CallOptions struct {
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
}

// CallResult is the provider-agnostic response to call(prompt, opts).
type CallResult struct {
	Text         string       `json:"text"`
	FinishReason FinishReason `json:"finishReason"`
	Usage        *Usage       `json:"usage,omitempty"`
	Model        string       `json:"model"`
	Provider     string       `json:"provider"`
}

// Provider performs one round trip to a chat-completion-style endpoint.
// Retries, rate limiting and timeout enforcement are the Bridge's
// responsibility, not the provider's — every implementation here is a
// single, un-retried attempt.
type Provider interface {
	Call(ctx context.Context, prompt string, opts CallOptions) (CallResult, error)
}
