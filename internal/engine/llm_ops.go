package engine

import (
	"context"
	"errors"

	"github.com/localretrieve/localretrieve/internal/apperrors"
	"github.com/localretrieve/localretrieve/internal/llmbridge"
	"github.com/localretrieve/localretrieve/internal/schema"
	"github.com/localretrieve/localretrieve/internal/search"
)

// errLLMNotConfigured is returned by every LLM operation when Open ran
// without an llm.api_key set, rather than each call site re-deriving the
// InvalidConfig error.
func (w *Worker) errLLMNotConfigured() error {
	return apperrors.New(apperrors.KindLLM, apperrors.SeverityMedium, "engine", "llm", errors.New("no llm.api_key configured")).
		WithAction("set llm.provider and llm.api_key (or LLM_API_KEY) before calling an LLM operation")
}

// CallLLM sends prompt directly to the configured provider.
func (w *Worker) CallLLM(ctx context.Context, prompt string, opts llmbridge.CallOptions) (*llmbridge.CallResult, error) {
	if err := validateText("prompt", prompt); err != nil {
		return nil, err
	}
	if w.llm == nil {
		return nil, w.errLLMNotConfigured()
	}
	return submit(w, ctx, func(ctx context.Context) (*llmbridge.CallResult, error) {
		return w.llm.Call(ctx, prompt, opts)
	})
}

// EnhanceQuery asks the model to rewrite query into a better search query.
func (w *Worker) EnhanceQuery(ctx context.Context, query string, opts llmbridge.CallOptions) (*llmbridge.EnhancedQuery, error) {
	if err := validateText("query", query); err != nil {
		return nil, err
	}
	if w.llm == nil {
		return nil, w.errLLMNotConfigured()
	}
	return submit(w, ctx, func(ctx context.Context) (*llmbridge.EnhancedQuery, error) {
		return w.llm.EnhanceQuery(ctx, query, opts)
	})
}

// SummarizeResults asks the model to summarize a result set.
func (w *Worker) SummarizeResults(ctx context.Context, results []search.Result, opts llmbridge.CallOptions) (*llmbridge.Summary, error) {
	if w.llm == nil {
		return nil, w.errLLMNotConfigured()
	}
	return submit(w, ctx, func(ctx context.Context) (*llmbridge.Summary, error) {
		return w.llm.SummarizeResults(ctx, results, opts)
	})
}

// SearchWithLLM runs a search, optionally enhancing the query first and
// summarizing the results after.
func (w *Worker) SearchWithLLM(ctx context.Context, req search.Request, opts llmbridge.SearchWithLLMOptions) (*llmbridge.SearchWithLLMResult, error) {
	if err := validateText("query.text", req.Query.Text); err != nil {
		return nil, err
	}
	if w.llm == nil {
		return nil, w.errLLMNotConfigured()
	}
	return submit(w, ctx, func(ctx context.Context) (*llmbridge.SearchWithLLMResult, error) {
		collection := req.Collection
		if collection == "" {
			collection = schema.DefaultCollection
		}
		w.embedder.collection = collection
		return w.llm.SearchWithLLM(ctx, req, opts)
	})
}
