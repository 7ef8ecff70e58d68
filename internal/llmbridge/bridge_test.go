package llmbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localretrieve/localretrieve/internal/search"
)

func anthropicResponseBody(text string) []byte {
	body, _ := json.Marshal(anthropicResponse{
		Content:    []anthropicContentBlock{{Text: text}},
		Model:      "claude-3-5-sonnet-20241022",
		StopReason: "end_turn",
		Usage:      anthropicUsage{InputTokens: 10, OutputTokens: 5},
	})
	return body
}

func newTestBridge(t *testing.T, handler http.HandlerFunc, searcher Searcher) *Bridge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b, err := New(Config{
		Provider:   "anthropic",
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	}, searcher)
	require.NoError(t, err)
	return b
}

func TestCallSucceedsOnFirstAttempt(t *testing.T) {
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusOK)
		w.Write(anthropicResponseBody("hello there"))
	}, nil)

	result, err := b.Call(context.Background(), "prompt", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Text)
	assert.Equal(t, FinishStop, result.FinishReason)
	assert.Equal(t, "anthropic", result.Provider)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 15, result.Usage.TotalTokens)
}

func TestCallRetriesOnServerErrorThenSucceeds(t *testing.T) {
	var attempts int32
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(anthropicResponseBody("recovered"))
	}, nil)

	start := time.Now()
	result, err := b.Call(context.Background(), "prompt", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Text)
	assert.Equal(t, int32(2), attempts)
	assert.GreaterOrEqual(t, time.Since(start), defaultBaseBackoff)
}

func TestCallDoesNotRetryOn4xx(t *testing.T) {
	var attempts int32
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}, nil)

	_, err := b.Call(context.Background(), "prompt", CallOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts)
}

func TestEnhanceQueryParsesStrictJSON(t *testing.T) {
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(anthropicResponseBody("```json\n{\"enhancedQuery\":\"golang error handling best practices\",\"suggestions\":[\"wrap errors\",\"sentinel errors\"],\"intent\":\"howto\",\"confidence\":0.8}\n```"))
	}, nil)

	eq, err := b.EnhanceQuery(context.Background(), "go errors", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "golang error handling best practices", eq.EnhancedQuery)
	assert.Len(t, eq.Suggestions, 2)
	assert.Equal(t, 0.8, eq.Confidence)
}

func TestEnhanceQueryReturnsParseErrorOnGarbage(t *testing.T) {
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(anthropicResponseBody("I cannot comply with that request."))
	}, nil)

	_, err := b.EnhanceQuery(context.Background(), "go errors", CallOptions{})
	require.Error(t, err)
}

func TestSummarizeResultsParsesStrictJSON(t *testing.T) {
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(anthropicResponseBody(`{"summary":"overview","keyPoints":["a","b"],"themes":["x"],"confidence":0.5}`))
	}, nil)

	summary, err := b.SummarizeResults(context.Background(), []search.Result{{ID: "1", Title: "t", Content: "c"}}, CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "overview", summary.Summary)
	assert.Equal(t, []string{"a", "b"}, summary.KeyPoints)
}

type stubSearcher struct {
	resp *search.Response
}

func (s *stubSearcher) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	return s.resp, nil
}

func TestSearchWithLLMMergesTimings(t *testing.T) {
	searcher := &stubSearcher{resp: &search.Response{
		Results:  []search.Result{{ID: "1", Title: "t", Content: "c"}},
		Strategy: "keyword",
	}}

	var call int32
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&call, 1)
		w.WriteHeader(http.StatusOK)
		if n == 1 {
			w.Write(anthropicResponseBody(`{"enhancedQuery":"better query","suggestions":[],"confidence":0.9}`))
			return
		}
		w.Write(anthropicResponseBody(`{"summary":"s","keyPoints":[],"themes":[],"confidence":0.9}`))
	}, searcher)

	out, err := b.SearchWithLLM(context.Background(), search.Request{Query: search.Query{Text: "orig"}}, SearchWithLLMOptions{
		EnhanceQuery:     true,
		SummarizeResults: true,
	})
	require.NoError(t, err)
	require.NotNil(t, out.EnhancedQuery)
	assert.Equal(t, "better query", out.EnhancedQuery.EnhancedQuery)
	require.NotNil(t, out.Summary)
	assert.Equal(t, "s", out.Summary.Summary)
	assert.Len(t, out.Results, 1)
	assert.LessOrEqual(t, out.SearchTimeMS+out.LLMTimeMS, out.TotalTimeMS+1)
}

func TestSearchWithLLMRequiresSearcher(t *testing.T) {
	b := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	_, err := b.SearchWithLLM(context.Background(), search.Request{}, SearchWithLLMOptions{})
	require.Error(t, err)
}
