package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/embeddings"
	"github.com/localretrieve/localretrieve/internal/llmbridge"
	"github.com/localretrieve/localretrieve/internal/logging"
	"github.com/localretrieve/localretrieve/internal/schema"
	"github.com/localretrieve/localretrieve/internal/search"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Dimensions = 3
	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	require.NoError(t, err)

	w := New(cfg, logger)
	require.NoError(t, w.Open(context.Background(), ":memory:"))
	t.Cleanup(func() { _ = w.Close(context.Background()) })
	return w
}

func TestOpenMovesStateToReady(t *testing.T) {
	w := newTestWorker(t)
	assert.Equal(t, StateReady, w.State())
}

func TestOperationsRejectedBeforeOpen(t *testing.T) {
	cfg := config.Default()
	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	require.NoError(t, err)

	w := New(cfg, logger)
	_, err = w.Ping(context.Background())
	require.Error(t, err)
}

func TestCloseMovesStateToClosedAndRejectsFurtherOps(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Dimensions = 3
	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	require.NoError(t, err)

	w := New(cfg, logger)
	require.NoError(t, w.Open(context.Background(), ":memory:"))
	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, StateClosed, w.State())

	_, err = w.Ping(context.Background())
	require.Error(t, err)
}

func TestExecAndSelectRoundTrip(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	_, err := w.Exec(ctx, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	res, err := w.Exec(ctx, "INSERT INTO widgets (name) VALUES (?)", "sprocket")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	rows, err := w.Select(ctx, "SELECT id, name FROM widgets WHERE name = ?", "sprocket")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "sprocket", rows[0]["name"])
}

func TestCreateCollectionAndBatchInsertAndSearch(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.CreateCollection(ctx, "notes", 3, "local"))

	docs := []embeddings.Document{
		{ID: "1", Title: "Go channels", Content: "concurrency primitives in go", Vector: []float32{1, 0, 0}},
		{ID: "2", Title: "Python lists", Content: "sequence types in python", Vector: []float32{0, 1, 0}},
	}
	result, err := w.BatchInsertDocuments(ctx, "notes", docs)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)

	resp, err := w.SearchText(ctx, "notes", "concurrency", 10)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "1", resp.Results[0].ID)

	semResp, err := w.SearchSemantic(ctx, "notes", "", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, semResp.Results)
	assert.Equal(t, "1", semResp.Results[0].ID)
}

func TestSearchGlobalCoversEveryCollection(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.CreateCollection(ctx, "alpha", 3, "local"))
	require.NoError(t, w.CreateCollection(ctx, "beta", 3, "local"))

	_, err := w.BatchInsertDocuments(ctx, "alpha", []embeddings.Document{
		{ID: "a1", Title: "t", Content: "shared term alpha", Vector: []float32{1, 0, 0}},
	})
	require.NoError(t, err)
	_, err = w.BatchInsertDocuments(ctx, "beta", []embeddings.Document{
		{ID: "b1", Title: "t", Content: "shared term beta", Vector: []float32{0, 1, 0}},
	})
	require.NoError(t, err)

	results, err := w.SearchGlobal(ctx, search.Request{Query: search.Query{Text: "shared"}}, 10)
	require.NoError(t, err)

	byCollection := map[string]int{}
	for _, r := range results {
		byCollection[r.Collection] = len(r.Response.Results)
	}
	assert.Equal(t, 1, byCollection["alpha"])
	assert.Equal(t, 1, byCollection["beta"])
	assert.Equal(t, 0, byCollection[schema.DefaultCollection])
}

func TestEnqueueAndQueueStatusAndClear(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.EnqueueEmbedding(ctx, schema.DefaultCollection, "doc-1", "hello world", 5))

	status, err := w.GetQueueStatus(ctx, schema.DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Pending)

	require.NoError(t, w.ClearEmbeddingQueue(ctx, embeddings.ClearFilter{Collection: schema.DefaultCollection}))

	status, err = w.GetQueueStatus(ctx, schema.DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Pending)
}

func TestLLMOperationsRequireConfiguredBridge(t *testing.T) {
	w := newTestWorker(t)
	_, err := w.CallLLM(context.Background(), "hello", llmbridge.CallOptions{})
	require.Error(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	_, err := w.Exec(ctx, "CREATE TABLE t (v TEXT)")
	require.NoError(t, err)
	_, err = w.Exec(ctx, "INSERT INTO t VALUES ('x')")
	require.NoError(t, err)

	data, err := w.Export(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	require.NoError(t, w.Import(ctx, data))
	rows, err := w.Select(ctx, "SELECT v FROM t")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestPingAndGetVersion(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	ping, err := w.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", ping.Status)

	version, err := w.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.CurrentVersion, version.SchemaVersion)
}

func TestGetStatsReportsCollectionsAndQueue(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.EnqueueEmbedding(ctx, schema.DefaultCollection, "doc-1", "hello", 1))

	stats, err := w.GetStats(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, stats.Collections)
	assert.Equal(t, 1, stats.QueuePending)
}
