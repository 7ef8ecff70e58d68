package embeddings

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/logging"
	"github.com/localretrieve/localretrieve/internal/schema"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

func newTestBatchEngine(t *testing.T) (*sqlengine.Engine, *config.Config) {
	t.Helper()
	cfg := config.Default()
	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	require.NoError(t, err)

	e, err := sqlengine.Open(context.Background(), ":memory:", cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	mgr := schema.New(e, cfg)
	require.NoError(t, mgr.Initialize(context.Background()))

	return e, cfg
}

func TestBatchInsertCommitsAllDocuments(t *testing.T) {
	e, cfg := newTestBatchEngine(t)
	ctx := context.Background()

	docs := make([]Document, 23)
	for i := range docs {
		docs[i] = Document{ID: strings.Repeat("d", 1) + string(rune('a'+i)), Title: "t", Content: "some content here"}
	}

	result, err := BatchInsert(ctx, e, "default", docs, int64(cfg.SQL.CacheSizeKiB*1024))
	require.NoError(t, err)
	assert.Equal(t, 23, result.Inserted)
	assert.GreaterOrEqual(t, result.CommittedBatches, 1)

	row, err := e.QueryRow(ctx, "SELECT COUNT(*) FROM docs_default")
	require.NoError(t, err)
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 23, count)
}

func TestBatchInsertWithVectors(t *testing.T) {
	e, cfg := newTestBatchEngine(t)
	ctx := context.Background()

	vec := func(seed float32) []float32 {
		v := make([]float32, cfg.Embedding.Dimensions)
		v[0] = seed
		return v
	}

	docs := []Document{
		{ID: "v1", Title: "a", Content: "x", Vector: vec(0.1)},
		{ID: "v2", Title: "b", Content: "y", Vector: vec(0.4)},
	}

	result, err := BatchInsert(ctx, e, "default", docs, int64(cfg.SQL.CacheSizeKiB*1024))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)

	row, err := e.QueryRow(ctx, "SELECT COUNT(*) FROM vec_default_dense")
	require.NoError(t, err)
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 2, count)
}

func TestEstimateSubBatchSizeClamps(t *testing.T) {
	docs := []Document{{Content: strings.Repeat("x", 1_000_000)}}
	size := estimateSubBatchSize(docs, 16*1024*1024)
	assert.GreaterOrEqual(t, size, minSubBatch)
	assert.LessOrEqual(t, size, maxSubBatch)
}

func TestBatchInsertEmptyIsNoop(t *testing.T) {
	e, cfg := newTestBatchEngine(t)
	result, err := BatchInsert(context.Background(), e, "default", nil, int64(cfg.SQL.CacheSizeKiB*1024))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
}
