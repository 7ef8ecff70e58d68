package localretrieve_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/logging"
	"github.com/localretrieve/localretrieve/pkg/localretrieve"
)

func openTestDB(t *testing.T) *localretrieve.DB {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Dimensions = 3
	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	require.NoError(t, err)

	db, err := localretrieve.Open(context.Background(), cfg, logger, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func TestOpenReturnsUsableHandle(t *testing.T) {
	db := openTestDB(t)

	ping, err := db.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", ping.Status)
}

func TestInsertAndSearchRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateCollection(ctx, "notes", 3, "local"))

	_, err := db.BatchInsertDocuments(ctx, "notes", []localretrieve.Document{
		{ID: "1", Title: "t", Content: "go concurrency patterns", Vector: []float32{1, 0, 0}},
	})
	require.NoError(t, err)

	resp, err := db.SearchText(ctx, "notes", "concurrency", 10)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "1", resp.Results[0].ID)
}

func TestExportImportRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Exec(ctx, "CREATE TABLE t (v TEXT)")
	require.NoError(t, err)
	_, err = db.Exec(ctx, "INSERT INTO t VALUES ('x')")
	require.NoError(t, err)

	data, err := db.Export(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	require.NoError(t, db.Import(ctx, data))
	rows, err := db.Select(ctx, "SELECT v FROM t")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDefaultCollectionConstantMatchesEngine(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.EnqueueEmbedding(ctx, localretrieve.DefaultCollection, "doc-1", "hello", 1))
	status, err := db.GetQueueStatus(ctx, localretrieve.DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Pending)
}
