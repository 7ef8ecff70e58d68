package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/logging"
	"github.com/localretrieve/localretrieve/internal/schema"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

func newTestEngine(t *testing.T) (*Engine, *sqlengine.Engine) {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Dimensions = 3
	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	require.NoError(t, err)

	db, err := sqlengine.Open(context.Background(), ":memory:", cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mgr := schema.New(db, cfg)
	require.NoError(t, mgr.Initialize(context.Background()))

	return New(db, cfg, nil), db
}

func insertDoc(t *testing.T, db *sqlengine.Engine, id, title, content string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	res, err := db.Exec(ctx,
		"INSERT INTO docs_default (id, title, content, collection, created_at, updated_at) VALUES (?, ?, ?, 'default', 0, 0)",
		id, title, content)
	require.NoError(t, err)
	rowid, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = db.Exec(ctx, "INSERT INTO fts_default(rowid, title, content) VALUES (?, ?, ?)", rowid, title, content)
	require.NoError(t, err)

	if vec != nil {
		blob, err := sqlengine.SerializeVector(vec)
		require.NoError(t, err)
		_, err = db.Exec(ctx, "INSERT INTO vec_default_dense(rowid, embedding) VALUES (?, ?)", rowid, blob)
		require.NoError(t, err)
	}
}

func TestKeywordOnlySearch(t *testing.T) {
	e, db := newTestEngine(t)
	insertDoc(t, db, "1", "Go programming", "concurrency and channels", nil)
	insertDoc(t, db, "2", "Python basics", "lists and dictionaries", nil)

	resp, err := e.Search(context.Background(), Request{Query: Query{Text: "concurrency"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "1", resp.Results[0].ID)
	assert.Equal(t, "keyword", resp.Strategy)
}

func TestKeywordRejectsEmptyQuery(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Search(context.Background(), Request{})
	require.Error(t, err)
}

func TestVectorOnlySearch(t *testing.T) {
	e, db := newTestEngine(t)
	insertDoc(t, db, "1", "A", "near", []float32{1, 0, 0})
	insertDoc(t, db, "2", "B", "far", []float32{0, 0, 1})

	resp, err := e.Search(context.Background(), Request{Query: Query{Vector: []float32{1, 0, 0}}, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "1", resp.Results[0].ID)
	assert.Equal(t, "vector", resp.Strategy)
}

func TestHybridSearchRRF(t *testing.T) {
	e, db := newTestEngine(t)
	insertDoc(t, db, "1", "Go programming", "concurrency channels", []float32{1, 0, 0})
	insertDoc(t, db, "2", "Other", "unrelated content", []float32{0, 1, 0})

	resp, err := e.Search(context.Background(), Request{
		Query:  Query{Text: "concurrency", Vector: []float32{1, 0, 0}},
		Limit:  10,
		Fusion: Fusion{Method: "rrf"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "hybrid", resp.Strategy)
	assert.Equal(t, "1", resp.Results[0].ID)
}

func TestHybridSearchWeighted(t *testing.T) {
	e, db := newTestEngine(t)
	insertDoc(t, db, "1", "Go programming", "concurrency channels", []float32{1, 0, 0})
	insertDoc(t, db, "2", "Other", "unrelated content", []float32{0, 1, 0})

	resp, err := e.Search(context.Background(), Request{
		Query:  Query{Text: "concurrency", Vector: []float32{1, 0, 0}},
		Limit:  10,
		Fusion: Fusion{Method: "weighted", Weights: Weights{FTS: 0.6, Vector: 0.4}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
}

func TestMultiTokenQueryIsORed(t *testing.T) {
	e, db := newTestEngine(t)
	insertDoc(t, db, "1", "alpha", "one two", nil)
	insertDoc(t, db, "2", "beta", "two three", nil)

	resp, err := e.Search(context.Background(), Request{Query: Query{Text: "one three"}, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestVectorFromJSONRoundtrip(t *testing.T) {
	vec, err := VectorFromJSON([]byte(`[0.1, 0.2, 0.3]`))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}
