package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/logging"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Default()
	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	require.NoError(t, err)

	e, err := sqlengine.Open(context.Background(), ":memory:", cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	return New(e, cfg)
}

func TestInitializeSeedsDefaultCollection(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	info, err := m.GetCollectionInfo(context.Background(), DefaultCollection)
	require.NoError(t, err)
	assert.Equal(t, DefaultCollection, info.Name)
	assert.Equal(t, CurrentVersion, info.SchemaVersion)
	assert.Equal(t, 384, info.EmbeddingDimensions)
}

func TestInitializeIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.Initialize(ctx))

	names, err := m.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultCollection}, names)
}

func TestCreateAndDropCollection(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))

	require.NoError(t, m.CreateCollection(ctx, "notes", 256, "local"))

	names, err := m.ListCollections(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{DefaultCollection, "notes"}, names)

	info, err := m.GetCollectionInfo(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 256, info.EmbeddingDimensions)
	assert.Equal(t, "local", info.EmbeddingProvider)

	require.NoError(t, m.DropCollection(ctx, "notes"))
	names, err = m.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultCollection}, names)
}

func TestCreateCollectionRejectsInvalidName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))

	err := m.CreateCollection(ctx, "bad name; DROP TABLE collections", 128, "local")
	require.Error(t, err)
}

func TestGetCollectionInfoMissing(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))

	_, err := m.GetCollectionInfo(ctx, "missing")
	require.Error(t, err)
}

func TestCollectionTablesQueryable(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))

	row, err := m.engine.QueryRow(ctx, "SELECT COUNT(*) FROM docs_default")
	require.NoError(t, err)
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 0, count)

	row, err = m.engine.QueryRow(ctx, "SELECT vec_version()")
	require.NoError(t, err)
	var version string
	require.NoError(t, row.Scan(&version))
	assert.NotEmpty(t, version)
}
