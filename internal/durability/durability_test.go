package durability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/logging"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

func newTestStore(t *testing.T) (*Store, *sqlengine.Engine) {
	t.Helper()
	cfg := config.Default()
	cfg.Durability.Dir = t.TempDir()

	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	require.NoError(t, err)

	e, err := sqlengine.Open(context.Background(), ":memory:", cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	s, err := New(e, cfg, logger)
	require.NoError(t, err)
	return s, e
}

func TestOpenMissingSnapshotIsNotError(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Open(context.Background(), "opfs:/collections/default.db"))
}

func TestForceSyncThenOpenRoundtrip(t *testing.T) {
	s, e := newTestStore(t)
	ctx := context.Background()

	_, err := e.Exec(ctx, "CREATE TABLE docs (id TEXT PRIMARY KEY)")
	require.NoError(t, err)
	_, err = e.Exec(ctx, "INSERT INTO docs (id) VALUES (?)", "doc-1")
	require.NoError(t, err)

	require.NoError(t, s.ForceSync(ctx, "opfs:/collections/default.db"))

	snapshotPath := filepath.Join(s.root, "collections", "default.db")
	info, err := os.Stat(snapshotPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	dest, err := sqlengine.Open(ctx, ":memory:", s.cfg, s.logger)
	require.NoError(t, err)
	defer dest.Close()

	destStore, err := New(dest, s.cfg, s.logger)
	require.NoError(t, err)
	require.NoError(t, destStore.Open(ctx, "opfs:/collections/default.db"))

	row, err := dest.QueryRow(ctx, "SELECT COUNT(*) FROM docs")
	require.NoError(t, err)
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestResolveClampsPathEscape(t *testing.T) {
	s, _ := newTestStore(t)
	resolved, err := s.resolve("opfs:/../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resolved, s.root))
}

func TestClearRemovesSnapshot(t *testing.T) {
	s, e := newTestStore(t)
	ctx := context.Background()

	_, err := e.Exec(ctx, "CREATE TABLE docs (id TEXT PRIMARY KEY)")
	require.NoError(t, err)
	require.NoError(t, s.ForceSync(ctx, "opfs:/collections/default.db"))

	require.NoError(t, s.Clear("opfs:/collections/default.db"))
	require.NoError(t, s.Open(ctx, "opfs:/collections/default.db")) // gone, no error
}

func TestStartStopAutoSync(t *testing.T) {
	s, _ := newTestStore(t)
	s.cfg.Durability.SyncIntervalMS = 50
	s.StartAutoSync(context.Background(), "opfs:/collections/default.db")
	s.Stop()
}
