package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsBadJournalMode(t *testing.T) {
	cfg := Default()
	cfg.SQL.JournalMode = "rollback"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveDimensions(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Dimensions = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadWithFileRejectsPathOutsideAllowedDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sql:\n  journal_mode: memory\n"), 0600))

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestLoadWithFileMissingFileUsesDefaults(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	missing := filepath.Join(home, ".config", "localretrieve", "does-not-exist.yaml")

	cfg, err := LoadWithFile(missing)
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 60, cfg.Search.FusionK)
}
