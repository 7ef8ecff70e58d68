// Package schema creates and validates the canonical per-collection tables:
// document storage, the FTS5 projection, the sqlite-vec dense table and the
// registry/queue tables shared across all collections.
package schema

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/localretrieve/localretrieve/internal/apperrors"
	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

// CurrentVersion is the canonical schema version this engine writes and
// requires on open. Opening a database below MinSupportedVersion is fatal.
const (
	CurrentVersion     = 3
	MinSupportedVersion = 3
)

// DefaultCollection is the name of the collection that always exists.
const DefaultCollection = "default"

// Manager creates, validates and migrates the canonical schema for a single
// Engine (one physical SQLite connection, possibly hosting many
// collections).
type Manager struct {
	engine *sqlengine.Engine
	cfg    *config.Config
}

// New creates a schema manager bound to engine.
func New(engine *sqlengine.Engine, cfg *config.Config) *Manager {
	return &Manager{engine: engine, cfg: cfg}
}

// sharedTables are created once per database, independent of collection.
var sharedTables = []string{
	`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		schema_version INTEGER NOT NULL,
		config TEXT NOT NULL DEFAULT '{}',
		embedding_provider TEXT,
		embedding_dimensions INTEGER,
		embedding_status TEXT NOT NULL DEFAULT 'disabled',
		processing_status TEXT NOT NULL DEFAULT 'idle'
	)`,
	`CREATE TABLE IF NOT EXISTS embedding_queue (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		document_id TEXT NOT NULL,
		text_content TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 2,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		error_message TEXT,
		UNIQUE(collection, document_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_embedding_queue_status ON embedding_queue(status, priority DESC, created_at ASC)`,
}

// perCollectionTables are created for each collection, with <c> substituted
// by the sanitized collection name. CREATE statements are composed from
// these fixed templates only, never from user input, so the resulting SQL
// always stays ASCII and passes the engine's binding invariant.
func perCollectionTables(c string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS docs_%s (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			collection TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`, c),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_docs_%s_collection ON docs_%s(collection)`, c, c),
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS fts_%s USING fts5(
			title, content, metadata,
			content=docs_%s, content_rowid=rowid,
			tokenize='%s'
		)`, c, c, fts5TokenizerArg()),
	}
}

// vecTable returns the CREATE statement for a collection's dense vector
// table; it is separate from perCollectionTables because it needs the
// collection's fixed embedding dimension, not known until the collection
// row is created.
func vecTable(c string, dimensions int) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_%s_dense USING vec0(
		rowid INTEGER PRIMARY KEY,
		embedding FLOAT[%d]
	)`, c, dimensions)
}

func fts5TokenizerArg() string {
	// Go string literal embedding a single-quoted SQL string; the tokenizer
	// name itself is a fixed config value (never user text), so this stays
	// within the ASCII-only statement requirement.
	return "unicode61 remove_diacritics 2"
}

// allTableNames lists every object Initialize expects to exist for a given
// collection, used to detect a partial prior installation.
func allTableNames(c string) []string {
	return []string{
		fmt.Sprintf("docs_%s", c),
		fmt.Sprintf("fts_%s", c),
		fmt.Sprintf("vec_%s_dense", c),
	}
}

// Initialize runs the protocol described in SPEC_FULL.md/spec.md §4.3:
// read the current version, skip if already current and complete, drop a
// partial install and recreate, refuse if stale, seed the default row.
func (m *Manager) Initialize(ctx context.Context) error {
	if _, err := m.engine.Exec(ctx, sharedTables[0]); err != nil {
		return err
	}
	if _, err := m.engine.Exec(ctx, sharedTables[1]); err != nil {
		return err
	}
	if _, err := m.engine.Exec(ctx, sharedTables[2]); err != nil {
		return err
	}

	version, hasDefault, err := m.currentState(ctx)
	if err != nil {
		return err
	}

	if version > 0 && version < MinSupportedVersion {
		return apperrors.New(apperrors.KindDatabase, apperrors.SeverityCritical, "schema", "Initialize",
			apperrors.ErrSchemaStale).
			WithAction("export your data, clear the database, then reimport").
			WithParams(map[string]any{"found_version": version, "minimum_supported": MinSupportedVersion})
	}

	if !hasDefault {
		if err := m.CreateCollection(ctx, DefaultCollection, m.cfg.Embedding.Dimensions, m.cfg.Embedding.DefaultProvider); err != nil {
			return err
		}
		return nil
	}

	// hasDefault only confirms the registry row exists; a prior run may
	// have crashed between the row insert and the virtual table creates.
	// Detect that partial state and recreate rather than leaving the
	// collection half-usable.
	complete, err := m.collectionTablesComplete(ctx, DefaultCollection)
	if err != nil {
		return err
	}
	if !complete {
		if err := m.DropCollection(ctx, DefaultCollection); err != nil {
			return err
		}
		if err := m.CreateCollection(ctx, DefaultCollection, m.cfg.Embedding.Dimensions, m.cfg.Embedding.DefaultProvider); err != nil {
			return err
		}
	}

	return nil
}

// collectionTablesComplete reports whether every table allTableNames expects
// for name exists in sqlite_master.
func (m *Manager) collectionTablesComplete(ctx context.Context, name string) (bool, error) {
	sanitized, err := SanitizeName(name)
	if err != nil {
		return false, err
	}
	for _, table := range allTableNames(sanitized) {
		row, err := m.engine.QueryRow(ctx, "SELECT 1 FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?", table)
		if err != nil {
			return false, err
		}
		var found int
		if scanErr := row.Scan(&found); scanErr != nil {
			return false, nil
		}
	}
	return true, nil
}

func (m *Manager) currentState(ctx context.Context) (version int, hasDefault bool, err error) {
	row, err := m.engine.QueryRow(ctx, "SELECT schema_version FROM collections WHERE name = ?", DefaultCollection)
	if err != nil {
		return 0, false, err
	}
	if scanErr := row.Scan(&version); scanErr != nil {
		return 0, false, nil // absent => version 0, no default collection yet
	}
	return version, true, nil
}

// CreateCollection registers a new collection and creates its backing
// tables. dimensions is fixed for the collection's lifetime.
func (m *Manager) CreateCollection(ctx context.Context, name string, dimensions int, provider string) error {
	sanitized, err := SanitizeName(name)
	if err != nil {
		return err
	}

	tx, err := m.engine.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := nowUnixMilli()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO collections (name, created_at, updated_at, schema_version, embedding_provider, embedding_dimensions, embedding_status)
		 VALUES (?, ?, ?, ?, ?, ?, 'enabled')
		 ON CONFLICT(name) DO NOTHING`,
		name, now, now, CurrentVersion, provider, dimensions)
	if err != nil {
		return apperrors.New(apperrors.KindDatabase, apperrors.SeverityHigh, "schema", "CreateCollection", err)
	}

	for _, stmt := range perCollectionTables(sanitized) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apperrors.New(apperrors.KindDatabase, apperrors.SeverityHigh, "schema", "CreateCollection", err)
		}
	}
	if _, err := tx.ExecContext(ctx, vecTable(sanitized, dimensions)); err != nil {
		return apperrors.New(apperrors.KindVector, apperrors.SeverityHigh, "schema", "CreateCollection", err)
	}

	return tx.Commit()
}

// DropCollection removes a collection's tables and registry row. Cascade
// to embedding_queue rows is enforced by the foreign key declared above.
func (m *Manager) DropCollection(ctx context.Context, name string) error {
	sanitized, err := SanitizeName(name)
	if err != nil {
		return err
	}

	tx, err := m.engine.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Virtual tables first: fts5/vec0 shadow tables reference the base
	// table and must go before it, mirroring the partial-install cleanup
	// order the initialization protocol specifies.
	drops := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS vec_%s_dense", sanitized),
		fmt.Sprintf("DROP TABLE IF EXISTS fts_%s", sanitized),
		fmt.Sprintf("DROP TABLE IF EXISTS docs_%s", sanitized),
	}
	for _, stmt := range drops {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apperrors.New(apperrors.KindDatabase, apperrors.SeverityHigh, "schema", "DropCollection", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return apperrors.New(apperrors.KindDatabase, apperrors.SeverityHigh, "schema", "DropCollection", err)
	}

	return tx.Commit()
}

// ListCollections returns every registered collection name.
func (m *Manager) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := m.engine.Query(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "schema", "ListCollections", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CollectionInfo describes a registered collection's metadata.
type CollectionInfo struct {
	Name                string `json:"name"`
	CreatedAt           int64  `json:"createdAt"`
	UpdatedAt           int64  `json:"updatedAt"`
	SchemaVersion       int    `json:"schemaVersion"`
	EmbeddingProvider   string `json:"embeddingProvider"`
	EmbeddingDimensions int    `json:"embeddingDimensions"`
	EmbeddingStatus     string `json:"embeddingStatus"`
	ProcessingStatus    string `json:"processingStatus"`
}

// GetEmbeddingDimensions looks up a collection's configured vector
// dimension directly off the shared engine, for callers (embeddings,
// search) that validate a vector's length before it reaches sqlite-vec and
// don't otherwise need a full Manager.
func GetEmbeddingDimensions(ctx context.Context, engine *sqlengine.Engine, collection string) (int, error) {
	row, err := engine.QueryRow(ctx, "SELECT embedding_dimensions FROM collections WHERE name = ?", collection)
	if err != nil {
		return 0, err
	}

	var dimensions *int
	if err := row.Scan(&dimensions); err != nil {
		return 0, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "schema", "GetEmbeddingDimensions",
			apperrors.ErrCollectionNotFound).WithParams(map[string]any{"collection": collection})
	}
	if dimensions == nil {
		return 0, nil
	}
	return *dimensions, nil
}

// GetCollectionInfo looks up a single collection's registry row.
func (m *Manager) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	row, err := m.engine.QueryRow(ctx,
		`SELECT name, created_at, updated_at, schema_version, embedding_provider, embedding_dimensions, embedding_status, processing_status
		 FROM collections WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}

	var info CollectionInfo
	var provider *string
	var dimensions *int
	if err := row.Scan(&info.Name, &info.CreatedAt, &info.UpdatedAt, &info.SchemaVersion,
		&provider, &dimensions, &info.EmbeddingStatus, &info.ProcessingStatus); err != nil {
		return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "schema", "GetCollectionInfo",
			apperrors.ErrCollectionNotFound).WithParams(map[string]any{"collection": name})
	}
	if provider != nil {
		info.EmbeddingProvider = *provider
	}
	if dimensions != nil {
		info.EmbeddingDimensions = *dimensions
	}
	return &info, nil
}

// NewQueueItemID generates a unique id for an embedding_queue row.
func NewQueueItemID() string {
	return uuid.New().String()
}
