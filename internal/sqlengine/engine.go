// Package sqlengine wraps the embedded SQLite connection that backs every
// collection: document storage, FTS5 full-text indexes and sqlite-vec
// vector tables all live in one *sql.DB.
package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"unicode"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"

	"github.com/localretrieve/localretrieve/internal/apperrors"
	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/logging"
)

var vecOnce sync.Once

// driverName is the sql.Register name used for every Engine. A dedicated
// name (rather than "sqlite3") keeps the ConnectHook that loads sqlite-vec
// from leaking into unrelated uses of the mattn driver in the same binary.
const driverName = "sqlite3_localretrieve"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := sqlite_vec.Auto(); err != nil {
				return fmt.Errorf("registering sqlite-vec auto-extension: %w", err)
			}
			return nil
		},
	})
}

// Engine is the single SQL connection a collection's worker goroutine
// drives. It is not safe for concurrent use from multiple goroutines; the
// RPC boundary (internal/engine) is responsible for serializing access.
type Engine struct {
	db     *sql.DB
	logger *logging.Logger
	cfg    *config.Config
}

// Open creates (or opens) a SQLite database at path, applying the pragmas
// SPEC_FULL.md requires and loading the vector extension. path may be
// ":memory:" for ephemeral collections, or a file path managed by
// internal/durability for persisted ones.
func Open(ctx context.Context, path string, cfg *config.Config, logger *logging.Logger) (*Engine, error) {
	vecOnce.Do(func() {})

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityCritical, "sqlengine", "Open", err)
	}
	// A single physical SQLite connection backs the whole engine: SQLite
	// serializes writers internally, and pragmas/temp tables are
	// per-connection state that must not be scattered across a pool.
	db.SetMaxOpenConns(1)

	e := &Engine{db: db, logger: logger, cfg: cfg}
	if err := e.applyPragmas(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA temp_store = memory",
		fmt.Sprintf("PRAGMA cache_size = -%d", e.cfg.SQL.CacheSizeKiB),
		"PRAGMA synchronous = normal",
		fmt.Sprintf("PRAGMA journal_mode = %s", e.cfg.SQL.JournalMode),
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := e.db.ExecContext(ctx, p); err != nil {
			return apperrors.New(apperrors.KindDatabase, apperrors.SeverityCritical, "sqlengine", "applyPragmas", err).
				WithParams(map[string]any{"pragma": p})
		}
	}
	return nil
}

// Exec runs a statement that does not return rows. query must be
// ASCII-only; any user-controlled text belongs in args, bound as
// parameters, never interpolated into the statement string.
func (e *Engine) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := requireASCII(query); err != nil {
		return nil, err
	}
	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "sqlengine", "Exec", err).
			WithParams(map[string]any{"query": query})
	}
	return res, nil
}

// Query runs a statement that returns rows. Same ASCII requirement as Exec.
func (e *Engine) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := requireASCII(query); err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "sqlengine", "Query", err).
			WithParams(map[string]any{"query": query})
	}
	return rows, nil
}

// QueryRow runs a statement expected to return at most one row.
func (e *Engine) QueryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	if err := requireASCII(query); err != nil {
		return nil, err
	}
	return e.db.QueryRowContext(ctx, query, args...), nil
}

// Begin starts a transaction for multi-statement operations such as
// batch document inserts that must commit or roll back atomically.
func (e *Engine) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "sqlengine", "Begin", err)
	}
	return tx, nil
}

// DB exposes the underlying *sql.DB for packages (schema, search) that
// need direct prepared-statement control this adapter doesn't wrap.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Close releases the connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Serialize dumps the entire database to an in-memory image, the Go
// analogue of sqlite3_serialize, used by the durability manager to
// snapshot to disk and by the export RPC operation.
func (e *Engine) Serialize(ctx context.Context) ([]byte, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistence, apperrors.SeverityHigh, "sqlengine", "Serialize", err)
	}
	defer conn.Close()

	var data []byte
	err = conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		serialized, err := sc.Serialize("main")
		if err != nil {
			return err
		}
		data = serialized
		return nil
	})
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistence, apperrors.SeverityHigh, "sqlengine", "Serialize", err)
	}
	return data, nil
}

// Deserialize replaces the database contents with a previously serialized
// image, used on startup to restore from a snapshot and by the import RPC
// operation.
func (e *Engine) Deserialize(ctx context.Context, data []byte) error {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return apperrors.New(apperrors.KindPersistence, apperrors.SeverityHigh, "sqlengine", "Deserialize", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		return sc.Deserialize(data, "main")
	})
	if err != nil {
		return apperrors.New(apperrors.KindPersistence, apperrors.SeverityHigh, "sqlengine", "Deserialize", err)
	}
	return nil
}

// requireASCII enforces the invariant that query text is never built by
// interpolating user-controlled strings: any non-ASCII byte in the
// statement itself (as opposed to its bound parameters) is rejected.
func requireASCII(query string) error {
	for _, r := range query {
		if r > unicode.MaxASCII {
			return apperrors.New(apperrors.KindValidation, apperrors.SeverityHigh, "sqlengine", "requireASCII",
				apperrors.ErrNonASCIIInterpolated).WithParams(map[string]any{"query": query})
		}
	}
	return nil
}
