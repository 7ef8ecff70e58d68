package engine

import (
	"context"
	"database/sql"

	"github.com/localretrieve/localretrieve/internal/apperrors"
)

// Row is one generic row returned by Select, column name to decoded value.
type Row map[string]any

// ExecResult reports the outcome of a raw Exec call.
type ExecResult struct {
	RowsAffected int64 `json:"rowsAffected"`
	LastInsertID int64 `json:"lastInsertId"`
}

// Exec runs a parameter-bound statement that does not return rows.
func (w *Worker) Exec(ctx context.Context, query string, args ...any) (*ExecResult, error) {
	return submit(w, ctx, func(ctx context.Context) (*ExecResult, error) {
		res, err := w.db.Exec(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		affected, _ := res.RowsAffected()
		lastID, _ := res.LastInsertId()
		return &ExecResult{RowsAffected: affected, LastInsertID: lastID}, nil
	})
}

// Select runs a parameter-bound query and decodes every row into a Row map.
func (w *Worker) Select(ctx context.Context, query string, args ...any) ([]Row, error) {
	return submit(w, ctx, func(ctx context.Context) ([]Row, error) {
		rows, err := w.db.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRows(rows)
	})
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "engine", "scanRows", err)
	}

	var out []Row
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		scanValues := make([]any, len(cols))
		for i := range scanValues {
			scanTargets[i] = &scanValues[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "engine", "scanRows", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = scanValues[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// BulkInsert runs stmt once per row in rows inside a single transaction,
// rolling back entirely on any failure. Unlike BatchInsertDocuments, it has
// no knowledge of the document/FTS/vector schema — it is the raw escape
// hatch for arbitrary parameter-bound inserts.
func (w *Worker) BulkInsert(ctx context.Context, stmt string, rowsArgs [][]any) (*ExecResult, error) {
	return submit(w, ctx, func(ctx context.Context) (*ExecResult, error) {
		tx, err := w.db.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		var total int64
		for _, args := range rowsArgs {
			res, err := tx.ExecContext(ctx, stmt, args...)
			if err != nil {
				return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityHigh, "engine", "BulkInsert", err).
					WithParams(map[string]any{"committed_rows": total})
			}
			affected, _ := res.RowsAffected()
			total += affected
		}
		if err := tx.Commit(); err != nil {
			return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityHigh, "engine", "BulkInsert", err)
		}
		return &ExecResult{RowsAffected: total}, nil
	})
}

// InitVecExtension re-verifies the sqlite-vec extension is loaded and able
// to create vec0 tables on the current connection.
func (w *Worker) InitVecExtension(ctx context.Context) error {
	_, err := submit(w, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.db.InitVectorExtension(ctx)
	})
	return err
}
