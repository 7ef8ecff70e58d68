package embeddings

import (
	"context"

	"github.com/localretrieve/localretrieve/internal/apperrors"
	"github.com/localretrieve/localretrieve/internal/schema"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

// Document is one document submitted to BatchInsert; Vector is optional —
// when nil, the document is inserted without a vector row and may be
// embedded later via Queue.
type Document struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Metadata string    `json:"metadata"`
	Vector   []float32 `json:"vector,omitempty"`
}

// sampleSize is how many leading documents BatchInsert samples to estimate
// per-document commit cost, per spec.md §4.5.4 step 1.
const sampleSize = 10

// ftsOverheadMultiplier approximates the FTS5 index's extra storage over
// the raw content bytes it indexes.
const ftsOverheadMultiplier = 4.5

const (
	minSubBatch = 5
	maxSubBatch = 50
)

// BatchInsertResult reports how many documents and sub-batches committed on
// success. When a sub-batch fails, BatchInsert returns no result; the count of
// sub-batches committed before the failure is carried in the error's
// "committed_sub_batches" param.
type BatchInsertResult struct {
	Inserted         int `json:"inserted"`
	CommittedBatches int `json:"committedBatches"`
}

// BatchInsert partitions docs into adaptively-sized sub-batches and inserts
// each inside its own transaction, per spec.md §4.5.4. cacheBudgetBytes is
// the configured SQL cache size (KiB, from config.SQLConfig.CacheSizeKiB)
// converted to bytes by the caller.
func BatchInsert(ctx context.Context, db *sqlengine.Engine, collection string, docs []Document, cacheBudgetBytes int64) (*BatchInsertResult, error) {
	sanitized, err := schema.SanitizeName(collection)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &BatchInsertResult{}, nil
	}

	if err := validateVectorDimensions(ctx, db, collection, docs); err != nil {
		return nil, err
	}

	subBatchSize := estimateSubBatchSize(docs, cacheBudgetBytes)

	result := &BatchInsertResult{}
	for start := 0; start < len(docs); start += subBatchSize {
		end := start + subBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := insertSubBatch(ctx, db, sanitized, docs[start:end]); err != nil {
			return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityHigh, "embeddings", "BatchInsert", err).
				WithParams(map[string]any{"committed_sub_batches": result.CommittedBatches})
		}
		result.CommittedBatches++
		result.Inserted += end - start
	}

	return result, nil
}

// validateVectorDimensions rejects any document whose vector length
// doesn't match the collection's configured dimension, per spec.md §4.4 and
// the invariant that a mismatched vector never reaches sqlite-vec.
func validateVectorDimensions(ctx context.Context, db *sqlengine.Engine, collection string, docs []Document) error {
	expected, err := schema.GetEmbeddingDimensions(ctx, db, collection)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if d.Vector != nil && len(d.Vector) != expected {
			return apperrors.New(apperrors.KindValidation, apperrors.SeverityLow, "embeddings", "BatchInsert", apperrors.ErrInvalidDimension).
				WithParams(map[string]any{"document_id": d.ID, "expected": expected, "got": len(d.Vector)})
		}
	}
	return nil
}

// estimateSubBatchSize implements spec.md §4.5.4's sizing algorithm.
func estimateSubBatchSize(docs []Document, cacheBudgetBytes int64) int {
	sampled := docs
	if len(sampled) > sampleSize {
		sampled = sampled[:sampleSize]
	}

	var totalBytes int64
	for _, d := range sampled {
		contentBytes := int64(len(d.Content))
		perDoc := contentBytes + int64(len(d.Title)) + int64(len(d.Metadata)) + int64(float64(contentBytes)*ftsOverheadMultiplier)
		totalBytes += perDoc
	}
	perDocBytes := totalBytes / int64(len(sampled))
	if perDocBytes <= 0 {
		perDocBytes = 1
	}

	availableBudget := cacheBudgetBytes / 4 // 25% of configured cache

	subBatch := int(availableBudget / perDocBytes)
	if subBatch < minSubBatch {
		subBatch = minSubBatch
	}
	if subBatch > maxSubBatch {
		subBatch = maxSubBatch
	}
	return subBatch
}

func insertSubBatch(ctx context.Context, db *sqlengine.Engine, collection string, docs []Document) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := nowUnixMilli()
	for _, d := range docs {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO docs_"+collection+" (id, title, content, collection, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			d.ID, d.Title, d.Content, collection, d.Metadata, now, now)
		if err != nil {
			return err
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO fts_"+collection+"(rowid, title, content, metadata) VALUES (?, ?, ?, ?)",
			rowid, d.Title, d.Content, d.Metadata); err != nil {
			return err
		}

		if d.Vector != nil {
			blob, err := sqlengine.SerializeVector(d.Vector)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO vec_"+collection+"_dense(rowid, embedding) VALUES (?, ?)", rowid, blob); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}
