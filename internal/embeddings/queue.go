package embeddings

import (
	"context"
	"time"

	"github.com/localretrieve/localretrieve/internal/apperrors"
	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/schema"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

// QueueStatus reports aggregate queue state, backing the getQueueStatus RPC
// operation.
type QueueStatus struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// ProcessResult is returned by Process, per spec.md §4.5.3.
type ProcessResult struct {
	Processed        int      `json:"processed"`
	Failed           int      `json:"failed"`
	RemainingInQueue int      `json:"remainingInQueue"`
	Errors           []string `json:"errors"`
}

// Queue drives the embedding_queue table schema.Manager creates.
type Queue struct {
	db           *sqlengine.Engine
	registry     *Registry
	providerCfg  ProviderConfig
}

// NewQueue creates a Queue bound to db and the provider registry used to
// generate embeddings for queued documents.
func NewQueue(db *sqlengine.Engine, registry *Registry, cfg *config.Config) *Queue {
	return &Queue{db: db, registry: registry, providerCfg: EmbeddingConfigFor(cfg)}
}

// Enqueue inserts a pending row, replacing any existing row for the same
// (collection, document) pair — a resubmission always wins over a stale
// in-flight or completed entry.
func (q *Queue) Enqueue(ctx context.Context, collection, documentID, text string, priority int) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO embedding_queue (id, collection, document_id, text_content, priority, status, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, ?)
		ON CONFLICT(collection, document_id) DO UPDATE SET
			text_content = excluded.text_content,
			priority = excluded.priority,
			status = 'pending',
			retry_count = 0,
			created_at = excluded.created_at,
			started_at = NULL,
			completed_at = NULL,
			error_message = NULL`,
		schema.NewQueueItemID(), collection, documentID, text, priority, nowUnixMilli())
	if err != nil {
		return apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "embeddings", "Enqueue", err)
	}
	return nil
}

// Process selects up to batchSize pending rows (optionally scoped to one
// collection), generates embeddings for each, and writes the resulting
// vectors back into vec_<c>_dense at the document's rowid.
func (q *Queue) Process(ctx context.Context, collection string, batchSize, maxRetries int) (*ProcessResult, error) {
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	rows, err := q.selectBatch(ctx, collection, batchSize)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{}
	for _, item := range rows {
		if err := q.processItem(ctx, item, maxRetries); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Processed++
	}

	remaining, err := q.countPending(ctx, collection)
	if err != nil {
		return nil, err
	}
	result.RemainingInQueue = remaining
	return result, nil
}

type queueItem struct {
	id          string
	collection  string
	documentID  string
	text        string
	retryCount  int
}

func (q *Queue) selectBatch(ctx context.Context, collection string, batchSize int) ([]queueItem, error) {
	var rows interface {
		Next() bool
		Scan(...any) error
		Close() error
		Err() error
	}
	var err error
	if collection != "" {
		rows, err = q.db.Query(ctx, `
			SELECT id, collection, document_id, text_content, retry_count FROM embedding_queue
			WHERE status = 'pending' AND collection = ?
			ORDER BY priority DESC, created_at ASC LIMIT ?`, collection, batchSize)
	} else {
		rows, err = q.db.Query(ctx, `
			SELECT id, collection, document_id, text_content, retry_count FROM embedding_queue
			WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC LIMIT ?`, batchSize)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []queueItem
	for rows.Next() {
		var it queueItem
		if err := rows.Scan(&it.id, &it.collection, &it.documentID, &it.text, &it.retryCount); err != nil {
			return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "embeddings", "selectBatch", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (q *Queue) processItem(ctx context.Context, item queueItem, maxRetries int) error {
	if _, err := q.db.Exec(ctx, "UPDATE embedding_queue SET status = 'processing', started_at = ? WHERE id = ?",
		nowUnixMilli(), item.id); err != nil {
		return err
	}

	provider, err := q.registry.Get(ctx, item.collection, q.providerCfg)
	if err != nil {
		return q.handleFailure(ctx, item, maxRetries, err)
	}

	vectors, err := provider.EmbedDocuments(ctx, []string{item.text})
	if err != nil || len(vectors) == 0 {
		if err == nil {
			err = apperrors.ErrInvalidDimension
		}
		return q.handleFailure(ctx, item, maxRetries, err)
	}

	if expected, err := schema.GetEmbeddingDimensions(ctx, q.db, item.collection); err != nil {
		return q.handleFailure(ctx, item, maxRetries, err)
	} else if len(vectors[0]) != expected {
		return q.handleFailure(ctx, item, maxRetries, apperrors.New(apperrors.KindValidation, apperrors.SeverityLow,
			"embeddings", "processItem", apperrors.ErrInvalidDimension).
			WithParams(map[string]any{"expected": expected, "got": len(vectors[0])}))
	}

	sanitized, err := schema.SanitizeName(item.collection)
	if err != nil {
		return q.handleFailure(ctx, item, maxRetries, err)
	}

	blob, err := sqlengine.SerializeVector(vectors[0])
	if err != nil {
		return q.handleFailure(ctx, item, maxRetries, err)
	}

	row, err := q.db.QueryRow(ctx, "SELECT rowid FROM docs_"+sanitized+" WHERE id = ?", item.documentID)
	if err != nil {
		return q.handleFailure(ctx, item, maxRetries, err)
	}
	var rowid int64
	if err := row.Scan(&rowid); err != nil {
		return q.handleFailure(ctx, item, maxRetries, apperrors.ErrCollectionNotFound)
	}

	if _, err := q.db.Exec(ctx, "INSERT INTO vec_"+sanitized+"_dense(rowid, embedding) VALUES (?, ?) ON CONFLICT(rowid) DO UPDATE SET embedding = excluded.embedding",
		rowid, blob); err != nil {
		return q.handleFailure(ctx, item, maxRetries, err)
	}

	_, err = q.db.Exec(ctx, "UPDATE embedding_queue SET status = 'completed', completed_at = ? WHERE id = ?",
		nowUnixMilli(), item.id)
	return err
}

func (q *Queue) handleFailure(ctx context.Context, item queueItem, maxRetries int, cause error) error {
	if item.retryCount < maxRetries {
		_, err := q.db.Exec(ctx, "UPDATE embedding_queue SET status = 'pending', retry_count = retry_count + 1, error_message = ? WHERE id = ?",
			cause.Error(), item.id)
		if err != nil {
			return err
		}
		return cause
	}

	_, err := q.db.Exec(ctx, "UPDATE embedding_queue SET status = 'failed', error_message = ? WHERE id = ?",
		cause.Error(), item.id)
	if err != nil {
		return err
	}
	return cause
}

func (q *Queue) countPending(ctx context.Context, collection string) (int, error) {
	var row interface{ Scan(...any) error }
	var err error
	if collection != "" {
		row, err = q.db.QueryRow(ctx, "SELECT COUNT(*) FROM embedding_queue WHERE status = 'pending' AND collection = ?", collection)
	} else {
		row, err = q.db.QueryRow(ctx, "SELECT COUNT(*) FROM embedding_queue WHERE status = 'pending'")
	}
	if err != nil {
		return 0, err
	}
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "embeddings", "countPending", err)
	}
	return count, nil
}

// Status reports aggregate queue state across every status value.
func (q *Queue) Status(ctx context.Context, collection string) (*QueueStatus, error) {
	where := "WHERE 1=1"
	args := []any{}
	if collection != "" {
		where += " AND collection = ?"
		args = append(args, collection)
	}

	row, err := q.db.QueryRow(ctx, "SELECT "+
		"SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), "+
		"SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), "+
		"SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), "+
		"SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) "+
		"FROM embedding_queue "+where, args...)
	if err != nil {
		return nil, err
	}

	var pending, processing, completed, failed *int
	if err := row.Scan(&pending, &processing, &completed, &failed); err != nil {
		return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "embeddings", "Status", err)
	}

	deref := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	return &QueueStatus{
		Pending:    deref(pending),
		Processing: deref(processing),
		Completed:  deref(completed),
		Failed:     deref(failed),
	}, nil
}

// ClearFilter narrows Clear to the rows matching every non-zero field; an
// empty ClearFilter clears the whole queue.
type ClearFilter struct {
	Collection string
	Status     string
	OlderThan  time.Time
}

// Clear removes rows from embedding_queue matching filter.
func (q *Queue) Clear(ctx context.Context, filter ClearFilter) error {
	where := ""
	var args []any
	add := func(clause string, arg any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, arg)
	}
	if filter.Collection != "" {
		add("collection = ?", filter.Collection)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if !filter.OlderThan.IsZero() {
		add("created_at < ?", filter.OlderThan.UnixMilli())
	}

	_, err := q.db.Exec(ctx, "DELETE FROM embedding_queue"+where, args...)
	if err != nil {
		return apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "embeddings", "Clear", err)
	}
	return nil
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
