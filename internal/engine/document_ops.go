package engine

import (
	"context"

	"github.com/localretrieve/localretrieve/internal/embeddings"
)

// InsertDocumentInput is one document submitted to InsertDocumentWithEmbedding.
// Vector is optional; when nil, Worker generates one through the collection's
// embedding provider before inserting, unlike BatchInsertDocuments, which
// inserts such documents without a vector.
type InsertDocumentInput struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Metadata string    `json:"metadata"`
	Vector   []float32 `json:"vector,omitempty"`
}

// InsertDocumentWithEmbedding inserts a single document, generating its
// embedding through the collection's configured provider when the caller
// doesn't supply one directly.
func (w *Worker) InsertDocumentWithEmbedding(ctx context.Context, collection string, doc InsertDocumentInput) (*embeddings.BatchInsertResult, error) {
	if err := validateContent(doc.Content); err != nil {
		return nil, err
	}

	return submit(w, ctx, func(ctx context.Context) (*embeddings.BatchInsertResult, error) {
		vector := doc.Vector
		if vector == nil {
			provider, err := w.registry.Get(ctx, collection, embeddings.EmbeddingConfigFor(w.cfg))
			if err != nil {
				return nil, err
			}
			vectors, err := provider.EmbedDocuments(ctx, []string{doc.Content})
			if err != nil {
				return nil, err
			}
			vector = vectors[0]
		}

		return embeddings.BatchInsert(ctx, w.db, collection, []embeddings.Document{{
			ID:       doc.ID,
			Title:    doc.Title,
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Vector:   vector,
		}}, int64(w.cfg.SQL.CacheSizeKiB)*1024)
	})
}

// BatchInsertDocuments partitions docs into adaptively sized sub-batches and
// inserts each in its own transaction (spec.md §4.5.4). Documents with a nil
// Vector are inserted without one and may be embedded later through the
// queue via EnqueueEmbedding/ProcessEmbeddingQueue.
func (w *Worker) BatchInsertDocuments(ctx context.Context, collection string, docs []embeddings.Document) (*embeddings.BatchInsertResult, error) {
	for _, d := range docs {
		if err := validateContent(d.Content); err != nil {
			return nil, err
		}
	}

	return submit(w, ctx, func(ctx context.Context) (*embeddings.BatchInsertResult, error) {
		return embeddings.BatchInsert(ctx, w.db, collection, docs, int64(w.cfg.SQL.CacheSizeKiB)*1024)
	})
}
