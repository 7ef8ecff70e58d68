package engine

import (
	"context"

	"github.com/localretrieve/localretrieve/internal/embeddings"
	"github.com/localretrieve/localretrieve/internal/schema"
)

// InitializeSchema (re-)runs the canonical schema protocol. Open already
// calls this once; exposing it as its own operation lets a caller force a
// partial-install repair without closing and reopening the worker.
func (w *Worker) InitializeSchema(ctx context.Context) error {
	_, err := submit(w, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.schemaMgr.Initialize(ctx)
	})
	return err
}

// CreateCollection registers a new collection with a fixed embedding
// dimension and provider.
func (w *Worker) CreateCollection(ctx context.Context, name string, dimensions int, provider string) error {
	_, err := submit(w, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.schemaMgr.CreateCollection(ctx, name, dimensions, provider)
	})
	return err
}

// ListCollections returns every registered collection name.
func (w *Worker) ListCollections(ctx context.Context) ([]string, error) {
	return submit(w, ctx, func(ctx context.Context) ([]string, error) {
		return w.schemaMgr.ListCollections(ctx)
	})
}

// GetCollectionInfo looks up one collection's registry row.
func (w *Worker) GetCollectionInfo(ctx context.Context, name string) (*schema.CollectionInfo, error) {
	return submit(w, ctx, func(ctx context.Context) (*schema.CollectionInfo, error) {
		return w.schemaMgr.GetCollectionInfo(ctx, name)
	})
}

// Clear empties a collection's documents, FTS index and vector table by
// dropping and recreating it with the same dimension/provider, and
// invalidates its embedding cache entries and queue rows.
func (w *Worker) Clear(ctx context.Context, name string) error {
	_, err := submit(w, ctx, func(ctx context.Context) (struct{}, error) {
		info, err := w.schemaMgr.GetCollectionInfo(ctx, name)
		if err != nil {
			return struct{}{}, err
		}
		if err := w.schemaMgr.DropCollection(ctx, name); err != nil {
			return struct{}{}, err
		}
		if err := w.schemaMgr.CreateCollection(ctx, name, info.EmbeddingDimensions, info.EmbeddingProvider); err != nil {
			return struct{}{}, err
		}
		if err := w.queue.Clear(ctx, embeddings.ClearFilter{Collection: name}); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, w.cache.InvalidateCollection(ctx, name)
	})
	return err
}
