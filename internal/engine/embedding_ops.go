package engine

import (
	"context"
	"time"

	"github.com/localretrieve/localretrieve/internal/embeddings"
)

// EnqueueEmbedding schedules a document for background embedding.
func (w *Worker) EnqueueEmbedding(ctx context.Context, collection, documentID, text string, priority int) error {
	if err := validateText("text", text); err != nil {
		return err
	}
	_, err := submit(w, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.queue.Enqueue(ctx, collection, documentID, text, priority)
	})
	return err
}

// ProcessEmbeddingQueue drains up to batchSize pending rows.
func (w *Worker) ProcessEmbeddingQueue(ctx context.Context, collection string, batchSize, maxRetries int) (*embeddings.ProcessResult, error) {
	return submit(w, ctx, func(ctx context.Context) (*embeddings.ProcessResult, error) {
		return w.queue.Process(ctx, collection, batchSize, maxRetries)
	})
}

// GetQueueStatus reports aggregate queue state, optionally scoped to one
// collection.
func (w *Worker) GetQueueStatus(ctx context.Context, collection string) (*embeddings.QueueStatus, error) {
	return submit(w, ctx, func(ctx context.Context) (*embeddings.QueueStatus, error) {
		return w.queue.Status(ctx, collection)
	})
}

// ClearEmbeddingQueue removes rows matching filter, optionally scoped to a
// collection, a status, and/or a created-before cutoff.
func (w *Worker) ClearEmbeddingQueue(ctx context.Context, filter embeddings.ClearFilter) error {
	_, err := submit(w, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.queue.Clear(ctx, filter)
	})
	return err
}

// GenerateQueryEmbedding embeds text for collection, consulting the
// three-tier cache before calling the provider.
func (w *Worker) GenerateQueryEmbedding(ctx context.Context, collection, text string) ([]float32, error) {
	if err := validateText("text", text); err != nil {
		return nil, err
	}
	return submit(w, ctx, func(ctx context.Context) ([]float32, error) {
		return w.generateQueryEmbeddingLocked(ctx, collection, text)
	})
}

// generateQueryEmbeddingLocked must only run on the worker goroutine.
func (w *Worker) generateQueryEmbeddingLocked(ctx context.Context, collection, text string) ([]float32, error) {
	if vec, ok, err := w.cache.Get(ctx, collection, text); err != nil {
		return nil, err
	} else if ok {
		return vec, nil
	}

	provider, err := w.registry.Get(ctx, collection, embeddings.EmbeddingConfigFor(w.cfg))
	if err != nil {
		return nil, err
	}
	vec, err := provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := w.cache.Set(ctx, collection, text, vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// BatchGenerateQueryEmbeddings embeds many texts for collection in one job,
// reusing the per-text cache-or-generate path above for each.
func (w *Worker) BatchGenerateQueryEmbeddings(ctx context.Context, collection string, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if err := validateText("text", t); err != nil {
			return nil, err
		}
	}
	return submit(w, ctx, func(ctx context.Context) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			vec, err := w.generateQueryEmbeddingLocked(ctx, collection, t)
			if err != nil {
				return nil, err
			}
			out[i] = vec
		}
		return out, nil
	})
}

// WarmEmbeddingCache pre-generates and caches embeddings for texts, useful
// before a burst of expected queries.
func (w *Worker) WarmEmbeddingCache(ctx context.Context, collection string, texts []string) (int, error) {
	return submit(w, ctx, func(ctx context.Context) (int, error) {
		warmed := 0
		for _, t := range texts {
			if _, err := w.generateQueryEmbeddingLocked(ctx, collection, t); err != nil {
				return warmed, err
			}
			warmed++
		}
		return warmed, nil
	})
}

// ClearEmbeddingCache invalidates every cached entry for collection across
// all three tiers.
func (w *Worker) ClearEmbeddingCache(ctx context.Context, collection string) error {
	_, err := submit(w, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.cache.InvalidateCollection(ctx, collection)
	})
	return err
}

// PipelineStats combines queue and provider-registry state for one or every
// collection, backing the getPipelineStats operation.
type PipelineStats struct {
	Queue     *embeddings.QueueStatus `json:"queue"`
	Providers []embeddings.Status    `json:"providers"`
}

// GetPipelineStats reports queue status (optionally scoped to collection)
// alongside every currently cached provider's status.
func (w *Worker) GetPipelineStats(ctx context.Context, collection string) (*PipelineStats, error) {
	return submit(w, ctx, func(ctx context.Context) (*PipelineStats, error) {
		status, err := w.queue.Status(ctx, collection)
		if err != nil {
			return nil, err
		}
		return &PipelineStats{Queue: status, Providers: w.registry.Statuses()}, nil
	})
}

// GetModelStatus reports the liveness of every currently cached embedding
// provider.
func (w *Worker) GetModelStatus(ctx context.Context) ([]embeddings.Status, error) {
	return submit(w, ctx, func(ctx context.Context) ([]embeddings.Status, error) {
		return w.registry.Statuses(), nil
	})
}

// PreloadModels forces a collection's provider to initialize eagerly,
// rather than lazily on first embedding request.
func (w *Worker) PreloadModels(ctx context.Context, collection string) error {
	_, err := submit(w, ctx, func(ctx context.Context) (struct{}, error) {
		_, err := w.registry.Get(ctx, collection, embeddings.EmbeddingConfigFor(w.cfg))
		return struct{}{}, err
	})
	return err
}

// optimizeIdleThreshold is deliberately much shorter than the registry's
// background idleExpiry: optimizeModelMemory is an on-demand request to
// reclaim memory now, not a tuning knob for the passive timer.
const optimizeIdleThreshold = 1 * time.Minute

// OptimizeModelMemory force-evicts provider handles that have sat idle
// longer than optimizeIdleThreshold, returning how many were disposed.
func (w *Worker) OptimizeModelMemory(ctx context.Context) (int, error) {
	return submit(w, ctx, func(ctx context.Context) (int, error) {
		return w.registry.EvictIdle(optimizeIdleThreshold), nil
	})
}
