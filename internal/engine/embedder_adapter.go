package engine

import (
	"context"

	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/embeddings"
)

// collectionEmbedder adapts embeddings.Registry to search.QueryEmbedder.
// QueryEmbedder.EmbedQuery carries only query text, not a collection name,
// so it cannot by itself route to the right per-collection provider the
// registry keys on. Worker works around this by mutating collection to the
// request's target collection immediately before calling search.Engine.Search
// and never concurrently, which is safe only because every operation is
// already serialized through the single job loop in worker.go.
type collectionEmbedder struct {
	registry   *embeddings.Registry
	cfg        *config.Config
	collection string
}

func (c *collectionEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	provider, err := c.registry.Get(ctx, c.collection, embeddings.EmbeddingConfigFor(c.cfg))
	if err != nil {
		return nil, err
	}
	return provider.EmbedQuery(ctx, text)
}
