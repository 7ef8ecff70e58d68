package engine

import (
	"context"

	"github.com/localretrieve/localretrieve/internal/schema"
	"github.com/localretrieve/localretrieve/internal/search"
)

// searchWithCollection runs req through the shared search.Engine, first
// pointing the collection embedder at req's target collection. Safe only
// because every job runs on the single worker goroutine.
func (w *Worker) searchWithCollection(ctx context.Context, req search.Request) (*search.Response, error) {
	collection := req.Collection
	if collection == "" {
		collection = schema.DefaultCollection
	}
	w.embedder.collection = collection
	return w.searchEng.Search(ctx, req)
}

// Search runs a fully-specified request (keyword, vector, or hybrid
// depending on which Query fields are set).
func (w *Worker) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	if err := validateText("query.text", req.Query.Text); err != nil {
		return nil, err
	}
	return submit(w, ctx, func(ctx context.Context) (*search.Response, error) {
		return w.searchWithCollection(ctx, req)
	})
}

// SearchText runs a keyword-only search against collection.
func (w *Worker) SearchText(ctx context.Context, collection, text string, limit int) (*search.Response, error) {
	return w.Search(ctx, search.Request{Collection: collection, Query: search.Query{Text: text}, Limit: limit})
}

// SearchSemantic runs a vector-only search, embedding text through the
// collection's provider first unless vector is supplied directly.
func (w *Worker) SearchSemantic(ctx context.Context, collection, text string, vector []float32, limit int) (*search.Response, error) {
	req := search.Request{
		Collection: collection,
		Query:      search.Query{Vector: vector},
		Limit:      limit,
		Options:    search.Options{EnableEmbedding: vector == nil},
	}
	if vector == nil {
		req.Query.Text = text
	}
	return w.Search(ctx, req)
}

// SearchAdvanced runs a hybrid search with an explicit fusion strategy.
func (w *Worker) SearchAdvanced(ctx context.Context, req search.Request) (*search.Response, error) {
	req.Options.EnableEmbedding = req.Options.EnableEmbedding || (len(req.Query.Vector) == 0 && req.Query.Text != "")
	return w.Search(ctx, req)
}

// SearchGlobalResult is one collection's contribution to a SearchGlobal call.
type SearchGlobalResult struct {
	Collection string          `json:"collection"`
	Response   *search.Response `json:"response"`
}

// SearchGlobal runs req against every registered collection and returns each
// collection's results separately, since fusing scores across collections
// with independent embedding spaces and document statistics isn't meaningful.
func (w *Worker) SearchGlobal(ctx context.Context, req search.Request, limit int) ([]SearchGlobalResult, error) {
	if err := validateText("query.text", req.Query.Text); err != nil {
		return nil, err
	}
	return submit(w, ctx, func(ctx context.Context) ([]SearchGlobalResult, error) {
		names, err := w.schemaMgr.ListCollections(ctx)
		if err != nil {
			return nil, err
		}

		out := make([]SearchGlobalResult, 0, len(names))
		for _, name := range names {
			perCollection := req
			perCollection.Collection = name
			if limit > 0 {
				perCollection.Limit = limit
			}
			resp, err := w.searchWithCollection(ctx, perCollection)
			if err != nil {
				return nil, err
			}
			out = append(out, SearchGlobalResult{Collection: name, Response: resp})
		}
		return out, nil
	})
}
