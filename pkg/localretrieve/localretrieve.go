// Package localretrieve is the embeddable, in-process facade over the
// retrieval engine: a single typed DB handle backed by internal/engine's
// single-writer worker, for callers that want the library directly rather
// than the HTTP/JSON-RPC surface in internal/rpcserver.
package localretrieve

import (
	"context"

	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/embeddings"
	"github.com/localretrieve/localretrieve/internal/engine"
	"github.com/localretrieve/localretrieve/internal/llmbridge"
	"github.com/localretrieve/localretrieve/internal/logging"
	"github.com/localretrieve/localretrieve/internal/schema"
	"github.com/localretrieve/localretrieve/internal/search"
)

// Re-exported types so callers never need to import the internal packages
// directly; these are aliases, not copies, so values pass through for free.
type (
	Config              = config.Config
	Document            = embeddings.Document
	BatchInsertResult   = embeddings.BatchInsertResult
	QueueStatus         = embeddings.QueueStatus
	ProcessResult       = embeddings.ProcessResult
	ModelStatus         = embeddings.Status
	CollectionInfo      = schema.CollectionInfo
	SearchRequest       = search.Request
	SearchQuery         = search.Query
	SearchOptions       = search.Options
	SearchFusion        = search.Fusion
	SearchResponse      = search.Response
	SearchResult        = search.Result
	CallOptions         = llmbridge.CallOptions
	CallResult          = llmbridge.CallResult
	EnhancedQuery       = llmbridge.EnhancedQuery
	Summary             = llmbridge.Summary
	SearchWithLLMOptions = llmbridge.SearchWithLLMOptions
	SearchWithLLMResult  = llmbridge.SearchWithLLMResult
	DocumentInput        = engine.InsertDocumentInput
	GlobalSearchResult   = engine.SearchGlobalResult
	PipelineStats        = engine.PipelineStats
	PingResult           = engine.PingResult
	VersionResult        = engine.VersionResult
	StatsResult          = engine.StatsResult
	QueueClearFilter     = embeddings.ClearFilter
)

// DefaultCollection is the collection name used when a caller doesn't
// specify one, matching schema.DefaultCollection.
const DefaultCollection = schema.DefaultCollection

// DB is a single open database handle. Every method blocks until the
// underlying worker's single goroutine processes the operation; it is safe
// to call concurrently from multiple goroutines, same as engine.Worker.
type DB struct {
	worker *engine.Worker
}

// Open loads or creates the database at logicalPath (":memory:", an empty
// string for an ephemeral in-memory store, or "opfs:/..." for a
// durability-backed logical path) and runs it through the full startup
// sequence: vector extension check, persistent snapshot load, schema
// initialization.
func Open(ctx context.Context, cfg *Config, logger *logging.Logger, logicalPath string) (*DB, error) {
	w := engine.New(cfg, logger)
	if err := w.Open(ctx, logicalPath); err != nil {
		return nil, err
	}
	return &DB{worker: w}, nil
}

// Close flushes any pending durability snapshot and releases the
// underlying SQL connection. After Close, every other method returns an
// error.
func (db *DB) Close(ctx context.Context) error {
	return db.worker.Close(ctx)
}

// Exec runs a parameter-bound statement that does not return rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (*engine.ExecResult, error) {
	return db.worker.Exec(ctx, query, args...)
}

// Select runs a parameter-bound query and returns every row as a
// column-name-to-value map.
func (db *DB) Select(ctx context.Context, query string, args ...any) ([]engine.Row, error) {
	return db.worker.Select(ctx, query, args...)
}

// BulkInsert runs stmt once per row in rowsArgs inside a single
// transaction, rolling back entirely on any failure.
func (db *DB) BulkInsert(ctx context.Context, stmt string, rowsArgs [][]any) (*engine.ExecResult, error) {
	return db.worker.BulkInsert(ctx, stmt, rowsArgs)
}

// CreateCollection registers a new named collection with the given vector
// dimension and embedding provider.
func (db *DB) CreateCollection(ctx context.Context, name string, dimensions int, provider string) error {
	return db.worker.CreateCollection(ctx, name, dimensions, provider)
}

// ListCollections returns every registered collection name.
func (db *DB) ListCollections(ctx context.Context) ([]string, error) {
	return db.worker.ListCollections(ctx)
}

// GetCollectionInfo reports one collection's registry row.
func (db *DB) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	return db.worker.GetCollectionInfo(ctx, name)
}

// Clear drops and recreates a collection's tables, clearing its queue rows
// and cached embeddings while preserving its dimension and provider.
func (db *DB) Clear(ctx context.Context, name string) error {
	return db.worker.Clear(ctx, name)
}

// InsertDocument inserts a single document, generating its embedding
// through the collection's configured provider when doc.Vector is nil.
func (db *DB) InsertDocument(ctx context.Context, collection string, doc DocumentInput) (*BatchInsertResult, error) {
	return db.worker.InsertDocumentWithEmbedding(ctx, collection, doc)
}

// BatchInsertDocuments inserts many documents, partitioning them into
// adaptively-sized sub-batches.
func (db *DB) BatchInsertDocuments(ctx context.Context, collection string, docs []Document) (*BatchInsertResult, error) {
	return db.worker.BatchInsertDocuments(ctx, collection, docs)
}

// Search runs a fully-specified request against collection.
func (db *DB) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return db.worker.Search(ctx, req)
}

// SearchText runs a keyword-only search.
func (db *DB) SearchText(ctx context.Context, collection, text string, limit int) (*SearchResponse, error) {
	return db.worker.SearchText(ctx, collection, text, limit)
}

// SearchSemantic runs a vector-only search, embedding text through the
// collection's provider when vector is nil.
func (db *DB) SearchSemantic(ctx context.Context, collection, text string, vector []float32, limit int) (*SearchResponse, error) {
	return db.worker.SearchSemantic(ctx, collection, text, vector, limit)
}

// SearchAdvanced runs a hybrid search with an explicit fusion strategy.
func (db *DB) SearchAdvanced(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return db.worker.SearchAdvanced(ctx, req)
}

// SearchGlobal runs req against every registered collection, returning each
// collection's results separately.
func (db *DB) SearchGlobal(ctx context.Context, req SearchRequest, limit int) ([]GlobalSearchResult, error) {
	return db.worker.SearchGlobal(ctx, req, limit)
}

// EnqueueEmbedding schedules a document for background embedding.
func (db *DB) EnqueueEmbedding(ctx context.Context, collection, documentID, text string, priority int) error {
	return db.worker.EnqueueEmbedding(ctx, collection, documentID, text, priority)
}

// ProcessEmbeddingQueue drains up to batchSize pending queue rows.
func (db *DB) ProcessEmbeddingQueue(ctx context.Context, collection string, batchSize, maxRetries int) (*ProcessResult, error) {
	return db.worker.ProcessEmbeddingQueue(ctx, collection, batchSize, maxRetries)
}

// GetQueueStatus reports aggregate queue state, optionally scoped to one
// collection.
func (db *DB) GetQueueStatus(ctx context.Context, collection string) (*QueueStatus, error) {
	return db.worker.GetQueueStatus(ctx, collection)
}

// ClearEmbeddingQueue removes queue rows matching filter.
func (db *DB) ClearEmbeddingQueue(ctx context.Context, filter QueueClearFilter) error {
	return db.worker.ClearEmbeddingQueue(ctx, filter)
}

// GenerateQueryEmbedding embeds text for collection, consulting the cache
// before calling the provider.
func (db *DB) GenerateQueryEmbedding(ctx context.Context, collection, text string) ([]float32, error) {
	return db.worker.GenerateQueryEmbedding(ctx, collection, text)
}

// BatchGenerateQueryEmbeddings embeds many texts for collection in one
// call.
func (db *DB) BatchGenerateQueryEmbeddings(ctx context.Context, collection string, texts []string) ([][]float32, error) {
	return db.worker.BatchGenerateQueryEmbeddings(ctx, collection, texts)
}

// WarmEmbeddingCache pre-generates and caches embeddings for texts.
func (db *DB) WarmEmbeddingCache(ctx context.Context, collection string, texts []string) (int, error) {
	return db.worker.WarmEmbeddingCache(ctx, collection, texts)
}

// ClearEmbeddingCache invalidates every cached entry for collection.
func (db *DB) ClearEmbeddingCache(ctx context.Context, collection string) error {
	return db.worker.ClearEmbeddingCache(ctx, collection)
}

// GetPipelineStats reports queue and provider-registry state.
func (db *DB) GetPipelineStats(ctx context.Context, collection string) (*PipelineStats, error) {
	return db.worker.GetPipelineStats(ctx, collection)
}

// GetModelStatus reports the liveness of every currently cached embedding
// provider.
func (db *DB) GetModelStatus(ctx context.Context) ([]ModelStatus, error) {
	return db.worker.GetModelStatus(ctx)
}

// PreloadModels forces a collection's provider to initialize eagerly.
func (db *DB) PreloadModels(ctx context.Context, collection string) error {
	return db.worker.PreloadModels(ctx, collection)
}

// OptimizeModelMemory force-evicts idle provider handles, returning how
// many were disposed.
func (db *DB) OptimizeModelMemory(ctx context.Context) (int, error) {
	return db.worker.OptimizeModelMemory(ctx)
}

// CallLLM sends prompt directly to the configured LLM provider.
func (db *DB) CallLLM(ctx context.Context, prompt string, opts CallOptions) (*CallResult, error) {
	return db.worker.CallLLM(ctx, prompt, opts)
}

// EnhanceQuery asks the model to rewrite a query into a better search
// query.
func (db *DB) EnhanceQuery(ctx context.Context, query string, opts CallOptions) (*EnhancedQuery, error) {
	return db.worker.EnhanceQuery(ctx, query, opts)
}

// SummarizeResults asks the model to summarize a result set.
func (db *DB) SummarizeResults(ctx context.Context, results []SearchResult, opts CallOptions) (*Summary, error) {
	return db.worker.SummarizeResults(ctx, results, opts)
}

// SearchWithLLM runs a search, optionally enhancing the query first and
// summarizing the results after.
func (db *DB) SearchWithLLM(ctx context.Context, req SearchRequest, opts SearchWithLLMOptions) (*SearchWithLLMResult, error) {
	return db.worker.SearchWithLLM(ctx, req, opts)
}

// Export serializes the entire database to a single in-memory image.
func (db *DB) Export(ctx context.Context) ([]byte, error) {
	return db.worker.Export(ctx)
}

// Import replaces the database contents with a previously exported image.
func (db *DB) Import(ctx context.Context, data []byte) error {
	return db.worker.Import(ctx, data)
}

// Ping reports the database is alive and its current lifecycle state.
func (db *DB) Ping(ctx context.Context) (*PingResult, error) {
	return db.worker.Ping(ctx)
}

// GetVersion reports schema and engine version information.
func (db *DB) GetVersion(ctx context.Context) (*VersionResult, error) {
	return db.worker.GetVersion(ctx)
}

// GetStats reports aggregate database- and pipeline-level statistics.
func (db *DB) GetStats(ctx context.Context) (*StatsResult, error) {
	return db.worker.GetStats(ctx)
}
