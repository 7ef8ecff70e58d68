package rpcserver

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/localretrieve/localretrieve/internal/embeddings"
	"github.com/localretrieve/localretrieve/internal/engine"
	"github.com/localretrieve/localretrieve/internal/llmbridge"
	"github.com/localretrieve/localretrieve/internal/search"
)

// handleRPC routes POST /rpc/:method to the matching engine.Worker method,
// binding the request body into that method's parameter struct. Unknown
// method names report MethodNotFound rather than a generic 404, keeping
// every failure mode inside the envelope of envelope.go.
func (s *Server) handleRPC(c echo.Context) error {
	method := c.Param("method")
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	ctx := c.Request().Context()

	// Stashed for writeSuccess/writeError to record Prometheus metrics
	// without threading method/start-time through every case below.
	c.Set(rpcMetricsServerKey, s)
	c.Set(rpcMetricsMethodKey, method)
	c.Set(rpcMetricsStartKey, time.Now())

	switch method {

	// --- lifecycle ---

	case "open":
		var p struct {
			LogicalPath string `json:"logicalPath"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		if err := s.worker.Open(ctx, p.LogicalPath); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"state": s.worker.State()})

	case "close":
		if err := s.worker.Close(ctx); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"state": s.worker.State()})

	// --- raw SQL passthrough ---

	case "exec":
		var p struct {
			Query string `json:"query"`
			Args  []any  `json:"args"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.Exec(ctx, p.Query, p.Args...)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "select":
		var p struct {
			Query string `json:"query"`
			Args  []any  `json:"args"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		rows, err := s.worker.Select(ctx, p.Query, p.Args...)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, rows)

	case "bulkInsert":
		var p struct {
			Statement string    `json:"statement"`
			Rows      [][]any   `json:"rows"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.BulkInsert(ctx, p.Statement, p.Rows)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "initVecExtension":
		if err := s.worker.InitVecExtension(ctx); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"ok": true})

	// --- collections ---

	case "initializeSchema":
		if err := s.worker.InitializeSchema(ctx); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"ok": true})

	case "createCollection":
		var p struct {
			Name       string `json:"name"`
			Dimensions int    `json:"dimensions"`
			Provider   string `json:"provider"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		if err := s.worker.CreateCollection(ctx, p.Name, p.Dimensions, p.Provider); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"ok": true})

	case "listCollections":
		names, err := s.worker.ListCollections(ctx)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, names)

	case "getCollectionInfo":
		var p struct {
			Name string `json:"name"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		info, err := s.worker.GetCollectionInfo(ctx, p.Name)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, info)

	case "clear":
		var p struct {
			Name string `json:"name"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		if err := s.worker.Clear(ctx, p.Name); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"ok": true})

	// --- documents ---

	case "insertDocumentWithEmbedding":
		var p struct {
			Collection string                    `json:"collection"`
			Document   embeddingsDocumentInput    `json:"document"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.InsertDocumentWithEmbedding(ctx, p.Collection, p.Document.toInput())
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "batchInsertDocuments":
		var p struct {
			Collection string                    `json:"collection"`
			Documents  []embeddingsDocumentInput  `json:"documents"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		docs := make([]embeddings.Document, len(p.Documents))
		for i, d := range p.Documents {
			docs[i] = d.toDocument()
		}
		res, err := s.worker.BatchInsertDocuments(ctx, p.Collection, docs)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	// --- search ---

	case "search":
		var req search.Request
		if err := c.Bind(&req); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.Search(ctx, req)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "searchText":
		var p struct {
			Collection string `json:"collection"`
			Text       string `json:"text"`
			Limit      int    `json:"limit"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.SearchText(ctx, p.Collection, p.Text, p.Limit)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "searchSemantic":
		var p struct {
			Collection string    `json:"collection"`
			Text       string    `json:"text"`
			Vector     []float32 `json:"vector"`
			Limit      int       `json:"limit"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.SearchSemantic(ctx, p.Collection, p.Text, p.Vector, p.Limit)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "searchAdvanced":
		var req search.Request
		if err := c.Bind(&req); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.SearchAdvanced(ctx, req)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "searchGlobal":
		var p struct {
			Request search.Request `json:"request"`
			Limit   int            `json:"limit"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.SearchGlobal(ctx, p.Request, p.Limit)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	// --- embedding pipeline ---

	case "enqueueEmbedding":
		var p struct {
			Collection string `json:"collection"`
			DocumentID string `json:"documentId"`
			Text       string `json:"text"`
			Priority   int    `json:"priority"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		if err := s.worker.EnqueueEmbedding(ctx, p.Collection, p.DocumentID, p.Text, p.Priority); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"ok": true})

	case "processEmbeddingQueue":
		var p struct {
			Collection string `json:"collection"`
			BatchSize  int    `json:"batchSize"`
			MaxRetries int    `json:"maxRetries"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.ProcessEmbeddingQueue(ctx, p.Collection, p.BatchSize, p.MaxRetries)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "getQueueStatus":
		var p struct {
			Collection string `json:"collection"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.GetQueueStatus(ctx, p.Collection)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "clearEmbeddingQueue":
		var p struct {
			Collection string `json:"collection"`
			Status     string `json:"status"`
			OlderThan  int64  `json:"olderThan"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		filter := embeddings.ClearFilter{Collection: p.Collection, Status: p.Status}
		if p.OlderThan > 0 {
			filter.OlderThan = time.UnixMilli(p.OlderThan)
		}
		if err := s.worker.ClearEmbeddingQueue(ctx, filter); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"ok": true})

	case "generateQueryEmbedding":
		var p struct {
			Collection string `json:"collection"`
			Text       string `json:"text"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		vec, err := s.worker.GenerateQueryEmbedding(ctx, p.Collection, p.Text)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, vec)

	case "batchGenerateQueryEmbeddings":
		var p struct {
			Collection string   `json:"collection"`
			Texts      []string `json:"texts"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		vecs, err := s.worker.BatchGenerateQueryEmbeddings(ctx, p.Collection, p.Texts)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, vecs)

	case "warmEmbeddingCache":
		var p struct {
			Collection string   `json:"collection"`
			Texts      []string `json:"texts"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		warmed, err := s.worker.WarmEmbeddingCache(ctx, p.Collection, p.Texts)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"warmed": warmed})

	case "clearEmbeddingCache":
		var p struct {
			Collection string `json:"collection"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		if err := s.worker.ClearEmbeddingCache(ctx, p.Collection); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"ok": true})

	case "getPipelineStats":
		var p struct {
			Collection string `json:"collection"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.GetPipelineStats(ctx, p.Collection)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "getModelStatus":
		res, err := s.worker.GetModelStatus(ctx)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "preloadModels":
		var p struct {
			Collection string `json:"collection"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		if err := s.worker.PreloadModels(ctx, p.Collection); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"ok": true})

	case "optimizeModelMemory":
		evicted, err := s.worker.OptimizeModelMemory(ctx)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"evicted": evicted})

	// --- LLM bridge ---

	case "enhanceQuery":
		var p struct {
			Query   string               `json:"query"`
			Options llmbridge.CallOptions `json:"options"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.EnhanceQuery(ctx, p.Query, p.Options)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "summarizeResults":
		var p struct {
			Results []search.Result       `json:"results"`
			Options llmbridge.CallOptions `json:"options"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.SummarizeResults(ctx, p.Results, p.Options)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "searchWithLLM":
		var p struct {
			Request search.Request                `json:"request"`
			Options llmbridge.SearchWithLLMOptions `json:"options"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.SearchWithLLM(ctx, p.Request, p.Options)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "callLLM":
		var p struct {
			Prompt  string               `json:"prompt"`
			Options llmbridge.CallOptions `json:"options"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		res, err := s.worker.CallLLM(ctx, p.Prompt, p.Options)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	// --- maintenance ---

	case "export":
		data, err := s.worker.Export(ctx)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"data": data})

	case "import":
		var p struct {
			Data []byte `json:"data"`
		}
		if err := c.Bind(&p); err != nil {
			return writeError(c, requestID, methodNotFoundError(method))
		}
		if err := s.worker.Import(ctx, p.Data); err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, map[string]any{"ok": true})

	case "ping":
		res, err := s.worker.Ping(ctx)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "getVersion":
		res, err := s.worker.GetVersion(ctx)
		if err != nil {
			return writeError(c, requestID, err)
		}
		return writeSuccess(c, res)

	case "getStats":
		res, err := s.worker.GetStats(ctx)
		if err != nil {
			return writeError(c, requestID, err)
		}
		requests, errs := s.RequestCounts()
		return writeSuccess(c, statsResponse{
			StatsResult:      res,
			RPCRequestsTotal: requests,
			RPCErrorsTotal:   errs,
		})

	default:
		return writeError(c, requestID, methodNotFoundError(method))
	}
}

// statsResponse wraps engine.StatsResult with the RPC boundary's own
// request/error totals, so getStats is the one operation that surfaces both
// engine-level and transport-level counters in a single response.
type statsResponse struct {
	*engine.StatsResult
	RPCRequestsTotal int64 `json:"rpcRequestsTotal"`
	RPCErrorsTotal   int64 `json:"rpcErrorsTotal"`
}

// embeddingsDocumentInput is the wire shape of embeddings.Document /
// engine.InsertDocumentInput, kept separate from both so a malformed
// request body can never reach into engine internals before validation.
type embeddingsDocumentInput struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Metadata string    `json:"metadata"`
	Vector   []float32 `json:"vector"`
}

func (d embeddingsDocumentInput) toDocument() embeddings.Document {
	return embeddings.Document{
		ID: d.ID, Title: d.Title, Content: d.Content, Metadata: d.Metadata, Vector: d.Vector,
	}
}

// toInput is identical in shape to toDocument; it exists because
// InsertDocumentWithEmbedding takes engine.InsertDocumentInput, a distinct
// type from embeddings.Document despite the field overlap.
func (d embeddingsDocumentInput) toInput() engine.InsertDocumentInput {
	return engine.InsertDocumentInput{ID: d.ID, Title: d.Title, Content: d.Content, Metadata: d.Metadata, Vector: d.Vector}
}
