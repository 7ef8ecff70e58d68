// Package search compiles a logical search request into parameter-bound
// SQL against the keyword (FTS5) and vector (sqlite-vec) indexes created by
// internal/schema, and fuses the two result sets when both are requested.
package search

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/localretrieve/localretrieve/internal/apperrors"
	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/schema"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

// Query is the text and/or vector half of a request; at least one must be
// set.
type Query struct {
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// Weights configures the weighted fusion strategy. They need not be
// pre-normalized; Engine normalizes them to sum to 1.0.
type Weights struct {
	FTS    float64 `json:"fts"`
	Vector float64 `json:"vector"`
}

// Fusion selects how keyword and vector result sets are combined.
type Fusion struct {
	Method  string  `json:"method"` // "rrf" or "weighted"
	Weights Weights `json:"weights"`
}

// Options are secondary knobs that don't change which SQL runs.
type Options struct {
	EnableEmbedding bool    `json:"enableEmbedding"`
	MinScore        float64 `json:"minScore"`
	Threshold       float64 `json:"threshold"`
}

// Request is the logical SearchRequest of spec.md §4.4.
type Request struct {
	Collection string  `json:"collection"`
	Query      Query   `json:"query"`
	Limit      int     `json:"limit"`
	Fusion     Fusion  `json:"fusion"`
	Options    Options `json:"options"`
}

// Result is a single ranked hit.
type Result struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Metadata    string   `json:"metadata"`
	Score       float64  `json:"score"`
	FTSScore    *float64 `json:"ftsScore,omitempty"`
	VectorScore *float64 `json:"vectorScore,omitempty"`
}

// Response wraps the ranked results with the metadata spec.md §4.4 requires.
type Response struct {
	Results      []Result `json:"results"`
	SearchTimeMS int64    `json:"searchTimeMs"`
	Strategy     string   `json:"strategy"`
}

// QueryEmbedder generates a query vector on demand, satisfied by
// internal/embeddings.Service/FastEmbedProvider. It is an interface here
// (rather than importing internal/embeddings directly) to keep C4 from
// depending on C5's provider machinery when embedding is disabled.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Engine executes Request against one Engine's tables.
type Engine struct {
	db       *sqlengine.Engine
	cfg      *config.Config
	embedder QueryEmbedder
}

// New creates a search engine bound to db. embedder may be nil; it is only
// needed when a request sets Options.EnableEmbedding.
func New(db *sqlengine.Engine, cfg *config.Config, embedder QueryEmbedder) *Engine {
	return &Engine{db: db, cfg: cfg, embedder: embedder}
}

// Search runs req and returns ranked results.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	collection := req.Collection
	if collection == "" {
		collection = schema.DefaultCollection
	}
	sanitized, err := schema.SanitizeName(collection)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	vector := req.Query.Vector
	if len(vector) == 0 && req.Query.Text != "" && req.Options.EnableEmbedding {
		if e.embedder == nil {
			return nil, apperrors.New(apperrors.KindEmbedding, apperrors.SeverityHigh, "search", "Search",
				apperrors.ErrCollectionNotFound).WithAction("configure an embedding provider before enabling query embedding")
		}
		vector, err = e.embedder.EmbedQuery(ctx, req.Query.Text)
		if err != nil {
			return nil, err
		}
	}

	hasText := req.Query.Text != ""
	hasVector := len(vector) > 0

	if !hasText && !hasVector {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.SeverityMedium, "search", "Search",
			nil).WithAction("provide query.text and/or query.vector")
	}

	var resp *Response
	switch {
	case hasText && !hasVector:
		resp, err = e.keywordOnly(ctx, sanitized, req.Query.Text, limit)
	case hasVector && !hasText:
		resp, err = e.vectorOnly(ctx, sanitized, vector, limit)
	default:
		resp, err = e.hybrid(ctx, sanitized, req.Query.Text, vector, limit, req.Fusion)
	}
	if err != nil {
		return nil, err
	}

	if req.Options.MinScore > 0 {
		filtered := resp.Results[:0]
		for _, r := range resp.Results {
			if r.Score >= req.Options.MinScore {
				filtered = append(filtered, r)
			}
		}
		resp.Results = filtered
	}

	resp.SearchTimeMS = time.Since(start).Milliseconds()
	return resp, nil
}

// rewriteForOR splits a multi-token FTS query into an OR-joined MATCH
// expression, matching any of the terms rather than requiring all of them.
func rewriteForOR(text string) string {
	terms := strings.Fields(text)
	if len(terms) <= 1 {
		return text
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

func (e *Engine) keywordOnly(ctx context.Context, collection, text string, limit int) (*Response, error) {
	matchExpr := rewriteForOR(text)

	rows, err := e.db.Query(ctx, ftsSelect(collection), matchExpr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var id, title, content, metadata string
		var bm25 float64
		if err := rows.Scan(&id, &title, &content, &metadata, &bm25); err != nil {
			return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "search", "keywordOnly", err)
		}
		score := -bm25
		results = append(results, Result{ID: id, Title: title, Content: content, Metadata: metadata, Score: score, FTSScore: &score})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "search", "keywordOnly", err)
	}

	return &Response{Results: results, Strategy: "keyword"}, nil
}

func (e *Engine) vectorOnly(ctx context.Context, collection string, vector []float32, limit int) (*Response, error) {
	expected, err := schema.GetEmbeddingDimensions(ctx, e.db, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != expected {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.SeverityLow, "search", "vectorOnly", apperrors.ErrInvalidDimension).
			WithParams(map[string]any{"collection": collection, "expected": expected, "got": len(vector)})
	}

	blob, err := sqlengine.SerializeVector(vector)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.Query(ctx, vecSelect(collection), blob, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var id, title, content, metadata string
		var distance float64
		if err := rows.Scan(&id, &title, &content, &metadata, &distance); err != nil {
			return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "search", "vectorOnly", err)
		}
		score := 1 / (1 + distance)
		results = append(results, Result{ID: id, Title: title, Content: content, Metadata: metadata, Score: score, VectorScore: &score})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.New(apperrors.KindDatabase, apperrors.SeverityMedium, "search", "vectorOnly", err)
	}

	return &Response{Results: results, Strategy: "vector"}, nil
}

func (e *Engine) hybrid(ctx context.Context, collection, text string, vector []float32, limit int, fusion Fusion) (*Response, error) {
	ftsResp, err := e.keywordOnly(ctx, collection, text, limit)
	if err != nil {
		return nil, err
	}
	vecResp, err := e.vectorOnly(ctx, collection, vector, limit)
	if err != nil {
		return nil, err
	}

	method := fusion.Method
	if method == "" {
		method = "rrf"
	}

	var fused []Result
	switch method {
	case "weighted":
		fused = e.fuseWeighted(ftsResp.Results, vecResp.Results, fusion.Weights)
	default:
		fused = e.fuseRRF(ftsResp.Results, vecResp.Results)
	}

	if len(fused) > limit {
		fused = fused[:limit]
	}

	return &Response{Results: fused, Strategy: "hybrid"}, nil
}

func (e *Engine) fuseRRF(ftsResults, vecResults []Result) []Result {
	k := float64(e.cfg.Search.FusionK)
	if k <= 0 {
		k = 60
	}

	byID := make(map[string]*Result)
	order := make([]string, 0, len(ftsResults)+len(vecResults))

	for rank, r := range ftsResults {
		entry := ensureEntry(byID, &order, r)
		entry.Score += 1 / (k + float64(rank+1))
		entry.FTSScore = r.FTSScore
	}
	for rank, r := range vecResults {
		entry := ensureEntry(byID, &order, r)
		entry.Score += 1 / (k + float64(rank+1))
		entry.VectorScore = r.VectorScore
	}

	return sortedByScore(byID, order)
}

func (e *Engine) fuseWeighted(ftsResults, vecResults []Result, weights Weights) []Result {
	wFTS, wVec := weights.FTS, weights.Vector
	if wFTS == 0 && wVec == 0 {
		wFTS, wVec = e.cfg.Search.WeightFTS, e.cfg.Search.WeightVector
	}
	if total := wFTS + wVec; total > 0 {
		wFTS /= total
		wVec /= total
	}

	byID := make(map[string]*Result)
	order := make([]string, 0, len(ftsResults)+len(vecResults))

	for _, r := range ftsResults {
		entry := ensureEntry(byID, &order, r)
		entry.Score += wFTS * (*r.FTSScore)
		entry.FTSScore = r.FTSScore
	}
	for _, r := range vecResults {
		entry := ensureEntry(byID, &order, r)
		entry.Score += wVec * (*r.VectorScore)
		entry.VectorScore = r.VectorScore
	}

	return sortedByScore(byID, order)
}

func ensureEntry(byID map[string]*Result, order *[]string, r Result) *Result {
	entry, ok := byID[r.ID]
	if !ok {
		copyR := r
		copyR.Score = 0
		byID[r.ID] = &copyR
		*order = append(*order, r.ID)
		entry = byID[r.ID]
	}
	return entry
}

func sortedByScore(byID map[string]*Result, order []string) []Result {
	results := make([]Result, 0, len(order))
	for _, id := range order {
		results = append(results, *byID[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

func ftsSelect(collection string) string {
	return `SELECT d.id, COALESCE(d.title, ''), d.content, COALESCE(d.metadata, ''), f.rank AS bm25
		FROM fts_` + collection + ` f
		JOIN docs_` + collection + ` d ON d.rowid = f.rowid
		WHERE f MATCH ?
		ORDER BY f.rank
		LIMIT ?`
}

func vecSelect(collection string) string {
	return `SELECT d.id, COALESCE(d.title, ''), d.content, COALESCE(d.metadata, ''), v.distance
		FROM vec_` + collection + `_dense v
		JOIN docs_` + collection + ` d ON d.rowid = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`
}

// VectorFromJSON decodes the JSON numeric-array form a caller may submit
// over the RPC boundary into a float32 slice, matching the wire contract in
// spec.md §6.3.
func VectorFromJSON(data []byte) ([]float32, error) {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.SeverityMedium, "search", "VectorFromJSON", err)
	}
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}
