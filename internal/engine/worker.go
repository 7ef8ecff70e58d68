// Package engine implements the single-writer worker described in
// spec.md §4.7: one goroutine owns the SQL connection and every dependent
// component (schema, search, embeddings, durability, the LLM bridge) and
// drains a FIFO queue of operations, so no two operations ever touch the
// SQLite connection concurrently.
package engine

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/localretrieve/localretrieve/internal/apperrors"
	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/durability"
	"github.com/localretrieve/localretrieve/internal/embeddings"
	"github.com/localretrieve/localretrieve/internal/llmbridge"
	"github.com/localretrieve/localretrieve/internal/logging"
	"github.com/localretrieve/localretrieve/internal/schema"
	"github.com/localretrieve/localretrieve/internal/search"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

// State is one position in the worker's lifecycle state machine.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateOpening        State = "opening"
	StateReady          State = "ready"
	StateBusy           State = "busy"
	StateClosing        State = "closing"
	StateClosed         State = "closed"
)

// maxTextChars and maxBlobBytes are the pre-dispatch input size limits
// spec.md §4.7 requires: parameters beyond these are rejected before they
// ever reach the worker goroutine.
const (
	maxTextChars = 100_000
	maxBlobBytes = 10 * 1024 * 1024
)

// job is one submitted unit of work, executed to completion on the worker
// goroutine before the next job starts.
type job struct {
	ctx      context.Context
	fn       func(ctx context.Context) (any, error)
	resultCh chan jobResult
}

type jobResult struct {
	val any
	err error
}

// Worker is the per-collection-database engine: it owns exactly one
// sqlengine.Engine and serializes every operation against it through jobs.
type Worker struct {
	cfg    *config.Config
	logger *logging.Logger

	mu    sync.Mutex
	state State

	db          *sqlengine.Engine
	schemaMgr   *schema.Manager
	searchEng   *search.Engine
	registry    *embeddings.Registry
	cache       *embeddings.Cache
	queue       *embeddings.Queue
	llm         *llmbridge.Bridge
	store       *durability.Store
	embedder    *collectionEmbedder
	logicalPath string
	persistent  bool

	jobs      chan job
	closeOnce sync.Once
	loopDone  chan struct{}
}

// New creates a Worker in StateUninitialized. Call Open before submitting
// any other operation.
func New(cfg *config.Config, logger *logging.Logger) *Worker {
	return &Worker{
		cfg:    cfg,
		logger: logger,
		state:  StateUninitialized,
	}
}

// State reports the worker's current lifecycle position.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) requireState(states ...State) error {
	current := w.State()
	for _, s := range states {
		if current == s {
			return nil
		}
	}
	return apperrors.New(apperrors.KindValidation, apperrors.SeverityHigh, "engine", "requireState", nil).
		WithParams(map[string]any{"state": string(current), "expected": statesToStrings(states)}).
		WithAction("call operations in lifecycle order: open, then ready operations, then close")
}

func statesToStrings(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// Open moves the worker from uninitialized to ready: it opens the SQL
// connection, verifies the vector extension, restores a durability
// snapshot if logicalPath names a persistent path, initializes the
// canonical schema, wires every dependent component, and starts the job
// loop and auto-sync timer.
func (w *Worker) Open(ctx context.Context, logicalPath string) error {
	if err := w.requireState(StateUninitialized); err != nil {
		return err
	}
	w.setState(StateOpening)

	physicalPath, persistent := resolvePhysicalPath(logicalPath)

	db, err := sqlengine.Open(ctx, physicalPath, w.cfg, w.logger)
	if err != nil {
		w.setState(StateUninitialized)
		return err
	}

	if err := db.InitVectorExtension(ctx); err != nil {
		db.Close()
		w.setState(StateUninitialized)
		return err
	}

	var store *durability.Store
	if persistent {
		store, err = durability.New(db, w.cfg, w.logger)
		if err != nil {
			db.Close()
			w.setState(StateUninitialized)
			return err
		}
		if err := store.Open(ctx, logicalPath); err != nil {
			db.Close()
			w.setState(StateUninitialized)
			return err
		}
	}

	schemaMgr := schema.New(db, w.cfg)
	if err := schemaMgr.Initialize(ctx); err != nil {
		db.Close()
		w.setState(StateUninitialized)
		return err
	}

	registry := embeddings.NewRegistry()
	cache := embeddings.NewCache(db,
		time.Duration(w.cfg.Embedding.Cache.MemoryTTLMS)*time.Millisecond,
		time.Duration(w.cfg.Embedding.Cache.PersistentTTLMS)*time.Millisecond,
		time.Duration(w.cfg.Embedding.Cache.SQLTTLMS)*time.Millisecond)
	queue := embeddings.NewQueue(db, registry, w.cfg)

	embedder := &collectionEmbedder{registry: registry, cfg: w.cfg, collection: schema.DefaultCollection}
	searchEng := search.New(db, w.cfg, embedder)

	var bridge *llmbridge.Bridge
	if w.cfg.LLM.APIKey.IsSet() {
		bridge, err = llmbridge.New(llmbridge.Config{
			Provider:    w.cfg.LLM.Provider,
			APIKey:      w.cfg.LLM.APIKey.Value(),
			Model:       w.cfg.LLM.Model,
			BaseURL:     w.cfg.LLM.BaseURL,
			Timeout:     w.cfg.LLMTimeout(),
			MaxRetries:  w.cfg.LLM.MaxRetries,
			HTTPReferer: w.cfg.LLM.HTTPReferer,
			Title:       w.cfg.LLM.Title,
		}, &searchSearcher{searchEng})
		if err != nil {
			db.Close()
			w.setState(StateUninitialized)
			return err
		}
	}

	w.db = db
	w.schemaMgr = schemaMgr
	w.searchEng = searchEng
	w.registry = registry
	w.cache = cache
	w.queue = queue
	w.llm = bridge
	w.store = store
	w.embedder = embedder
	w.logicalPath = logicalPath
	w.persistent = persistent

	w.jobs = make(chan job, 64)
	w.loopDone = make(chan struct{})
	go w.loop()

	if persistent {
		store.StartAutoSync(ctx, logicalPath)
	}

	w.setState(StateReady)
	return nil
}

// loop drains jobs one at a time, the serialization point every other
// operation in this package relies on. Cancellation is cooperative: a job
// already running completes its current SQL statement before the loop
// checks the next job's context.
func (w *Worker) loop() {
	defer close(w.loopDone)
	for j := range w.jobs {
		if j.ctx.Err() != nil {
			j.resultCh <- jobResult{nil, apperrors.New(apperrors.KindValidation, apperrors.SeverityMedium,
				"engine", "loop", apperrors.ErrTimeout)}
			continue
		}
		w.setState(StateBusy)
		val, err := j.fn(j.ctx)
		w.setState(StateReady)
		j.resultCh <- jobResult{val, err}
	}
}

// submit enqueues fn and blocks until it runs or ctx is canceled first. If
// ctx carries no deadline, the configured RPC operation timeout is applied,
// per spec.md §4.7.
func submit[T any](w *Worker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := w.requireState(StateReady, StateBusy); err != nil {
		return zero, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.RPCOperationTimeout())
		defer cancel()
	}

	resultCh := make(chan jobResult, 1)
	j := job{
		ctx: ctx,
		fn: func(ctx context.Context) (any, error) {
			return fn(ctx)
		},
		resultCh: resultCh,
	}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return zero, apperrors.New(apperrors.KindValidation, apperrors.SeverityMedium, "engine", "submit",
			apperrors.ErrTimeout)
	}

	select {
	case r := <-resultCh:
		if r.err != nil {
			return zero, r.err
		}
		if r.val == nil {
			return zero, nil
		}
		return r.val.(T), nil
	case <-ctx.Done():
		return zero, apperrors.New(apperrors.KindValidation, apperrors.SeverityMedium, "engine", "submit",
			apperrors.ErrTimeout)
	}
}

// Close drains remaining jobs, stops the auto-sync timer, snapshots one
// last time if persistent, and releases every dependent component.
func (w *Worker) Close(ctx context.Context) error {
	if err := w.requireState(StateReady, StateBusy); err != nil {
		return err
	}
	w.setState(StateClosing)

	var syncErr error
	if w.persistent && w.store != nil {
		w.store.Stop()
		syncErr = w.store.ForceSync(ctx, w.logicalPath)
	}

	w.closeOnce.Do(func() {
		close(w.jobs)
	})
	<-w.loopDone

	if w.registry != nil {
		_ = w.registry.Close()
	}
	if w.db != nil {
		_ = w.db.Close()
	}

	w.setState(StateClosed)
	return syncErr
}

// resolvePhysicalPath maps a logical path (spec.md §6.1) to the physical
// path sqlengine.Open receives, and reports whether it names a persistent
// (durability-backed) database.
func resolvePhysicalPath(logicalPath string) (physical string, persistent bool) {
	if logicalPath == "" || logicalPath == ":memory:" {
		return ":memory:", false
	}
	if len(logicalPath) >= 6 && logicalPath[:6] == "opfs:/" {
		// The physical SQLite connection is always in-memory; durability.Store
		// loads/snapshots the on-disk image independently, mirroring the
		// original engine's OPFS-backed virtual filesystem.
		return ":memory:", true
	}
	return ":memory:", false
}

// searchSearcher adapts *search.Engine to llmbridge.Searcher.
type searchSearcher struct {
	eng *search.Engine
}

func (s *searchSearcher) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	return s.eng.Search(ctx, req)
}

// validateText enforces the 100,000-character pre-dispatch limit.
func validateText(field, text string) error {
	n := utf8.RuneCountInString(text)
	if n > maxTextChars {
		return apperrors.New(apperrors.KindValidation, apperrors.SeverityMedium, "engine", "validateText", nil).
			WithParams(map[string]any{"field": field, "length": n, "limit": maxTextChars}).
			WithAction("shorten the input below 100,000 characters")
	}
	return nil
}

// validateContent enforces the 100,000-character limit and, per spec.md
// §3.1, requires a Document's content to be non-empty rather than silently
// persisting a blank row.
func validateContent(content string) error {
	if content == "" {
		return apperrors.New(apperrors.KindValidation, apperrors.SeverityLow, "engine", "validateContent", apperrors.ErrEmptyContent).
			WithAction("content must not be empty")
	}
	return validateText("content", content)
}

// validateBlob enforces the 10 MiB pre-dispatch limit.
func validateBlob(field string, blob []byte) error {
	if len(blob) > maxBlobBytes {
		return apperrors.New(apperrors.KindValidation, apperrors.SeverityMedium, "engine", "validateBlob", nil).
			WithParams(map[string]any{"field": field, "bytes": len(blob), "limit": maxBlobBytes}).
			WithAction("shorten the input below 10 MiB")
	}
	return nil
}
