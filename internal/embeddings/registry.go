package embeddings

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/localretrieve/localretrieve/internal/config"
)

// idleExpiry is how long an unused provider handle is kept before Registry's
// cleanup timer disposes it.
const idleExpiry = 30 * time.Minute

// cleanupInterval is how often the registry scans for idle handles.
const cleanupInterval = 5 * time.Minute

// handle is a cached provider bound to one collection.
type handle struct {
	provider Provider
	cfg      ProviderConfig
	lastUsed time.Time
}

// Registry is the process-wide collection -> provider mapping described in
// spec.md §4.5.1. Concurrent first-requests for the same collection share
// one initialization via singleflight, mirroring the sqlite-vec client's
// embeddingGroup pattern for concurrent embedding computation.
type Registry struct {
	mu        sync.Mutex
	handles   map[string]*handle
	initGroup singleflight.Group

	stopCh chan struct{}
}

// NewRegistry creates a Registry and starts its idle-cleanup timer.
func NewRegistry() *Registry {
	r := &Registry{
		handles: make(map[string]*handle),
		stopCh:  make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// Get returns the provider for collection, creating it via cfg on first
// request. Concurrent callers for the same collection block on the same
// initialization rather than racing to create duplicate providers.
func (r *Registry) Get(ctx context.Context, collection string, cfg ProviderConfig) (Provider, error) {
	r.mu.Lock()
	if h, ok := r.handles[collection]; ok {
		h.lastUsed = time.Now()
		r.mu.Unlock()
		return h.provider, nil
	}
	r.mu.Unlock()

	v, err, _ := r.initGroup.Do(collection, func() (any, error) {
		r.mu.Lock()
		if h, ok := r.handles[collection]; ok {
			r.mu.Unlock()
			return h.provider, nil
		}
		r.mu.Unlock()

		provider, err := NewProvider(cfg)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.handles[collection] = &handle{provider: provider, cfg: cfg, lastUsed: time.Now()}
		r.mu.Unlock()
		return provider, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

// Dispose closes and removes the provider for collection, if any.
func (r *Registry) Dispose(collection string) error {
	r.mu.Lock()
	h, ok := r.handles[collection]
	if ok {
		delete(r.handles, collection)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return h.provider.Close()
}

// Status reports the model/provider liveness for every cached collection,
// backing the getModelStatus RPC operation.
type Status struct {
	Collection string        `json:"collection"`
	Dimension  int           `json:"dimension"`
	IdleFor    time.Duration `json:"idleFor"`
}

// Statuses returns a Status for every currently cached provider.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.handles))
	now := time.Now()
	for collection, h := range r.handles {
		out = append(out, Status{
			Collection: collection,
			Dimension:  h.provider.Dimension(),
			IdleFor:    now.Sub(h.lastUsed),
		})
	}
	return out
}

func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) evictIdle() {
	r.EvictIdle(idleExpiry)
}

// EvictIdle force-disposes every cached provider idle longer than maxIdle,
// returning how many were disposed. It backs the optimizeModelMemory
// operation, letting a caller reclaim memory on demand instead of waiting
// for the background cleanup timer's fixed idleExpiry.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	now := time.Now()

	r.mu.Lock()
	var stale []string
	for collection, h := range r.handles {
		if now.Sub(h.lastUsed) > maxIdle {
			stale = append(stale, collection)
		}
	}
	r.mu.Unlock()

	for _, collection := range stale {
		_ = r.Dispose(collection)
	}
	return len(stale)
}

// Close stops the cleanup timer and disposes every cached provider.
func (r *Registry) Close() error {
	close(r.stopCh)

	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*handle)
	r.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EmbeddingConfigFor derives a ProviderConfig from the engine configuration
// for a given collection, used as NewRegistry's Get cfg argument at call
// sites in internal/engine. cfg.Embedding.DefaultProvider names the
// config-level provider family ("local", "openai", "custom"); this maps it
// to the embeddings-package provider kind ("fastembed", "tei").
func EmbeddingConfigFor(cfg *config.Config) ProviderConfig {
	providerKind := "fastembed"
	if cfg.Embedding.DefaultProvider != "local" {
		providerKind = "tei"
	}
	return ProviderConfig{
		Provider: providerKind,
		Model:    "BAAI/bge-small-en-v1.5",
	}
}
