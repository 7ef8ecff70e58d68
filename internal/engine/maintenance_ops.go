package engine

import (
	"context"
	"time"

	"github.com/localretrieve/localretrieve/internal/schema"
)

// Export serializes the entire database to a single in-memory image, the Go
// analogue of sqlite3_serialize.
func (w *Worker) Export(ctx context.Context) ([]byte, error) {
	return submit(w, ctx, func(ctx context.Context) ([]byte, error) {
		return w.db.Serialize(ctx)
	})
}

// Import replaces the database contents with a previously exported image.
func (w *Worker) Import(ctx context.Context, data []byte) error {
	if err := validateBlob("data", data); err != nil {
		return err
	}
	_, err := submit(w, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.db.Deserialize(ctx, data)
	})
	return err
}

// PingResult is the liveness payload returned by Ping.
type PingResult struct {
	Status    string `json:"status"`
	State     State  `json:"state"`
	Timestamp int64  `json:"timestamp"`
}

// Ping reports the worker is alive and its current lifecycle state.
func (w *Worker) Ping(ctx context.Context) (*PingResult, error) {
	return submit(w, ctx, func(ctx context.Context) (*PingResult, error) {
		return &PingResult{Status: "ok", State: w.State(), Timestamp: time.Now().UnixMilli()}, nil
	})
}

// VersionResult reports build/schema version information.
type VersionResult struct {
	SchemaVersion int    `json:"schemaVersion"`
	EngineVersion string `json:"engineVersion"`
}

// engineVersion is this build's user-visible version string.
const engineVersion = "0.1.0"

// GetVersion reports the schema version this engine writes and the engine's
// own build version.
func (w *Worker) GetVersion(ctx context.Context) (*VersionResult, error) {
	return submit(w, ctx, func(ctx context.Context) (*VersionResult, error) {
		return &VersionResult{SchemaVersion: schema.CurrentVersion, EngineVersion: engineVersion}, nil
	})
}

// StatsResult reports aggregate database- and pipeline-level statistics,
// backing the getStats operation.
type StatsResult struct {
	Collections  []schema.CollectionInfo `json:"collections"`
	QueuePending int                     `json:"queuePending"`
	QueueFailed  int                     `json:"queueFailed"`
	CachedModels int                     `json:"cachedModels"`
}

// GetStats reports every collection's registry row alongside aggregate
// embedding-queue and provider-cache counts.
func (w *Worker) GetStats(ctx context.Context) (*StatsResult, error) {
	return submit(w, ctx, func(ctx context.Context) (*StatsResult, error) {
		names, err := w.schemaMgr.ListCollections(ctx)
		if err != nil {
			return nil, err
		}

		infos := make([]schema.CollectionInfo, 0, len(names))
		for _, name := range names {
			info, err := w.schemaMgr.GetCollectionInfo(ctx, name)
			if err != nil {
				return nil, err
			}
			infos = append(infos, *info)
		}

		queueStatus, err := w.queue.Status(ctx, "")
		if err != nil {
			return nil, err
		}

		return &StatsResult{
			Collections:  infos,
			QueuePending: queueStatus.Pending,
			QueueFailed:  queueStatus.Failed,
			CachedModels: len(w.registry.Statuses()),
		}, nil
	})
}
