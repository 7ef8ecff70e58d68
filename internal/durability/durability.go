// Package durability persists a collection's SQLite image to local disk,
// standing in for the browser OPFS store the original engine targets:
// opfs:/<path> logical names map 1:1 to files under a configured root
// directory, loaded on open and snapshotted via internal/sqlengine's
// whole-database Serialize/Deserialize.
package durability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/localretrieve/localretrieve/internal/apperrors"
	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/logging"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

const opfsPrefix = "opfs:/"

// Store manages the on-disk image backing one Engine.
type Store struct {
	root   string
	engine *sqlengine.Engine
	logger *logging.Logger
	cfg    *config.Config

	mu       sync.Mutex
	lastSync time.Time
	ticker   *time.Ticker
	stopCh   chan struct{}
}

// New creates a Store rooted at cfg.Durability.Dir, expanding a leading ~.
func New(engine *sqlengine.Engine, cfg *config.Config, logger *logging.Logger) (*Store, error) {
	root, err := expandPath(cfg.Durability.Dir)
	if err != nil {
		return nil, apperrors.New(apperrors.KindPersistence, apperrors.SeverityCritical, "durability", "New", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.New(apperrors.KindPersistence, apperrors.SeverityCritical, "durability", "New", err).
			WithParams(map[string]any{"root": root})
	}

	return &Store{root: root, engine: engine, logger: logger, cfg: cfg}, nil
}

// expandPath expands a leading ~ to the user's home directory, mirroring
// the teacher's chromem-go path configuration.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// resolve maps an opfs:/ logical path to a file under root, rejecting any
// path that would escape root after cleaning.
func (s *Store) resolve(logicalPath string) (string, error) {
	rel := strings.TrimPrefix(logicalPath, opfsPrefix)
	cleaned := filepath.Clean("/" + rel)
	full := filepath.Join(s.root, cleaned)

	if !strings.HasPrefix(full, filepath.Clean(s.root)+string(filepath.Separator)) && full != filepath.Clean(s.root) {
		return "", apperrors.New(apperrors.KindValidation, apperrors.SeverityHigh, "durability", "resolve",
			fmt.Errorf("path escapes durability root: %s", logicalPath))
	}
	return full, nil
}

// Open loads a previously snapshotted image at logicalPath into engine, if
// one exists. A missing file is not an error — the collection starts empty.
func (s *Store) Open(ctx context.Context, logicalPath string) error {
	path, err := s.resolve(logicalPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.New(apperrors.KindPersistence, apperrors.SeverityHigh, "durability", "Open", err).
			WithParams(map[string]any{"path": logicalPath})
	}

	if err := s.engine.Deserialize(ctx, data); err != nil {
		return apperrors.New(apperrors.KindPersistence, apperrors.SeverityCritical, "durability", "Open", err).
			WithAction("the snapshot may be corrupt; clear and reimport").
			WithParams(map[string]any{"path": logicalPath})
	}

	s.logger.Info(ctx, "durability: loaded snapshot", zap.String("path", logicalPath), zap.Int("bytes", len(data)))
	return nil
}

// ForceSync serializes the engine's current state and writes it to
// logicalPath atomically (write to a temp file, then rename), so a crash
// mid-write never leaves a corrupt snapshot in place.
func (s *Store) ForceSync(ctx context.Context, logicalPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.resolve(logicalPath)
	if err != nil {
		return err
	}

	data, err := s.engine.Serialize(ctx)
	if err != nil {
		return err
	}

	if err := s.checkQuota(int64(len(data))); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.New(apperrors.KindPersistence, apperrors.SeverityHigh, "durability", "ForceSync", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return apperrors.New(apperrors.KindPersistence, apperrors.SeverityHigh, "durability", "ForceSync", err).
			WithParams(map[string]any{"path": logicalPath})
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.New(apperrors.KindPersistence, apperrors.SeverityHigh, "durability", "ForceSync", err).
			WithParams(map[string]any{"path": logicalPath})
	}

	s.lastSync = time.Now()
	s.logger.Debug(ctx, "durability: snapshot written", zap.String("path", logicalPath), zap.Int("bytes", len(data)))
	return nil
}

// checkQuota fails fast when the target filesystem doesn't have at least
// twice imageSize free, the 2×-image-size headroom spec.md §4.2 requires —
// enough room for the temp-file-then-rename write ForceSync performs right
// after to never run the filesystem to zero mid-write.
func (s *Store) checkQuota(imageSize int64) error {
	var stat fsStat
	if err := statfs(s.root, &stat); err != nil {
		// Not every platform implements this check; treat it as advisory.
		return nil
	}
	required := uint64(2 * imageSize)
	if stat.availableBytes < required {
		return apperrors.New(apperrors.KindPersistence, apperrors.SeverityHigh, "durability", "checkQuota",
			apperrors.ErrQuotaExceeded).
			WithAction("export data and free disk space before continuing").
			WithParams(map[string]any{"available_bytes": stat.availableBytes, "required_bytes": required})
	}
	return nil
}

// StartAutoSync begins a background ticker that calls ForceSync every
// cfg.Durability.SyncIntervalMS. Call Stop to release the goroutine.
func (s *Store) StartAutoSync(ctx context.Context, logicalPath string) {
	s.mu.Lock()
	if s.ticker != nil {
		s.mu.Unlock()
		return
	}
	interval := time.Duration(s.cfg.Durability.SyncIntervalMS) * time.Millisecond
	s.ticker = time.NewTicker(interval)
	s.stopCh = make(chan struct{})
	ticker := s.ticker
	stop := s.stopCh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.ForceSync(ctx, logicalPath); err != nil {
					s.logger.Warn(ctx, "durability: auto-sync failed", zap.Error(err))
				}
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the auto-sync ticker started by StartAutoSync.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stopCh)
		s.ticker = nil
	}
}

// Clear removes the on-disk snapshot for logicalPath entirely.
func (s *Store) Clear(logicalPath string) error {
	path, err := s.resolve(logicalPath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.New(apperrors.KindPersistence, apperrors.SeverityMedium, "durability", "Clear", err)
	}
	return nil
}

// Quota reports available, used, and total bytes on the durability root's
// filesystem. Every value is -1 when the platform doesn't support the
// check.
func (s *Store) Quota() (available, used, total int64) {
	var stat fsStat
	if err := statfs(s.root, &stat); err != nil {
		return -1, -1, -1
	}
	return int64(stat.availableBytes), int64(stat.usedBytes), int64(stat.totalBytes)
}
