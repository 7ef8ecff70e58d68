package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/localretrieve/localretrieve/internal/apperrors"
	"github.com/localretrieve/localretrieve/internal/sqlengine"
)

// cacheEntry is one cached embedding, with the expiry it was stored under.
type cacheEntry struct {
	vector    []float32
	expiresAt time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// CacheKey derives the lookup key spec.md §4.5.2 specifies:
// (collection, hash(normalized_text)).
func CacheKey(collection, text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return collection + ":" + hex.EncodeToString(sum[:])
}

// memoryTier is the first, fastest cache tier: bounded by count, evicted
// LRU-ish on pressure, mirroring the sqlite-vec client's queryCache
// eviction idiom (sweep expired first, then evict a fraction at random).
type memoryTier struct {
	mu       sync.RWMutex
	entries  map[string]cacheEntry
	maxSize  int
	ttl      time.Duration
}

func newMemoryTier(maxSize int, ttl time.Duration) *memoryTier {
	return &memoryTier{entries: make(map[string]cacheEntry), maxSize: maxSize, ttl: ttl}
}

func (m *memoryTier) get(key string) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	if !ok || entry.expired(time.Now()) {
		return nil, false
	}
	return entry.vector, true
}

func (m *memoryTier) set(key string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if len(m.entries) >= (m.maxSize*8)/10 {
		for k, v := range m.entries {
			if v.expired(now) {
				delete(m.entries, k)
			}
		}
		if len(m.entries) >= m.maxSize {
			evict := m.maxSize / 10
			if evict < 1 {
				evict = 1
			}
			for k := range m.entries {
				delete(m.entries, k)
				evict--
				if evict <= 0 {
					break
				}
			}
		}
	}

	m.entries[key] = cacheEntry{vector: vector, expiresAt: now.Add(m.ttl)}
}

func (m *memoryTier) invalidatePrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
}

// sqlTier persists embeddings in a SQL-backed table surviving process
// restarts, the third and longest-TTL tier.
type sqlTier struct {
	engine *sqlengine.Engine
	ttl    time.Duration
}

func newSQLTier(engine *sqlengine.Engine, ttl time.Duration) *sqlTier {
	return &sqlTier{engine: engine, ttl: ttl}
}

// ensureTable creates the backing table if missing; called lazily so
// collections that never use embedding caching never pay for it.
func (s *sqlTier) ensureTable(ctx context.Context) error {
	_, err := s.engine.Exec(ctx, `CREATE TABLE IF NOT EXISTS embedding_cache (
		cache_key TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	)`)
	return err
}

func (s *sqlTier) get(ctx context.Context, key string) ([]float32, bool, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, false, err
	}
	row, err := s.engine.QueryRow(ctx, "SELECT vector, expires_at FROM embedding_cache WHERE cache_key = ?", key)
	if err != nil {
		return nil, false, err
	}
	var blob []byte
	var expiresAt int64
	if scanErr := row.Scan(&blob, &expiresAt); scanErr != nil {
		return nil, false, nil
	}
	if time.Now().UnixMilli() > expiresAt {
		return nil, false, nil
	}
	vec, err := blobToFloat32(blob)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (s *sqlTier) set(ctx context.Context, key string, vector []float32) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}
	blob, err := sqlengine.SerializeVector(vector)
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(s.ttl).UnixMilli()
	_, err = s.engine.Exec(ctx,
		"INSERT INTO embedding_cache (cache_key, vector, expires_at) VALUES (?, ?, ?) ON CONFLICT(cache_key) DO UPDATE SET vector = excluded.vector, expires_at = excluded.expires_at",
		key, blob, expiresAt)
	return err
}

func (s *sqlTier) invalidatePrefix(ctx context.Context, prefix string) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}
	_, err := s.engine.Exec(ctx, "DELETE FROM embedding_cache WHERE cache_key LIKE ? || '%'", prefix)
	return err
}

func blobToFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, apperrors.New(apperrors.KindEmbedding, apperrors.SeverityMedium, "embeddings", "blobToFloat32",
			apperrors.ErrInvalidDimension)
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// Cache is the three-tier lookup chain: memory, persistent (a second
// in-process tier with a longer TTL; nothing in it is written to disk),
// then SQL.
type Cache struct {
	memory      *memoryTier
	persistent  *memoryTier // same shape as memory but a longer TTL, standing in for persistent browser storage
	sql         *sqlTier
}

// NewCache creates the three-tier cache described in spec.md §4.5.2.
func NewCache(engine *sqlengine.Engine, memoryTTL, persistentTTL, sqlTTL time.Duration) *Cache {
	return &Cache{
		memory:     newMemoryTier(10_000, memoryTTL),
		persistent: newMemoryTier(100_000, persistentTTL),
		sql:        newSQLTier(engine, sqlTTL),
	}
}

// Get checks memory, then persistent, then SQL, promoting a hit back up to
// the faster tiers it missed.
func (c *Cache) Get(ctx context.Context, collection, text string) ([]float32, bool, error) {
	key := CacheKey(collection, text)

	if vec, ok := c.memory.get(key); ok {
		return vec, true, nil
	}
	if vec, ok := c.persistent.get(key); ok {
		c.memory.set(key, vec)
		return vec, true, nil
	}
	vec, ok, err := c.sql.get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		c.memory.set(key, vec)
		c.persistent.set(key, vec)
		return vec, true, nil
	}
	return nil, false, nil
}

// Set writes vector to all three tiers.
func (c *Cache) Set(ctx context.Context, collection, text string, vector []float32) error {
	key := CacheKey(collection, text)
	c.memory.set(key, vector)
	c.persistent.set(key, vector)
	return c.sql.set(ctx, key, vector)
}

// InvalidateCollection drops every cached entry for collection across all
// tiers.
func (c *Cache) InvalidateCollection(ctx context.Context, collection string) error {
	prefix := collection + ":"
	c.memory.invalidatePrefix(prefix)
	c.persistent.invalidatePrefix(prefix)
	return c.sql.invalidatePrefix(ctx, prefix)
}
