// Package config provides configuration loading for the retrieval engine.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and hardcoded defaults, matching every option enumerated in
// SPEC_FULL.md's configuration table.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete engine configuration.
type Config struct {
	SQL        SQLConfig        `koanf:"sql"`
	FTS        FTSConfig        `koanf:"fts"`
	Durability DurabilityConfig `koanf:"durability"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Queue      QueueConfig      `koanf:"queue"`
	LLM        LLMConfig        `koanf:"llm"`
	RPC        RPCConfig        `koanf:"rpc"`
	Search     SearchConfig     `koanf:"search"`
	Server     ServerConfig     `koanf:"server"`
}

// SQLConfig controls the SQL Engine Adapter (C1).
type SQLConfig struct {
	// CacheSizeKiB is the page cache budget, applied as a negative
	// cache_size pragma (KiB). Default 64 MiB.
	CacheSizeKiB int `koanf:"cache_size_kib"`
	// JournalMode is "memory" (default) or "wal".
	JournalMode string `koanf:"journal_mode"`
}

// FTSConfig controls the full-text tokenizer.
type FTSConfig struct {
	// Tokenizer must be Unicode-aware. Default "unicode61 remove_diacritics=2".
	Tokenizer string `koanf:"tokenizer"`
}

// DurabilityConfig controls the Durability Manager (C2).
type DurabilityConfig struct {
	// SyncIntervalMS is the auto-snapshot period in milliseconds.
	SyncIntervalMS int `koanf:"opfs_sync_interval_ms"`
	// Dir is the root directory backing opfs:/ logical paths.
	Dir string `koanf:"dir"`
}

// EmbeddingConfig controls the Embedding Pipeline (C5).
type EmbeddingConfig struct {
	DefaultProvider string `koanf:"default_provider"`
	Dimensions      int    `koanf:"dimensions"`
	Cache           EmbeddingCacheConfig `koanf:"cache"`
}

// EmbeddingCacheConfig controls the three cache tiers.
type EmbeddingCacheConfig struct {
	MemoryTTLMS     int64 `koanf:"memory_ttl_ms"`
	PersistentTTLMS int64 `koanf:"persistent_ttl_ms"`
	SQLTTLMS        int64 `koanf:"sql_ttl_ms"`
}

// QueueConfig controls background embedding processing.
type QueueConfig struct {
	BatchSize  int `koanf:"batch_size"`
	MaxRetries int `koanf:"max_retries"`
}

// LLMConfig controls the LLM Bridge (C6).
type LLMConfig struct {
	TimeoutMS  int `koanf:"timeout_ms"`
	MaxRetries int `koanf:"max_retries"`
	// Provider selects the wire dialect: "anthropic" (default), "openai",
	// "openrouter" or "custom". APIKey is read from config only to support
	// file-based deployments; env-var overrides (LLM_API_KEY)
	// are preferred so the key never lands in a checked-in config file.
	Provider    string `koanf:"provider"`
	APIKey      Secret `koanf:"api_key"`
	Model       string `koanf:"model"`
	BaseURL     string `koanf:"base_url"`
	HTTPReferer string `koanf:"http_referer"`
	Title       string `koanf:"title"`
}

// RPCConfig controls the RPC Boundary (C7).
type RPCConfig struct {
	OperationTimeoutMS int `koanf:"operation_timeout_ms"`
}

// SearchConfig controls fusion defaults.
type SearchConfig struct {
	FusionK       int     `koanf:"fusion_k"`
	WeightFTS     float64 `koanf:"weight_fts"`
	WeightVector  float64 `koanf:"weight_vector"`
}

// ServerConfig controls the HTTP/JSON-RPC surface (C7's rpcserver).
type ServerConfig struct {
	Port               int `koanf:"port"`
	ShutdownTimeoutMS  int `koanf:"shutdown_timeout_ms"`
}

// Default returns config with the defaults enumerated in SPEC_FULL.md.
func Default() *Config {
	return &Config{
		SQL: SQLConfig{
			CacheSizeKiB: 64000,
			JournalMode:  "memory",
		},
		FTS: FTSConfig{
			Tokenizer: "unicode61 remove_diacritics=2",
		},
		Durability: DurabilityConfig{
			SyncIntervalMS: 5000,
			Dir:            "~/.local/share/localretrieve",
		},
		Embedding: EmbeddingConfig{
			DefaultProvider: "local",
			Dimensions:      384,
			Cache: EmbeddingCacheConfig{
				MemoryTTLMS:     300_000,
				PersistentTTLMS: 86_400_000,
				SQLTTLMS:        604_800_000,
			},
		},
		Queue: QueueConfig{
			BatchSize:  10,
			MaxRetries: 3,
		},
		LLM: LLMConfig{
			TimeoutMS:  10_000,
			MaxRetries: 2,
			Provider:   "anthropic",
		},
		RPC: RPCConfig{
			OperationTimeoutMS: 30_000,
		},
		Search: SearchConfig{
			FusionK:      60,
			WeightFTS:    0.6,
			WeightVector: 0.4,
		},
		Server: ServerConfig{
			Port:              8085,
			ShutdownTimeoutMS: 10_000,
		},
	}
}

// Validate checks invariants across the config that koanf's unmarshal
// cannot express structurally.
func (c *Config) Validate() error {
	if c.SQL.JournalMode != "memory" && c.SQL.JournalMode != "wal" {
		return fmt.Errorf("sql.journal_mode must be 'memory' or 'wal', got %q", c.SQL.JournalMode)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch c.Embedding.DefaultProvider {
	case "local", "openai", "custom":
	default:
		return fmt.Errorf("embedding.default_provider must be local, openai or custom, got %q", c.Embedding.DefaultProvider)
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive, got %d", c.Queue.BatchSize)
	}
	if c.Search.FusionK <= 0 {
		return fmt.Errorf("search.fusion_k must be positive, got %d", c.Search.FusionK)
	}
	if w := c.Search.WeightFTS + c.Search.WeightVector; w <= 0 {
		return fmt.Errorf("search.weight_fts + search.weight_vector must be positive, got %f", w)
	}
	switch c.LLM.Provider {
	case "", "anthropic", "openai", "openrouter", "custom":
	default:
		return fmt.Errorf("llm.provider must be anthropic, openai, openrouter or custom, got %q", c.LLM.Provider)
	}
	if c.LLM.Provider == "custom" && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required when llm.provider is custom")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

// DurabilitySyncInterval returns the configured sync interval as a
// time.Duration.
func (c *Config) DurabilitySyncInterval() time.Duration {
	return time.Duration(c.Durability.SyncIntervalMS) * time.Millisecond
}

// RPCOperationTimeout returns the configured RPC deadline as a
// time.Duration.
func (c *Config) RPCOperationTimeout() time.Duration {
	return time.Duration(c.RPC.OperationTimeoutMS) * time.Millisecond
}

// LLMTimeout returns the configured LLM call timeout as a time.Duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutMS) * time.Millisecond
}

// ServerShutdownTimeout returns the configured graceful-shutdown deadline
// as a time.Duration.
func (c *Config) ServerShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMS) * time.Millisecond
}
