// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paperscraper/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SourceConfig holds settings shared by the source connectors.
type SourceConfig struct {
	HTTPConfig `yaml:",inline"`

	// PageSize is the requested page size. Each connector clamps it to
	// its API's hard ceiling.
	PageSize int `json:"page_size" yaml:"page_size"`

	// MinFetchDelay is the minimum delay enforced between consecutive
	// calls to the same external API (default 1s).
	MinFetchDelay time.Duration `json:"min_fetch_delay" yaml:"min_fetch_delay"`

	// OpenAlexEmail is sent as the mailto parameter for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`

	// PatentsViewAPIKey authenticates PatentsView requests.
	PatentsViewAPIKey string `json:"patentsview_api_key,omitempty" yaml:"patentsview_api_key,omitempty"`
}

// StoreConfig holds settings for the catalog database.
type StoreConfig struct {
	// DBPath is the SQLite database file path (default "data/catalog.db").
	DBPath string `json:"db_path" yaml:"db_path"`
}

// CheckpointBackend selects where ingest checkpoints are persisted.
type CheckpointBackend string

const (
	CheckpointSQLite CheckpointBackend = "sqlite"
	CheckpointRedis  CheckpointBackend = "redis"
)

// CheckpointConfig holds settings for the checkpoint store.
type CheckpointConfig struct {
	// Backend selects sqlite (in the catalog database) or redis.
	Backend CheckpointBackend `json:"backend" yaml:"backend"`

	// RedisAddr is the redis host:port, required for the redis backend.
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`

	// TTL is the advisory expiry for redis checkpoint keys. A missing
	// checkpoint restarts the scope from the beginning; correctness does
	// not depend on retention.
	TTL time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// IngestConfig holds settings for the ingestion orchestrator.
type IngestConfig struct {
	// RecordTimeout is the per-record resolution budget. Exceeding it
	// fails the record, not the run (default 30s).
	RecordTimeout time.Duration `json:"record_timeout" yaml:"record_timeout"`

	// Initiator is recorded on runs started by this process.
	Initiator string `json:"initiator,omitempty" yaml:"initiator,omitempty"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier.
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ScoringConfig holds settings for the bulk scoring engine.
type ScoringConfig struct {
	AIConfig `yaml:",inline"`

	// Concurrency bounds outstanding provider calls (default 20).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// ChunkSize is the number of units committed between checkpoint
	// writes (default 50).
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// ShardSize splits large jobs into independently checkpointed
	// shards. Zero disables sharding.
	ShardSize int `json:"shard_size,omitempty" yaml:"shard_size,omitempty"`

	// Dimensions lists the scoring dimensions requested per entry.
	Dimensions []string `json:"dimensions" yaml:"dimensions"`
}

// EmbeddingConfig holds settings for the bulk embedding engine.
type EmbeddingConfig struct {
	AIConfig `yaml:",inline"`

	// Concurrency bounds outstanding batch calls (default 8).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// BatchSize caps texts per provider call; clamped to the provider
	// maximum.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// ChunkSize is the number of batches committed between checkpoint
	// writes (default 10).
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Source     SourceConfig     `json:"source" yaml:"source"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	Scoring    ScoringConfig    `json:"scoring" yaml:"scoring"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
}
