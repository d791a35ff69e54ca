// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP client timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "research-agent/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SourcesConfig selects and configures the source adapters.
type SourcesConfig struct {
	EnableArxiv           bool `json:"enable_arxiv" yaml:"enable_arxiv" mapstructure:"enable_arxiv"`
	EnableSemanticScholar bool `json:"enable_semantic_scholar" yaml:"enable_semantic_scholar" mapstructure:"enable_semantic_scholar"`
	EnableOpenAlex        bool `json:"enable_openalex" yaml:"enable_openalex" mapstructure:"enable_openalex"`
	EnableWeb             bool `json:"enable_web" yaml:"enable_web" mapstructure:"enable_web"`

	// MaxResults is the number of records requested per query (default 10).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`

	// OpenAlexEmail is sent as mailto for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`

	// TavilyAPIKey is required when EnableWeb is set.
	TavilyAPIKey string `json:"tavily_api_key,omitempty" yaml:"tavily_api_key,omitempty" mapstructure:"tavily_api_key"`
}

// RetryConfig is the retry/backoff policy shared by retrieval and
// generation call sites.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
	Multiplier  float64       `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
}

// RetrievalConfig controls the concurrent retrieval coordinator.
type RetrievalConfig struct {
	// MaxConcurrency caps in-flight adapter calls (default 4).
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" mapstructure:"max_concurrency"`

	// QueryTimeout bounds each adapter attempt.
	QueryTimeout time.Duration `json:"query_timeout" yaml:"query_timeout" mapstructure:"query_timeout"`

	// BatchDeadline bounds a whole Execute call.
	BatchDeadline time.Duration `json:"batch_deadline" yaml:"batch_deadline" mapstructure:"batch_deadline"`

	// RatePerSecond is the per-source request rate (0 = unlimited).
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second" mapstructure:"rate_per_second"`

	// Burst is the per-source limiter burst (default 1).
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`

	Retry RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`
}

// CacheBackend selects the persistent cache tier.
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheSQLite CacheBackend = "sqlite"
	CacheRedis  CacheBackend = "redis"
)

// CacheConfig controls the result cache.
type CacheConfig struct {
	TTL      time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	MaxBytes int64         `json:"max_bytes" yaml:"max_bytes" mapstructure:"max_bytes"`
	Backend  CacheBackend  `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Path is the SQLite database file for the sqlite backend.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty" mapstructure:"redis_db"`
}

// RankingConfig holds the composite score weights and recency curve.
type RankingConfig struct {
	RelevanceWeight float64 `json:"relevance_weight" yaml:"relevance_weight" mapstructure:"relevance_weight"`
	RecencyWeight   float64 `json:"recency_weight" yaml:"recency_weight" mapstructure:"recency_weight"`
	CitationWeight  float64 `json:"citation_weight" yaml:"citation_weight" mapstructure:"citation_weight"`

	// RecencyHorizon is the age in years at which recency reaches its floor.
	RecencyHorizon int     `json:"recency_horizon" yaml:"recency_horizon" mapstructure:"recency_horizon"`
	RecencyFloor   float64 `json:"recency_floor" yaml:"recency_floor" mapstructure:"recency_floor"`

	// AssistedRelevance scores relevance with the generation backend,
	// falling back to keyword scoring per paper.
	AssistedRelevance bool `json:"assisted_relevance" yaml:"assisted_relevance" mapstructure:"assisted_relevance"`
}

// GapConfig controls gap analysis.
type GapConfig struct {
	// Threshold is the relevance a plan query's k-th best paper must reach.
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// MinMatches is k.
	MinMatches int `json:"min_matches" yaml:"min_matches" mapstructure:"min_matches"`

	// ClusterOverlap is the term Jaccard at which queries join a cluster.
	ClusterOverlap float64 `json:"cluster_overlap" yaml:"cluster_overlap" mapstructure:"cluster_overlap"`
}

// Provider selects the generation backend.
type Provider string

const (
	ProviderGroq      Provider = "groq"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderNone      Provider = "none"
)

// AIConfig holds settings for the text-generation collaborator.
type AIConfig struct {
	Provider Provider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "llama-3.3-70b-versatile").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint for OpenAI-compatible APIs.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	Timeout   time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxTokens int           `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// PlanAttempts and ReportAttempts bound generation before the
	// templated fallbacks take over.
	PlanAttempts   int `json:"plan_attempts" yaml:"plan_attempts" mapstructure:"plan_attempts"`
	ReportAttempts int `json:"report_attempts" yaml:"report_attempts" mapstructure:"report_attempts"`

	Retry RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`
}

// ArchiveConfig controls the SQLite session archive.
type ArchiveConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" yaml:"path" mapstructure:"path"`
}

// PipelineConfig groups all component configurations.
type PipelineConfig struct {
	HTTP       HTTPConfig      `json:"http" yaml:"http" mapstructure:"http"`
	Sources    SourcesConfig   `json:"sources" yaml:"sources" mapstructure:"sources"`
	Retrieval  RetrievalConfig `json:"retrieval" yaml:"retrieval" mapstructure:"retrieval"`
	Cache      CacheConfig     `json:"cache" yaml:"cache" mapstructure:"cache"`
	Ranking    RankingConfig   `json:"ranking" yaml:"ranking" mapstructure:"ranking"`
	Gaps       GapConfig       `json:"gaps" yaml:"gaps" mapstructure:"gaps"`
	Generation AIConfig        `json:"generation" yaml:"generation" mapstructure:"generation"`
	Archive    ArchiveConfig   `json:"archive" yaml:"archive" mapstructure:"archive"`

	// ReportLimit caps the papers listed in reports (default 20).
	ReportLimit int `json:"report_limit" yaml:"report_limit" mapstructure:"report_limit"`
}

// DefaultPipelineConfig returns the settings used when no config file or
// flag overrides a value.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "research-agent/0.1",
		},
		Sources: SourcesConfig{
			EnableArxiv:           true,
			EnableSemanticScholar: true,
			EnableOpenAlex:        true,
			MaxResults:            10,
		},
		Retrieval: RetrievalConfig{
			MaxConcurrency: 4,
			QueryTimeout:   20 * time.Second,
			BatchDeadline:  2 * time.Minute,
			RatePerSecond:  1,
			Burst:          1,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   time.Second,
				MaxDelay:    30 * time.Second,
				Multiplier:  2,
			},
		},
		Cache: CacheConfig{
			TTL:      24 * time.Hour,
			MaxBytes: 64 << 20,
			Backend:  CacheMemory,
			Path:     ".research-agent/cache.db",
		},
		Ranking: RankingConfig{
			RelevanceWeight: 0.6,
			RecencyWeight:   0.25,
			CitationWeight:  0.15,
			RecencyHorizon:  10,
			RecencyFloor:    0.1,
		},
		Gaps: GapConfig{
			Threshold:      0.5,
			MinMatches:     1,
			ClusterOverlap: 0.5,
		},
		Generation: AIConfig{
			Provider:       ProviderGroq,
			Model:          "llama-3.3-70b-versatile",
			Timeout:        60 * time.Second,
			MaxTokens:      4096,
			PlanAttempts:   2,
			ReportAttempts: 3,
			Retry: RetryConfig{
				MaxAttempts: 1,
				BaseDelay:   time.Second,
				MaxDelay:    10 * time.Second,
				Multiplier:  2,
			},
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    ".research-agent/sessions.db",
		},
		ReportLimit: 20,
	}
}

// Validate reports the first inconsistency as a *ConfigurationError.
func (c PipelineConfig) Validate() error {
	if !c.Sources.EnableArxiv && !c.Sources.EnableSemanticScholar && !c.Sources.EnableOpenAlex && !c.Sources.EnableWeb {
		return &ConfigurationError{Field: "sources", Reason: "no source enabled"}
	}
	if c.Sources.EnableWeb && c.Sources.TavilyAPIKey == "" {
		return &ConfigurationError{Field: "sources.tavily_api_key", Reason: "required when the web source is enabled"}
	}
	if c.Retrieval.MaxConcurrency < 1 {
		return &ConfigurationError{Field: "retrieval.max_concurrency", Reason: "must be at least 1"}
	}
	if c.Retrieval.QueryTimeout <= 0 {
		return &ConfigurationError{Field: "retrieval.query_timeout", Reason: "must be positive"}
	}
	if c.Retrieval.Retry.MaxAttempts < 1 {
		return &ConfigurationError{Field: "retrieval.retry.max_attempts", Reason: "must be at least 1"}
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheSQLite, "":
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return &ConfigurationError{Field: "cache.redis_addr", Reason: "required for the redis backend"}
		}
	default:
		return &ConfigurationError{Field: "cache.backend", Reason: fmt.Sprintf("unknown backend %q", c.Cache.Backend)}
	}
	r := c.Ranking
	if r.RelevanceWeight < 0 || r.RecencyWeight < 0 || r.CitationWeight < 0 {
		return &ConfigurationError{Field: "ranking", Reason: "weights must not be negative"}
	}
	if r.RelevanceWeight+r.RecencyWeight+r.CitationWeight == 0 {
		return &ConfigurationError{Field: "ranking", Reason: "at least one weight must be positive"}
	}
	if c.Gaps.Threshold <= 0 || c.Gaps.Threshold > 1 {
		return &ConfigurationError{Field: "gaps.threshold", Reason: "must be in (0, 1]"}
	}
	switch c.Generation.Provider {
	case ProviderNone:
	case ProviderGroq, ProviderOpenAI, ProviderAnthropic:
		if c.Generation.APIKey == "" {
			return &ConfigurationError{
				Field:  "generation.api_key",
				Reason: fmt.Sprintf("credentials for provider %q are missing", c.Generation.Provider),
			}
		}
	default:
		return &ConfigurationError{Field: "generation.provider", Reason: fmt.Sprintf("unknown provider %q", c.Generation.Provider)}
	}
	return nil
}
