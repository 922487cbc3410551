package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
)

type Config struct {
	Port   int
	DBPath string
	APIKey string

	// Embedding provider
	OllamaBaseURL     string
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDim      int

	// Chat-completion provider (fact extraction)
	ChatModel          string
	MaxFactsPerCall    int
	MinFactConfidence  float64
	FactDedupThreshold float64

	// Chunking
	ChunkTokenSize    int
	ChunkTokenOverlap int

	// Search tuning
	SearchMaxResults int
	SearchMinScore   float64
	VectorWeight     float64
	TextWeight       float64

	// Embedding cache
	CacheEnabled              bool
	CacheMaxEntries           int
	CacheTTLDays              int
	CacheCleanupIntervalHours int

	// Indexing policy defaults
	AutoIndex          bool
	IndexOnSessionEnd  bool
	MinMessagesToIndex int

	// Scheduler
	SchedulerEnabled           bool
	ConsolidationIntervalHours int
	RescoreIntervalHours       int
	PurgeIntervalHours         int

	// Memory document
	MinImportanceForDoc float64

	LogLevel string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:   envInt("PORT", 8764),
		DBPath: envStr("ENGRAM_DB_PATH", "/data/engram.db"),
		APIKey: envStr("API_KEY", ""),

		OllamaBaseURL:     envStr("OLLAMA_BASE_URL", "http://localhost:11434"),
		EmbeddingProvider: envStr("EMBEDDING_PROVIDER", "ollama"),
		EmbeddingModel:    envStr("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:      envInt("EMBEDDING_DIM", 768),

		ChatModel:          envStr("CHAT_MODEL", "qwen2.5:7b"),
		MaxFactsPerCall:    envInt("MAX_FACTS_PER_EXTRACTION", 20),
		MinFactConfidence:  envFloat("MIN_FACT_CONFIDENCE", 0.6),
		FactDedupThreshold: envFloat("FACT_DEDUP_THRESHOLD", 0.9),

		ChunkTokenSize:    envInt("CHUNK_TOKEN_SIZE", 400),
		ChunkTokenOverlap: envInt("CHUNK_TOKEN_OVERLAP", 80),

		SearchMaxResults: envInt("SEARCH_MAX_RESULTS", 6),
		SearchMinScore:   envFloat("SEARCH_MIN_SCORE", 0.35),
		VectorWeight:     envFloat("VECTOR_WEIGHT", 0.7),
		TextWeight:       envFloat("TEXT_WEIGHT", 0.3),

		CacheEnabled:              envBool("CACHE_ENABLED", true),
		CacheMaxEntries:           envInt("CACHE_MAX_ENTRIES", 50000),
		CacheTTLDays:              envInt("CACHE_TTL_DAYS", 90),
		CacheCleanupIntervalHours: envInt("CACHE_CLEANUP_INTERVAL_HOURS", 24),

		AutoIndex:          envBool("AUTO_INDEX", true),
		IndexOnSessionEnd:  envBool("INDEX_ON_SESSION_END", true),
		MinMessagesToIndex: envInt("MIN_MESSAGES_TO_INDEX", 5),

		SchedulerEnabled:           envBool("SCHEDULER_ENABLED", true),
		ConsolidationIntervalHours: envInt("CONSOLIDATION_INTERVAL_HOURS", 6),
		RescoreIntervalHours:       envInt("RESCORE_INTERVAL_HOURS", 24),
		PurgeIntervalHours:         envInt("PURGE_INTERVAL_HOURS", 24),

		MinImportanceForDoc: envFloat("MIN_IMPORTANCE_FOR_DOC", 0.5),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}

	cfg.normalizeWeights()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// normalizeWeights rescales the hybrid search weights to sum to 1.0,
// warning when the configured pair is off.
func (c *Config) normalizeWeights() {
	sum := c.VectorWeight + c.TextWeight
	if sum <= 0 {
		slog.Warn("search weights sum to zero, using defaults",
			"vector_weight", c.VectorWeight, "text_weight", c.TextWeight)
		c.VectorWeight, c.TextWeight = 0.7, 0.3
		return
	}
	if math.Abs(sum-1.0) > 0.001 {
		slog.Warn("search weights do not sum to 1.0, normalizing",
			"vector_weight", c.VectorWeight, "text_weight", c.TextWeight, "sum", sum)
		c.VectorWeight /= sum
		c.TextWeight /= sum
	}
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("ENGRAM_DB_PATH must not be empty")
	}
	if c.OllamaBaseURL == "" {
		return fmt.Errorf("OLLAMA_BASE_URL must not be empty")
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	if c.ChunkTokenSize < 1 {
		return fmt.Errorf("CHUNK_TOKEN_SIZE must be positive, got %d", c.ChunkTokenSize)
	}
	if c.ChunkTokenOverlap < 0 || c.ChunkTokenOverlap >= c.ChunkTokenSize {
		return fmt.Errorf("CHUNK_TOKEN_OVERLAP must be in [0, CHUNK_TOKEN_SIZE), got %d", c.ChunkTokenOverlap)
	}
	if c.MinFactConfidence < 0 || c.MinFactConfidence > 1 {
		return fmt.Errorf("MIN_FACT_CONFIDENCE must be in [0,1], got %f", c.MinFactConfidence)
	}
	if c.FactDedupThreshold < 0 || c.FactDedupThreshold > 1 {
		return fmt.Errorf("FACT_DEDUP_THRESHOLD must be in [0,1], got %f", c.FactDedupThreshold)
	}
	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", c.CacheMaxEntries)
	}
	if c.MinMessagesToIndex < 1 {
		return fmt.Errorf("MIN_MESSAGES_TO_INDEX must be positive, got %d", c.MinMessagesToIndex)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
