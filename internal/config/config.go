package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main kontext configuration
type Config struct {
	// Data directory (database, vector index sidecar, logs)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Workspace path to index
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`

	// Indexing pipeline
	Indexing IndexingConfig `json:"indexing" mapstructure:"indexing"`

	// Embedding provider chain
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Context assembly
	Context ContextConfig `json:"context" mapstructure:"context"`

	// Conversation memory
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// IndexingConfig holds indexing pipeline configuration
type IndexingConfig struct {
	MaxFileSizeBytes int64    `json:"max_file_size_bytes" mapstructure:"max_file_size_bytes"`
	BatchSize        int      `json:"batch_size" mapstructure:"batch_size"`
	BatchDelayMs     int      `json:"batch_delay_ms" mapstructure:"batch_delay_ms"`
	InterBatchMs     int      `json:"inter_batch_ms" mapstructure:"inter_batch_ms"`
	WarmupDelayMs    int      `json:"warmup_delay_ms" mapstructure:"warmup_delay_ms"`
	SweepBatchSize   int      `json:"sweep_batch_size" mapstructure:"sweep_batch_size"`
	SweepCron        string   `json:"sweep_cron" mapstructure:"sweep_cron"`
	ExcludedDirs     []string `json:"excluded_dirs" mapstructure:"excluded_dirs"`
	ExcludedExts     []string `json:"excluded_exts" mapstructure:"excluded_exts"`
}

// EmbeddingConfig holds embedding provider chain configuration
type EmbeddingConfig struct {
	Dimension      int    `json:"dimension" mapstructure:"dimension"`
	LocalEnabled   bool   `json:"local_enabled" mapstructure:"local_enabled"`
	LocalCacheDir  string `json:"local_cache_dir" mapstructure:"local_cache_dir"`
	OpenAIAPIKey   string `json:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIModel    string `json:"openai_model" mapstructure:"openai_model"`
	CacheSize      int    `json:"cache_size" mapstructure:"cache_size"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxChars       int    `json:"max_chars" mapstructure:"max_chars"`
}

// ContextConfig holds context assembly configuration
type ContextConfig struct {
	DefaultMaxTokens int `json:"default_max_tokens" mapstructure:"default_max_tokens"`
	MaxOpenFiles     int `json:"max_open_files" mapstructure:"max_open_files"`
	MaxSearchResults int `json:"max_search_results" mapstructure:"max_search_results"`
}

// MemoryConfig holds conversation memory configuration
type MemoryConfig struct {
	MaxMessages         int     `json:"max_messages" mapstructure:"max_messages"`
	MaxTokens           int     `json:"max_tokens" mapstructure:"max_tokens"`
	MemoryLength        int     `json:"memory_length" mapstructure:"memory_length"`
	Strategy            string  `json:"strategy" mapstructure:"strategy"` // lru, importance, hybrid
	ImportanceThreshold float64 `json:"importance_threshold" mapstructure:"importance_threshold"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Indexing: IndexingConfig{
			MaxFileSizeBytes: 500 * 1024,
			BatchSize:        3,
			BatchDelayMs:     1000,
			InterBatchMs:     100,
			WarmupDelayMs:    5000,
			SweepBatchSize:   50,
			SweepCron:        "",
			ExcludedDirs: []string{
				".git", ".hg", ".svn", "node_modules", "vendor", "dist",
				"build", "out", "target", ".next", ".cache", "__pycache__",
				".venv", "venv", "coverage",
			},
			ExcludedExts: []string{
				".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico", ".svg",
				".mp3", ".mp4", ".wav", ".avi", ".mov", ".pdf", ".zip",
				".tar", ".gz", ".7z", ".exe", ".dll", ".so", ".dylib",
				".bin", ".o", ".a", ".class", ".pyc", ".woff", ".woff2",
				".ttf", ".eot", ".lock",
			},
		},
		Embedding: EmbeddingConfig{
			Dimension:      384,
			LocalEnabled:   false,
			OpenAIModel:    "text-embedding-3-small",
			CacheSize:      1000,
			TimeoutSeconds: 5,
			MaxChars:       32000,
		},
		Context: ContextConfig{
			DefaultMaxTokens: 4000,
			MaxOpenFiles:     5,
			MaxSearchResults: 10,
		},
		Memory: MemoryConfig{
			MaxMessages:         50,
			MaxTokens:           8000,
			MemoryLength:        10,
			Strategy:            "hybrid",
			ImportanceThreshold: 0.7,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.WorkspacePath == "" {
		return fmt.Errorf("workspace_path is required")
	}

	if c.Indexing.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("indexing.max_file_size_bytes must be positive")
	}
	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("indexing.batch_size must be positive")
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive")
	}
	if c.Embedding.CacheSize <= 0 {
		return fmt.Errorf("embedding.cache_size must be positive")
	}

	if c.Context.DefaultMaxTokens <= 0 {
		return fmt.Errorf("context.default_max_tokens must be positive")
	}

	switch c.Memory.Strategy {
	case "lru", "importance", "hybrid":
	default:
		return fmt.Errorf("invalid memory strategy: %s (must be: lru, importance, hybrid)", c.Memory.Strategy)
	}
	if c.Memory.MemoryLength <= 0 {
		return fmt.Errorf("memory.memory_length must be positive")
	}
	if c.Memory.ImportanceThreshold < 0 || c.Memory.ImportanceThreshold > 1 {
		return fmt.Errorf("memory.importance_threshold must be in [0,1]")
	}

	return nil
}
