package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mnema-labs/mnema/mnema"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Core      CoreConfig      `mapstructure:"core"`
	Models    ModelsConfig    `mapstructure:"models"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Context   ContextConfig   `mapstructure:"context"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
	// Embedded-only configuration
	DataDir string `mapstructure:"data_dir"` // Directory for database files
}

// CoreConfig stores application-level settings.
type CoreConfig struct {
	Database     DatabaseConfig `mapstructure:"database"`
	AttachDir    string         `mapstructure:"attach_dir"`     // Drop directory watched for documents
	WatchAttach  bool           `mapstructure:"watch_attach"`   // Enable the attach-directory watcher
	SystemPrompt string         `mapstructure:"system_prompt"`  // Base system prompt for assembly
	DefaultModel string         `mapstructure:"default_model"`  // Model profile used when none is named
	SessionTitle string         `mapstructure:"session_title"`  // Optional title recorded in the archive
}

// ModelProfile describes one model's token accounting parameters.
type ModelProfile struct {
	Provider        string  `mapstructure:"provider"`         // "openai", "anthropic", "local"
	ContextWindow   int     `mapstructure:"context_window"`   // Total token window
	CharsPerToken   float64 `mapstructure:"chars_per_token"`  // Approximation ratio
	MessageOverhead int     `mapstructure:"message_overhead"` // Fixed tokens added per message
	PromptOverhead  int     `mapstructure:"prompt_overhead"`  // Fixed tokens added per assembled prompt
}

// ModelsConfig maps model identifiers to their profiles.
type ModelsConfig struct {
	Profiles map[string]ModelProfile `mapstructure:"profiles"`
}

// EmbeddingConfig stores embedding model configurations.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`   // "hash", "llama"
	ModelPath string `mapstructure:"model_path"` // GGUF path for the llama provider
	Dims      int    `mapstructure:"dims"`       // Embedding dimensions
	BatchSize int    `mapstructure:"batch_size"` // Batch size for inference
}

// RetrievalConfig stores fusion engine and index configurations.
type RetrievalConfig struct {
	K             int           `mapstructure:"k"`              // Top-k results to return
	OverfetchMult int           `mapstructure:"overfetch_mult"` // Per-index candidate multiplier
	RRFK          float64       `mapstructure:"rrf_k"`          // Rank fusion constant
	RecencyLambda float64       `mapstructure:"recency_lambda"` // Recency decay per day
	QueryTimeout  time.Duration `mapstructure:"query_timeout"`  // Per-index query budget

	DenseIndex   string `mapstructure:"dense_index"`   // "flat"
	LexicalIndex string `mapstructure:"lexical_index"` // "memory", "fts5"

	// Indexer settings
	ChunkSize    int `mapstructure:"chunk_size"`    // Target chunk size in characters
	ChunkOverlap int `mapstructure:"chunk_overlap"` // Overlap between adjacent chunks

	// Write conflict retry
	WriteRetries      int           `mapstructure:"write_retries"`
	WriteRetryBackoff time.Duration `mapstructure:"write_retry_backoff"`
}

// ContextConfig stores compression policy configurations.
type ContextConfig struct {
	CompressAt float64 `mapstructure:"compress_at"` // Fraction of window that triggers compression
	WarnAt     float64 `mapstructure:"warn_at"`     // Fraction of window reported as warning
	MinKeep    int     `mapstructure:"min_keep"`    // Live turns always kept out of a span
	MinSpan    int     `mapstructure:"min_span"`    // Minimum turns before drift may trigger

	// Drift detection
	DriftWindow    int     `mapstructure:"drift_window"`    // Turns per drift window
	DriftThreshold float64 `mapstructure:"drift_threshold"` // Cosine distance threshold
	DriftDecay     float64 `mapstructure:"drift_decay"`     // EWMA decay for the centroid

	// Intent tracking
	IntentDecay float64 `mapstructure:"intent_decay"` // Confidence decay per quiet turn
}

// ArchiveConfig stores session archive configurations.
type ArchiveConfig struct {
	Dir               string `mapstructure:"dir"`                // Directory for JSONL session records
	GenerateArtifacts bool   `mapstructure:"generate_artifacts"` // Produce outline/decision artifacts on close
	ArtifactDir       string `mapstructure:"artifact_dir"`       // Directory for generated artifacts
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join("etc", mnema.DefaultAppName))
		viper.AddConfigPath(mnema.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Core defaults
	viper.SetDefault("core.database.dsn", mnema.DefaultDatabaseDSN)
	viper.SetDefault("core.database.type", mnema.DefaultDatabaseType)
	viper.SetDefault("core.database.data_dir", mnema.DefaultDataDir)
	viper.SetDefault("core.attach_dir", mnema.DefaultAttachDir)
	viper.SetDefault("core.watch_attach", false)
	viper.SetDefault("core.system_prompt", "You are a helpful assistant.")
	viper.SetDefault("core.default_model", "local-small")

	// Model profile defaults
	viper.SetDefault("models.profiles.local-small.provider", "local")
	viper.SetDefault("models.profiles.local-small.context_window", 8192)
	viper.SetDefault("models.profiles.local-small.chars_per_token", 4.0)
	viper.SetDefault("models.profiles.local-small.message_overhead", 4)
	viper.SetDefault("models.profiles.local-small.prompt_overhead", 10)

	// Embedding defaults
	viper.SetDefault("embedding.provider", "hash")
	viper.SetDefault("embedding.model_path", "")
	viper.SetDefault("embedding.dims", 384)
	viper.SetDefault("embedding.batch_size", 32)

	// Retrieval defaults
	viper.SetDefault("retrieval.k", 5)
	viper.SetDefault("retrieval.overfetch_mult", 4)
	viper.SetDefault("retrieval.rrf_k", 60.0)
	viper.SetDefault("retrieval.recency_lambda", 0.1)
	viper.SetDefault("retrieval.query_timeout", "500ms")
	viper.SetDefault("retrieval.dense_index", "flat")
	viper.SetDefault("retrieval.lexical_index", "memory")
	viper.SetDefault("retrieval.chunk_size", 1200)
	viper.SetDefault("retrieval.chunk_overlap", 200)
	viper.SetDefault("retrieval.write_retries", 3)
	viper.SetDefault("retrieval.write_retry_backoff", "50ms")

	// Context defaults
	viper.SetDefault("context.compress_at", 0.80)
	viper.SetDefault("context.warn_at", 0.60)
	viper.SetDefault("context.min_keep", 4)
	viper.SetDefault("context.min_span", 4)
	viper.SetDefault("context.drift_window", 6)
	viper.SetDefault("context.drift_threshold", 0.25)
	viper.SetDefault("context.drift_decay", 0.3)
	viper.SetDefault("context.intent_decay", 0.3)

	// Archive defaults
	viper.SetDefault("archive.dir", mnema.DefaultArchiveDir)
	viper.SetDefault("archive.generate_artifacts", true)
	viper.SetDefault("archive.artifact_dir", filepath.Join(mnema.DefaultDataDir, "artifacts"))

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults apply.
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
