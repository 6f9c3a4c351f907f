// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppConfig holds all application configuration.
// It is instantiated by NewConfig() and passed to components that need it (dependency injection).
type AppConfig struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Store     StoreConfig     `mapstructure:"store"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds comprehensive logging configuration
type LogConfig struct {
	Level    string            `mapstructure:"level"`
	Format   string            `mapstructure:"format"`
	Output   []LogOutputConfig `mapstructure:"output"`
	Levels   map[string]string `mapstructure:"levels"`
	Context  LogContextConfig  `mapstructure:"context"`
	Sampling LogSamplingConfig `mapstructure:"sampling"`
}

// LogOutputConfig defines where logs are written
type LogOutputConfig struct {
	Type    string          `mapstructure:"type"` // "file" or "console"
	Enabled bool            `mapstructure:"enabled"`
	Path    string          `mapstructure:"path"`   // For file output
	Rotate  LogRotateConfig `mapstructure:"rotate"` // For file output
}

// LogRotateConfig defines log rotation settings
type LogRotateConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// LogContextConfig defines what context to include in logs
type LogContextConfig struct {
	IncludeCaller     bool   `mapstructure:"include_caller"`
	IncludeTimestamp  bool   `mapstructure:"include_timestamp"`
	IncludeStackTrace string `mapstructure:"include_stack_trace"`
}

// LogSamplingConfig defines log sampling settings
type LogSamplingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Initial    uint32        `mapstructure:"initial"`
	Thereafter uint32        `mapstructure:"thereafter"`
	Tick       time.Duration `mapstructure:"tick"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // Empty = allow all (development); set for production
	UploadDir      string   `mapstructure:"upload_dir"`      // Empty = os.TempDir()
	MaxUploadMB    int64    `mapstructure:"max_upload_mb"`
}

// WorkflowConfig holds the orchestrator's per-step deadlines.
type WorkflowConfig struct {
	RetrievalTimeout  time.Duration `mapstructure:"retrieval_timeout"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	IngestionTimeout  time.Duration `mapstructure:"ingestion_timeout"`
	NResults          int           `mapstructure:"n_results"` // Chunks requested per retrieval
}

// IngestionConfig holds chunking parameters, both in characters.
type IngestionConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"` // "memory", "sqlite" or "postgres"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	// ResetOnStart drops previously indexed chunks when the store opens.
	ResetOnStart bool `mapstructure:"reset_on_start"`
}

// EmbeddingConfig selects how chunk and query embeddings are computed.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // "hash" or "openai"
	Dimensions int    `mapstructure:"dimensions"`
	Host       string `mapstructure:"host"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BatchSize  int    `mapstructure:"batch_size"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// LLMConfig selects the answer generator.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // "openai", "anthropic" or "extractive"
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
}

// TelemetryConfig holds OpenTelemetry tracing configuration.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"` // host:port of the OTLP/HTTP collector
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// NewConfig creates a new AppConfig by reading from a file, environment variables,
// and applying defaults.
func NewConfig(configPath string) (*AppConfig, error) {
	cfg := defaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ragbus/")
		v.AddConfigPath("$HOME/.ragbus")
	}

	v.SetEnvPrefix("RAGBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider-native variables are honoured when the prefixed ones are absent.
	if err := v.BindEnv("llm.api_key", "RAGBUS_LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind llm api key: %w", err)
	}
	if err := v.BindEnv("embedding.api_key", "RAGBUS_EMBEDDING_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind embedding api key: %w", err)
	}

	// Read the config file. It's okay if it doesn't exist.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about, so register
	// every default before unmarshalling.
	registerDefaults(v, cfg)

	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without reading files or env.
func Default() *AppConfig {
	cfg := defaultConfig()
	return &cfg
}

// defaultConfig returns an AppConfig with default values.
func defaultConfig() AppConfig {
	return AppConfig{
		Log: LogConfig{
			Level:  "INFO",
			Format: "console",
			Output: []LogOutputConfig{
				{
					Type:    "console",
					Enabled: true,
				},
				{
					Type:    "file",
					Enabled: false,
					Path:    "./logs/ragbus.log",
					Rotate: LogRotateConfig{
						MaxSizeMB:  100,
						MaxBackups: 7,
						MaxAgeDays: 30,
						Compress:   true,
					},
				},
			},
			Levels: map[string]string{
				"bus":          "INFO",
				"orchestrator": "INFO",
				"agents":       "INFO",
				"store":        "INFO",
				"llm":          "INFO",
				"api":          "INFO",
			},
			Context: LogContextConfig{
				IncludeCaller:     false,
				IncludeTimestamp:  true,
				IncludeStackTrace: "ERROR",
			},
			Sampling: LogSamplingConfig{
				Enabled:    false,
				Initial:    100,
				Thereafter: 100,
				Tick:       time.Second,
			},
		},
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8000,
			MaxUploadMB: 32,
		},
		Workflow: WorkflowConfig{
			RetrievalTimeout:  10 * time.Second,
			GenerationTimeout: 30 * time.Second,
			IngestionTimeout:  60 * time.Second,
			NResults:          3,
		},
		Ingestion: IngestionConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Store: StoreConfig{
			Driver:   "memory",
			Database: "ragbus.db",
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Dimensions: 512,
			Host:       "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			BatchSize:  64,
			PoolSize:   4,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "llama-3.3-70b-versatile",
			BaseURL:     "https://api.groq.com/openai/v1",
			Temperature: 0.1,
			MaxTokens:   1024,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "ragbus",
		},
	}
}

// registerDefaults teaches viper every scalar key of cfg so that environment
// overrides are picked up by Unmarshal.
func registerDefaults(v *viper.Viper, cfg AppConfig) {
	var defaults map[string]interface{}
	if err := mapstructure.Decode(cfg, &defaults); err != nil {
		return
	}
	setDefaults(v, "", defaults)
}

func setDefaults(v *viper.Viper, prefix string, values map[string]interface{}) {
	for key, value := range values {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			setDefaults(v, full, nested)
			continue
		}
		if !v.IsSet(full) {
			v.SetDefault(full, value)
		}
	}
}

// expandPaths expands ~ and environment variables in path configuration values
func (c *AppConfig) expandPaths() {
	if c.Server.UploadDir != "" {
		c.Server.UploadDir = expandPath(c.Server.UploadDir)
	}
	for i := range c.Log.Output {
		if c.Log.Output[i].Path != "" {
			c.Log.Output[i].Path = expandPath(c.Log.Output[i].Path)
		}
	}
	if c.Store.Driver == "sqlite" && c.Store.Database != ":memory:" {
		c.Store.Database = expandPath(c.Store.Database)
	}
}

// expandPath expands ~ to home directory and environment variables
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	return os.ExpandEnv(path)
}

// validate checks if the configuration is valid.
func (c *AppConfig) validate() error {
	validLogLevels := map[string]bool{
		"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "FATAL": true, "PANIC": true,
	}
	if !validLogLevels[strings.ToUpper(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Workflow.RetrievalTimeout <= 0 || c.Workflow.GenerationTimeout <= 0 || c.Workflow.IngestionTimeout <= 0 {
		return errors.New("workflow timeouts must be positive")
	}
	if c.Workflow.NResults <= 0 {
		return fmt.Errorf("workflow.n_results must be positive, got: %d", c.Workflow.NResults)
	}

	if c.Ingestion.ChunkSize <= 0 {
		return fmt.Errorf("ingestion.chunk_size must be positive, got: %d", c.Ingestion.ChunkSize)
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunk_overlap must be in [0, chunk_size), got: %d", c.Ingestion.ChunkOverlap)
	}

	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be 'memory', 'sqlite' or 'postgres', got: %s", c.Store.Driver)
	}

	switch c.Embedding.Provider {
	case "hash":
		if c.Embedding.Dimensions <= 0 {
			return errors.New("embedding.dimensions must be positive")
		}
	case "openai":
		if c.Embedding.Model == "" {
			return errors.New("embedding.model is required for the openai provider")
		}
	default:
		return fmt.Errorf("embedding.provider must be 'hash' or 'openai', got: %s", c.Embedding.Provider)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic", "extractive":
	default:
		return fmt.Errorf("llm.provider must be 'openai', 'anthropic' or 'extractive', got: %s", c.LLM.Provider)
	}

	return nil
}

// GetDSN returns the database connection string.
func (sc *StoreConfig) GetDSN() string {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.Database
		if dsn == ":memory:" {
			dsn = "file::memory:?cache=shared"
		}
		return dsn
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			sc.Host, sc.Port, sc.Username, sc.Password, sc.Database, sc.SSLMode)
	default:
		return sc.Database
	}
}
