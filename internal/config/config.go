package config

import "context"

// Package config provides configuration management for the copilot service.
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (highest priority)
//   2. Environment variables (COPILOT_* prefix, plus OPENAI_API_KEY and METRICS_DB)
//   3. YAML config file (default: config.yaml)
//   4. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server     - listen address, gRPC health port, CORS, body and rate limits
//   2. LLM        - provider, credentials, per-tier model names, call timeout
//   3. Retrieval  - top-k and snippet truncation for the similarity index
//   4. Context    - half-width of the line window around error references
//   5. Routing    - thresholds for the light model tier
//   6. Prompt     - path of the few-shot exemplar file
//   7. Database   - "sqlite" | "postgres" metrics sink
//   8. Logging    - level, format, optional rotated file
//   9. Audit      - diagnosis audit trail
//  10. Tracing    - OTLP endpoint and sampling
//
// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Host     string
		Port     int
		GRPCPort int
		// AllowedOrigins is a list of origins permitted by CORS and the WebSocket upgrader.
		// Use ["*"] to allow any origin (development only).
		AllowedOrigins     []string
		MaxBodyBytes       int64
		RateLimitPerMinute int
		ReadTimeoutSec     int
		WriteTimeoutSec    int
	}

	// LLM provider configuration
	LLM struct {
		Provider       string // "openai" | "custom" | "none"
		APIKey         string
		BaseURL        string
		LightModel     string
		FullModel      string
		TimeoutSeconds int
		Temperature    float64
	}

	// Retrieval configuration
	Retrieval struct {
		TopK         int
		SnippetChars int
	}

	// Context window configuration
	Context struct {
		HalfWidth int
	}

	// Routing configuration
	Routing struct {
		MaxLightLogChars int
		MaxLightFiles    int
	}

	// Prompt configuration
	Prompt struct {
		ExemplarsPath string
	}

	// Database configuration
	Database struct {
		Type        string
		SQLitePath  string
		PostgresURL string
	}

	// Logging configuration
	Logging struct {
		Level      string
		Format     string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}

	// Audit configuration
	Audit struct {
		Enabled bool
		Path    string
	}

	// Tracing configuration
	Tracing struct {
		Endpoint     string
		SamplingRate float64
		ServiceName  string
	}
}

// LLMConfigured reports whether a live model can be called.
func (c *Config) LLMConfigured() bool {
	switch c.LLM.Provider {
	case "openai":
		return c.LLM.APIKey != ""
	case "custom":
		return c.LLM.BaseURL != ""
	default:
		return false
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration file changes and reloads.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager(DefaultConfigPath)
}
