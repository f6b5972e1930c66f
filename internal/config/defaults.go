package config

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "config.yaml"

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8000
	cfg.Server.GRPCPort = 0
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.MaxBodyBytes = 16 << 20
	cfg.Server.RateLimitPerMinute = 60
	cfg.Server.ReadTimeoutSec = 30
	cfg.Server.WriteTimeoutSec = 60

	// LLM defaults
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.LightModel = "gpt-4o-mini"
	cfg.LLM.FullModel = "gpt-4o"
	cfg.LLM.TimeoutSeconds = 30
	cfg.LLM.Temperature = 0

	// Retrieval defaults
	cfg.Retrieval.TopK = 5
	cfg.Retrieval.SnippetChars = 1000

	// Context defaults
	cfg.Context.HalfWidth = 30

	// Routing defaults
	cfg.Routing.MaxLightLogChars = 500
	cfg.Routing.MaxLightFiles = 3

	// Prompt defaults
	cfg.Prompt.ExemplarsPath = "prompt.examples.json"

	// Database defaults
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = "metrics.db"
	cfg.Database.PostgresURL = ""

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	// Audit defaults
	cfg.Audit.Enabled = false
	cfg.Audit.Path = "audit.log"

	// Tracing defaults
	cfg.Tracing.Endpoint = ""
	cfg.Tracing.SamplingRate = 1.0
	cfg.Tracing.ServiceName = "kubilitics-copilot"

	return cfg
}
