package config

import (
	"fmt"
	"strings"

	"github.com/kubilitics/kubilitics-copilot/internal/memory/vector"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
// A missing API key is not an error: the service then runs in simulation mode.
func (c *Config) Validate() []error {
	var errs []error

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.grpc_port",
			Message: fmt.Sprintf("grpc_port must be 0 (disabled) or a valid port, got %d", c.Server.GRPCPort),
		})
	} else if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		errs = append(errs, &ValidationError{
			Field:   "server.grpc_port",
			Message: "grpc_port must differ from port",
		})
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "server.max_body_bytes",
			Message: "max_body_bytes must be positive",
		})
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, &ValidationError{
			Field:   "server.rate_limit_per_minute",
			Message: "rate_limit_per_minute must be >= 0 (0 disables limiting)",
		})
	}

	// LLM
	validProviders := map[string]bool{"openai": true, "custom": true, "none": true}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("invalid provider: %s (must be openai, custom, or none)", c.LLM.Provider),
		})
	}
	if c.LLM.Provider == "custom" && c.LLM.BaseURL == "" {
		errs = append(errs, &ValidationError{
			Field:   "llm.base_url",
			Message: "base_url is required for the custom provider",
		})
	}
	if c.LLM.Provider != "none" {
		if c.LLM.LightModel == "" {
			errs = append(errs, &ValidationError{Field: "llm.light_model", Message: "light_model is required"})
		}
		if c.LLM.FullModel == "" {
			errs = append(errs, &ValidationError{Field: "llm.full_model", Message: "full_model is required"})
		}
	}
	if c.LLM.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.timeout_seconds",
			Message: fmt.Sprintf("timeout_seconds must be at least 1, got %d", c.LLM.TimeoutSeconds),
		})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, &ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("temperature must be between 0 and 2, got %g", c.LLM.Temperature),
		})
	}

	// Retrieval
	if c.Retrieval.TopK < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retrieval.top_k",
			Message: fmt.Sprintf("top_k must be at least 1, got %d", c.Retrieval.TopK),
		})
	}
	if c.Retrieval.SnippetChars < 1 || c.Retrieval.SnippetChars > vector.DefaultSnippetChars {
		errs = append(errs, &ValidationError{
			Field:   "retrieval.snippet_chars",
			Message: fmt.Sprintf("snippet_chars must be between 1 and %d, got %d", vector.DefaultSnippetChars, c.Retrieval.SnippetChars),
		})
	}

	// Context
	if c.Context.HalfWidth < 1 {
		errs = append(errs, &ValidationError{
			Field:   "context.half_width",
			Message: fmt.Sprintf("half_width must be at least 1, got %d", c.Context.HalfWidth),
		})
	}

	// Routing
	if c.Routing.MaxLightLogChars < 0 || c.Routing.MaxLightFiles < 0 {
		errs = append(errs, &ValidationError{Field: "routing", Message: "light-tier thresholds must be >= 0"})
	}

	// Database
	switch c.Database.Type {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, &ValidationError{
				Field:   "database.sqlite_path",
				Message: "sqlite_path is required when type is sqlite",
			})
		}
	case "postgres":
		if c.Database.PostgresURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "database.postgres_url",
				Message: "postgres_url is required when type is postgres",
			})
		}
	default:
		errs = append(errs, &ValidationError{
			Field:   "database.type",
			Message: fmt.Sprintf("invalid database type: %s (must be sqlite or postgres)", c.Database.Type),
		})
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level),
		})
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (must be json or console)", c.Logging.Format),
		})
	}

	// Audit
	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, &ValidationError{Field: "audit.path", Message: "path is required when audit is enabled"})
	}

	// Tracing
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, &ValidationError{
			Field:   "tracing.sampling_rate",
			Message: fmt.Sprintf("sampling_rate must be between 0 and 1, got %g", c.Tracing.SamplingRate),
		})
	}

	return errs
}
