package adapter

import (
	"context"

	"github.com/kubilitics/kubilitics-copilot/internal/llm/types"
)

// Package adapter provides a unified interface over the configured LLM provider.
//
// Supported Providers:
//   1. OpenAI: gpt-4o-mini (light tier), gpt-4o (full tier)
//   2. Custom: any OpenAI-compatible endpoint (vLLM, LocalAI, LM Studio)
//
// Fallback Behavior (No LLM Configured):
//   - Complete returns ErrProviderNotConfigured without network I/O
//   - The diagnosis pipeline answers with deterministic synthesis instead
//   - /health reports llm_configured=false

// LLMAdapter defines the unified interface for LLM providers.
type LLMAdapter interface {
	// Complete sends a prompt and returns a completion (non-streaming).
	// The call is bounded by the adapter's timeout as well as ctx.
	Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error)

	// Provider returns the configured provider, ProviderNone when degraded.
	Provider() ProviderType

	// IsConfigured reports whether Complete can reach a model.
	IsConfigured() bool
}
