package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kubilitics/kubilitics-copilot/internal/llm/provider/openai"
	"github.com/kubilitics/kubilitics-copilot/internal/llm/types"
	"github.com/kubilitics/kubilitics-copilot/internal/metrics"
)

// ProviderType identifies which LLM provider is configured
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderCustom ProviderType = "custom"
	ProviderNone   ProviderType = "none" // No LLM configured
)

// DefaultTimeout bounds a single completion when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// ErrProviderNotConfigured is returned when an LLM operation is attempted without a configured provider
var ErrProviderNotConfigured = errors.New("LLM provider not configured")

// Config holds LLM provider configuration
type Config struct {
	Provider ProviderType
	APIKey   string // For OpenAI
	BaseURL  string // For Custom, optional for OpenAI
	Timeout  time.Duration
}

// completer is the provider client contract the adapter delegates to.
type completer interface {
	Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error)
}

// llmAdapterImpl is the unified adapter implementation
type llmAdapterImpl struct {
	provider ProviderType
	timeout  time.Duration
	client   completer
}

// NewLLMAdapter creates an adapter from configuration. Missing credentials
// yield an unconfigured adapter rather than an error, so the service starts
// in simulation mode.
func NewLLMAdapter(cfg Config) (LLMAdapter, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	none := &llmAdapterImpl{provider: ProviderNone, timeout: timeout}

	switch cfg.Provider {
	case "", ProviderNone:
		return none, nil

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return none, nil
		}
		return &llmAdapterImpl{
			provider: ProviderOpenAI,
			timeout:  timeout,
			client:   openai.NewClient(cfg.APIKey, openai.WithBaseURL(cfg.BaseURL)),
		}, nil

	case ProviderCustom:
		if cfg.BaseURL == "" {
			return none, nil
		}
		return &llmAdapterImpl{
			provider: ProviderCustom,
			timeout:  timeout,
			client:   openai.NewClient(cfg.APIKey, openai.WithBaseURL(cfg.BaseURL)),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// Complete delegates to the provider client under the adapter timeout.
func (a *llmAdapterImpl) Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error) {
	if a.client == nil {
		return nil, ErrProviderNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Complete(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(string(a.provider), req.Model, status).Inc()

	return resp, err
}

func (a *llmAdapterImpl) Provider() ProviderType { return a.provider }

func (a *llmAdapterImpl) IsConfigured() bool { return a.client != nil }
