// Package llm is the completion-provider boundary. The executor builds a
// CompletionRequest; a Provider turns it into model output.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/strumhub/strumhub/agent-plane/internal/config"
)

// Message roles accepted by every provider.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn in the conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is what the executor asks of a provider.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int // 0 = provider default
}

// Usage is token accounting reported by the provider, when available.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// CompletionResponse is the raw provider result.
type CompletionResponse struct {
	Content  string `json:"content"`
	Usage    *Usage `json:"usage,omitempty"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// Provider produces a completion. Any error is treated by callers as an
// execution failure.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

const defaultMaxTokens = 1024

// NewProvider builds the provider selected by cfg.Provider. When
// fallbacks are configured the result is a Router over all of them.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	primary, err := newSingle(cfg.Provider, cfg, cfg.BaseURL, timeout)
	if err != nil {
		return nil, err
	}
	if len(cfg.Fallbacks) == 0 {
		return primary, nil
	}

	routes := []Route{{Provider: primary}}
	for _, fb := range cfg.Fallbacks {
		name, model, _ := strings.Cut(fb, ":")
		p, err := newSingle(strings.TrimSpace(name), cfg, "", timeout)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb, err)
		}
		routes = append(routes, Route{Provider: p, Model: strings.TrimSpace(model)})
	}

	switch s := Strategy(cfg.Strategy); s {
	case "", StrategyFallback, StrategyLatency, StrategyRoundRobin:
		return NewRouter(s, routes...), nil
	default:
		return nil, fmt.Errorf("unknown routing strategy %q", cfg.Strategy)
	}
}

func newSingle(kind string, cfg config.LLMConfig, baseURL string, timeout time.Duration) (Provider, error) {
	switch kind {
	case "anthropic", "":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic: ANTHROPIC_API_KEY not configured")
		}
		return NewAnthropicProvider(cfg.AnthropicKey, baseURL, timeout), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai: OPENAI_API_KEY not configured")
		}
		return NewOpenAIProvider("openai", baseURL, cfg.OpenAIKey, timeout), nil
	case "ollama":
		return NewOpenAIProvider("ollama", baseURL, "", timeout), nil
	case "mock":
		return NewMockProvider(MockResponse{Content: "This is a canned response from the mock provider."}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", kind)
	}
}

// splitSystem separates system turns from the conversation, joining them
// in order.
func splitSystem(msgs []Message) (system string, rest []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
