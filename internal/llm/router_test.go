package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strumhub/strumhub/agent-plane/internal/config"
	"github.com/strumhub/strumhub/agent-plane/internal/llm"
)

// named wraps a mock so routes can be told apart.
type named struct {
	*llm.MockProvider
	name string
}

func (n named) Name() string { return n.name }

func TestRouter_FallsBackOnError(t *testing.T) {
	bad := named{llm.NewMockProvider(llm.MockResponse{Error: errors.New("overloaded")}), "primary"}
	good := named{llm.NewMockProvider(llm.MockResponse{Content: "from backup"}), "backup"}

	r := llm.NewRouter(llm.StrategyFallback,
		llm.Route{Provider: bad},
		llm.Route{Provider: good, Model: "gpt-4o-mini"},
	)
	resp, err := r.Complete(context.Background(), llm.CompletionRequest{Model: "claude-3-5-haiku-latest", Messages: twoTurns()})
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Content)

	require.Len(t, bad.Calls(), 1)
	assert.Equal(t, "claude-3-5-haiku-latest", bad.Calls()[0].Model)
	require.Len(t, good.Calls(), 1)
	assert.Equal(t, "gpt-4o-mini", good.Calls()[0].Model, "route model overrides request model")
	assert.Equal(t, "router(primary,backup)", r.Name())
}

func TestRouter_AllFail(t *testing.T) {
	a := named{llm.NewMockProvider(llm.MockResponse{Error: errors.New("boom a")}), "a"}
	b := named{llm.NewMockProvider(llm.MockResponse{Error: errors.New("boom b")}), "b"}

	_, err := llm.NewRouter("", llm.Route{Provider: a}, llm.Route{Provider: b}).
		Complete(context.Background(), llm.CompletionRequest{Messages: twoTurns()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom a")
	assert.Contains(t, err.Error(), "boom b")
}

func TestRouter_Empty(t *testing.T) {
	_, err := llm.NewRouter(llm.StrategyFallback).Complete(context.Background(), llm.CompletionRequest{})
	assert.Error(t, err)
}

func TestRouter_CancelledContextStops(t *testing.T) {
	a := named{llm.NewMockProvider(llm.MockResponse{Content: "x"}), "a"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := llm.NewRouter(llm.StrategyFallback, llm.Route{Provider: a}).Complete(ctx, llm.CompletionRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, a.Calls())
}

func TestRouter_RoundRobin(t *testing.T) {
	a := named{llm.NewMockProvider(llm.MockResponse{Content: "a"}), "a"}
	b := named{llm.NewMockProvider(llm.MockResponse{Content: "b"}), "b"}
	r := llm.NewRouter(llm.StrategyRoundRobin, llm.Route{Provider: a}, llm.Route{Provider: b})

	var got []string
	for range 4 {
		resp, err := r.Complete(context.Background(), llm.CompletionRequest{})
		require.NoError(t, err)
		got = append(got, resp.Content)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, got)
}

func TestRouter_LatencyRecorded(t *testing.T) {
	a := named{llm.NewMockProvider(llm.MockResponse{Content: "a"}), "a"}
	r := llm.NewRouter(llm.StrategyLatency, llm.Route{Provider: a})

	_, err := r.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.Latency("a").Nanoseconds(), int64(0))
	assert.Zero(t, r.Latency("missing"))
}

func TestNewProvider_Fallbacks(t *testing.T) {
	p, err := llm.NewProvider(config.LLMConfig{
		Provider:     "anthropic",
		AnthropicKey: "k",
		Fallbacks:    []string{"ollama:llama3.1", "mock"},
		Strategy:     "latency",
	})
	require.NoError(t, err)
	assert.Equal(t, "router(anthropic,ollama,mock)", p.Name())

	_, err = llm.NewProvider(config.LLMConfig{Provider: "mock", Fallbacks: []string{"openai:gpt-4o"}})
	assert.Error(t, err, "openai fallback without key")

	_, err = llm.NewProvider(config.LLMConfig{Provider: "mock", Fallbacks: []string{"mock"}, Strategy: "cheapest"})
	assert.Error(t, err)
}

func TestRouter_LatencyDemotesFailingProvider(t *testing.T) {
	bad := named{llm.NewMockProvider(llm.MockResponse{Error: errors.New("overloaded")}), "bad"}
	good := named{llm.NewMockProvider(llm.MockResponse{Content: "ok"}), "good"}
	r := llm.NewRouter(llm.StrategyLatency, llm.Route{Provider: bad}, llm.Route{Provider: good})

	for range 3 {
		resp, err := r.Complete(context.Background(), llm.CompletionRequest{})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Content)
	}
	assert.Equal(t, 1, bad.CallCount(), "failing provider is only tried until it is measured")
	assert.GreaterOrEqual(t, r.Latency("bad"), llm.FailurePenalty)
}
