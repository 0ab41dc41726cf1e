package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strumhub/strumhub/agent-plane/internal/config"
	"github.com/strumhub/strumhub/agent-plane/internal/llm"
)

func twoTurns() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a guitar teacher's assistant."},
		{Role: llm.RoleUser, Content: "student_name: Jane"},
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"content":"Great lesson!"}}],
			"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`))
	}))
	defer srv.Close()

	p := llm.NewOpenAIProvider("openai", srv.URL+"/v1/", "sk-test", 5*time.Second)
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Model: "gpt-4o-mini", Messages: twoTurns(), Temperature: 0.3, MaxTokens: 200,
	})
	require.NoError(t, err)

	assert.Equal(t, "Great lesson!", resp.Content)
	assert.Equal(t, "openai", resp.Provider)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, int64(15), resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.InDelta(t, 0.3, got["temperature"], 1e-9)
	assert.EqualValues(t, 200, got["max_tokens"])
	assert.Len(t, got["messages"], 2)
}

func TestOpenAIProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := llm.NewOpenAIProvider("ollama", srv.URL, "", time.Second)
	_, err := p.Complete(context.Background(), llm.CompletionRequest{Model: "llama3", Messages: twoTurns()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"Practice "},{"type":"text","text":"scales."}],
			"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":4}}`))
	}))
	defer srv.Close()

	p := llm.NewAnthropicProvider("sk-ant-test", srv.URL, 5*time.Second)
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Model: "claude-3-5-haiku-latest", Messages: twoTurns(), Temperature: 0.5,
	})
	require.NoError(t, err)

	assert.Equal(t, "Practice scales.", resp.Content)
	assert.Equal(t, int64(24), resp.Usage.TotalTokens)

	// System prompt travels in the top-level system field, not as a turn.
	assert.Len(t, got["messages"], 1)
	assert.NotEmpty(t, got["system"])
	assert.EqualValues(t, 1024, got["max_tokens"])
}

func TestMockProvider_SequenceAndCalls(t *testing.T) {
	m := llm.NewMockProvider(
		llm.MockResponse{Content: "first"},
		llm.MockResponse{Error: errors.New("boom")},
	)
	ctx := context.Background()

	r1, err := m.Complete(ctx, llm.CompletionRequest{Model: "a"})
	require.NoError(t, err)
	assert.Equal(t, "first", r1.Content)

	_, err = m.Complete(ctx, llm.CompletionRequest{Model: "b"})
	assert.EqualError(t, err, "boom")

	_, err = m.Complete(ctx, llm.CompletionRequest{Model: "c"})
	assert.EqualError(t, err, "boom", "last response repeats")

	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, "b", m.Calls()[1].Model)
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		cfg     config.LLMConfig
		want    string
		wantErr bool
	}{
		{config.LLMConfig{Provider: "anthropic", AnthropicKey: "k"}, "anthropic", false},
		{config.LLMConfig{Provider: "anthropic"}, "", true},
		{config.LLMConfig{Provider: "openai", OpenAIKey: "k"}, "openai", false},
		{config.LLMConfig{Provider: "ollama"}, "ollama", false},
		{config.LLMConfig{Provider: "mock"}, "mock", false},
		{config.LLMConfig{Provider: "bard"}, "", true},
	}
	for _, tt := range tests {
		p, err := llm.NewProvider(tt.cfg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewProvider(%q) error = nil, want error", tt.cfg.Provider)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewProvider(%q) error = %v", tt.cfg.Provider, err)
		}
		if p.Name() != tt.want {
			t.Errorf("NewProvider(%q).Name() = %q, want %q", tt.cfg.Provider, p.Name(), tt.want)
		}
	}
}
