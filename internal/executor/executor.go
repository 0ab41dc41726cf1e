// Package executor turns a validated request and its resolved context into
// a single provider call:
//
//	system prompt + context lines → user message from allowed fields →
//	resolve model and temperature → Provider.Complete → raw result.
//
// The provider's output is returned as-is; shaping it is the caller's job.
package executor

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/strumhub/strumhub/agent-plane/internal/llm"
	"github.com/strumhub/strumhub/agent-plane/internal/validation"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// EmptyInputMessage is sent when a request carries no usable fields.
const EmptyInputMessage = "Please help me with this request."

// Executor runs one agent request against a completion provider.
type Executor struct {
	provider     llm.Provider
	defaultModel string
}

// New creates an executor. defaultModel is used when neither the request
// nor the specification names a model.
func New(p llm.Provider, defaultModel string) *Executor {
	return &Executor{provider: p, defaultModel: defaultModel}
}

// Execute builds the two-message conversation and invokes the provider.
func (e *Executor) Execute(ctx context.Context, req *models.AgentRequest, spec *models.AgentSpecification, resolved map[models.ContextKey]any) (*llm.CompletionResponse, error) {
	creq := llm.CompletionRequest{
		Model:       e.ResolveModel(req, spec),
		Temperature: ResolveTemperature(req, spec),
		MaxTokens:   spec.MaxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: BuildSystemPrompt(systemPromptOf(req, spec), spec, resolved)},
			{Role: llm.RoleUser, Content: BuildUserMessage(req.Input, spec.InputValidation.AllowedFields)},
		},
	}

	log.Debug().
		Str("agent", spec.ID).
		Str("provider", e.provider.Name()).
		Str("model", creq.Model).
		Int("context_keys", len(resolved)).
		Msg("Invoking provider")

	resp, err := e.provider.Complete(ctx, creq)
	if err != nil {
		return nil, models.WrapAgentError(models.ErrExecutionFailed, err, "Agent execution failed").
			WithDetail("provider", e.provider.Name())
	}
	if resp.Provider == "" {
		resp.Provider = e.provider.Name()
	}
	if resp.Model == "" {
		resp.Model = creq.Model
	}
	return resp, nil
}

// ResolveModel picks request override, then spec, then the global default.
func (e *Executor) ResolveModel(req *models.AgentRequest, spec *models.AgentSpecification) string {
	if req.Overrides != nil && req.Overrides.Model != "" {
		return req.Overrides.Model
	}
	if spec.Model != "" {
		return spec.Model
	}
	return e.defaultModel
}

// ResolveTemperature picks request override, then spec.
func ResolveTemperature(req *models.AgentRequest, spec *models.AgentSpecification) float64 {
	if req.Overrides != nil && req.Overrides.Temperature != nil {
		return *req.Overrides.Temperature
	}
	return spec.Temperature
}

func systemPromptOf(req *models.AgentRequest, spec *models.AgentSpecification) string {
	if req.Overrides != nil && req.Overrides.SystemPrompt != "" {
		return req.Overrides.SystemPrompt
	}
	return spec.SystemPrompt
}

// BuildSystemPrompt appends one "\n\nKEY: value" block per non-nil context
// entry, in the order the specification declares them. Keys present in
// resolved but not declared follow in sorted order.
func BuildSystemPrompt(base string, spec *models.AgentSpecification, resolved map[models.ContextKey]any) string {
	var b strings.Builder
	b.WriteString(base)

	for _, key := range contextOrder(spec, resolved) {
		v := resolved[key]
		if v == nil {
			continue
		}
		fmt.Fprintf(&b, "\n\n%s: %s", strings.ToUpper(string(key)), validation.Stringify(v))
	}
	return b.String()
}

// BuildUserMessage renders "field: value" lines for allowed fields that are
// present and non-empty.
func BuildUserMessage(input map[string]any, allowedFields []string) string {
	lines := make([]string, 0, len(allowedFields))
	for _, field := range allowedFields {
		v, ok := input[field]
		if !ok || v == nil {
			continue
		}
		s := validation.Stringify(v)
		if strings.TrimSpace(s) == "" {
			continue
		}
		lines = append(lines, field+": "+s)
	}
	if len(lines) == 0 {
		return EmptyInputMessage
	}
	return strings.Join(lines, "\n")
}

func contextOrder(spec *models.AgentSpecification, resolved map[models.ContextKey]any) []models.ContextKey {
	declared := slices.Concat(spec.RequiredContext, spec.OptionalContext)
	order := make([]models.ContextKey, 0, len(resolved))
	seen := make(map[models.ContextKey]bool, len(resolved))
	for _, k := range declared {
		if _, ok := resolved[k]; ok && !seen[k] {
			order = append(order, k)
			seen[k] = true
		}
	}

	var extra []models.ContextKey
	for k := range resolved {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(order, extra...)
}
