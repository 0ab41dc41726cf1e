// Package handlers implements the HTTP handlers for the StrumHub agent
// plane. Execution handlers delegate to the registry and never call a
// provider directly.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/strumhub/strumhub/agent-plane/internal/api/middleware"
	"github.com/strumhub/strumhub/agent-plane/internal/registry"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// DefaultMaxBatchItems applies when Handlers.MaxBatchItems is zero.
const DefaultMaxBatchItems = 20

// maxBodyBytes bounds request bodies. Agent input is capped far lower by
// each specification's max_length.
const maxBodyBytes = 1 << 20

// Handlers holds handler dependencies.
type Handlers struct {
	Registry      *registry.Registry
	MaxBatchItems int
}

// New creates a Handlers instance.
func New(reg *registry.Registry, maxBatchItems int) *Handlers {
	if maxBatchItems <= 0 {
		maxBatchItems = DefaultMaxBatchItems
	}
	return &Handlers{Registry: reg, MaxBatchItems: maxBatchItems}
}

// ══════════════════════════════════════════════════════════════
// ── Agent Handlers ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// AgentSummary is the public view of a specification. The system prompt
// stays server-side.
type AgentSummary struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Version     string            `json:"version"`
	TargetUsers []models.Role     `json:"target_users"`
	UseCases    []string          `json:"use_cases,omitempty"`
	InputFields []string          `json:"input_fields"`
	MaxLength   int               `json:"max_length"`
	UI          models.UIMetadata `json:"ui"`
	Available   bool              `json:"available"`
}

func summarize(s *models.AgentSpecification, role models.Role) AgentSummary {
	return AgentSummary{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Version:     s.Version,
		TargetUsers: s.TargetUsers,
		UseCases:    s.UseCases,
		InputFields: s.InputValidation.AllowedFields,
		MaxLength:   s.InputValidation.MaxLength,
		UI:          s.UI,
		Available:   s.Targets(role),
	}
}

// ListAgents returns the agents the caller's role may execute.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	role := middleware.GetIdentity(r.Context()).Role
	out := []AgentSummary{}
	for _, s := range h.Registry.AvailableFor(role) {
		out = append(out, summarize(s, role))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetAgent returns one agent. Agents the caller cannot run are still
// described, with available=false.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentID")
	spec, ok := h.Registry.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "agent "+id+" not found")
		return
	}
	respondJSON(w, http.StatusOK, summarize(spec, middleware.GetIdentity(r.Context()).Role))
}

// executeBody is the payload of POST /agents/{agentID}/execute. User ID
// and role always come from the identity headers, never from the body.
type executeBody struct {
	Input     map[string]any    `json:"input"`
	Context   requestContext    `json:"context"`
	Overrides *models.Overrides `json:"overrides,omitempty"`
}

type requestContext struct {
	SessionID   string         `json:"session_id,omitempty"`
	CurrentPage string         `json:"current_page,omitempty"`
	EntityID    string         `json:"entity_id,omitempty"`
	EntityType  string         `json:"entity_type,omitempty"`
	ContextData map[string]any `json:"context_data,omitempty"`
}

func (rc requestContext) agentContext(id middleware.Identity, requestID string) models.AgentContext {
	session := rc.SessionID
	if session == "" {
		session = id.SessionID
	}
	return models.AgentContext{
		UserID:      id.UserID,
		UserRole:    id.Role,
		SessionID:   session,
		RequestID:   requestID,
		CurrentPage: rc.CurrentPage,
		EntityID:    rc.EntityID,
		EntityType:  rc.EntityType,
		ContextData: rc.ContextData,
	}
}

// ExecuteAgent runs one agent for the caller.
func (h *Handlers) ExecuteAgent(w http.ResponseWriter, r *http.Request) {
	var body executeBody
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req := &models.AgentRequest{
		AgentID:   chi.URLParam(r, "agentID"),
		Input:     body.Input,
		Context:   body.Context.agentContext(middleware.GetIdentity(r.Context()), requestID(r)),
		Overrides: body.Overrides,
	}
	resp := h.Registry.ExecuteAgentRequest(r.Context(), req)
	respondAgent(w, resp)
}

type batchBody struct {
	Requests []struct {
		AgentID   string            `json:"agent_id"`
		Input     map[string]any    `json:"input"`
		Context   requestContext    `json:"context"`
		Overrides *models.Overrides `json:"overrides,omitempty"`
	} `json:"requests"`
}

// ExecuteBatch runs several agent requests for the same caller. The batch
// itself always answers 200; each item carries its own success flag.
func (h *Handlers) ExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var body batchBody
	if err := decodeBody(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Requests) == 0 {
		respondError(w, http.StatusBadRequest, "requests must not be empty")
		return
	}
	if len(body.Requests) > h.MaxBatchItems {
		respondError(w, http.StatusBadRequest, "batch exceeds "+strconv.Itoa(h.MaxBatchItems)+" items")
		return
	}

	id := middleware.GetIdentity(r.Context())
	reqs := make([]models.AgentRequest, len(body.Requests))
	for i, item := range body.Requests {
		reqs[i] = models.AgentRequest{
			AgentID:   item.AgentID,
			Input:     item.Input,
			Context:   item.Context.agentContext(id, ""),
			Overrides: item.Overrides,
		}
	}

	responses := h.Registry.ExecuteBatch(r.Context(), reqs)
	succeeded := 0
	for _, resp := range responses {
		if resp.Success {
			succeeded++
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"responses": responses,
		"total":     len(responses),
		"succeeded": succeeded,
	})
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// StatusFor maps an error code to the HTTP status of an execute response.
func StatusFor(code models.ErrorCode) int {
	switch code {
	case models.ErrAgentNotFound:
		return http.StatusNotFound
	case models.ErrPermissionDenied:
		return http.StatusForbidden
	case models.ErrValidation:
		return http.StatusBadRequest
	case models.ErrRateLimited:
		return http.StatusTooManyRequests
	case models.ErrContext, models.ErrExecutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondAgent(w http.ResponseWriter, resp *models.AgentResponse) {
	if resp.Success {
		respondJSON(w, http.StatusOK, resp)
		return
	}
	if resp.Error.Code == models.ErrRateLimited {
		if v, ok := resp.Error.Details["retry_after"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(v))
		}
	}
	respondJSON(w, StatusFor(resp.Error.Code), resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func requestID(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
