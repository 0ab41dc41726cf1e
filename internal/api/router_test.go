package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strumhub/strumhub/agent-plane/internal/agentctx"
	"github.com/strumhub/strumhub/agent-plane/internal/analytics"
	"github.com/strumhub/strumhub/agent-plane/internal/api"
	"github.com/strumhub/strumhub/agent-plane/internal/api/handlers"
	"github.com/strumhub/strumhub/agent-plane/internal/config"
	"github.com/strumhub/strumhub/agent-plane/internal/executor"
	"github.com/strumhub/strumhub/agent-plane/internal/llm"
	"github.com/strumhub/strumhub/agent-plane/internal/ratelimit"
	"github.com/strumhub/strumhub/agent-plane/internal/registry"
	"github.com/strumhub/strumhub/agent-plane/internal/store"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

type server struct {
	handler  http.Handler
	provider *llm.MockProvider
}

func newServer(t *testing.T, apiKeys ...string) *server {
	t.Helper()

	mem := store.NewMemoryStore()
	t.Cleanup(func() { mem.Close() })
	mem.Seed(store.TableProfiles, store.Row{"id": "teacher-1", "full_name": "Tom", "is_teacher": true})

	promReg := prometheus.NewRegistry()
	provider := llm.NewMockProvider(llm.MockResponse{Content: "Great lesson.", Usage: &llm.Usage{TotalTokens: 12}})
	reg := registry.New(
		ratelimit.NewMemoryLimiter(ratelimit.DefaultLimits()),
		agentctx.New(mem),
		executor.New(provider, "test-model"),
		analytics.NewSink(100, analytics.WithMetrics(analytics.NewMetrics(promReg))),
	)
	reg.MustRegister(&models.AgentSpecification{
		ID:              "lesson-notes",
		Name:            "Lesson Notes",
		Description:     "Drafts lesson notes",
		Version:         "1.0.0",
		TargetUsers:     []models.Role{models.RoleTeacher, models.RoleAdmin},
		SystemPrompt:    "You write lesson notes.",
		Temperature:     0.5,
		RequiredContext: []models.ContextKey{models.ContextCurrentUser},
		InputValidation: models.InputValidation{MaxLength: 200, AllowedFields: []string{"student_name"}},
	})

	cfg := &config.Config{Version: "test", APIKeys: apiKeys}
	return &server{
		handler:  api.NewRouter(cfg, handlers.New(reg, 3), promReg),
		provider: provider,
	}
}

func (s *server) do(method, path, userID string, role models.Role, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
		req.Header.Set("X-User-Role", string(role))
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndVersion(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, w)["status"])

	w = s.do(http.MethodGet, "/version", "", "", nil)
	assert.Equal(t, "test", decode[map[string]string](t, w)["version"])
}

func TestListAgents_ByRole(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/api/v1/agents", "teacher-1", models.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]handlers.AgentSummary](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "lesson-notes", list[0].ID)
	assert.True(t, list[0].Available)
	assert.NotContains(t, w.Body.String(), "You write lesson notes", "system prompt must not leak")

	w = s.do(http.MethodGet, "/api/v1/agents", "s-1", models.RoleStudent, nil)
	assert.Empty(t, decode[[]handlers.AgentSummary](t, w))
}

func TestGetAgent(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/api/v1/agents/lesson-notes", "s-1", models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[handlers.AgentSummary](t, w).Available)

	w = s.do(http.MethodGet, "/api/v1/agents/missing", "s-1", models.RoleStudent, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecute_StatusMapping(t *testing.T) {
	s := newServer(t)
	input := map[string]any{"input": map[string]any{"student_name": "Jane"}}

	tests := []struct {
		name     string
		path     string
		userID   string
		role     models.Role
		body     any
		wantCode int
		wantErr  models.ErrorCode
	}{
		{"success", "/api/v1/agents/lesson-notes/execute", "teacher-1", models.RoleTeacher, input, http.StatusOK, ""},
		{"not found", "/api/v1/agents/nope/execute", "teacher-1", models.RoleTeacher, input, http.StatusNotFound, models.ErrAgentNotFound},
		{"denied", "/api/v1/agents/lesson-notes/execute", "s-1", models.RoleStudent, input, http.StatusForbidden, models.ErrPermissionDenied},
		{"bad field", "/api/v1/agents/lesson-notes/execute", "teacher-1", models.RoleTeacher,
			map[string]any{"input": map[string]any{"password": "x"}}, http.StatusBadRequest, models.ErrValidation},
		{"missing context", "/api/v1/agents/lesson-notes/execute", "ghost", models.RoleTeacher, input, http.StatusBadGateway, models.ErrContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, tt.path, tt.userID, tt.role, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())

			resp := decode[models.AgentResponse](t, w)
			if tt.wantErr == "" {
				assert.True(t, resp.Success)
				assert.Equal(t, "Great lesson.", resp.Result.Content)
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantErr, resp.Error.Code)
		})
	}
}

func TestExecute_IdentityComesFromHeaders(t *testing.T) {
	s := newServer(t)
	body := map[string]any{
		"input":   map[string]any{"student_name": "Jane"},
		"context": map[string]any{"user_role": "admin"},
	}

	w := s.do(http.MethodPost, "/api/v1/agents/lesson-notes/execute", "s-1", models.RoleStudent, body)
	assert.Equal(t, http.StatusBadRequest, w.Code, "role in the body is not accepted")
	assert.Zero(t, s.provider.CallCount())
}

func TestExecute_RateLimited(t *testing.T) {
	s := newServer(t)
	input := map[string]any{"input": map[string]any{"student_name": "Jane"}}

	var w *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		w = s.do(http.MethodPost, "/api/v1/agents/lesson-notes/execute", "", "", input)
	}
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, models.ErrRateLimited, decode[models.AgentResponse](t, w).Error.Code)
}

func TestExecute_MalformedBody(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/lesson-notes/execute", strings.NewReader("{"))
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatch(t *testing.T) {
	s := newServer(t)
	item := map[string]any{"agent_id": "lesson-notes", "input": map[string]any{"student_name": "Jane"}}
	missing := map[string]any{"agent_id": "nope"}

	w := s.do(http.MethodPost, "/api/v1/agents/batch", "teacher-1", models.RoleTeacher,
		map[string]any{"requests": []any{item, missing, item}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode[struct {
		Responses []models.AgentResponse `json:"responses"`
		Succeeded int                    `json:"succeeded"`
	}](t, w)
	require.Len(t, out.Responses, 3)
	assert.Equal(t, 2, out.Succeeded)
	assert.Equal(t, models.ErrAgentNotFound, out.Responses[1].Error.Code)

	w = s.do(http.MethodPost, "/api/v1/agents/batch", "teacher-1", models.RoleTeacher,
		map[string]any{"requests": []any{item, item, item, item}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "over the item limit")

	w = s.do(http.MethodPost, "/api/v1/agents/batch", "teacher-1", models.RoleTeacher,
		map[string]any{"requests": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalytics(t *testing.T) {
	s := newServer(t)
	s.do(http.MethodPost, "/api/v1/agents/lesson-notes/execute", "teacher-1", models.RoleTeacher,
		map[string]any{"input": map[string]any{"student_name": "Jane"}})
	s.do(http.MethodPost, "/api/v1/agents/lesson-notes/execute", "s-1", models.RoleStudent,
		map[string]any{"input": map[string]any{"student_name": "Jane"}})

	w := s.do(http.MethodGet, "/api/v1/analytics", "teacher-1", models.RoleTeacher, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/analytics?agent=lesson-notes&since=1h", "root", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[analytics.Summary](t, w)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.ErrorDistribution[models.ErrPermissionDenied])

	w = s.do(http.MethodGet, "/api/v1/analytics?since=yesterday", "root", models.RoleAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/analytics?source=db", "root", models.RoleAdmin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(http.MethodGet, "/api/v1/analytics/performance?window=0", "root", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[analytics.Performance](t, w).PerAgent["lesson-notes"].Total)

	w = s.do(http.MethodGet, "/api/v1/analytics/recent?limit=1", "sys", models.RoleSystem, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]analytics.Entry](t, w), 1)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	s.do(http.MethodPost, "/api/v1/agents/lesson-notes/execute", "teacher-1", models.RoleTeacher,
		map[string]any{"input": map[string]any{"student_name": "Jane"}})

	w := s.do(http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "strumhub_agents_executions_total")
}

func TestAPIKeyRequired(t *testing.T) {
	s := newServer(t, "secret")

	w := s.do(http.MethodGet, "/api/v1/agents", "teacher-1", models.RoleTeacher, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	req.Header.Set("X-API-Key", "secret")
	req.Header.Set("X-User-Id", "teacher-1")
	req.Header.Set("X-User-Role", "teacher")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", "", nil).Code)
}

func TestStatusFor(t *testing.T) {
	if got := handlers.StatusFor(models.ErrBatchExecutionFailed); got != http.StatusInternalServerError {
		t.Errorf("StatusFor(BATCH) = %d, want 500", got)
	}
}
