package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strumhub/strumhub/agent-plane/internal/config"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
	"github.com/strumhub/strumhub/agent-plane/pkg/server"
)

func testConfig(t *testing.T) *config.Config {
	t.Setenv("STRUMHUB_LLM_PROVIDER", "mock")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("STRUMHUB_API_KEYS", "")
	t.Setenv("OTEL_ENABLED", "false")

	cfg := config.Load()
	dir := t.TempDir()
	cfg.DataFile = filepath.Join(dir, "store.json")
	cfg.Analytics.SQLitePath = filepath.Join(dir, "analytics.db")
	cfg.Analytics.ArchiveDir = filepath.Join(dir, "archive")
	return cfg
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	srv, err := server.New(ctx, testConfig(t))
	require.NoError(t, err)

	assert.Len(t, srv.Registry.All(), 6)
	assert.NotEmpty(t, srv.Registry.AvailableFor(models.RoleStudent))

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.NoError(t, srv.Close(ctx))
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "carrier-pigeon"

	_, err := server.New(context.Background(), cfg)
	assert.ErrorContains(t, err, "llm provider")
}

func TestNew_BadRateLimitOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Overrides = map[string]string{"teacher": "lots"}

	_, err := server.New(context.Background(), cfg)
	assert.Error(t, err)
}
