package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/strumhub/strumhub/agent-plane/internal/api/middleware"
)

func TestTelemetry_RouteSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(middleware.IdentityExtractor)
	r.Use(middleware.Telemetry)
	r.Get("/api/v1/agents/{agentID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/lesson-notes", nil)
	req.Header.Set(middleware.HeaderUserID, "teacher-1")
	req.Header.Set(middleware.HeaderUserRole, "teacher")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("X-Trace-Id") == "" {
		t.Error("X-Trace-Id header missing")
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "GET /api/v1/agents/{agentID}" {
		t.Errorf("span name = %q", s.Name())
	}
	if s.Status().Code.String() != "Error" {
		t.Errorf("span status = %v, want Error", s.Status().Code)
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["user.role"].AsString(); got != "teacher" {
		t.Errorf("user.role = %q, want teacher", got)
	}
	if got := attrs["http.response.status_code"].AsInt64(); got != http.StatusBadGateway {
		t.Errorf("status attribute = %d, want %d", got, http.StatusBadGateway)
	}
}
