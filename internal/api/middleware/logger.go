package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// responseWriter remembers what the handler wrote.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// probePaths are polled by orchestrators and logged at debug only.
var probePaths = map[string]bool{"/health": true, "/metrics": true}

// Logger writes one access line per request with the caller's identity
// and, on agent routes, the agent ID. Rate-limited responses carry the
// Retry-After they sent.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		event := log.WithLevel(accessLevel(r.URL.Path, rw.statusCode))
		id := GetIdentity(r.Context())
		event = event.
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Int("bytes", rw.bytes).
			Dur("duration", time.Since(start)).
			Str("role", string(id.Role))
		if !id.Anonymous() {
			event = event.Str("user", id.UserID)
		}
		if agentID := chi.URLParam(r, "agentID"); agentID != "" {
			event = event.Str("agent", agentID)
		}
		if ra := rw.Header().Get("Retry-After"); ra != "" {
			event = event.Str("retry_after", ra)
		}
		event.Msg("http")
	})
}

func accessLevel(path string, status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	case probePaths[path]:
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
