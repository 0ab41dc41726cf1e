package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/strumhub/strumhub/agent-plane/internal/analytics"
	"github.com/strumhub/strumhub/agent-plane/internal/api/middleware"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

const defaultRecentLimit = 50

// ══════════════════════════════════════════════════════════════
// ── Analytics Handlers ───────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// GetAnalytics summarizes executions. Query parameters:
//
//	agent   restrict to one agent
//	since   RFC 3339 time or a duration back from now ("24h")
//	source  "buffer" (default) or "db" for the persistent log
func (h *Handlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	if !h.canReadAnalytics(w, r) {
		return
	}
	q := r.URL.Query()
	since, err := parseSince(q.Get("since"), time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	agentID := q.Get("agent")

	if q.Get("source") != "db" {
		respondJSON(w, http.StatusOK, h.Registry.Sink().Analytics(agentID, since))
		return
	}

	sum, err := h.Registry.Sink().DatabaseAnalytics(r.Context(), agentID, since)
	switch {
	case errors.Is(err, analytics.ErrNoBackend):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondJSON(w, http.StatusOK, sum)
	}
}

// GetPerformance reports latency and error distribution over ?window=
// (default one hour, "0" for the whole buffer).
func (h *Handlers) GetPerformance(w http.ResponseWriter, r *http.Request) {
	if !h.canReadAnalytics(w, r) {
		return
	}
	window := time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid window: "+v)
			return
		}
		window = d
	}
	respondJSON(w, http.StatusOK, h.Registry.Sink().PerformanceMetrics(window))
}

// GetRecent returns the newest buffered entries, oldest first.
func (h *Handlers) GetRecent(w http.ResponseWriter, r *http.Request) {
	if !h.canReadAnalytics(w, r) {
		return
	}
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = n
	}
	entries := h.Registry.Sink().Recent(limit)
	if entries == nil {
		entries = []analytics.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// canReadAnalytics allows admin and system callers only. Entries carry
// user IDs from every role.
func (h *Handlers) canReadAnalytics(w http.ResponseWriter, r *http.Request) bool {
	if h.Registry.Sink() == nil {
		respondError(w, http.StatusServiceUnavailable, "analytics disabled")
		return false
	}
	switch middleware.GetIdentity(r.Context()).Role {
	case models.RoleAdmin, models.RoleSystem:
		return true
	}
	respondError(w, http.StatusForbidden, "analytics require the admin role")
	return false
}

func parseSince(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q: want RFC 3339 or a duration", v)
	}
	return now.Add(-d), nil
}
