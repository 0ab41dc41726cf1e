package analytics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// Metrics exports recorded executions to Prometheus.
type Metrics struct {
	executions      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	tokens          *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	persistFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strumhub",
			Subsystem: "agents",
			Name:      "executions_total",
			Help:      "Agent executions by agent and outcome (ok or error code).",
		}, []string{"agent", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "strumhub",
			Subsystem: "agents",
			Name:      "execution_seconds",
			Help:      "Wall-clock time of agent executions.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
		}, []string{"agent"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strumhub",
			Subsystem: "agents",
			Name:      "tokens_total",
			Help:      "Provider-reported tokens consumed.",
		}, []string{"agent"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strumhub",
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"role"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "strumhub",
			Subsystem: "analytics",
			Name:      "persist_failures_total",
			Help:      "Analytics rows that could not be persisted.",
		}),
	}
	reg.MustRegister(m.executions, m.latency, m.tokens, m.rateLimited, m.persistFailures)
	return m
}

// Observe updates every collector for one entry.
func (m *Metrics) Observe(e Entry) {
	outcome := "ok"
	if !e.Successful {
		outcome = string(e.ErrorCode)
	}
	m.executions.WithLabelValues(e.AgentID, outcome).Inc()
	m.latency.WithLabelValues(e.AgentID).Observe(float64(e.ExecutionTime) / 1000)
	if e.TokensUsed > 0 {
		m.tokens.WithLabelValues(e.AgentID).Add(float64(e.TokensUsed))
	}
	if e.ErrorCode == models.ErrRateLimited {
		role := string(e.UserRole)
		if role == "" {
			role = string(models.RoleAnonymous)
		}
		m.rateLimited.WithLabelValues(role).Inc()
	}
}
