package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// ErrNoBackend is returned by DatabaseAnalytics when persistence is off.
var ErrNoBackend = errors.New("analytics: no persistent backend configured")

// Summary aggregates a set of entries.
type Summary struct {
	Total             int                      `json:"total"`
	Successful        int                      `json:"successful"`
	Failed            int                      `json:"failed"`
	SuccessRate       float64                  `json:"success_rate"`
	AvgLatencyMs      float64                  `json:"avg_latency_ms"`
	TotalTokens       int64                    `json:"total_tokens"`
	Fallbacks         int                      `json:"fallbacks"`
	ErrorDistribution map[models.ErrorCode]int `json:"error_distribution"`
	Since             time.Time                `json:"since,omitzero"`
}

// Performance extends Summary with tail latency and a per-agent breakdown.
type Performance struct {
	Summary
	P95LatencyMs int64              `json:"p95_latency_ms"`
	PerAgent     map[string]Summary `json:"per_agent"`
}

// Analytics summarizes buffered entries for agentID ("" = all agents)
// recorded at or after since (zero = whole buffer).
func (s *Sink) Analytics(agentID string, since time.Time) Summary {
	return summarize(s.window(agentID, since), since)
}

// PerformanceMetrics summarizes the buffer over the last window. A
// non-positive window covers the whole buffer.
func (s *Sink) PerformanceMetrics(window time.Duration) Performance {
	var since time.Time
	if window > 0 {
		since = s.now().Add(-window)
	}
	entries := s.window("", since)

	byAgent := make(map[string][]Entry)
	for _, e := range entries {
		byAgent[e.AgentID] = append(byAgent[e.AgentID], e)
	}
	per := make(map[string]Summary, len(byAgent))
	for id, es := range byAgent {
		per[id] = summarize(es, since)
	}

	return Performance{
		Summary:      summarize(entries, since),
		P95LatencyMs: percentile(entries, 0.95),
		PerAgent:     per,
	}
}

// DatabaseAnalytics summarizes persisted entries rather than the buffer.
func (s *Sink) DatabaseAnalytics(ctx context.Context, agentID string, since time.Time) (Summary, error) {
	if s.backend == nil {
		return Summary{}, ErrNoBackend
	}
	entries, err := s.backend.Query(ctx, agentID, since)
	if err != nil {
		return Summary{}, fmt.Errorf("query analytics: %w", err)
	}
	return summarize(entries, since), nil
}

func summarize(entries []Entry, since time.Time) Summary {
	sum := Summary{ErrorDistribution: make(map[models.ErrorCode]int), Since: since}
	var latency int64
	for _, e := range entries {
		sum.Total++
		if e.Successful {
			sum.Successful++
		} else {
			sum.Failed++
			if e.ErrorCode != "" {
				sum.ErrorDistribution[e.ErrorCode]++
			}
		}
		if e.IsFallback {
			sum.Fallbacks++
		}
		latency += e.ExecutionTime
		sum.TotalTokens += e.TokensUsed
	}
	if sum.Total > 0 {
		sum.SuccessRate = float64(sum.Successful) / float64(sum.Total)
		sum.AvgLatencyMs = float64(latency) / float64(sum.Total)
	}
	return sum
}

// percentile uses the nearest-rank method.
func percentile(entries []Entry, p float64) int64 {
	if len(entries) == 0 {
		return 0
	}
	lat := make([]int64, len(entries))
	for i, e := range entries {
		lat[i] = e.ExecutionTime
	}
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	rank := int(math.Ceil(p*float64(len(lat)))) - 1
	if rank < 0 {
		rank = 0
	}
	return lat[rank]
}
