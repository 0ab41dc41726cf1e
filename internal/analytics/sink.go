// Package analytics records every agent response in a bounded in-memory
// ring, optionally persists it, and answers aggregate queries over both.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 1000

// Entry is one recorded execution.
//
// Rows carry their own surrogate key: request IDs may come from the client
// and a retried request logs a second row under the same ID.
type Entry struct {
	ID            uint64           `json:"-" gorm:"primaryKey;autoIncrement"`
	RequestID     string           `json:"request_id" gorm:"index;size:64"`
	AgentID       string           `json:"agent_id" gorm:"index;size:128"`
	UserID        string           `json:"user_id" gorm:"size:128"`
	UserRole      models.Role      `json:"user_role" gorm:"size:32"`
	SessionID     string           `json:"session_id" gorm:"size:64"`
	Timestamp     time.Time        `json:"created_at" gorm:"column:created_at;index"`
	Successful    bool             `json:"successful"`
	ExecutionTime int64            `json:"execution_time_ms" gorm:"column:execution_time_ms"`
	InputHash     string           `json:"input_hash" gorm:"size:32"`
	ErrorCode     models.ErrorCode `json:"error_code,omitempty" gorm:"size:64"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	Model         string           `json:"model,omitempty" gorm:"size:128"`
	Provider      string           `json:"provider,omitempty" gorm:"size:64"`
	TokensUsed    int64            `json:"tokens_used"`
	IsFallback    bool             `json:"is_fallback"`
}

// Backend persists entries and reads them back for reporting.
type Backend interface {
	Write(ctx context.Context, e Entry) error
	Query(ctx context.Context, agentID string, since time.Time) ([]Entry, error)
}

// Sink is the analytics recorder. It is safe for concurrent use.
type Sink struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int

	backend      Backend
	metrics      *Metrics
	now          func() time.Time
	writeTimeout time.Duration
	pending      sync.WaitGroup
}

// Option configures a Sink.
type Option func(*Sink)

// WithBackend enables persistent writes for specifications that opt in.
func WithBackend(b Backend) Option { return func(s *Sink) { s.backend = b } }

// WithMetrics exports every recorded entry to Prometheus.
func WithMetrics(m *Metrics) Option { return func(s *Sink) { s.metrics = m } }

// WithClock replaces time.Now for window queries.
func WithClock(now func() time.Time) Option { return func(s *Sink) { s.now = now } }

// NewSink creates a sink holding at most capacity entries.
func NewSink(capacity int, opts ...Option) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Sink{
		entries:      make([]Entry, 0, capacity),
		capacity:     capacity,
		now:          time.Now,
		writeTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Record appends the outcome of one execution. spec may be nil when the
// agent was not found. Persistent writes run in the background and never
// surface errors to the caller.
func (s *Sink) Record(resp *models.AgentResponse, req *models.AgentRequest, spec *models.AgentSpecification) {
	e := entryFrom(resp, req)

	s.mu.Lock()
	if len(s.entries) >= s.capacity {
		// Drop oldest entry
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Observe(e)
	}

	if s.backend != nil && spec != nil && spec.EnableAnalytics {
		s.pending.Add(1)
		go s.persist(e)
	}
}

func (s *Sink) persist(e Entry) {
	defer s.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("request_id", e.RequestID).Msg("Analytics write panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.backend.Write(ctx, e); err != nil {
		if s.metrics != nil {
			s.metrics.persistFailures.Inc()
		}
		log.Warn().Err(err).
			Str("agent", e.AgentID).
			Str("request_id", e.RequestID).
			Msg("Failed to persist analytics entry")
	}
}

// Wait blocks until background writes started so far have finished.
func (s *Sink) Wait() { s.pending.Wait() }

// Recent returns the last n entries, oldest first. n <= 0 returns all.
func (s *Sink) Recent(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.entries)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]Entry, n)
	copy(out, s.entries[total-n:])
	return out
}

// Len returns the number of buffered entries.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every buffered entry.
func (s *Sink) Clear() {
	s.mu.Lock()
	s.entries = s.entries[:0]
	s.mu.Unlock()
}

func (s *Sink) window(agentID string, since time.Time) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func entryFrom(resp *models.AgentResponse, req *models.AgentRequest) Entry {
	e := Entry{
		RequestID:     resp.Analytics.RequestID,
		AgentID:       resp.Metadata.AgentID,
		Timestamp:     resp.Analytics.Timestamp,
		Successful:    resp.Success,
		ExecutionTime: resp.Metadata.ExecutionTime,
		InputHash:     resp.Analytics.InputHash,
		Model:         resp.Metadata.Model,
		Provider:      resp.Metadata.Provider,
		TokensUsed:    resp.Metadata.TokensUsed,
	}
	if req != nil {
		e.UserID = req.Context.UserID
		e.UserRole = req.Context.UserRole
		e.SessionID = req.Context.SessionID
	}
	if resp.Error != nil {
		e.ErrorCode = resp.Error.Code
		e.ErrorMessage = resp.Error.Message
	}
	if resp.Result != nil {
		e.IsFallback = resp.Result.IsFallback
	}
	return e
}

// Fingerprint returns a short, non-reversible digest of an input map. Map
// keys are encoded in sorted order so equal inputs hash equally.
func Fingerprint(input map[string]any) string {
	data, err := json.Marshal(input)
	if err != nil {
		data = []byte(fmt.Sprint(input))
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}
