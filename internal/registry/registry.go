// Package registry holds the agent specification table and runs the
// execution pipeline. ExecuteAgentRequest is the only entry point that
// reaches a provider:
//
//	lookup → rate limit → validate → permission → context → execute → record
//
// Every failure is converted into an AgentResponse; nothing panics or
// returns an error past the registry.
package registry

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/strumhub/strumhub/agent-plane/internal/agentctx"
	"github.com/strumhub/strumhub/agent-plane/internal/analytics"
	"github.com/strumhub/strumhub/agent-plane/internal/executor"
	"github.com/strumhub/strumhub/agent-plane/internal/ratelimit"
	"github.com/strumhub/strumhub/agent-plane/internal/validation"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// DefaultBatchConcurrency bounds ExecuteBatch when no limit is configured.
const DefaultBatchConcurrency = 4

// Registry is the agent table plus its execution dependencies. Construct
// one with New; there is no package-level instance.
type Registry struct {
	mu        sync.RWMutex
	specs     map[string]*models.AgentSpecification
	fallbacks map[string]string

	limiter  ratelimit.Limiter
	fetcher  *agentctx.Fetcher
	executor *executor.Executor
	sink     *analytics.Sink

	now        func() time.Time
	tracer     trace.Tracer
	batchLimit int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now for timestamps and execution time.
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// WithBatchConcurrency bounds how many batch items run at once.
func WithBatchConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.batchLimit = n
		}
	}
}

// New creates an empty registry.
func New(l ratelimit.Limiter, f *agentctx.Fetcher, e *executor.Executor, s *analytics.Sink, opts ...Option) *Registry {
	r := &Registry{
		specs:      make(map[string]*models.AgentSpecification),
		fallbacks:  make(map[string]string),
		limiter:    l,
		fetcher:    f,
		executor:   e,
		sink:       s,
		now:        time.Now,
		tracer:     otel.Tracer("strumhub-agent-plane/registry"),
		batchLimit: DefaultBatchConcurrency,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ── Table operations ────────────────────────────────────────

// Register validates spec and adds it. A duplicate ID, an invalid spec or
// a context key the fetcher cannot resolve is a configuration error.
func (r *Registry) Register(spec *models.AgentSpecification) error {
	if err := validation.ValidateSpecification(spec); err != nil {
		return err
	}
	for _, k := range slices.Concat(spec.RequiredContext, spec.OptionalContext) {
		if r.fetcher != nil && !r.fetcher.Knows(k) {
			return fmt.Errorf("agent %s: %w: %s", spec.ID, agentctx.ErrUnknownContextKey, k)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.ID]; exists {
		return fmt.Errorf("agent %s is already registered", spec.ID)
	}
	r.specs[spec.ID] = spec
	return nil
}

// MustRegister is Register for static catalogues; it panics on error.
func (r *Registry) MustRegister(specs ...*models.AgentSpecification) {
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// SetFallback sets (or, with empty text, removes) an agent's fallback.
func (r *Registry) SetFallback(agentID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if text == "" {
		delete(r.fallbacks, agentID)
		return
	}
	r.fallbacks[agentID] = text
}

// Get returns the specification for id.
func (r *Registry) Get(id string) (*models.AgentSpecification, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[id]
	return s, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// All returns every specification sorted by ID.
func (r *Registry) All() []*models.AgentSpecification {
	r.mu.RLock()
	out := make([]*models.AgentSpecification, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AvailableFor returns the specifications role may execute, sorted by ID.
func (r *Registry) AvailableFor(role models.Role) []*models.AgentSpecification {
	all := r.All()
	out := all[:0]
	for _, s := range all {
		if s.Targets(role) {
			out = append(out, s)
		}
	}
	return out
}

// Unregister removes id and reports whether it was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.specs[id]
	delete(r.specs, id)
	delete(r.fallbacks, id)
	return ok
}

// Sink returns the analytics sink the registry records into.
func (r *Registry) Sink() *analytics.Sink { return r.sink }

func (r *Registry) fallback(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.fallbacks[id]
	return t, ok
}
