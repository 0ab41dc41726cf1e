package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Strategy orders the candidates a Router tries.
type Strategy string

const (
	// StrategyFallback tries providers in configured order.
	StrategyFallback Strategy = "fallback"
	// StrategyLatency tries the provider with the lowest observed latency first.
	StrategyLatency Strategy = "latency"
	// StrategyRoundRobin rotates the starting provider on every call.
	StrategyRoundRobin Strategy = "round-robin"
)

// FailurePenalty is added to the observed latency of a failed call so the
// latency strategy moves failing providers to the back.
const FailurePenalty = 10 * time.Second

// Route is one candidate provider. Model replaces the request's model when
// set, so a fallback to another vendor does not inherit the primary's model.
type Route struct {
	Provider Provider
	Model    string
}

// Router is a Provider that fails over across several providers. The
// first successful completion wins; if all fail the errors are joined.
type Router struct {
	routes   []Route
	strategy Strategy
	now      func() time.Time

	rr atomic.Uint64

	mu        sync.RWMutex
	latencies map[string]time.Duration
}

// NewRouter creates a failover router. An empty strategy means fallback.
func NewRouter(strategy Strategy, routes ...Route) *Router {
	if strategy == "" {
		strategy = StrategyFallback
	}
	return &Router{
		routes:    routes,
		strategy:  strategy,
		now:       time.Now,
		latencies: make(map[string]time.Duration),
	}
}

func (r *Router) Name() string {
	names := make([]string, len(r.routes))
	for i, rt := range r.routes {
		names[i] = rt.Provider.Name()
	}
	return "router(" + strings.Join(names, ",") + ")"
}

func (r *Router) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if len(r.routes) == 0 {
		return nil, fmt.Errorf("router: no providers configured")
	}

	var errs []error
	for _, rt := range r.order() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		attempt := req
		if rt.Model != "" {
			attempt.Model = rt.Model
		}

		start := r.now()
		resp, err := rt.Provider.Complete(ctx, attempt)
		if err != nil {
			r.observe(rt.Provider.Name(), r.now().Sub(start)+FailurePenalty)
			log.Warn().Err(err).Str("provider", rt.Provider.Name()).Msg("Provider failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", rt.Provider.Name(), err))
			continue
		}
		r.observe(rt.Provider.Name(), r.now().Sub(start))
		return resp, nil
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Latency reports the smoothed latency observed for a provider.
func (r *Router) Latency(name string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latencies[name]
}

func (r *Router) order() []Route {
	routes := make([]Route, len(r.routes))
	copy(routes, r.routes)

	switch r.strategy {
	case StrategyLatency:
		r.mu.RLock()
		// Unmeasured providers sort first so each gets sampled once.
		sort.SliceStable(routes, func(i, j int) bool {
			return r.latencies[routes[i].Provider.Name()] < r.latencies[routes[j].Provider.Name()]
		})
		r.mu.RUnlock()

	case StrategyRoundRobin:
		n := len(routes)
		idx := int((r.rr.Add(1) - 1) % uint64(n))
		rotated := make([]Route, n)
		for i := range n {
			rotated[i] = routes[(idx+i)%n]
		}
		return rotated
	}
	return routes
}

// observe folds d into an exponential moving average.
func (r *Router) observe(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.latencies[name]
	if prev == 0 {
		r.latencies[name] = d
		return
	}
	r.latencies[name] = (prev*7 + d*3) / 10
}
