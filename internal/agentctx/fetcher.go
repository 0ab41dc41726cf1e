// Package agentctx resolves the background data an agent declares in its
// required and optional context lists. Every query is scoped by the
// requester's ownership or by the entity named in the request context.
package agentctx

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/strumhub/strumhub/agent-plane/internal/store"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// ErrUnknownContextKey means a specification names a key with no fetcher.
// It is a programming error, never a user-facing failure.
var ErrUnknownContextKey = errors.New("unknown context key")

// FetchFunc loads one context value. A missing row is reported as
// (nil, nil) or as *store.ErrNotFound; both resolve to a nil value.
type FetchFunc func(ctx context.Context, s store.Store, ac *models.AgentContext) (any, error)

// Fetcher dispatches context keys to their FetchFunc.
type Fetcher struct {
	store    store.Store
	fetchers map[models.ContextKey]FetchFunc
}

// New creates a fetcher backed by s with the built-in key table.
func New(s store.Store) *Fetcher {
	f := &Fetcher{store: s, fetchers: make(map[models.ContextKey]FetchFunc, len(builtins))}
	for k, fn := range builtins {
		f.fetchers[k] = fn
	}
	return f
}

// Override replaces the fetcher for key. Used by tests to inject failures.
func (f *Fetcher) Override(key models.ContextKey, fn FetchFunc) {
	f.fetchers[key] = fn
}

// Knows reports whether key has a fetcher.
func (f *Fetcher) Knows(key models.ContextKey) bool {
	_, ok := f.fetchers[key]
	return ok
}

// Fetch loads one key. "Not found" is a nil value, not an error.
func (f *Fetcher) Fetch(ctx context.Context, key models.ContextKey, ac *models.AgentContext) (any, error) {
	fn, ok := f.fetchers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContextKey, key)
	}
	v, err := fn(ctx, f.store, ac)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return v, nil
}

// Resolve loads every key spec declares, sequentially, required keys first.
//
// A required key that fails or resolves to nil aborts with a CONTEXT_ERROR.
// An optional key that fails is logged and resolves to nil.
func (f *Fetcher) Resolve(ctx context.Context, spec *models.AgentSpecification, ac *models.AgentContext) (map[models.ContextKey]any, error) {
	resolved := make(map[models.ContextKey]any, len(spec.RequiredContext)+len(spec.OptionalContext))

	for _, key := range spec.RequiredContext {
		v, err := f.Fetch(ctx, key, ac)
		if errors.Is(err, ErrUnknownContextKey) {
			return nil, err
		}
		if err != nil {
			return nil, models.WrapAgentError(models.ErrContext, err, fmt.Sprintf("Failed to fetch required context %s", key)).
				WithDetail("key", string(key))
		}
		if v == nil {
			return nil, models.NewAgentError(models.ErrContext, "Required context %s is not available", key).
				WithDetail("key", string(key))
		}
		resolved[key] = v
	}

	for _, key := range spec.OptionalContext {
		v, err := f.Fetch(ctx, key, ac)
		if errors.Is(err, ErrUnknownContextKey) {
			return nil, err
		}
		if err != nil {
			log.Warn().Err(err).
				Str("agent", spec.ID).
				Str("key", string(key)).
				Msg("Optional context unavailable")
			v = nil
		}
		resolved[key] = v
	}

	return resolved, nil
}
