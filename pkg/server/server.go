// Package server assembles the StrumHub agent plane from configuration.
//
// Usage:
//
//	srv, err := server.New(ctx, config.Load())
//	defer srv.Close(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
//
// The registry is exposed so the CLI can execute agents without HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/strumhub/strumhub/agent-plane/internal/agentctx"
	"github.com/strumhub/strumhub/agent-plane/internal/agents"
	"github.com/strumhub/strumhub/agent-plane/internal/analytics"
	"github.com/strumhub/strumhub/agent-plane/internal/api"
	"github.com/strumhub/strumhub/agent-plane/internal/api/handlers"
	"github.com/strumhub/strumhub/agent-plane/internal/config"
	"github.com/strumhub/strumhub/agent-plane/internal/executor"
	"github.com/strumhub/strumhub/agent-plane/internal/llm"
	"github.com/strumhub/strumhub/agent-plane/internal/ratelimit"
	"github.com/strumhub/strumhub/agent-plane/internal/registry"
	"github.com/strumhub/strumhub/agent-plane/internal/retention"
	"github.com/strumhub/strumhub/agent-plane/internal/store"
	"github.com/strumhub/strumhub/agent-plane/internal/telemetry"
)

// Server holds the initialized agent plane.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Registry runs agents; the CLI uses it directly.
	Registry *registry.Registry

	// Store is the CRM data store (Supabase or in-memory).
	Store store.Store

	// Port is the port the server should listen on.
	Port int

	cancel  context.CancelFunc
	closers []func(context.Context) error
}

// New initializes every component and returns a ready Server. On error
// anything already opened is closed.
func New(ctx context.Context, cfg *config.Config) (_ *Server, err error) {
	bg, cancel := context.WithCancel(context.Background())
	srv := &Server{Port: cfg.Port, cancel: cancel}
	defer func() {
		if err != nil {
			srv.Close(ctx)
		}
	}()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	srv.onClose(shutdown)

	dataStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	srv.Store = dataStore
	srv.onClose(func(context.Context) error { return dataStore.Close() })
	if err := dataStore.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Data store is not reachable yet")
	}

	limiter, err := openLimiter(ctx, bg, cfg, srv)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	log.Info().Str("provider", provider.Name()).Str("model", cfg.LLM.DefaultModel).Msg("✅ LLM provider initialized")

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sink, err := openSink(bg, cfg, dataStore, promReg, srv)
	if err != nil {
		return nil, err
	}

	reg := registry.New(
		limiter,
		agentctx.New(dataStore),
		executor.New(provider, cfg.LLM.DefaultModel),
		sink,
		registry.WithBatchConcurrency(cfg.Batch.Concurrency),
	)
	if err := agents.RegisterDefaults(reg, cfg.AgentsDir); err != nil {
		return nil, fmt.Errorf("register agents: %w", err)
	}
	srv.Registry = reg

	srv.Handler = api.NewRouter(cfg, handlers.New(reg, cfg.Batch.MaxItems), promReg)
	return srv, nil
}

// Close stops background work and releases every resource, newest first.
func (s *Server) Close(ctx context.Context) error {
	s.cancel()
	if s.Registry != nil && s.Registry.Sink() != nil {
		s.Registry.Sink().Wait()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Server) onClose(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Supabase.Enabled() {
		s, err := store.NewSupabaseStore(store.SupabaseConfig{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.APIKey})
		if err != nil {
			return nil, fmt.Errorf("init supabase store: %w", err)
		}
		log.Info().Str("url", cfg.Supabase.URL).Msg("✅ Supabase store initialized")
		return s, nil
	}

	var opts []store.MemoryOption
	if cfg.DataFile != "" {
		opts = append(opts, store.WithSnapshot(cfg.DataFile))
	}
	log.Info().Str("snapshot", cfg.DataFile).Msg("✅ In-memory store initialized")
	return store.NewMemoryStore(opts...), nil
}

func openLimiter(ctx, bg context.Context, cfg *config.Config, srv *Server) (ratelimit.Limiter, error) {
	limits, err := ratelimit.DefaultLimits().WithOverrides(cfg.RateLimit.Overrides)
	if err != nil {
		return nil, fmt.Errorf("rate limits: %w", err)
	}

	if cfg.Redis.URL != "" {
		l, err := ratelimit.NewRedisLimiterFromURL(ctx, cfg.Redis.URL, cfg.Redis.Prefix, limits)
		if err != nil {
			return nil, fmt.Errorf("init redis limiter: %w", err)
		}
		srv.onClose(func(context.Context) error { return l.Close() })
		log.Info().Msg("✅ Redis rate limiter initialized")
		return l, nil
	}

	l := ratelimit.NewMemoryLimiter(limits)
	l.Start(bg, cfg.RateLimit.SweepInterval)
	log.Info().Dur("sweep", cfg.RateLimit.SweepInterval).Msg("✅ In-memory rate limiter initialized")
	return l, nil
}

// openSink picks the persistent analytics backend: the CRM's log table
// when Supabase is configured, else a local SQLite file, else none.
func openSink(bg context.Context, cfg *config.Config, dataStore store.Store, reg prometheus.Registerer, srv *Server) (*analytics.Sink, error) {
	opts := []analytics.Option{analytics.WithMetrics(analytics.NewMetrics(reg))}

	switch {
	case cfg.Supabase.Enabled():
		opts = append(opts, analytics.WithBackend(analytics.NewStoreBackend(dataStore, cfg.Analytics.Table)))
		log.Info().Str("table", cfg.Analytics.Table).Msg("✅ Analytics persisted to Supabase")
	case cfg.Analytics.SQLitePath != "":
		b, err := analytics.OpenSQLite(cfg.Analytics.SQLitePath, cfg.Analytics.Table)
		if err != nil {
			return nil, fmt.Errorf("open analytics sqlite: %w", err)
		}
		srv.onClose(func(context.Context) error { return b.Close() })
		opts = append(opts, analytics.WithBackend(b))

		if cfg.Analytics.Retention > 0 {
			var jopts []retention.Option
			if cfg.Analytics.ArchiveDir != "" {
				jopts = append(jopts, retention.WithArchiver(
					retention.NewLocalFileArchiver(cfg.Analytics.ArchiveDir, cfg.Analytics.ArchiveCompress)))
			}
			retention.NewJanitor(b, cfg.Analytics.Retention, cfg.Analytics.RetentionInterval, jopts...).Start(bg)
		}
		log.Info().Str("path", cfg.Analytics.SQLitePath).Msg("✅ Analytics persisted to SQLite")
	default:
		log.Info().Msg("🔕 Analytics persistence disabled (buffer only)")
	}

	return analytics.NewSink(cfg.Analytics.BufferSize, opts...), nil
}
