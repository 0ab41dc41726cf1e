// Package retention expires old rows from the local analytics log.
//
// Each cycle finds entries older than the retention window, archives them
// when an Archiver is configured, and then purges them. Archive failures
// are fail-safe: rows are NOT deleted if archiving fails.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strumhub/strumhub/agent-plane/internal/analytics"
)

// MinInterval is the shortest cycle the janitor will run.
const MinInterval = time.Minute

// Target is a log the janitor can expire.
type Target interface {
	Expired(ctx context.Context, cutoff time.Time) ([]analytics.Entry, error)
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Archiver stores expired entries durably before they are purged.
type Archiver interface {
	Kind() string
	Archive(ctx context.Context, entries []analytics.Entry) (location string, err error)
}

// CycleStats records what a single cycle did.
type CycleStats struct {
	Cutoff   time.Time
	Expired  int
	Archived int
	Purged   int64
	Location string
	Err      error
}

// Janitor periodically archives and purges expired analytics entries.
type Janitor struct {
	target    Target
	retention time.Duration
	interval  time.Duration
	archiver  Archiver
	now       func() time.Time
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithArchiver archives entries before purging them.
func WithArchiver(a Archiver) Option { return func(j *Janitor) { j.archiver = a } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(j *Janitor) { j.now = now } }

// NewJanitor creates a janitor that keeps entries for retention and runs
// every interval.
func NewJanitor(t Target, retention, interval time.Duration, opts ...Option) *Janitor {
	if interval < MinInterval {
		interval = time.Hour
	}
	j := &Janitor{target: t, retention: retention, interval: interval, now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Start runs a cycle immediately and then on every tick, in a background
// goroutine, until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	archiver := "none"
	if j.archiver != nil {
		archiver = j.archiver.Kind()
	}
	log.Info().
		Dur("retention", j.retention).
		Dur("interval", j.interval).
		Str("archiver", archiver).
		Msg("🧹 Retention janitor started")

	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.logCycle(j.RunOnce(ctx))
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Retention janitor stopped")
				return
			case <-ticker.C:
				j.logCycle(j.RunOnce(ctx))
			}
		}
	}()
}

// RunOnce performs one retention sweep.
func (j *Janitor) RunOnce(ctx context.Context) CycleStats {
	stats := CycleStats{Cutoff: j.now().Add(-j.retention)}

	expired, err := j.target.Expired(ctx, stats.Cutoff)
	if err != nil {
		stats.Err = err
		return stats
	}
	stats.Expired = len(expired)
	if len(expired) == 0 {
		return stats
	}

	if j.archiver != nil {
		loc, err := j.archiver.Archive(ctx, expired)
		if err != nil {
			stats.Err = err
			return stats
		}
		stats.Archived = len(expired)
		stats.Location = loc
	}

	stats.Purged, stats.Err = j.target.Purge(ctx, stats.Cutoff)
	return stats
}

func (j *Janitor) logCycle(s CycleStats) {
	if s.Err != nil {
		log.Warn().Err(s.Err).Int("expired", s.Expired).Int("archived", s.Archived).Msg("Retention cycle failed, nothing purged past the failure")
		return
	}
	if s.Purged > 0 || s.Archived > 0 {
		log.Info().
			Int64("purged", s.Purged).
			Int("archived", s.Archived).
			Str("location", s.Location).
			Time("cutoff", s.Cutoff).
			Msg("Retention cycle complete")
	}
}
