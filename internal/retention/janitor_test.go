package retention_test

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strumhub/strumhub/agent-plane/internal/analytics"
	"github.com/strumhub/strumhub/agent-plane/internal/retention"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *analytics.SQLiteBackend {
	t.Helper()
	b, err := analytics.OpenSQLite(filepath.Join(t.TempDir(), "log.db"), "ai_agent_logs")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	ctx := context.Background()
	require.NoError(t, b.Write(ctx, analytics.Entry{RequestID: "old-1", AgentID: "notes", Timestamp: now.Add(-40 * 24 * time.Hour)}))
	require.NoError(t, b.Write(ctx, analytics.Entry{RequestID: "old-2", AgentID: "email", Timestamp: now.Add(-31 * 24 * time.Hour)}))
	require.NoError(t, b.Write(ctx, analytics.Entry{RequestID: "new", AgentID: "notes", Timestamp: now.Add(-time.Hour)}))
	return b
}

func TestRunOnce_PurgeOnly(t *testing.T) {
	b := seeded(t)
	j := retention.NewJanitor(b, 30*24*time.Hour, time.Hour, retention.WithClock(func() time.Time { return now }))

	stats := j.RunOnce(context.Background())
	require.NoError(t, stats.Err)
	assert.Equal(t, 2, stats.Expired)
	assert.Equal(t, int64(2), stats.Purged)
	assert.Zero(t, stats.Archived)

	left, err := b.Query(context.Background(), "", time.Time{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].RequestID)
}

func TestRunOnce_ArchivesBeforePurge(t *testing.T) {
	b := seeded(t)
	dir := t.TempDir()
	j := retention.NewJanitor(b, 30*24*time.Hour, time.Hour,
		retention.WithClock(func() time.Time { return now }),
		retention.WithArchiver(retention.NewLocalFileArchiver(dir, true)),
	)

	stats := j.RunOnce(context.Background())
	require.NoError(t, stats.Err)
	assert.Equal(t, 2, stats.Archived)
	assert.Equal(t, int64(2), stats.Purged)
	assert.Equal(t, filepath.Join(dir, "analytics"), filepath.Dir(stats.Location))

	f, err := os.Open(stats.Location)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	lines := 0
	for sc := bufio.NewScanner(gz); sc.Scan(); {
		lines++
	}
	assert.Equal(t, 2, lines)
}

type brokenArchiver struct{}

func (brokenArchiver) Kind() string { return "broken" }

func (brokenArchiver) Archive(context.Context, []analytics.Entry) (string, error) {
	return "", errors.New("disk full")
}

func TestRunOnce_ArchiveFailureKeepsRows(t *testing.T) {
	b := seeded(t)
	j := retention.NewJanitor(b, 30*24*time.Hour, time.Hour,
		retention.WithClock(func() time.Time { return now }),
		retention.WithArchiver(brokenArchiver{}),
	)

	stats := j.RunOnce(context.Background())
	assert.Error(t, stats.Err)
	assert.Zero(t, stats.Purged)

	left, err := b.Query(context.Background(), "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, left, 3)
}

func TestRunOnce_NothingExpired(t *testing.T) {
	b := seeded(t)
	j := retention.NewJanitor(b, 365*24*time.Hour, time.Hour, retention.WithClock(func() time.Time { return now }))

	stats := j.RunOnce(context.Background())
	require.NoError(t, stats.Err)
	assert.Zero(t, stats.Expired)
	assert.Zero(t, stats.Purged)
}
