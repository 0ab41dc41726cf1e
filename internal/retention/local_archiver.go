package retention

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/strumhub/strumhub/agent-plane/internal/analytics"
)

// LocalFileArchiver writes expired entries as JSONL files:
//
//	{basePath}/analytics/2026-02-20T15-04-05Z.jsonl[.gz]
type LocalFileArchiver struct {
	basePath string
	compress bool
	now      func() time.Time
}

// NewLocalFileArchiver creates a file-based archiver. If basePath is empty,
// it defaults to "~/.strumhub/archive".
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = filepath.Join(os.TempDir(), "strumhub", "archive")
		} else {
			basePath = filepath.Join(home, ".strumhub", "archive")
		}
	}
	return &LocalFileArchiver{basePath: basePath, compress: compress, now: time.Now}
}

func (a *LocalFileArchiver) Kind() string { return "local" }

func (a *LocalFileArchiver) Archive(_ context.Context, entries []analytics.Entry) (string, error) {
	dir := filepath.Join(a.basePath, "analytics")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	name := a.now().UTC().Format("2006-01-02T15-04-05.000Z") + ".jsonl"
	if a.compress {
		name += ".gz"
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if a.compress {
		gz = gzip.NewWriter(f)
		w = gz
	}

	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("encode entry %s: %w", e.RequestID, err)
		}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("flush archive: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}

	log.Debug().Str("path", path).Int("count", len(entries)).Msg("Archived analytics entries")
	return path, nil
}
