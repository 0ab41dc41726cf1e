package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MemoryStore implements Store with in-memory tables. It is used when
// Supabase is not configured; an optional JSON snapshot keeps seeded data
// and analytics rows across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Row

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals the save goroutine to stop
	closeOnce    sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithSnapshot loads tables from path (if it exists) and writes every
// change back to it.
func WithSnapshot(path string) MemoryOption {
	return func(m *MemoryStore) { m.snapshotPath = path }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		tables: make(map[string][]Row),
		saveCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}

	if m.snapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(m.snapshotPath), 0755); err != nil {
			log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}
	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// Seed appends rows to table. Intended for tests and local fixtures.
func (m *MemoryStore) Seed(table string, rows ...Row) {
	m.mu.Lock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], cloneRow(r))
	}
	m.mu.Unlock()
	m.requestSave()
}

// Rows returns a copy of every row in table.
func (m *MemoryStore) Rows(table string) []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, cloneRow(r))
	}
	return out
}

func (m *MemoryStore) Get(ctx context.Context, table, id string) (Row, error) {
	return m.First(ctx, Query{Table: table, Filters: []Filter{Eq("id", id)}})
}

func (m *MemoryStore) First(ctx context.Context, q Query) (Row, error) {
	q.Limit = 1
	rows, err := m.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &ErrNotFound{Entity: q.Table, Key: describeFilters(q.Filters)}
	}
	return rows[0], nil
}

func (m *MemoryStore) List(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]Row, 0)
	for _, r := range m.tables[q.Table] {
		if matches(r, q.Filters) {
			out = append(out, cloneRow(r))
		}
	}
	m.mu.RUnlock()

	if q.OrderBy != "" {
		slices.SortStableFunc(out, func(a, b Row) int {
			c := compareValues(a[q.OrderBy], b[q.OrderBy])
			if q.Descending {
				return -c
			}
			return c
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Count(ctx context.Context, table string, filters ...Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.tables[table] {
		if matches(r, filters) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Insert(ctx context.Context, table string, row any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := toRow(row)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	m.mu.Lock()
	m.tables[table] = append(m.tables[table], r)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the save goroutine and flushes pending data to disk.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}

// ── Persistence ─────────────────────────────────────────────

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.tables, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Msg("Failed to rename snapshot")
	}
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		}
		return
	}

	var tables map[string][]Row
	if err := json.Unmarshal(data, &tables); err != nil {
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Corrupt snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	for t, rows := range tables {
		m.tables[t] = rows
	}
	m.mu.Unlock()

	total := 0
	for _, rows := range tables {
		total += len(rows)
	}
	log.Info().Int("tables", len(tables)).Int("rows", total).Msg("📂 Loaded data from disk")
}

// ── Helpers ─────────────────────────────────────────────────

func matches(r Row, filters []Filter) bool {
	for _, f := range filters {
		v, ok := r[f.Column]
		if !ok {
			return false
		}
		switch f.Op {
		case OpGte:
			if compareValues(v, f.Value) < 0 {
				return false
			}
		default:
			if filterString(v) != filterString(f.Value) {
				return false
			}
		}
	}
	return true
}

// compareValues orders numbers numerically, RFC 3339 timestamps
// chronologically and everything else as strings. nil sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	as, bs := filterString(a), filterString(b)
	if af, err := strconv.ParseFloat(as, 64); err == nil {
		if bf, err := strconv.ParseFloat(bs, 64); err == nil {
			return cmp.Compare(af, bf)
		}
	}
	if at, err := time.Parse(time.RFC3339Nano, as); err == nil {
		if bt, err := time.Parse(time.RFC3339Nano, bs); err == nil {
			return at.Compare(bt)
		}
	}
	return cmp.Compare(as, bs)
}

func toRow(v any) (Row, error) {
	if r, ok := v.(Row); ok {
		return cloneRow(r), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r Row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("row must encode as a JSON object: %w", err)
	}
	return r, nil
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
