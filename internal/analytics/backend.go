package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/strumhub/strumhub/agent-plane/internal/store"
)

// maxQueryRows bounds a reporting read.
const maxQueryRows = 10000

// ── Store backend (Supabase / memory) ───────────────────────

// StoreBackend writes entries as rows of one table in a store.Store.
type StoreBackend struct {
	store store.Store
	table string
}

// NewStoreBackend persists into table (e.g. "ai_agent_logs").
func NewStoreBackend(s store.Store, table string) *StoreBackend {
	return &StoreBackend{store: s, table: table}
}

func (b *StoreBackend) Write(ctx context.Context, e Entry) error {
	return b.store.Insert(ctx, b.table, e)
}

func (b *StoreBackend) Query(ctx context.Context, agentID string, since time.Time) ([]Entry, error) {
	q := store.Query{Table: b.table, OrderBy: "created_at", Descending: true, Limit: maxQueryRows}
	if agentID != "" {
		q.Filters = append(q.Filters, store.Eq("agent_id", agentID))
	}
	if !since.IsZero() {
		q.Filters = append(q.Filters, store.Since("created_at", since))
	}

	rows, err := b.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode row: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ── SQLite backend (gorm) ───────────────────────────────────

// SQLiteBackend keeps a local analytics log for deployments without
// Supabase.
type SQLiteBackend struct {
	db    *gorm.DB
	table string
}

// OpenSQLite opens (or creates) the database at path and migrates table.
// Use ":memory:" for an ephemeral log.
func OpenSQLite(path, table string) (*SQLiteBackend, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Table(table).AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", table, err)
	}
	return &SQLiteBackend{db: db, table: table}, nil
}

func (b *SQLiteBackend) Write(ctx context.Context, e Entry) error {
	return b.db.WithContext(ctx).Table(b.table).Create(&e).Error
}

func (b *SQLiteBackend) Query(ctx context.Context, agentID string, since time.Time) ([]Entry, error) {
	q := b.db.WithContext(ctx).Table(b.table)
	if agentID != "" {
		q = q.Where("agent_id = ?", agentID)
	}
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}

	var out []Entry
	if err := q.Order("created_at DESC").Limit(maxQueryRows).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (b *SQLiteBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Expired returns entries recorded before cutoff, oldest first.
func (b *SQLiteBackend) Expired(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	var out []Entry
	err := b.db.WithContext(ctx).Table(b.table).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// Purge deletes entries recorded before cutoff and returns how many went.
func (b *SQLiteBackend) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := b.db.WithContext(ctx).Table(b.table).Where("created_at < ?", cutoff).Delete(&Entry{})
	return res.RowsAffected, res.Error
}
