package store

import (
	"context"
	"fmt"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig holds the project URL and the service key.
type SupabaseConfig struct {
	URL    string
	APIKey string
}

// SupabaseStore implements Store over the Supabase PostgREST API.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore creates a store for the given project.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

func (s *SupabaseStore) Get(ctx context.Context, table, id string) (Row, error) {
	return s.First(ctx, Query{Table: table, Filters: []Filter{Eq("id", id)}})
}

func (s *SupabaseStore) First(ctx context.Context, q Query) (Row, error) {
	q.Limit = 1
	rows, err := s.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &ErrNotFound{Entity: q.Table, Key: describeFilters(q.Filters)}
	}
	return rows[0], nil
}

func (s *SupabaseStore) List(_ context.Context, q Query) ([]Row, error) {
	fb := applyFilters(s.client.From(q.Table).Select("*", "", false), q.Filters)
	if q.OrderBy != "" {
		fb = fb.Order(q.OrderBy, &postgrest.OrderOpts{Ascending: !q.Descending})
	}
	if q.Limit > 0 {
		fb = fb.Limit(q.Limit, "")
	}

	var rows []Row
	if _, err := fb.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

func (s *SupabaseStore) Count(_ context.Context, table string, filters ...Filter) (int64, error) {
	fb := applyFilters(s.client.From(table).Select("id", "exact", true), filters)
	_, count, err := fb.Execute()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

func (s *SupabaseStore) Insert(_ context.Context, table string, row any) error {
	if _, _, err := s.client.From(table).Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Ping issues a one-row read against the profiles table.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	_, err := s.List(ctx, Query{Table: TableProfiles, Limit: 1})
	return err
}

// Close is a no-op; the Supabase client holds no connections of its own.
func (s *SupabaseStore) Close() error { return nil }

func applyFilters(fb *postgrest.FilterBuilder, filters []Filter) *postgrest.FilterBuilder {
	for _, f := range filters {
		switch f.Op {
		case OpGte:
			fb = fb.Gte(f.Column, filterString(f.Value))
		default:
			fb = fb.Eq(f.Column, filterString(f.Value))
		}
	}
	return fb
}

func describeFilters(filters []Filter) string {
	out := ""
	for i, f := range filters {
		if i > 0 {
			out += ","
		}
		out += f.Column + "=" + filterString(f.Value)
	}
	return out
}
