// Package store provides read access to the CRM's tables and the analytics
// log insert. Supabase (PostgREST) backs production; the in-memory store
// backs local dev and tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Table names in the CRM schema.
const (
	TableProfiles     = "profiles"
	TableLessons      = "lessons"
	TableAssignments  = "assignments"
	TableSongs        = "songs"
	TableStudentSongs = "student_songs"
)

// Row is one record as returned by the store.
type Row map[string]any

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
)

// Filter restricts a query to rows where Column compares to Value.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

// Since builds a "column >= t" filter.
func Since(column string, t time.Time) Filter {
	return Filter{Column: column, Op: OpGte, Value: t.UTC().Format(time.RFC3339Nano)}
}

// Query describes a filtered, ordered, limited read of one table.
type Query struct {
	Table      string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int // 0 = no limit
}

// Store is the query interface used by the context fetcher and the
// analytics writer.
type Store interface {
	// Get returns the row whose "id" equals id, or *ErrNotFound.
	Get(ctx context.Context, table, id string) (Row, error)

	// First returns the first row matching q, or *ErrNotFound.
	First(ctx context.Context, q Query) (Row, error)

	// List returns every row matching q. No match is an empty slice.
	List(ctx context.Context, q Query) ([]Row, error)

	// Count returns the number of rows in table matching filters.
	Count(ctx context.Context, table string, filters ...Filter) (int64, error)

	// Insert appends one row. row may be a Row or a struct with json tags.
	Insert(ctx context.Context, table string, row any) error

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested row does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is (or wraps) *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

func filterString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}
