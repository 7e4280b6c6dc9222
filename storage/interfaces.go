package storage

import (
	"context"
	"errors"
	"fmt"

	"house-hunter/models"
)

// ErrNotFound is returned when a listing lookup matches nothing.
var ErrNotFound = errors.New("listing not found")

// UpsertResult tells whether an upsert created a new row or updated one.
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// ValidationError rejects a bad query parameter. It names the offending
// parameter so callers can surface it verbatim.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Message)
}

// StorageError wraps a per-listing persistence failure with the identity of
// the listing that failed.
type StorageError struct {
	SourceID string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: listing %s: %v", e.SourceID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// QueryFilters are AND-combined predicates. Nil pointer fields mean "don't
// care"; an empty Cities slice means all cities.
type QueryFilters struct {
	MinPrice *int
	MaxPrice *int
	MinBeds  *int
	MinBaths *float64
	MinSqft  *int
	Cities   []string
	HasYard  *bool
	HasPool  *bool
	HasSolar *bool
	MaxAge   *int
}

// Sort directions accepted by Query.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// DefaultSortField orders results by value score when the caller does not say
// otherwise.
const DefaultSortField = "value_score"

// sortableFields is the allow-list for Query.SortBy. Anything else fails
// validation rather than being silently ignored.
var sortableFields = map[string]struct{}{
	"value_score":    {},
	"price":          {},
	"sqft":           {},
	"year_built":     {},
	"days_on_market": {},
}

// Query describes a repository read: filters, ordering and pagination.
// The zero value sorts by value_score descending with no filters and no
// pagination limit.
type Query struct {
	Filters QueryFilters
	SortBy  string
	SortDir string
	Limit   int
	Offset  int
}

// Normalize fills in defaults and validates the query. It must be called (and
// honored) by every Repository implementation.
func (q *Query) Normalize() error {
	if q.SortBy == "" {
		q.SortBy = DefaultSortField
	}
	if _, ok := sortableFields[q.SortBy]; !ok {
		return &ValidationError{Param: "sort_by", Message: fmt.Sprintf("unsortable field %q", q.SortBy)}
	}

	if q.SortDir == "" {
		q.SortDir = SortDesc
	}
	if q.SortDir != SortAsc && q.SortDir != SortDesc {
		return &ValidationError{Param: "sort_dir", Message: fmt.Sprintf("must be %q or %q", SortAsc, SortDesc)}
	}

	if q.Limit < 0 {
		return &ValidationError{Param: "limit", Message: "must not be negative"}
	}
	if q.Offset < 0 {
		return &ValidationError{Param: "offset", Message: "must not be negative"}
	}

	f := q.Filters
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return &ValidationError{Param: "min_price", Message: "exceeds max_price"}
	}
	if f.MaxAge != nil && *f.MaxAge < 0 {
		return &ValidationError{Param: "max_age", Message: "must not be negative"}
	}
	return nil
}

// Repository is the persistence boundary for scored listings. Upsert is the
// sole write path so repeated ingestion runs converge on one row per
// source_id.
type Repository interface {
	// Upsert inserts the listing or updates every mutable field of the
	// existing row, preserving first-seen bookkeeping.
	Upsert(ctx context.Context, l *models.Listing) (UpsertResult, error)
	// Query returns listings matching the filters in the requested order.
	Query(ctx context.Context, q Query) ([]*models.Listing, error)
	// GetBySourceID returns one listing or ErrNotFound.
	GetBySourceID(ctx context.Context, sourceID string) (*models.Listing, error)
	// Count returns the number of stored listings.
	Count(ctx context.Context) (int, error)
	// DeleteAll clears the listing set ahead of a full re-ingest.
	DeleteAll(ctx context.Context) error
	Close() error
}
