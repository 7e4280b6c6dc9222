package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"house-hunter/models"
)

// MemoryRepository is an in-memory Repository. It backs tests and lets the
// pipeline run without a database; the query semantics match the Postgres
// implementation.
type MemoryRepository struct {
	mu       sync.RWMutex
	listings map[string]*models.Listing
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{listings: make(map[string]*models.Listing)}
}

// Upsert stores a copy of the listing, preserving the first-seen timestamp of
// an existing row.
func (r *MemoryRepository) Upsert(_ context.Context, l *models.Listing) (UpsertResult, error) {
	if l.SourceID == "" {
		return 0, &StorageError{SourceID: l.SourceID, Err: errors.New("empty source_id")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *l
	stored.LastUpdated = time.Now()

	if prev, ok := r.listings[l.SourceID]; ok {
		stored.FirstSeen = prev.FirstSeen
		r.listings[l.SourceID] = &stored
		return Updated, nil
	}

	stored.FirstSeen = stored.LastUpdated
	r.listings[l.SourceID] = &stored
	return Inserted, nil
}

// Query returns matching listings ordered and paginated per the contract.
func (r *MemoryRepository) Query(_ context.Context, q Query) ([]*models.Listing, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	matched := make([]*models.Listing, 0, len(r.listings))
	for _, l := range r.listings {
		if matches(l, q.Filters) {
			copied := *l
			matched = append(matched, &copied)
		}
	}
	r.mu.RUnlock()

	sortListings(matched, q.SortBy, q.SortDir)

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []*models.Listing{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// GetBySourceID returns a copy of one listing or ErrNotFound.
func (r *MemoryRepository) GetBySourceID(_ context.Context, sourceID string) (*models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[sourceID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *l
	return &copied, nil
}

// Count returns the number of stored listings.
func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listings), nil
}

// DeleteAll clears the listing set.
func (r *MemoryRepository) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings = make(map[string]*models.Listing)
	return nil
}

func (r *MemoryRepository) Close() error { return nil }

func matches(l *models.Listing, f QueryFilters) bool {
	if f.MinPrice != nil && l.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && l.Price > *f.MaxPrice {
		return false
	}
	if f.MinBeds != nil && l.Beds < *f.MinBeds {
		return false
	}
	if f.MinBaths != nil && l.Baths < *f.MinBaths {
		return false
	}
	if f.MinSqft != nil && l.Sqft < *f.MinSqft {
		return false
	}
	if len(f.Cities) > 0 {
		found := false
		for _, city := range f.Cities {
			if l.City == city {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.HasYard != nil && l.Yard() != *f.HasYard {
		return false
	}
	if f.HasPool != nil && l.HasPool != *f.HasPool {
		return false
	}
	if f.HasSolar != nil && l.HasSolar != *f.HasSolar {
		return false
	}
	if f.MaxAge != nil {
		minYear := time.Now().Year() - *f.MaxAge
		if l.YearBuilt == nil || *l.YearBuilt < minYear {
			return false
		}
	}
	return true
}

// sortListings orders by the requested field with nil values last and
// source_id as a deterministic tiebreaker, matching the SQL ordering.
func sortListings(listings []*models.Listing, field, dir string) {
	desc := dir == SortDesc

	value := func(l *models.Listing) (float64, bool) {
		switch field {
		case "value_score":
			if l.ValueScore == nil {
				return 0, false
			}
			return *l.ValueScore, true
		case "price":
			return float64(l.Price), true
		case "sqft":
			return float64(l.Sqft), true
		case "year_built":
			if l.YearBuilt == nil {
				return 0, false
			}
			return float64(*l.YearBuilt), true
		case "days_on_market":
			if l.DaysOnMarket == nil {
				return 0, false
			}
			return float64(*l.DaysOnMarket), true
		default:
			return 0, false
		}
	}

	sort.SliceStable(listings, func(i, j int) bool {
		vi, oki := value(listings[i])
		vj, okj := value(listings[j])

		// nulls last regardless of direction
		if oki != okj {
			return oki
		}
		if oki && vi != vj {
			if desc {
				return vi > vj
			}
			return vi < vj
		}
		return listings[i].SourceID < listings[j].SourceID
	})
}
