package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"house-hunter/config"
	"house-hunter/models"
	"house-hunter/reference"
	"house-hunter/storage"
	"house-hunter/utils"
)

type fakeSource struct {
	listings []*models.RawListing
	err      error

	mu      sync.Mutex
	fetches int
	block   chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context) ([]*models.RawListing, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.listings, f.err
}

func testPipeline(repo storage.Repository) *Pipeline {
	logger := utils.NewNopLogger()
	data := reference.Default()
	criteria := config.Criteria{
		MinBeds:     3,
		MinBaths:    2,
		MinSqft:     1200,
		MinPrice:    400000,
		MaxPrice:    700000,
		MaxAge:      30,
		CurrentYear: 2025,
	}
	return NewPipeline(
		NewCleaner(logger),
		NewFilter(criteria),
		NewEnricher(data, nil, 2, logger),
		NewScorer(data, logger),
		repo,
		logger,
	)
}

func rawBatch() []*models.RawListing {
	yearA, yearB, yearC := 2010, 1998, 2015
	hoaB := 250
	latA, lonA := 33.3600, -111.7900
	return []*models.RawListing{
		{
			SourceID: "a", Address: "1 Alpha Way", City: "Gilbert", State: "AZ",
			Price: 500000, Beds: 4, Baths: 2, Sqft: 1800, YearBuilt: &yearA,
			PropertyType: "single_family", HOAMonthly: intp(0),
			Latitude: &latA, Longitude: &lonA,
		},
		{
			SourceID: "b", Address: "2 Beta Rd", City: "Mesa", State: "AZ",
			Price: 690000, Beds: 3, Baths: 2, Sqft: 1300, YearBuilt: &yearB,
			PropertyType: "single_family", HOAMonthly: &hoaB,
		},
		{
			SourceID: "c", Address: "3 Gamma Ct", City: "Chandler", State: "AZ",
			Price: 450000, Beds: 3, Baths: 2, Sqft: 1400, YearBuilt: &yearC,
			PropertyType: "condo",
		},
	}
}

func TestRefreshFullCycle(t *testing.T) {
	repo := storage.NewMemoryRepository()
	p := testPipeline(repo)
	ctx := context.Background()

	report, err := p.Refresh(ctx, &fakeSource{listings: rawBatch()})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Fetched)
	assert.Zero(t, report.Skipped)
	assert.Equal(t, 1, report.Filtered, "the condo is ineligible")
	assert.Equal(t, 2, report.Scored)
	assert.Equal(t, 2, report.Inserted)
	assert.Zero(t, report.Updated)
	assert.Zero(t, report.Failed)

	a, err := repo.GetBySourceID(ctx, "a")
	require.NoError(t, err)
	b, err := repo.GetBySourceID(ctx, "b")
	require.NoError(t, err)
	_, err = repo.GetBySourceID(ctx, "c")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NotNil(t, a.ValueScore)
	require.NotNil(t, b.ValueScore)
	assert.Greater(t, *a.ValueScore, *b.ValueScore,
		"Gilbert listing wins on every relative component")
	assert.Equal(t, 83.0, *a.ValueScore)
	assert.Equal(t, 24.0, *b.ValueScore)

	require.NotNil(t, a.CrimeIndex, "scored listings come out enriched")
	require.NotNil(t, a.NearestDowntown)
}

func TestRefreshSecondRunUpdatesNotInserts(t *testing.T) {
	repo := storage.NewMemoryRepository()
	p := testPipeline(repo)
	ctx := context.Background()
	src := &fakeSource{listings: rawBatch()}

	first, err := p.Refresh(ctx, src)
	require.NoError(t, err)
	require.Equal(t, 2, first.Inserted)

	a1, err := repo.GetBySourceID(ctx, "a")
	require.NoError(t, err)

	second, err := p.Refresh(ctx, src)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 2, second.Updated)

	a2, err := repo.GetBySourceID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, a1.FirstSeen, a2.FirstSeen, "first_seen survives the upsert")
	assert.False(t, a2.LastUpdated.Before(a1.LastUpdated))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRefreshPropagatesChangedSourceData(t *testing.T) {
	repo := storage.NewMemoryRepository()
	p := testPipeline(repo)
	ctx := context.Background()

	src := &fakeSource{listings: rawBatch()}
	_, err := p.Refresh(ctx, src)
	require.NoError(t, err)

	before, err := repo.GetBySourceID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 500000, before.Price)

	changed := rawBatch()
	changed[0].Price = 550000
	src.listings = changed

	report, err := p.Refresh(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated)

	after, err := repo.GetBySourceID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 550000, after.Price, "a re-listed price replaces the stored one")
	require.NotNil(t, after.ValueScore, "the score is recomputed over the new batch")
}

func TestRefreshConcurrentCallRejected(t *testing.T) {
	repo := storage.NewMemoryRepository()
	p := testPipeline(repo)

	block := make(chan struct{})
	src := &fakeSource{listings: rawBatch(), block: block}

	done := make(chan error, 1)
	go func() {
		_, err := p.Refresh(context.Background(), src)
		done <- err
	}()

	// Wait for the first refresh to take the lock inside Fetch.
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.fetches == 1
	}, time.Second, 5*time.Millisecond)

	_, err := p.Refresh(context.Background(), &fakeSource{listings: rawBatch()})
	assert.ErrorIs(t, err, ErrRefreshInProgress)

	close(block)
	require.NoError(t, <-done)

	// Lock released; a new refresh goes through.
	_, err = p.Refresh(context.Background(), &fakeSource{listings: rawBatch()})
	assert.NoError(t, err)
}

func TestRefreshSourceErrorNoResults(t *testing.T) {
	repo := storage.NewMemoryRepository()
	p := testPipeline(repo)

	wantErr := errors.New("fetch blew up")
	report, err := p.Refresh(context.Background(), &fakeSource{err: wantErr})
	assert.ErrorIs(t, err, wantErr)
	assert.Nil(t, report)

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefreshPartialBatchOnSourceError(t *testing.T) {
	repo := storage.NewMemoryRepository()
	p := testPipeline(repo)

	src := &fakeSource{listings: rawBatch()[:2], err: errors.New("last city timed out")}
	report, err := p.Refresh(context.Background(), src)
	require.NoError(t, err, "partial results are still processed")

	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 2, report.Inserted)
}

func TestRefreshCountsUpsertFailures(t *testing.T) {
	repo := &failingRepo{Repository: storage.NewMemoryRepository(), failID: "b"}
	p := testPipeline(repo)

	report, err := p.Refresh(context.Background(), &fakeSource{listings: rawBatch()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "b")
	assert.Equal(t, 2, report.Attempted())
}

type failingRepo struct {
	storage.Repository
	failID string
}

func (f *failingRepo) Upsert(ctx context.Context, l *models.Listing) (storage.UpsertResult, error) {
	if l.SourceID == f.failID {
		return 0, &storage.StorageError{SourceID: l.SourceID, Err: errors.New("constraint violation")}
	}
	return f.Repository.Upsert(ctx, l)
}
