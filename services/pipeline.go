package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"house-hunter/models"
	"house-hunter/storage"
	"house-hunter/utils"
)

// ErrRefreshInProgress rejects a refresh started while another one holds the
// pipeline. Two interleaved batches would persist scores normalized against
// different candidate sets.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// ListingSource yields raw listing records. The pipeline only consumes the
// sequence; fetching strategy belongs to the implementation.
type ListingSource interface {
	Fetch(ctx context.Context) ([]*models.RawListing, error)
}

// Pipeline runs one refresh cycle as a single coherent batch: clean, filter,
// enrich, score, then persist. Scoring completes over the whole batch before
// the first upsert happens.
type Pipeline struct {
	cleaner  *Cleaner
	filter   *Filter
	enricher *Enricher
	scorer   *Scorer
	repo     storage.Repository
	logger   *utils.Logger

	mu sync.Mutex
}

// NewPipeline wires the stages together over a shared repository.
func NewPipeline(cleaner *Cleaner, filter *Filter, enricher *Enricher, scorer *Scorer,
	repo storage.Repository, logger *utils.Logger) *Pipeline {
	return &Pipeline{
		cleaner:  cleaner,
		filter:   filter,
		enricher: enricher,
		scorer:   scorer,
		repo:     repo,
		logger:   logger.With("component", "pipeline"),
	}
}

// Refresh ingests from source and persists the scored batch. A concurrent
// call fails fast with ErrRefreshInProgress. A source error with a partial
// result set does not abort the run: whatever was collected is still
// processed as a best-effort batch.
func (p *Pipeline) Refresh(ctx context.Context, source ListingSource) (*models.RefreshReport, error) {
	if !p.mu.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer p.mu.Unlock()

	report := &models.RefreshReport{StartedAt: time.Now()}

	raw, err := source.Fetch(ctx)
	if err != nil {
		if len(raw) == 0 {
			return nil, err
		}
		p.logger.Warn("source interrupted, continuing with partial batch",
			"collected", len(raw), "error", err)
	}
	report.Fetched = len(raw)

	clean, skipped := p.cleaner.Clean(raw)
	report.Skipped = skipped

	eligible := p.filter.Apply(clean)
	report.Filtered = len(clean) - len(eligible)

	enriched := p.enricher.EnrichAll(eligible)
	scored := p.scorer.Score(enriched)
	report.Scored = len(scored)

	for _, l := range scored {
		result, err := p.repo.Upsert(ctx, l)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, err.Error())
			p.logger.Error("upsert failed", "source_id", l.SourceID, "error", err)
			continue
		}
		switch result {
		case storage.Inserted:
			report.Inserted++
		case storage.Updated:
			report.Updated++
		}
	}

	report.Duration = time.Since(report.StartedAt)
	p.logger.Info("refresh complete",
		"fetched", report.Fetched,
		"skipped", report.Skipped,
		"filtered_out", report.Filtered,
		"scored", report.Scored,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"failed", report.Failed,
		"duration", report.Duration)
	return report, nil
}
