package services

import (
	"fmt"
	"math"

	"house-hunter/models"
	"house-hunter/reference"
	"house-hunter/utils"
)

// Component weights. They sum to 1.0; the composite score is
// round(100 * Σ weight * normalized).
const (
	weightLocation     = 0.25
	weightSqftValue    = 0.23
	weightYearBuilt    = 0.20
	weightLowHOA       = 0.13
	weightPrivateYard  = 0.10
	weightDaysOnMarket = 0.03
	weightPool         = 0.03
	weightSolar        = 0.03
)

// ScoreComponent is one factor of a listing's value score, exposed for
// display.
type ScoreComponent struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Normalized  float64 `json:"normalized"`
	Points      float64 `json:"points"`
	Description string  `json:"description"`
}

// Scorer computes set-relative value scores. Several components are min-max
// normalized against the current batch, so scoring only makes sense over the
// complete candidate set at once.
type Scorer struct {
	data   *reference.Data
	logger *utils.Logger
}

// NewScorer creates a Scorer over the given reference data.
func NewScorer(data *reference.Data, logger *utils.Logger) *Scorer {
	return &Scorer{data: data, logger: logger.With("component", "scorer")}
}

// batchStats carries the per-component extremes of one candidate set.
type batchStats struct {
	sqftPerDollar minMax
	yearBuilt     minMax
	hoa           minMax
	daysOnMarket  minMax
}

type minMax struct {
	min, max float64
	seen     bool
}

func (m *minMax) observe(v float64) {
	if !m.seen {
		m.min, m.max, m.seen = v, v, true
		return
	}
	if v < m.min {
		m.min = v
	}
	if v > m.max {
		m.max = v
	}
}

// normalize scales v into [0,1] against the observed extremes. A flat field
// (max == min, including a batch of one) normalizes to 1.0 for every listing:
// nobody is penalized for a component that cannot discriminate.
func (m *minMax) normalize(v float64) float64 {
	if !m.seen || m.max == m.min {
		return 1.0
	}
	n := (v - m.min) / (m.max - m.min)
	return math.Max(0, math.Min(1, n))
}

// worst returns the normalized value assigned to listings missing this field.
func (m *minMax) worst() float64 {
	if !m.seen || m.max == m.min {
		return 1.0
	}
	return 0.0
}

func (s *Scorer) collectStats(listings []*models.Listing) batchStats {
	var stats batchStats
	for _, l := range listings {
		if v := l.SqftPerDollar(); v > 0 {
			stats.sqftPerDollar.observe(v)
		}
		if l.YearBuilt != nil {
			stats.yearBuilt.observe(float64(*l.YearBuilt))
		}
		if l.HOAMonthly != nil {
			stats.hoa.observe(float64(*l.HOAMonthly))
		}
		if l.DaysOnMarket != nil {
			stats.daysOnMarket.observe(float64(*l.DaysOnMarket))
		}
	}
	return stats
}

// Score annotates every listing in the batch with a 0-100 value score. Only
// ValueScore is touched. An empty batch is a no-op.
func (s *Scorer) Score(listings []*models.Listing) []*models.Listing {
	if len(listings) == 0 {
		return listings
	}

	stats := s.collectStats(listings)

	for _, l := range listings {
		score := s.composite(l, &stats)
		l.ValueScore = &score
	}

	s.logger.Info("scoring complete", "listings", len(listings))
	return listings
}

func (s *Scorer) composite(l *models.Listing, stats *batchStats) float64 {
	total := 0.0
	for _, c := range s.components(l, stats) {
		total += c.Weight * c.Normalized
	}

	score := math.Round(100 * total)
	return math.Max(0, math.Min(100, score))
}

// Breakdown exposes each component's normalized value and weighted point
// contribution for a listing, judged against the given batch. Display only;
// it never alters the listing.
func (s *Scorer) Breakdown(l *models.Listing, batch []*models.Listing) []ScoreComponent {
	stats := s.collectStats(batch)
	components := s.components(l, &stats)
	for i := range components {
		components[i].Points = math.Round(100*components[i].Weight*components[i].Normalized*10) / 10
	}
	return components
}

func (s *Scorer) components(l *models.Listing, stats *batchStats) []ScoreComponent {
	location := s.data.LocationPreferenceFor(l.City)

	var sqftValue float64
	if v := l.SqftPerDollar(); v > 0 {
		sqftValue = stats.sqftPerDollar.normalize(v)
	}

	yearBuilt := stats.yearBuilt.worst()
	yearDesc := "Build year unknown"
	if l.YearBuilt != nil {
		yearBuilt = stats.yearBuilt.normalize(float64(*l.YearBuilt))
		yearDesc = fmt.Sprintf("Built in %d", *l.YearBuilt)
	}

	// Missing HOA is the best possible outcome. Known HOAs, zero included,
	// are ranked against each other inverted so cheaper is better; a batch
	// containing a $0 HOA anchors the pool minimum at the full score.
	lowHOA := 1.0
	hoaDesc := "No HOA"
	if l.HOAMonthly != nil {
		if stats.hoa.seen && stats.hoa.max != stats.hoa.min {
			lowHOA = 1 - stats.hoa.normalize(float64(*l.HOAMonthly))
		}
		if *l.HOAMonthly > 0 {
			hoaDesc = fmt.Sprintf("$%d/month HOA", *l.HOAMonthly)
		}
	}

	dom := stats.daysOnMarket.worst()
	domDesc := "Days on market unknown"
	if l.DaysOnMarket != nil {
		dom = stats.daysOnMarket.normalize(float64(*l.DaysOnMarket))
		domDesc = fmt.Sprintf("%d days on market", *l.DaysOnMarket)
	}

	return []ScoreComponent{
		{
			Name:        "location",
			Weight:      weightLocation,
			Normalized:  location,
			Description: fmt.Sprintf("%s (%.0f%% preference)", l.City, location*100),
		},
		{
			Name:        "sqft_value",
			Weight:      weightSqftValue,
			Normalized:  sqftValue,
			Description: fmt.Sprintf("%.1f sqft per $1000", l.SqftPerDollar()*1000),
		},
		{
			Name:        "year_built",
			Weight:      weightYearBuilt,
			Normalized:  yearBuilt,
			Description: yearDesc,
		},
		{
			Name:        "low_hoa",
			Weight:      weightLowHOA,
			Normalized:  lowHOA,
			Description: hoaDesc,
		},
		{
			Name:        "private_yard",
			Weight:      weightPrivateYard,
			Normalized:  boolNorm(l.Yard()),
			Description: boolDesc(l.Yard(), "Has yard", "No yard"),
		},
		{
			Name:        "days_on_market",
			Weight:      weightDaysOnMarket,
			Normalized:  dom,
			Description: domDesc,
		},
		{
			Name:        "pool",
			Weight:      weightPool,
			Normalized:  boolNorm(l.HasPool),
			Description: boolDesc(l.HasPool, "Has pool", "No pool"),
		},
		{
			Name:        "solar",
			Weight:      weightSolar,
			Normalized:  boolNorm(l.HasSolar),
			Description: boolDesc(l.HasSolar, "Has solar", "No solar"),
		},
	}
}

func boolNorm(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

func boolDesc(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
