package models

import (
	"strings"
	"time"
)

// PropertyType is the normalized classification of a listing.
type PropertyType string

const (
	SingleFamily PropertyType = "single_family"
	Townhouse    PropertyType = "townhouse"
	Condo        PropertyType = "condo"
	Apartment    PropertyType = "apartment"
	Manufactured PropertyType = "manufactured"
	OtherType    PropertyType = "other"
)

// ParsePropertyType maps raw source strings onto the enum. The second return
// is false when the value is unrecognizable and the record should be skipped.
func ParsePropertyType(raw string) (PropertyType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "single_family", "single family", "single-family", "house", "sfr":
		return SingleFamily, true
	case "townhouse", "townhome", "town house":
		return Townhouse, true
	case "condo", "condominium":
		return Condo, true
	case "apartment":
		return Apartment, true
	case "manufactured", "mobile", "mobile home":
		return Manufactured, true
	case "other", "land", "multi_family", "multi-family":
		return OtherType, true
	default:
		return "", false
	}
}

// RawListing holds an unvalidated record exactly as a listing source produced
// it. The cleaner turns these into Listings or counts them as skips.
type RawListing struct {
	SourceID     string
	Address      string
	City         string
	State        string
	ZipCode      string
	Price        int
	Beds         int
	Baths        float64
	Sqft         int
	LotSqft      *int
	YearBuilt    *int
	Stories      *int
	HOAMonthly   *int
	AnnualTax    *int
	DaysOnMarket *int
	PropertyType string
	Latitude     *float64
	Longitude    *float64
	HasPool      bool
	HasSolar     bool
	HasYard      *bool
	URL          string
	Description  string
	FetchedAt    time.Time
}

// Listing is the validated record flowing through filter, enrichment, scoring
// and storage. Pointer fields are genuinely optional: nil means the source
// (or a later stage) never supplied a value, which scoring treats differently
// from an explicit zero.
type Listing struct {
	SourceID     string       `db:"source_id" json:"source_id"`
	Address      string       `db:"address" json:"address"`
	City         string       `db:"city" json:"city"`
	State        string       `db:"state" json:"state"`
	ZipCode      string       `db:"zip_code" json:"zip_code"`
	Latitude     *float64     `db:"latitude" json:"latitude,omitempty"`
	Longitude    *float64     `db:"longitude" json:"longitude,omitempty"`
	Price        int          `db:"price" json:"price"`
	Beds         int          `db:"beds" json:"beds"`
	Baths        float64      `db:"baths" json:"baths"`
	Sqft         int          `db:"sqft" json:"sqft"`
	LotSqft      *int         `db:"lot_sqft" json:"lot_sqft,omitempty"`
	YearBuilt    *int         `db:"year_built" json:"year_built,omitempty"`
	PropertyType PropertyType `db:"property_type" json:"property_type"`
	Stories      *int         `db:"stories" json:"stories,omitempty"`
	HOAMonthly   *int         `db:"hoa_monthly" json:"hoa_monthly,omitempty"`
	AnnualTax    *int         `db:"annual_tax" json:"annual_tax,omitempty"`
	DaysOnMarket *int         `db:"days_on_market" json:"days_on_market,omitempty"`

	HasPool  bool  `db:"has_pool" json:"has_pool"`
	HasSolar bool  `db:"has_solar" json:"has_solar"`
	HasYard  *bool `db:"has_yard" json:"has_yard,omitempty"`

	// Enrichment output; nil until the enricher runs.
	CrimeIndex         *int     `db:"crime_index" json:"crime_index,omitempty"`
	DistanceToDowntown *float64 `db:"distance_to_downtown" json:"distance_to_downtown,omitempty"`
	NearestDowntown    *string  `db:"nearest_downtown" json:"nearest_downtown,omitempty"`

	// Scoring output; nil until the scorer runs.
	ValueScore *float64 `db:"value_score" json:"value_score,omitempty"`

	URL         string `db:"url" json:"url"`
	Description string `db:"description" json:"description,omitempty"`

	// FirstSeen is owned by the repository and survives upserts.
	FirstSeen   time.Time `db:"first_seen" json:"first_seen"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
}

// SqftPerDollar is the raw value behind the sqft-value score component.
// Returns 0 when price or sqft is unusable.
func (l *Listing) SqftPerDollar() float64 {
	if l.Price <= 0 || l.Sqft <= 0 {
		return 0
	}
	return float64(l.Sqft) / float64(l.Price)
}

// YardKnown reports whether has_yard was set either by the source or by
// enrichment.
func (l *Listing) YardKnown() bool { return l.HasYard != nil }

// Yard returns the yard flag, false when unknown.
func (l *Listing) Yard() bool { return l.HasYard != nil && *l.HasYard }

// RefreshReport summarizes one pipeline run.
type RefreshReport struct {
	Fetched   int           `json:"fetched"`
	Skipped   int           `json:"skipped"`
	Filtered  int           `json:"filtered"`
	Scored    int           `json:"scored"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Failed    int           `json:"failed"`
	Failures  []string      `json:"failures,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Attempted is the number of listings that reached the upsert stage.
func (r *RefreshReport) Attempted() int {
	return r.Inserted + r.Updated + r.Failed
}
