package services

import (
	"strings"
	"time"

	"house-hunter/config"
	"house-hunter/models"
)

// fractionalKeywords mark co-ownership and timeshare offers, which look like
// bargains on paper but are not whole-home sales.
var fractionalKeywords = []string{
	"co-ownership", "coownership", "co ownership",
	"fractional", "timeshare", "time share",
	"1/8 ownership", "1/4 ownership", "1/2 ownership",
	"shared ownership", "partial ownership",
	".125 ownership", ".25 ownership", ".5 ownership",
}

// Filter applies the hard eligibility rules. It is a pure predicate: listings
// that fail are dropped by the pipeline, never persisted or reported as
// errors.
type Filter struct {
	criteria config.Criteria
}

// NewFilter builds a Filter. A zero CurrentYear is resolved against the wall
// clock once, so a single pipeline run judges all listings by the same year.
func NewFilter(criteria config.Criteria) *Filter {
	if criteria.CurrentYear == 0 {
		criteria.CurrentYear = time.Now().Year()
	}
	return &Filter{criteria: criteria}
}

// Passes reports whether the listing satisfies every hard rule. Rule order is
// irrelevant to the outcome; the first failure short-circuits.
func (f *Filter) Passes(l *models.Listing) bool {
	c := f.criteria

	if l.Beds < c.MinBeds {
		return false
	}
	if l.Baths < c.MinBaths {
		return false
	}
	if l.Sqft < c.MinSqft {
		return false
	}
	if l.Price < c.MinPrice || l.Price > c.MaxPrice {
		return false
	}

	// Condos, apartments and manufactured homes are categorically out,
	// regardless of what the criteria say.
	if l.PropertyType != models.SingleFamily && l.PropertyType != models.Townhouse {
		return false
	}

	if c.MaxAge > 0 {
		// Unknown build year cannot prove eligibility while an age cap
		// is active.
		if l.YearBuilt == nil {
			return false
		}
		if c.CurrentYear-*l.YearBuilt > c.MaxAge {
			return false
		}
	}

	if l.Description != "" {
		desc := strings.ToLower(l.Description)
		for _, keyword := range fractionalKeywords {
			if strings.Contains(desc, keyword) {
				return false
			}
		}
	}

	return true
}

// Apply returns the listings that pass, preserving input order.
func (f *Filter) Apply(listings []*models.Listing) []*models.Listing {
	out := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if f.Passes(l) {
			out = append(out, l)
		}
	}
	return out
}
