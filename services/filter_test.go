package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"house-hunter/config"
	"house-hunter/models"
)

func testCriteria() config.Criteria {
	return config.Criteria{
		MinBeds:     3,
		MinBaths:    2,
		MinSqft:     1200,
		MinPrice:    400000,
		MaxPrice:    700000,
		MaxAge:      30,
		CurrentYear: 2025,
	}
}

func eligibleListing() *models.Listing {
	year := 2005
	return &models.Listing{
		SourceID:     "redfin-1",
		City:         "Gilbert",
		Price:        550000,
		Beds:         3,
		Baths:        2,
		Sqft:         1500,
		YearBuilt:    &year,
		PropertyType: models.SingleFamily,
	}
}

func TestFilterPasses(t *testing.T) {
	f := NewFilter(testCriteria())
	assert.True(t, f.Passes(eligibleListing()))
}

func TestFilterHardRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Listing)
	}{
		{"too few beds", func(l *models.Listing) { l.Beds = 2 }},
		{"too few baths", func(l *models.Listing) { l.Baths = 1.5 }},
		{"too small", func(l *models.Listing) { l.Sqft = 1000 }},
		{"too expensive", func(l *models.Listing) { l.Price = 750000 }},
		{"too cheap", func(l *models.Listing) { l.Price = 350000 }},
		{"too old", func(l *models.Listing) { year := 1990; l.YearBuilt = &year }},
		{"unknown build year under age cap", func(l *models.Listing) { l.YearBuilt = nil }},
		{"condo", func(l *models.Listing) { l.PropertyType = models.Condo }},
		{"apartment", func(l *models.Listing) { l.PropertyType = models.Apartment }},
		{"manufactured", func(l *models.Listing) { l.PropertyType = models.Manufactured }},
		{"fractional ownership", func(l *models.Listing) {
			l.Description = "Rare 1/8 ownership opportunity in a stunning resort home"
		}},
		{"timeshare", func(l *models.Listing) { l.Description = "Deeded timeshare week 32" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(testCriteria())
			l := eligibleListing()
			tt.mutate(l)
			assert.False(t, f.Passes(l))
		})
	}
}

func TestFilterCondoRejectedRegardlessOfCriteria(t *testing.T) {
	// Even absurdly permissive criteria never admit a condo.
	c := testCriteria()
	c.MinBeds, c.MinBaths, c.MinSqft, c.MinPrice = 0, 0, 0, 0
	c.MaxPrice = 10_000_000
	c.MaxAge = 0

	l := eligibleListing()
	l.PropertyType = models.Condo
	assert.False(t, NewFilter(c).Passes(l))
}

func TestFilterAgeCapDisabled(t *testing.T) {
	c := testCriteria()
	c.MaxAge = 0

	l := eligibleListing()
	l.YearBuilt = nil
	assert.True(t, NewFilter(c).Passes(l), "unknown build year is fine without an age cap")

	year := 1950
	l.YearBuilt = &year
	assert.True(t, NewFilter(c).Passes(l))
}

func TestFilterTownhouseAllowed(t *testing.T) {
	l := eligibleListing()
	l.PropertyType = models.Townhouse
	assert.True(t, NewFilter(testCriteria()).Passes(l))
}

func TestFilterApplyPreservesOrder(t *testing.T) {
	f := NewFilter(testCriteria())

	a := eligibleListing()
	a.SourceID = "redfin-a"
	bad := eligibleListing()
	bad.SourceID = "redfin-bad"
	bad.Beds = 1
	b := eligibleListing()
	b.SourceID = "redfin-b"

	out := f.Apply([]*models.Listing{a, bad, b})
	assert.Len(t, out, 2)
	assert.Equal(t, "redfin-a", out[0].SourceID)
	assert.Equal(t, "redfin-b", out[1].SourceID)
}
