package services

import (
	"strings"
	"time"
	"unicode"

	"house-hunter/models"
	"house-hunter/utils"
)

// Cleaner validates raw source records and turns them into Listings.
// Malformed records are counted as skips, never surfaced as errors: a bad
// record must not take the batch down.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger.With("component", "cleaner")}
}

// Clean processes raw listings and returns validated records plus the number
// of skipped ones. Duplicate source IDs keep the first occurrence.
func (c *Cleaner) Clean(raw []*models.RawListing) ([]*models.Listing, int) {
	seen := utils.NewIDSet()
	result := make([]*models.Listing, 0, len(raw))
	skipped := 0

	for _, r := range raw {
		id := strings.TrimSpace(r.SourceID)
		if id == "" {
			c.logger.Warn("skipping record without source id", "address", r.Address)
			skipped++
			continue
		}

		if !seen.Add(id) {
			c.logger.Debug("duplicate source id skipped", "source_id", id)
			skipped++
			continue
		}

		if r.Price <= 0 {
			c.logger.Warn("skipping record with non-positive price", "source_id", id, "price", r.Price)
			skipped++
			continue
		}

		if r.Sqft <= 0 {
			c.logger.Warn("skipping record with non-positive sqft", "source_id", id, "sqft", r.Sqft)
			skipped++
			continue
		}

		propertyType, ok := models.ParsePropertyType(r.PropertyType)
		if !ok {
			c.logger.Warn("skipping record with unparseable property type",
				"source_id", id, "property_type", r.PropertyType)
			skipped++
			continue
		}

		if r.Beds < 0 || r.Baths < 0 {
			c.logger.Warn("skipping record with negative beds/baths",
				"source_id", id, "beds", r.Beds, "baths", r.Baths)
			skipped++
			continue
		}

		listing := &models.Listing{
			SourceID:     id,
			Address:      normalizeText(r.Address),
			City:         normalizeText(r.City),
			State:        strings.ToUpper(strings.TrimSpace(r.State)),
			ZipCode:      strings.TrimSpace(r.ZipCode),
			Latitude:     r.Latitude,
			Longitude:    r.Longitude,
			Price:        r.Price,
			Beds:         r.Beds,
			Baths:        r.Baths,
			Sqft:         r.Sqft,
			LotSqft:      positiveOrNil(r.LotSqft),
			YearBuilt:    r.YearBuilt,
			PropertyType: propertyType,
			Stories:      positiveOrNil(r.Stories),
			HOAMonthly:   nonNegativeOrNil(r.HOAMonthly),
			AnnualTax:    nonNegativeOrNil(r.AnnualTax),
			DaysOnMarket: nonNegativeOrNil(r.DaysOnMarket),
			HasPool:      r.HasPool,
			HasSolar:     r.HasSolar,
			HasYard:      r.HasYard,
			URL:          strings.TrimSpace(r.URL),
			Description:  normalizeText(r.Description),
			LastUpdated:  time.Now(),
		}

		result = append(result, listing)
	}

	c.logger.Info("cleaning complete",
		"raw", len(raw), "clean", len(result), "skipped", skipped)
	return result, skipped
}

func positiveOrNil(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func nonNegativeOrNil(v *int) *int {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

// normalizeText strips leading/trailing whitespace and collapses internal whitespace.
func normalizeText(s string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
