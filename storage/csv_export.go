package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"house-hunter/models"
)

// exportHeader is the fixed 19-column export contract. Order matters:
// downstream spreadsheets key on position, not name.
var exportHeader = []string{
	"Address", "City", "Price", "Beds", "Baths", "SqFt", "Year Built",
	"Lot SqFt", "HOA/Month", "Annual Tax", "Days on Market",
	"Has Pool", "Has Yard", "Has Solar", "Crime Index",
	"Distance to Downtown", "Nearest Downtown", "Value Score", "URL",
}

// WriteCSV writes the listings to w in the fixed column order. The rows
// reflect whatever filter produced the slice, not the full store.
func WriteCSV(w io.Writer, listings []*models.Listing) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	for _, l := range listings {
		row := []string{
			l.Address,
			l.City,
			strconv.Itoa(l.Price),
			strconv.Itoa(l.Beds),
			strconv.FormatFloat(l.Baths, 'f', -1, 64),
			strconv.Itoa(l.Sqft),
			intOrEmpty(l.YearBuilt),
			intOrEmpty(l.LotSqft),
			intOrEmpty(l.HOAMonthly),
			intOrEmpty(l.AnnualTax),
			intOrEmpty(l.DaysOnMarket),
			yesNo(l.HasPool),
			yesNo(l.Yard()),
			yesNo(l.HasSolar),
			intOrEmpty(l.CrimeIndex),
			floatOrEmpty(l.DistanceToDowntown),
			strOrEmpty(l.NearestDowntown),
			floatOrEmpty(l.ValueScore),
			l.URL,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv: write row for %s: %w", l.SourceID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportCSVFile writes the listings to the file at path, creating
// intermediate directories as needed.
func ExportCSVFile(path string, listings []*models.Listing) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", path, err)
	}
	defer f.Close()

	return WriteCSV(f, listings)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
