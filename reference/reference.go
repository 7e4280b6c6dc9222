// Package reference holds the static lookup tables the enricher and scorer
// consume: city crime indices, downtown coordinates and per-city location
// preferences. The data is loaded once per pipeline run and treated as
// immutable so scoring stays reproducible.
package reference

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DefaultCrimeIndex is assigned when a city is missing from the table.
const DefaultCrimeIndex = 50

// Downtown is a named reference point for distance calculations.
type Downtown struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// Data is the full reference dataset for one pipeline run.
type Data struct {
	CrimeIndex          map[string]int     `yaml:"crime_index"`
	Downtowns           []Downtown         `yaml:"downtowns"`
	LocationPreferences map[string]float64 `yaml:"location_preferences"`
}

// Default returns the built-in Arizona dataset.
func Default() *Data {
	return &Data{
		CrimeIndex: map[string]int{
			"Gilbert":         85,
			"Chandler":        78,
			"Scottsdale":      75,
			"Queen Creek":     82,
			"Mesa":            55,
			"Tucson":          45,
			"Green Valley":    80,
			"Oro Valley":      78,
			"Marana":          70,
			"Vail":            75,
			"Surprise":        80,
			"Apache Junction": 50,
		},
		Downtowns: []Downtown{
			{Name: "Phoenix", Latitude: 33.4484, Longitude: -112.0740},
			{Name: "Scottsdale", Latitude: 33.4942, Longitude: -111.9261},
			{Name: "Gilbert", Latitude: 33.3528, Longitude: -111.7890},
			{Name: "Chandler", Latitude: 33.3062, Longitude: -111.8413},
			{Name: "Mesa", Latitude: 33.4152, Longitude: -111.8315},
			{Name: "Tucson", Latitude: 32.2226, Longitude: -110.9747},
			{Name: "Green Valley", Latitude: 31.8543, Longitude: -110.9932},
			{Name: "Oro Valley", Latitude: 32.3909, Longitude: -110.9665},
			{Name: "Surprise", Latitude: 33.6306, Longitude: -112.3332},
		},
		LocationPreferences: map[string]float64{
			"Scottsdale":      1.00,
			"Gilbert":         0.97,
			"Surprise":        0.95,
			"Chandler":        0.93,
			"Green Valley":    0.90,
			"Oro Valley":      0.87,
			"Queen Creek":     0.85,
			"Mesa":            0.82,
			"Marana":          0.80,
			"Apache Junction": 0.77,
			"Vail":            0.75,
			"Tucson":          0.72,
		},
	}
}

// Load returns the built-in dataset, with fields overridden by the YAML file
// at path when one is given. An empty path means pure defaults.
func Load(path string) (*Data, error) {
	data := Default()
	if path == "" {
		return data, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reference: read %q: %w", path, err)
	}

	var override Data
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("reference: parse %q: %w", path, err)
	}

	if len(override.CrimeIndex) > 0 {
		data.CrimeIndex = override.CrimeIndex
	}
	if len(override.Downtowns) > 0 {
		data.Downtowns = override.Downtowns
	}
	if len(override.LocationPreferences) > 0 {
		data.LocationPreferences = override.LocationPreferences
	}
	return data, nil
}

// CrimeIndexFor looks up the safety index for a city, normalizing case and
// whitespace first. Unknown cities get the neutral default.
func (d *Data) CrimeIndexFor(city string) int {
	if idx, ok := d.CrimeIndex[NormalizeCity(city)]; ok {
		return idx
	}
	return DefaultCrimeIndex
}

// LocationPreferenceFor returns the 0-1 preference value for a city. Cities
// absent from the table land on the lowest tier present.
func (d *Data) LocationPreferenceFor(city string) float64 {
	if pref, ok := d.LocationPreferences[NormalizeCity(city)]; ok {
		return pref
	}
	return d.lowestPreference()
}

func (d *Data) lowestPreference() float64 {
	lowest := 1.0
	for _, pref := range d.LocationPreferences {
		if pref < lowest {
			lowest = pref
		}
	}
	if len(d.LocationPreferences) == 0 {
		return 0
	}
	return lowest
}

// NormalizeCity collapses internal whitespace and title-cases a city name so
// lookups are insensitive to source formatting.
func NormalizeCity(city string) string {
	fields := strings.Fields(strings.ToLower(city))
	for i, f := range fields {
		r, size := utf8.DecodeRuneInString(f)
		fields[i] = string(unicode.ToUpper(r)) + f[size:]
	}
	return strings.Join(fields, " ")
}
