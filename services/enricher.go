package services

import (
	"math"

	"house-hunter/models"
	"house-hunter/reference"
	"house-hunter/utils"
)

const earthRadiusMiles = 3959

// yardLotThreshold is the lot size above which a yard is assumed when the
// source said nothing either way.
const yardLotThreshold = 3000

// Geocoder resolves a street address to coordinates. Implementations are
// external collaborators; a nil Geocoder simply leaves coordinates missing.
type Geocoder interface {
	Geocode(address, city, state string) (lat, lon float64, ok bool)
}

// Enricher fills in location-derived fields from immutable reference data.
// Enrichment never fails: missing reference data degrades to defaults, and a
// listing without coordinates keeps its distance fields unset.
type Enricher struct {
	data     *reference.Data
	geocoder Geocoder
	pool     *utils.WorkerPool
	logger   *utils.Logger
}

// NewEnricher creates an Enricher over the given reference data. geocoder may
// be nil. maxConcurrency bounds the parallel enrichment fan-out.
func NewEnricher(data *reference.Data, geocoder Geocoder, maxConcurrency int, logger *utils.Logger) *Enricher {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Enricher{
		data:     data,
		geocoder: geocoder,
		pool:     utils.NewWorkerPool(maxConcurrency, 0),
		logger:   logger.With("component", "enricher"),
	}
}

// Enrich returns a copy of the listing with derived fields filled in. It is
// idempotent: re-running it against the same reference data yields the same
// output.
func (e *Enricher) Enrich(l *models.Listing) *models.Listing {
	out := *l

	crime := e.data.CrimeIndexFor(out.City)
	out.CrimeIndex = &crime

	if (out.Latitude == nil || out.Longitude == nil) && e.geocoder != nil {
		if lat, lon, ok := e.geocoder.Geocode(out.Address, out.City, out.State); ok {
			out.Latitude = &lat
			out.Longitude = &lon
		}
	}

	if out.Latitude != nil && out.Longitude != nil {
		if name, distance, ok := e.nearestDowntown(*out.Latitude, *out.Longitude); ok {
			out.NearestDowntown = &name
			out.DistanceToDowntown = &distance
		}
	}

	// Infer a yard from the lot size, but never overwrite what the source
	// asserted.
	if out.HasYard == nil {
		inferred := out.LotSqft != nil && *out.LotSqft > yardLotThreshold
		out.HasYard = &inferred
	}

	return &out
}

// EnrichAll enriches every listing, fanning independent listings out across
// the worker pool. Each result lands in its own output slot, so no shared
// accumulator is involved.
func (e *Enricher) EnrichAll(listings []*models.Listing) []*models.Listing {
	out := make([]*models.Listing, len(listings))

	for i, l := range listings {
		i, l := i, l
		e.pool.Submit(func() {
			out[i] = e.Enrich(l)
		})
	}
	e.pool.Wait()

	e.logger.Info("enrichment complete", "listings", len(out))
	return out
}

func (e *Enricher) nearestDowntown(lat, lon float64) (string, float64, bool) {
	if len(e.data.Downtowns) == 0 {
		return "", 0, false
	}

	var (
		name     string
		distance = math.Inf(1)
	)
	for _, d := range e.data.Downtowns {
		if dist := haversineMiles(lat, lon, d.Latitude, d.Longitude); dist < distance {
			distance = dist
			name = d.Name
		}
	}
	return name, math.Round(distance*10) / 10, true
}

// haversineMiles computes the great-circle distance between two points.
func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlon1 := lon1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	rlon2 := lon2 * math.Pi / 180

	dlat := rlat2 - rlat1
	dlon := rlon2 - rlon1

	a := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}
