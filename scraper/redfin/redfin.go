// Package redfin implements the listing source against Redfin's region
// search API. The endpoint is fetched through a headless browser because the
// API refuses plain HTTP clients.
package redfin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"house-hunter/config"
	"house-hunter/models"
	"house-hunter/utils"
)

const (
	baseURL = "https://www.redfin.com"
	apiURL  = "https://www.redfin.com/stingray/api/gis"
	source  = "redfin"
)

// regionIDs maps the supported cities to Redfin region identifiers.
var regionIDs = map[string]int{
	"Gilbert":      6998,
	"Chandler":     3104,
	"Scottsdale":   16660,
	"Mesa":         11736,
	"Tucson":       19459,
	"Green Valley": 23055,
	"Oro Valley":   13300,
	"Surprise":     18267,
}

// propertyTypes maps Redfin uiPropertyType codes to our enum strings.
var propertyTypes = map[int]string{
	1: "single_family",
	2: "townhouse",
	3: "condo",
	4: "multi_family",
	5: "land",
	6: "manufactured",
	7: "other",
	8: "apartment",
}

// Scraper fetches raw listings for the configured cities. It implements
// services.ListingSource.
type Scraper struct {
	cfg    *config.Config
	logger *utils.Logger
	pool   *utils.WorkerPool
	seen   *utils.IDSet
	retry  *utils.RetryConfig

	mu       sync.Mutex
	listings []*models.RawListing
}

// New creates a ready-to-use Redfin scraper.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:    cfg,
		logger: logger.With("component", "redfin"),
		pool:   utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		seen:   utils.NewIDSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		listings: make([]*models.RawListing, 0),
	}
}

// Fetch drives the per-city API calls and returns the merged raw listing set.
// Cities that fail are reported through the returned error; listings from the
// cities that succeeded are still returned so the caller can process a
// partial batch.
func (s *Scraper) Fetch(ctx context.Context) ([]*models.RawListing, error) {
	s.resetRun()

	chromeBin := s.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s.logger.Info("starting fetch", "cities", len(s.cfg.SearchCities), "browser", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelSilent()

	var (
		errMu    sync.Mutex
		cityErrs []error
	)
	for _, city := range s.cfg.SearchCities {
		city := city
		s.pool.Submit(func() {
			if err := s.fetchCity(silentCtx, city); err != nil {
				s.logger.Error("city fetch failed", "city", city, "error", err)
				errMu.Lock()
				cityErrs = append(cityErrs, fmt.Errorf("%s: %w", city, err))
				errMu.Unlock()
			}
		})
	}
	s.pool.Wait()

	s.logger.Info("fetch complete", "raw_listings", len(s.listings), "failed_cities", len(cityErrs))
	return s.listings, errors.Join(cityErrs...)
}

func (s *Scraper) fetchCity(allocCtx context.Context, city string) error {
	regionID, ok := regionIDs[city]
	if !ok {
		s.logger.Warn("no region id for city, skipping", "city", city)
		return nil
	}

	endpoint := fmt.Sprintf("%s?%s", apiURL, url.Values{
		"al":                   {"1"},
		"include_nearby_homes": {"true"},
		"num_homes":            {"350"},
		"ord":                  {"redfin-recommended-asc"},
		"page_number":          {"1"},
		"region_id":            {fmt.Sprintf("%d", regionID)},
		"region_type":          {"6"},
		"status":               {"9"},
		"uipt":                 {"1,2,3"},
		"v":                    {"8"},
	}.Encode())

	return s.retry.Do(allocCtx, "fetch-"+city, func() error {
		tabCtx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, 60*time.Second)
		defer cancelTimeout()

		// Chrome renders raw JSON inside a <pre> element; innerText gives
		// it back verbatim.
		var body string
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(endpoint),
			chromedp.Sleep(2*time.Second),
			chromedp.Evaluate(`document.body.innerText`, &body),
		)
		if err != nil {
			return fmt.Errorf("chromedp run: %w", err)
		}

		homes, err := parseResponse(body)
		if err != nil {
			return err
		}

		added := s.ingestHomes(homes, city)
		s.logger.Info("city fetched", "city", city, "homes", len(homes), "added", added)
		return nil
	})
}

// resetRun clears the accumulated state of the previous fetch. The seen set
// dedupes the nearby-homes overlap between adjacent cities within a single
// run; holding it across runs would freeze the snapshot at the first fetch.
func (s *Scraper) resetRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = utils.NewIDSet()
	s.listings = make([]*models.RawListing, 0)
}

func (s *Scraper) ingestHomes(homes []home, city string) int {
	added := 0
	for _, h := range homes {
		raw := s.toRawListing(h, city)
		if raw == nil {
			continue
		}
		if !s.seen.Add(raw.SourceID) {
			continue
		}
		s.mu.Lock()
		s.listings = append(s.listings, raw)
		s.mu.Unlock()
		added++
	}
	return added
}

// apiResponse is the subset of the GIS payload we consume.
type apiResponse struct {
	ResultCode   int    `json:"resultCode"`
	ErrorMessage string `json:"errorMessage"`
	Payload      struct {
		Homes []home `json:"homes"`
	} `json:"payload"`
}

// flexValue accepts either a bare JSON number or Redfin's nested
// {"value": n, "level": m} wrapper.
type flexValue struct {
	Value   *float64
	Present bool
}

func (f *flexValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Value *float64 `json:"value"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil // tolerate odd shapes, field stays absent
		}
		f.Value = wrapped.Value
		f.Present = wrapped.Value != nil
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	f.Value = &v
	f.Present = true
	return nil
}

// flexString accepts either a bare string or the {"value": s} wrapper.
type flexString struct {
	Value string
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil
		}
		f.Value = wrapped.Value
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	f.Value = s
	return nil
}

type home struct {
	ListingID      json.Number `json:"listingId"`
	PropertyID     json.Number `json:"propertyId"`
	StreetLine     flexString  `json:"streetLine"`
	City           string      `json:"city"`
	State          string      `json:"state"`
	Zip            string      `json:"zip"`
	Price          flexValue   `json:"price"`
	Beds           flexValue   `json:"beds"`
	Baths          flexValue   `json:"baths"`
	SqFt           flexValue   `json:"sqFt"`
	LotSize        flexValue   `json:"lotSize"`
	YearBuilt      flexValue   `json:"yearBuilt"`
	Stories        flexValue   `json:"stories"`
	HOA            flexValue   `json:"hoa"`
	DOM            flexValue   `json:"dom"`
	TimeOnRedfin   flexValue   `json:"timeOnRedfin"`
	UIPropertyType int         `json:"uiPropertyType"`
	URL            string      `json:"url"`
	LatLong        struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"latLong"`
	ListingRemarks string `json:"listingRemarks"`
}

// parseResponse strips Redfin's `{}&&` guard prefix and decodes the payload.
func parseResponse(body string) ([]home, error) {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "{}&&")

	var resp apiResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.ResultCode != 0 {
		return nil, fmt.Errorf("api error: %s", resp.ErrorMessage)
	}
	return resp.Payload.Homes, nil
}

func (s *Scraper) toRawListing(h home, fallbackCity string) *models.RawListing {
	id := h.ListingID.String()
	if id == "" || id == "0" {
		id = h.PropertyID.String()
	}
	if id == "" || id == "0" {
		return nil
	}

	city := h.City
	if city == "" {
		city = fallbackCity
	}

	listingURL := h.URL
	if listingURL != "" && !strings.HasPrefix(listingURL, "http") {
		listingURL = baseURL + listingURL
	}

	remarks := strings.ToLower(h.ListingRemarks)

	raw := &models.RawListing{
		SourceID:     source + "-" + id,
		Address:      h.StreetLine.Value,
		City:         city,
		State:        h.State,
		ZipCode:      h.Zip,
		Price:        intOf(h.Price),
		Beds:         intOf(h.Beds),
		Baths:        floatOf(h.Baths),
		Sqft:         intOf(h.SqFt),
		LotSqft:      intPtrOf(h.LotSize),
		YearBuilt:    intPtrOf(h.YearBuilt),
		Stories:      intPtrOf(h.Stories),
		HOAMonthly:   intPtrOf(h.HOA),
		DaysOnMarket: intPtrOf(h.DOM),
		PropertyType: propertyTypes[h.UIPropertyType],
		Latitude:     h.LatLong.Latitude,
		Longitude:    h.LatLong.Longitude,
		HasPool:      strings.Contains(remarks, "pool"),
		HasSolar:     strings.Contains(remarks, "solar"),
		URL:          listingURL,
		Description:  h.ListingRemarks,
		FetchedAt:    time.Now(),
	}

	if raw.DaysOnMarket == nil {
		raw.DaysOnMarket = intPtrOf(h.TimeOnRedfin)
	}

	// Remarks asserting a yard count as an explicit source value; otherwise
	// leave it for the enricher's lot-size inference.
	if strings.Contains(remarks, "yard") {
		yes := true
		raw.HasYard = &yes
	}

	return raw
}

func intOf(f flexValue) int {
	if !f.Present || f.Value == nil {
		return 0
	}
	return int(*f.Value)
}

func floatOf(f flexValue) float64 {
	if !f.Present || f.Value == nil {
		return 0
	}
	return *f.Value
}

func intPtrOf(f flexValue) *int {
	if !f.Present || f.Value == nil {
		return nil
	}
	v := int(*f.Value)
	return &v
}

// findChromeBinary looks for a usable Chrome/Chromium executable.
func findChromeBinary() string {
	candidates := []string{
		"google-chrome", "google-chrome-stable", "chromium", "chromium-browser",
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	for _, path := range []string{
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
