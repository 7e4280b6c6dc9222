package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"house-hunter/config"
	"house-hunter/models"
	"house-hunter/reference"
	"house-hunter/services"
	"house-hunter/storage"
	"house-hunter/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSource struct {
	listings []*models.RawListing
}

func (s *stubSource) Fetch(ctx context.Context) ([]*models.RawListing, error) {
	return s.listings, nil
}

func newTestServer(t *testing.T, raw []*models.RawListing) (*Server, storage.Repository) {
	t.Helper()

	logger := utils.NewNopLogger()
	data := reference.Default()
	repo := storage.NewMemoryRepository()

	criteria := config.Criteria{
		MinBeds: 3, MinBaths: 2, MinSqft: 1200,
		MinPrice: 400000, MaxPrice: 700000,
		MaxAge: 30, CurrentYear: 2025,
	}
	scorer := services.NewScorer(data, logger)
	pipeline := services.NewPipeline(
		services.NewCleaner(logger),
		services.NewFilter(criteria),
		services.NewEnricher(data, nil, 2, logger),
		scorer,
		repo,
		logger,
	)

	return NewServer(repo, pipeline, scorer, &stubSource{listings: raw}, logger), repo
}

func seedRepo(t *testing.T, repo storage.Repository, listings ...*models.Listing) {
	t.Helper()
	for _, l := range listings {
		_, err := repo.Upsert(context.Background(), l)
		require.NoError(t, err)
	}
}

func storedListing(id, city string, price int, score float64) *models.Listing {
	year := 2015
	return &models.Listing{
		SourceID:     id,
		Address:      "1 " + id + " St",
		City:         city,
		State:        "AZ",
		Price:        price,
		Beds:         4,
		Baths:        2,
		Sqft:         1800,
		YearBuilt:    &year,
		PropertyType: models.SingleFamily,
		ValueScore:   &score,
	}
}

func doRequest(srv *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	srv.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGetListingsSortedByScore(t *testing.T) {
	srv, repo := newTestServer(t, nil)
	seedRepo(t, repo,
		storedListing("low", "Mesa", 650000, 40),
		storedListing("high", "Gilbert", 500000, 90),
	)

	w := doRequest(srv, http.MethodGet, "/api/listings")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.EqualValues(t, 2, body["count"])

	listings := body["listings"].([]any)
	first := listings[0].(map[string]any)
	assert.Equal(t, "high", first["source_id"])
}

func TestGetListingsFilterByCity(t *testing.T) {
	srv, repo := newTestServer(t, nil)
	seedRepo(t, repo,
		storedListing("a", "Mesa", 650000, 40),
		storedListing("b", "Gilbert", 500000, 90),
	)

	w := doRequest(srv, http.MethodGet, "/api/listings?cities=Mesa")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.EqualValues(t, 1, body["count"])
}

func TestGetListingsBadParamNamesIt(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		target string
		param  string
	}{
		{"/api/listings?min_price=abc", "min_price"},
		{"/api/listings?min_baths=soap", "min_baths"},
		{"/api/listings?has_pool=maybe", "has_pool"},
		{"/api/listings?sort_by=description", "sort_by"},
		{"/api/listings?sort_dir=sideways", "sort_dir"},
		{"/api/listings?limit=-1", "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			w := doRequest(srv, http.MethodGet, tt.target)
			require.Equal(t, http.StatusBadRequest, w.Code)

			body := decodeBody(t, w)
			assert.Equal(t, tt.param, body["param"])
		})
	}
}

func TestGetListingByID(t *testing.T) {
	srv, repo := newTestServer(t, nil)
	seedRepo(t, repo, storedListing("x", "Gilbert", 500000, 83))

	w := doRequest(srv, http.MethodGet, "/api/listings/x")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	listing := body["listing"].(map[string]any)
	assert.Equal(t, "x", listing["source_id"])

	breakdown := body["score_breakdown"].([]any)
	assert.Len(t, breakdown, 8)
}

func TestGetListingNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := doRequest(srv, http.MethodGet, "/api/listings/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	year := 2010
	raw := []*models.RawListing{{
		SourceID: "r1", Address: "1 Main St", City: "Gilbert", State: "AZ",
		Price: 500000, Beds: 4, Baths: 2, Sqft: 1800, YearBuilt: &year,
		PropertyType: "single_family",
	}}

	srv, repo := newTestServer(t, raw)

	w := doRequest(srv, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	report := body["report"].(map[string]any)
	assert.EqualValues(t, 1, report["inserted"])

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetStats(t *testing.T) {
	srv, repo := newTestServer(t, nil)
	a := storedListing("a", "Gilbert", 500001, 80)
	a.HasPool = true
	seedRepo(t, repo, a, storedListing("b", "Mesa", 600000, 40))

	w := doRequest(srv, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)

	stats := decodeBody(t, w)["stats"].(map[string]any)
	assert.EqualValues(t, 2, stats["total_listings"])

	price := stats["price"].(map[string]any)
	assert.EqualValues(t, 500001, price["min"])
	assert.EqualValues(t, 600000, price["max"])
	assert.EqualValues(t, 550000.5, price["avg"], "mean price is not truncated")

	score := stats["value_score"].(map[string]any)
	assert.EqualValues(t, 60, score["avg"])

	features := stats["features"].(map[string]any)
	assert.EqualValues(t, 1, features["with_pool"])
}

func TestGetStatsEmptyStore(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := doRequest(srv, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)

	stats := decodeBody(t, w)["stats"].(map[string]any)
	assert.EqualValues(t, 0, stats["total_listings"])
}

func TestGetFilterOptions(t *testing.T) {
	srv, repo := newTestServer(t, nil)
	seedRepo(t, repo,
		storedListing("a", "Mesa", 650000, 40),
		storedListing("b", "Gilbert", 500000, 90),
	)

	w := doRequest(srv, http.MethodGet, "/api/filters")
	require.Equal(t, http.StatusOK, w.Code)

	filters := decodeBody(t, w)["filters"].(map[string]any)
	cities := filters["cities"].([]any)
	assert.Equal(t, []any{"Gilbert", "Mesa"}, cities)

	priceRange := filters["price_range"].(map[string]any)
	assert.EqualValues(t, 500000, priceRange["min"])
	assert.EqualValues(t, 650000, priceRange["max"])
}

func TestExportCSVEndpoint(t *testing.T) {
	srv, repo := newTestServer(t, nil)
	seedRepo(t, repo, storedListing("a", "Gilbert", 500000, 83))

	w := doRequest(srv, http.MethodGet, "/api/export")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "listings.csv")
	assert.Contains(t, w.Body.String(), "Address,City,Price")
	assert.Contains(t, w.Body.String(), "Gilbert")
}

func TestExportCSVBadFilter(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := doRequest(srv, http.MethodGet, "/api/export?min_beds=four")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
