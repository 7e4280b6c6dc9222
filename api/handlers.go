package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"house-hunter/services"
	"house-hunter/storage"
)

// GetListings handles GET /api/listings. Query parameters map one-to-one onto
// the repository filter/sort contract; a bad parameter is a 400 naming it,
// never silently dropped.
func (s *Server) GetListings(c *gin.Context) {
	query, err := parseQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	listings, err := s.repo.Query(c.Request.Context(), *query)
	if err != nil {
		var vErr *storage.ValidationError
		if errors.As(err, &vErr) {
			badRequest(c, vErr)
			return
		}
		s.logger.Error("query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(listings),
		"listings": listings,
	})
}

// GetListing handles GET /api/listings/:id, returning the listing with its
// score breakdown judged against the current stored set.
func (s *Server) GetListing(c *gin.Context) {
	id := c.Param("id")

	listing, err := s.repo.GetBySourceID(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		return
	}
	if err != nil {
		s.logger.Error("lookup failed", "source_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	batch, err := s.repo.Query(c.Request.Context(), storage.Query{})
	if err != nil {
		s.logger.Error("breakdown batch load failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listing":         listing,
		"score_breakdown": s.scorer.Breakdown(listing, batch),
	})
}

// Refresh handles POST /api/refresh: one full pipeline run. A refresh already
// in progress is a 409, not a silent queue.
func (s *Server) Refresh(c *gin.Context) {
	report, err := s.pipeline.Refresh(c.Request.Context(), s.source)
	if errors.Is(err, services.ErrRefreshInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "refresh already in progress"})
		return
	}
	if err != nil {
		s.logger.Error("refresh failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("refreshed %d listings", report.Scored),
		"report":  report,
	})
}

// GetStats handles GET /api/stats with summary statistics over the store.
func (s *Server) GetStats(c *gin.Context) {
	listings, err := s.repo.Query(c.Request.Context(), storage.Query{})
	if err != nil {
		s.logger.Error("stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats query failed"})
		return
	}

	if len(listings) == 0 {
		c.JSON(http.StatusOK, gin.H{"stats": gin.H{"total_listings": 0}})
		return
	}

	var (
		minPrice, maxPrice, sumPrice  int
		minScore, maxScore, sumScore  float64
		scoreCount                    int
		withPool, withYard, withSolar int
	)
	minPrice = listings[0].Price
	byCity := make(map[string]int)

	for _, l := range listings {
		if l.Price < minPrice {
			minPrice = l.Price
		}
		if l.Price > maxPrice {
			maxPrice = l.Price
		}
		sumPrice += l.Price

		if l.ValueScore != nil {
			score := *l.ValueScore
			if scoreCount == 0 || score < minScore {
				minScore = score
			}
			if score > maxScore {
				maxScore = score
			}
			sumScore += score
			scoreCount++
		}

		if l.HasPool {
			withPool++
		}
		if l.Yard() {
			withYard++
		}
		if l.HasSolar {
			withSolar++
		}
		byCity[l.City]++
	}

	stats := gin.H{
		"total_listings": len(listings),
		"price": gin.H{
			"min": minPrice,
			"max": maxPrice,
			"avg": float64(sumPrice) / float64(len(listings)),
		},
		"by_city": byCity,
		"features": gin.H{
			"with_pool":  withPool,
			"with_yard":  withYard,
			"with_solar": withSolar,
		},
	}
	if scoreCount > 0 {
		stats["value_score"] = gin.H{
			"min": minScore,
			"max": maxScore,
			"avg": sumScore / float64(scoreCount),
		}
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// GetFilterOptions handles GET /api/filters, describing the value ranges in
// the current data so a client can build filter controls.
func (s *Server) GetFilterOptions(c *gin.Context) {
	listings, err := s.repo.Query(c.Request.Context(), storage.Query{})
	if err != nil {
		s.logger.Error("filters query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "filters query failed"})
		return
	}

	citySet := make(map[string]struct{})
	var cities []string
	minPrice, maxPrice := 0, 0
	minSqft, maxSqft := 0, 0

	for i, l := range listings {
		if _, ok := citySet[l.City]; !ok && l.City != "" {
			citySet[l.City] = struct{}{}
			cities = append(cities, l.City)
		}
		if i == 0 {
			minPrice, maxPrice = l.Price, l.Price
			minSqft, maxSqft = l.Sqft, l.Sqft
			continue
		}
		if l.Price < minPrice {
			minPrice = l.Price
		}
		if l.Price > maxPrice {
			maxPrice = l.Price
		}
		if l.Sqft < minSqft {
			minSqft = l.Sqft
		}
		if l.Sqft > maxSqft {
			maxSqft = l.Sqft
		}
	}
	sort.Strings(cities)

	c.JSON(http.StatusOK, gin.H{
		"filters": gin.H{
			"cities":      cities,
			"price_range": gin.H{"min": minPrice, "max": maxPrice},
			"sqft_range":  gin.H{"min": minSqft, "max": maxSqft},
		},
	})
}

// ExportCSV handles GET /api/export. It honors the same filters as
// /api/listings and streams the fixed 19-column contract.
func (s *Server) ExportCSV(c *gin.Context) {
	query, err := parseQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	listings, err := s.repo.Query(c.Request.Context(), *query)
	if err != nil {
		var vErr *storage.ValidationError
		if errors.As(err, &vErr) {
			badRequest(c, vErr)
			return
		}
		s.logger.Error("export query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export query failed"})
		return
	}

	var buf bytes.Buffer
	if err := storage.WriteCSV(&buf, listings); err != nil {
		s.logger.Error("export encode failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="listings.csv"`)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func badRequest(c *gin.Context, err error) {
	var vErr *storage.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error(), "param": vErr.Param})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// parseQuery maps the request's query string to a storage.Query, rejecting
// malformed values with a ValidationError naming the parameter.
func parseQuery(c *gin.Context) (*storage.Query, error) {
	q := storage.Query{
		SortBy:  c.Query("sort_by"),
		SortDir: c.Query("sort_dir"),
	}

	var err error
	if q.Filters.MinPrice, err = intParam(c, "min_price"); err != nil {
		return nil, err
	}
	if q.Filters.MaxPrice, err = intParam(c, "max_price"); err != nil {
		return nil, err
	}
	if q.Filters.MinBeds, err = intParam(c, "min_beds"); err != nil {
		return nil, err
	}
	if q.Filters.MinBaths, err = floatParam(c, "min_baths"); err != nil {
		return nil, err
	}
	if q.Filters.MinSqft, err = intParam(c, "min_sqft"); err != nil {
		return nil, err
	}
	if q.Filters.MaxAge, err = intParam(c, "max_age"); err != nil {
		return nil, err
	}
	if q.Filters.HasYard, err = boolParam(c, "has_yard"); err != nil {
		return nil, err
	}
	if q.Filters.HasPool, err = boolParam(c, "has_pool"); err != nil {
		return nil, err
	}
	if q.Filters.HasSolar, err = boolParam(c, "has_solar"); err != nil {
		return nil, err
	}

	if cities := c.Query("cities"); cities != "" {
		for _, city := range strings.Split(cities, ",") {
			if city = strings.TrimSpace(city); city != "" {
				q.Filters.Cities = append(q.Filters.Cities, city)
			}
		}
	}

	if limit, err := intParam(c, "limit"); err != nil {
		return nil, err
	} else if limit != nil {
		q.Limit = *limit
	}
	if offset, err := intParam(c, "offset"); err != nil {
		return nil, err
	} else if offset != nil {
		q.Offset = *offset
	}

	if err := q.Normalize(); err != nil {
		return nil, err
	}
	return &q, nil
}

func intParam(c *gin.Context, name string) (*int, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &storage.ValidationError{Param: name, Message: fmt.Sprintf("not an integer: %q", raw)}
	}
	return &v, nil
}

func floatParam(c *gin.Context, name string) (*float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &storage.ValidationError{Param: name, Message: fmt.Sprintf("not a number: %q", raw)}
	}
	return &v, nil
}

func boolParam(c *gin.Context, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	switch strings.ToLower(raw) {
	case "true", "1":
		v := true
		return &v, nil
	case "false", "0":
		v := false
		return &v, nil
	default:
		return nil, &storage.ValidationError{Param: name, Message: fmt.Sprintf("not a boolean: %q", raw)}
	}
}

