// Package api exposes the listing store and refresh pipeline over HTTP.
package api

import (
	"github.com/gin-gonic/gin"

	"house-hunter/services"
	"house-hunter/storage"
	"house-hunter/utils"
)

// Server wires the HTTP surface to the pipeline and repository.
type Server struct {
	repo     storage.Repository
	pipeline *services.Pipeline
	scorer   *services.Scorer
	source   services.ListingSource
	logger   *utils.Logger
}

// NewServer creates a Server over the given collaborators.
func NewServer(repo storage.Repository, pipeline *services.Pipeline, scorer *services.Scorer,
	source services.ListingSource, logger *utils.Logger) *Server {
	return &Server{
		repo:     repo,
		pipeline: pipeline,
		scorer:   scorer,
		source:   source,
		logger:   logger.With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/listings", s.GetListings)
		apiGroup.GET("/listings/:id", s.GetListing)
		apiGroup.POST("/refresh", s.Refresh)
		apiGroup.GET("/stats", s.GetStats)
		apiGroup.GET("/filters", s.GetFilterOptions)
		apiGroup.GET("/export", s.ExportCSV)
	}
	return r
}

// Run starts the HTTP server on addr and blocks.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.Router().Run(addr)
}
