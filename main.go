package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"house-hunter/api"
	"house-hunter/config"
	"house-hunter/reference"
	"house-hunter/scraper/redfin"
	"house-hunter/services"
	"house-hunter/storage"
	"house-hunter/utils"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var useMemoryStore bool

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "house-hunter",
		Short: "Fetch, score and rank real-estate listings",
		Long: "house-hunter ingests listings from Redfin, drops ineligible ones, " +
			"enriches the rest with location data, computes a set-relative value " +
			"score and persists the results under stable identity.",
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&useMemoryStore, "memory", false,
		"use an in-memory store instead of PostgreSQL (data is lost on exit)")

	root.AddCommand(refreshCmd(), serveCmd(), exportCmd())
	return root
}

// app bundles everything a command needs.
type app struct {
	cfg      *config.Config
	logger   *utils.Logger
	repo     storage.Repository
	scorer   *services.Scorer
	pipeline *services.Pipeline
	source   services.ListingSource
}

func buildApp() (*app, error) {
	cfg := config.Load()

	logger, err := utils.NewLogger(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	refData, err := reference.Load(cfg.ReferencePath)
	if err != nil {
		return nil, err
	}

	var repo storage.Repository
	if useMemoryStore {
		repo = storage.NewMemoryRepository()
		logger.Warn("using in-memory store, data will not survive exit")
	} else {
		repo, err = storage.NewPostgresRepository(cfg.DSN())
		if err != nil {
			return nil, err
		}
	}

	cleaner := services.NewCleaner(logger)
	filter := services.NewFilter(cfg.Criteria)
	enricher := services.NewEnricher(refData, nil, cfg.MaxConcurrency, logger)
	scorer := services.NewScorer(refData, logger)
	pipeline := services.NewPipeline(cleaner, filter, enricher, scorer, repo, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		scorer:   scorer,
		pipeline: pipeline,
		source:   redfin.New(cfg, logger),
	}, nil
}

func (a *app) close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Error("closing repository", "error", err)
	}
	a.logger.Sync()
}

func refreshCmd() *cobra.Command {
	var reset bool
	var csvPath string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one ingestion cycle: fetch, filter, enrich, score, persist",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if reset {
				if err := a.repo.DeleteAll(ctx); err != nil {
					return err
				}
				a.logger.Info("store cleared before refresh")
			}

			report, err := a.pipeline.Refresh(ctx, a.source)
			if err != nil {
				return err
			}

			fmt.Printf("Refresh done: %d fetched, %d skipped, %d filtered out, %d scored, "+
				"%d inserted, %d updated, %d failed (%.1fs)\n",
				report.Fetched, report.Skipped, report.Filtered, report.Scored,
				report.Inserted, report.Updated, report.Failed, report.Duration.Seconds())

			if csvPath != "" {
				if err := exportTo(ctx, a, csvPath); err != nil {
					return err
				}
				fmt.Printf("Export written to %s\n", csvPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "clear the store before ingesting")
	cmd.Flags().StringVar(&csvPath, "csv", "", "also write a CSV export to this path")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the listing query and refresh API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			server := api.NewServer(a.repo, a.pipeline, a.scorer, a.source, a.logger)
			return server.Run(a.cfg.HTTPAddr)
		},
	}
}

func exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored listings to CSV, best value first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			if out == "" {
				out = a.cfg.CSVOutputPath
			}
			if err := exportTo(cmd.Context(), a, out); err != nil {
				return err
			}
			fmt.Printf("Export written to %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output path (defaults to CSV_OUTPUT_PATH)")
	return cmd
}

func exportTo(ctx context.Context, a *app, path string) error {
	listings, err := a.repo.Query(ctx, storage.Query{})
	if err != nil {
		return err
	}
	return storage.ExportCSVFile(path, listings)
}
