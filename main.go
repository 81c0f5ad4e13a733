package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"inspection-reviews/config"
	"inspection-reviews/metrics"
	"inspection-reviews/models"
	"inspection-reviews/scraper/places"
	"inspection-reviews/services"
	"inspection-reviews/storage"
	"inspection-reviews/utils"
)

const usage = `usage:
  inspector <inspections_file> <output_file> <api_key>
  inspector merge <first.json> <second.json> <output.json>
  inspector analyze <dataset.json> <output_dir>`

func main() {
	args := os.Args[1:]
	if len(args) != 3 && len(args) != 4 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := utils.NewLogger(cfg.LogLevel)

	switch {
	case len(args) == 4 && args[0] == "merge":
		err = runMerge(cfg, logger, args[1], args[2], args[3])
	case len(args) == 3 && args[0] == "analyze":
		err = runAnalyze(cfg, logger, args[1], args[2])
	case len(args) == 3 && args[0] != "merge":
		err = runPipeline(cfg, logger, args[0], args[1], args[2])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

// runPipeline loads the inspection file, enriches every record and writes
// the merged dataset. An interrupted run still writes what it has.
func runPipeline(cfg *config.Config, logger *utils.Logger, inputPath, outputPath, apiKey string) error {
	runID := uuid.NewString()

	logger.Info("=== Inspection enrichment starting (run %s) ===", runID)
	logger.Info("Config | concurrency: %d | rate: %dms | timeout: %dms | key mode: %s",
		cfg.MaxConcurrency, cfg.RateLimitMs, cfg.RequestTimeoutMs, cfg.KeyMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := services.NewLoader(logger, services.KeyMode(cfg.KeyMode), cfg.SkipHeader)
	data, stats, err := loader.LoadFile(inputPath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("no usable rows in %s (%d skipped)", inputPath, stats.Skipped)
	}

	// Write the loaded records up front so an unwritable output fails before any lookups.
	var writer storage.DatasetWriter = storage.NewJSONWriter(outputPath)
	defer writer.Close()
	if err := writer.Write(ctx, data); err != nil {
		return fmt.Errorf("output not writable: %w", err)
	}

	m := metrics.New()
	m.Serve(cfg.MetricsAddr, func(err error) {
		logger.Warn("[metrics] Server stopped: %v", err)
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(shutdownCtx)
	}()
	if cfg.MetricsAddr != "" {
		logger.Info("[metrics] Serving /metrics on %s", cfg.MetricsAddr)
	}

	var checkpoint storage.Checkpointer
	if cfg.CheckpointPath != "" {
		cp, err := openCheckpoint(cfg, runID, inputPath)
		if err != nil {
			logger.Warn("[checkpoint] Disabled: %v", err)
		} else {
			defer cp.Close()
			checkpoint = cp
		}
	}

	client := places.NewFromConfig(cfg, logger, m)
	enricher := services.NewEnricher(client, client, checkpoint, services.EnricherOptions{
		MaxConcurrency:  cfg.MaxConcurrency,
		RateLimitMs:     cfg.RateLimitMs,
		CheckpointEvery: cfg.CheckpointEvery,
	}, logger, m)

	summary, runErr := enricher.Run(ctx, data, apiKey)
	interrupted := errors.Is(runErr, context.Canceled)
	if runErr != nil && !interrupted {
		return runErr
	}

	// The run context may be cancelled; the final write must still happen.
	writeCtx := context.WithoutCancel(ctx)
	if err := writer.Write(writeCtx, data); err != nil {
		return err
	}
	logger.Info("Dataset with %d records saved to %s", len(data), outputPath)

	if cfg.PostgresEnabled {
		writeSink(writeCtx, logger, cfg, data)
	}

	if interrupted {
		logger.Warn("Run interrupted: %d of %d records still pending, rerun to resume", summary.Pending, summary.Total)
		return runErr
	}
	logger.Info("=== Done: %d enriched, %d unresolved, %d failed ===",
		summary.Enriched, summary.Unresolved, summary.Failed)
	return nil
}

// openCheckpoint scopes progress to this input file and key mode so a rerun
// against different data starts fresh.
func openCheckpoint(cfg *config.Config, runID, inputPath string) (*storage.SQLiteCheckpoint, error) {
	scope, err := storage.CheckpointScope(inputPath, cfg.KeyMode)
	if err != nil {
		return nil, err
	}
	return storage.NewSQLiteCheckpoint(cfg.CheckpointPath, runID, scope)
}

// writeSink stores the dataset in PostgreSQL. Failures are logged; the JSON
// output is already on disk.
func writeSink(ctx context.Context, logger *utils.Logger, cfg *config.Config, data models.Dataset) {
	pg, err := storage.NewPostgresWriter(cfg.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		return
	}
	defer pg.Close()

	if err := pg.Write(ctx, data); err != nil {
		logger.Error("PostgreSQL write failed: %v", err)
		return
	}
	logger.Info("Records stored in PostgreSQL (table: establishments)")
}

func runMerge(cfg *config.Config, logger *utils.Logger, firstPath, secondPath, outputPath string) error {
	first, err := storage.ReadDataset(firstPath)
	if err != nil {
		return err
	}
	second, err := storage.ReadDataset(secondPath)
	if err != nil {
		return err
	}

	merged := services.NewMerger(logger).Merge(first, second, services.MergeMode(cfg.MergeMode))
	if err := storage.NewJSONWriter(outputPath).Write(context.Background(), merged); err != nil {
		return err
	}
	logger.Info("Merged dataset with %d records saved to %s", len(merged), outputPath)
	return nil
}

func runAnalyze(cfg *config.Config, logger *utils.Logger, datasetPath, outputDir string) error {
	data, err := storage.ReadDataset(datasetPath)
	if err != nil {
		return err
	}
	logger.Info("Loaded %d records from %s", len(data), datasetPath)

	services.NewCleaner(logger).Clean(data)

	svc := services.NewInsightService(logger, services.InsightOptions{
		TopReviews:      cfg.TopReviews,
		MinReviewTokens: cfg.MinReviewTokens,
		TopKeywords:     cfg.TopKeywords,
	})
	report := svc.Generate(data)
	if err := svc.WriteOutputs(outputDir, report); err != nil {
		return err
	}
	svc.Print(os.Stdout, report)
	return nil
}
