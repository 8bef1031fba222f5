package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"branch-scraper/config"
	"branch-scraper/geocode"
	"branch-scraper/models"
	"branch-scraper/pipeline"
	"branch-scraper/scraper/bpi"
	"branch-scraper/scraper/gmaps"
	"branch-scraper/services"
	"branch-scraper/sheets"
	"branch-scraper/storage"
	"branch-scraper/utils"
)

func main() {
	mode := flag.String("mode", "branches", "run mode: branches | reviews | merge")
	snapshot := flag.String("snapshot", "", "path to a saved page snapshot instead of a live capture")
	snapshotURL := flag.String("snapshot-url", "", "page URL the snapshot was taken from (reviews mode)")
	mergeBase := flag.String("base", "", "merge mode: existing branch CSV")
	mergeInput := flag.String("input", "", "merge mode: freshly exported CSV")
	mergeOutput := flag.String("output", "./output/merged_branches.csv", "merge mode: output CSV path")
	flag.Parse()

	logger := utils.NewLogger()
	cfg := config.Load()

	logger.Info("=== Branch Scraping Pipeline starting — mode: %s ===", *mode)

	var err error
	switch *mode {
	case "branches":
		err = runBranches(cfg, logger, *snapshot, *snapshotURL)
	case "reviews":
		err = runReviews(cfg, logger, *snapshot, *snapshotURL)
	case "merge":
		err = runMerge(logger, *mergeBase, *mergeInput, *mergeOutput)
	default:
		err = fmt.Errorf("unknown mode %q (want branches, reviews or merge)", *mode)
	}

	if err != nil {
		logger.Error("Run failed: %v", err)
		os.Exit(1)
	}
}

func runBranches(cfg *config.Config, logger *utils.Logger, snapshot, snapshotURL string) error {
	ctx := context.Background()

	raw, err := storage.NewCSVWriter(cfg.CSVOutputPath, models.BranchHeader)
	if err != nil {
		return fmt.Errorf("create raw CSV writer: %w", err)
	}
	defer raw.Close()

	deps := pipeline.BranchDeps{
		Source: pickSource(cfg, logger, snapshot, snapshotURL, false),
		Enricher: geocode.New(
			cfg.GeocodeEndpoint,
			cfg.MapsAPIKey,
			utils.NewThrottle(time.Duration(cfg.GeocodeDelayMs)*time.Millisecond),
			logger,
		),
		Sink: sheets.NewSink(
			sheets.NewClient(cfg.SheetsEndpoint, cfg.SpreadsheetID, cfg.SheetName, cfg.AccessToken),
			models.BranchHeader,
			logger,
		),
		Raw: raw,
	}

	if cfg.ArchiveEnabled {
		archive, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Warn("Postgres archive unavailable, continuing without it: %v", err)
		} else {
			defer archive.Close()
			deps.Archive = archive
		}
	}

	result, err := pipeline.RunBranches(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	report(logger, result, "branches")
	return nil
}

func runReviews(cfg *config.Config, logger *utils.Logger, snapshot, snapshotURL string) error {
	ctx := context.Background()

	raw, err := storage.NewCSVWriter(cfg.CSVOutputPath, models.ReviewHeader)
	if err != nil {
		return fmt.Errorf("create raw CSV writer: %w", err)
	}
	defer raw.Close()

	deps := pipeline.ReviewDeps{
		Source: pickSource(cfg, logger, snapshot, snapshotURL, true),
		Sink: sheets.NewSink(
			sheets.NewClient(cfg.SheetsEndpoint, cfg.ReviewSpreadsheetID, cfg.SheetName, cfg.AccessToken),
			models.ReviewHeader,
			logger,
		),
		Raw: raw,
	}

	result, err := pipeline.RunReviews(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	report(logger, result, "reviews")
	return nil
}

func runMerge(logger *utils.Logger, base, input, output string) error {
	if input == "" {
		return fmt.Errorf("merge mode needs -input (and optionally -base)")
	}

	merger := services.NewMerger(logger)
	if base == "" {
		removed, err := merger.Dedupe(input, output)
		if err != nil {
			return err
		}
		logger.Info("Dedupe complete — %d duplicates removed, output: %s", removed, output)
		return nil
	}

	updated, added, err := merger.Merge(base, input, output)
	if err != nil {
		return err
	}
	logger.Info("Merge complete — %d updated, %d added, output: %s", updated, added, output)
	return nil
}

// pickSource decides between a live browser capture and a saved
// snapshot. Snapshots exist so a run can be replayed without a browser.
func pickSource(cfg *config.Config, logger *utils.Logger, snapshot, snapshotURL string, reviews bool) pipeline.Source {
	if snapshot == "" && cfg.SnapshotPath != "" {
		snapshot = cfg.SnapshotPath
	}
	if snapshot != "" {
		pageURL := snapshotURL
		if pageURL == "" {
			if reviews {
				pageURL = cfg.ReviewPageURL
			} else {
				pageURL = cfg.BranchPageURL
			}
		}
		logger.Info("Using snapshot %s", snapshot)
		return pipeline.SnapshotSource{Path: snapshot, PageURL: pageURL}
	}
	if reviews {
		return gmaps.New(cfg, logger)
	}
	return bpi.New(cfg, logger)
}

func report(logger *utils.Logger, result *pipeline.Result, what string) {
	switch {
	case result.NoData():
		logger.Warn("No data found on this page. Make sure it is fully loaded and contains %s.", what)
	case result.Appended == 0:
		logger.Info("All %d extracted %s already exist in the spreadsheet.", result.Extracted, what)
	default:
		logger.Info("Successfully added %d new %s to the spreadsheet (%d extracted).",
			result.Appended, what, result.Extracted)
	}
	fmt.Printf("\n  Done. Extracted %d — appended %d new rows.\n\n", result.Extracted, result.Appended)
}
