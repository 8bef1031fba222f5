package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"branch-scraper/config"
	"branch-scraper/models"
	"branch-scraper/services"
	"branch-scraper/storage"
	"branch-scraper/utils"
)

// Source produces a serialized snapshot of a rendered page plus the
// URL it was captured from.
type Source interface {
	Capture(ctx context.Context) (html string, pageURL string, err error)
}

// Enricher attaches coordinates to branch records, order-preserving.
type Enricher interface {
	Enrich(ctx context.Context, records []*models.BranchRecord) []*models.BranchRecord
}

// Appender persists records to the destination sheet and reports how
// many rows were actually added.
type Appender interface {
	Append(ctx context.Context, records []models.Record) (int, error)
}

// Archiver mirrors enriched branch records into local storage.
type Archiver interface {
	Archive(records []*models.BranchRecord) error
}

// Result summarizes one completed run.
type Result struct {
	Extracted int
	Appended  int
}

// NoData reports whether extraction found nothing — an expected
// outcome on a wrong or not-yet-loaded page, not a failure.
func (r *Result) NoData() bool { return r.Extracted == 0 }

// SnapshotSource serves a previously saved page snapshot from disk,
// used instead of a live browser capture.
type SnapshotSource struct {
	Path    string
	PageURL string
}

// Capture reads the snapshot file.
func (s SnapshotSource) Capture(ctx context.Context) (string, string, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return "", "", fmt.Errorf("snapshot: read %q: %w", s.Path, err)
	}
	return string(b), s.PageURL, nil
}

// BranchDeps carries the collaborators of a branch run. Raw and
// Archive are optional.
type BranchDeps struct {
	Source   Source
	Enricher Enricher
	Sink     Appender
	Raw      storage.RecordWriter
	Archive  Archiver
}

// RunBranches executes one branch run: capture → extract → enrich →
// append. Stages run strictly in sequence; a fatal stage error aborts
// the remainder with nothing to roll back.
func RunBranches(ctx context.Context, cfg *config.Config, d BranchDeps, logger *utils.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	html, _, err := d.Source.Capture(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse document: %w", err)
	}

	records := services.NewBranchExtractor(logger).Extract(doc)
	if len(records) == 0 {
		logger.Warn("[pipeline] no branch data found on page")
		return &Result{}, nil
	}

	if d.Raw != nil {
		if err := d.Raw.WriteRecords(asRecords(records)); err != nil {
			logger.Warn("[pipeline] raw CSV dump failed: %v", err)
		}
	}

	logger.Info("[pipeline] geocoding %d branches", len(records))
	d.Enricher.Enrich(ctx, records)

	if d.Archive != nil {
		if err := d.Archive.Archive(records); err != nil {
			logger.Warn("[pipeline] archive mirror failed: %v", err)
		}
	}

	appended, err := d.Sink.Append(ctx, asRecords(records))
	if err != nil {
		return nil, err
	}

	return &Result{Extracted: len(records), Appended: appended}, nil
}

// ReviewDeps carries the collaborators of a review run. Raw is optional.
type ReviewDeps struct {
	Source Source
	Sink   Appender
	Raw    storage.RecordWriter
}

// RunReviews executes one review run: capture → extract → append.
// Reviews are not geocoded.
func RunReviews(ctx context.Context, cfg *config.Config, d ReviewDeps, logger *utils.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	html, pageURL, err := d.Source.Capture(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse document: %w", err)
	}

	records := services.NewReviewExtractor(logger).Extract(doc, pageURL)
	if len(records) == 0 {
		logger.Warn("[pipeline] no review data found on page")
		return &Result{}, nil
	}

	if d.Raw != nil {
		if err := d.Raw.WriteRecords(reviewsAsRecords(records)); err != nil {
			logger.Warn("[pipeline] raw CSV dump failed: %v", err)
		}
	}

	appended, err := d.Sink.Append(ctx, reviewsAsRecords(records))
	if err != nil {
		return nil, err
	}

	return &Result{Extracted: len(records), Appended: appended}, nil
}

func asRecords(records []*models.BranchRecord) []models.Record {
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

func reviewsAsRecords(records []*models.ReviewRecord) []models.Record {
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}
