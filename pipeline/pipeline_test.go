package pipeline

import (
	"context"
	"errors"
	"testing"

	"branch-scraper/config"
	"branch-scraper/models"
	"branch-scraper/utils"
)

func newTestLogger() *utils.Logger { return utils.NewLogger() }

func validConfig() *config.Config {
	return &config.Config{
		SpreadsheetID: "sheet-1",
		AccessToken:   "token",
		MapsAPIKey:    "key",
		Authorized:    true,
	}
}

const branchPageHTML = `<html><body>
<div class="scrollable-body"><div class="inner-body"><div class="cards-collection">
  <div class="card-result">
    <p>Makati Branch</p>
    <p>6782 Ayala Ave, Makati City</p>
    <p>Phone: 8912</p>
  </div>
  <div class="card-result">
    <p>Pasig Branch</p>
    <p>88 Ortigas Center Road, Pasig City</p>
  </div>
</div></div></div>
</body></html>`

const emptyPageHTML = `<html><body><div class="unrelated"></div></body></html>`

const reviewPageHTML = `<html><body><div role="main">
  <div data-reviewid="r1">
    <span aria-label="5 stars"></span>
    <div class="MyEned">Fast and friendly.</div>
    <span class="rsqaWe">2 months ago</span>
  </div>
</div></body></html>`

type stubSource struct {
	html    string
	pageURL string
	err     error
	calls   int
}

func (s *stubSource) Capture(context.Context) (string, string, error) {
	s.calls++
	return s.html, s.pageURL, s.err
}

type stubEnricher struct {
	calls int
	got   []*models.BranchRecord
}

func (e *stubEnricher) Enrich(_ context.Context, records []*models.BranchRecord) []*models.BranchRecord {
	e.calls++
	e.got = records
	for _, r := range records {
		r.SetLocation(14.55, 121.02)
	}
	return records
}

// stubSink mimics the destination's dedupe-by-natural-key behavior so
// repeated runs can be exercised without a server.
type stubSink struct {
	existing map[string]struct{}
	appended [][]string
	err      error
	calls    int
}

func newStubSink() *stubSink {
	return &stubSink{existing: make(map[string]struct{})}
}

func (s *stubSink) Append(_ context.Context, records []models.Record) (int, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	n := 0
	for _, r := range records {
		if _, dup := s.existing[r.NaturalKey()]; dup {
			continue
		}
		s.existing[r.NaturalKey()] = struct{}{}
		s.appended = append(s.appended, r.Cells())
		n++
	}
	return n, nil
}

func TestRunBranchesEndToEnd(t *testing.T) {
	source := &stubSource{html: branchPageHTML}
	enricher := &stubEnricher{}
	sink := newStubSink()

	result, err := RunBranches(context.Background(), validConfig(), BranchDeps{
		Source:   source,
		Enricher: enricher,
		Sink:     sink,
	}, newTestLogger())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Extracted != 2 || result.Appended != 2 {
		t.Errorf("result = %+v; want 2 extracted, 2 appended", result)
	}
	if enricher.calls != 1 || len(enricher.got) != 2 {
		t.Errorf("enricher saw %d records in %d calls", len(enricher.got), enricher.calls)
	}
	// Rows reach the sink enriched and in extraction order.
	if sink.appended[0][1] != "Makati Branch" || sink.appended[1][1] != "Pasig Branch" {
		t.Errorf("row order wrong: %v", sink.appended)
	}
	if sink.appended[0][3] == "" {
		t.Error("coordinates did not reach the sink")
	}
}

func TestRunBranchesIdempotent(t *testing.T) {
	source := &stubSource{html: branchPageHTML}
	sink := newStubSink()
	deps := BranchDeps{Source: source, Enricher: &stubEnricher{}, Sink: sink}

	first, err := RunBranches(context.Background(), validConfig(), deps, newTestLogger())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := RunBranches(context.Background(), validConfig(), deps, newTestLogger())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Appended != 2 || second.Appended != 0 {
		t.Errorf("appended %d then %d; want 2 then 0", first.Appended, second.Appended)
	}
	if len(sink.appended) != 2 {
		t.Errorf("destination holds %d rows; want 2", len(sink.appended))
	}
}

func TestRunBranchesPreconditionFailure(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing spreadsheet id", func(c *config.Config) { c.SpreadsheetID = "" }},
		{"missing token", func(c *config.Config) { c.AccessToken = "" }},
		{"missing maps key", func(c *config.Config) { c.MapsAPIKey = "" }},
		{"not authorized", func(c *config.Config) { c.Authorized = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			source := &stubSource{html: branchPageHTML}
			sink := newStubSink()

			_, err := RunBranches(context.Background(), cfg, BranchDeps{
				Source: source, Enricher: &stubEnricher{}, Sink: sink,
			}, newTestLogger())
			if err == nil {
				t.Fatal("expected a precondition error")
			}
			if source.calls != 0 || sink.calls != 0 {
				t.Error("no stage may run after a precondition failure")
			}
		})
	}
}

func TestRunBranchesNoData(t *testing.T) {
	source := &stubSource{html: emptyPageHTML}
	enricher := &stubEnricher{}
	sink := newStubSink()

	result, err := RunBranches(context.Background(), validConfig(), BranchDeps{
		Source: source, Enricher: enricher, Sink: sink,
	}, newTestLogger())
	if err != nil {
		t.Fatalf("an absent container chain is not an error, got %v", err)
	}
	if !result.NoData() {
		t.Errorf("result = %+v; want no-data outcome", result)
	}
	if enricher.calls != 0 || sink.calls != 0 {
		t.Error("enricher and sink must be skipped when nothing was extracted")
	}
}

func TestRunBranchesSinkErrorPropagates(t *testing.T) {
	sinkErr := errors.New("authorization expired")
	sink := newStubSink()
	sink.err = sinkErr

	_, err := RunBranches(context.Background(), validConfig(), BranchDeps{
		Source: &stubSource{html: branchPageHTML}, Enricher: &stubEnricher{}, Sink: sink,
	}, newTestLogger())
	if !errors.Is(err, sinkErr) {
		t.Fatalf("err = %v; want sink error propagated", err)
	}
}

func TestRunReviewsEndToEnd(t *testing.T) {
	source := &stubSource{
		html:    reviewPageHTML,
		pageURL: "https://www.google.com/maps/place/BPI+Makati/@14.55,121.02,17z",
	}
	sink := newStubSink()

	result, err := RunReviews(context.Background(), validConfig(), ReviewDeps{
		Source: source,
		Sink:   sink,
	}, newTestLogger())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Extracted != 1 || result.Appended != 1 {
		t.Errorf("result = %+v; want 1 extracted, 1 appended", result)
	}
	row := sink.appended[0]
	if row[0] != "BPI Makati" || row[2] != "5" {
		t.Errorf("review row = %v", row)
	}
}

func TestSnapshotSourceMissingFile(t *testing.T) {
	src := SnapshotSource{Path: "/nonexistent/snapshot.html"}
	if _, _, err := src.Capture(context.Background()); err == nil {
		t.Fatal("expected an error for a missing snapshot")
	}
}
