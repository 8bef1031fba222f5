package services

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"branch-scraper/models"
	"branch-scraper/utils"
)

var (
	// placeRegexp pulls the place name out of a Google Maps URL.
	placeRegexp = regexp.MustCompile(`/maps/place/([^/]+)/@`)
	// starLabelRegexp matches accessible labels like "4 stars".
	starLabelRegexp = regexp.MustCompile(`(\d+)\s*[Ss]tars?`)
)

// Selector sets for the shifting Google Maps review markup. Ordered by
// reliability; the first hit wins.
var (
	reviewTextSelectors = []string{".MyEned", ".wiI7pd", "[data-expandable-section]", ".fontBodyMedium > span"}
	reviewDateSelectors = []string{".rsqaWe", ".fontCaption", `span[aria-label]`}
)

// ReviewExtractor reads review records out of a rendered Google Maps
// place page.
type ReviewExtractor struct {
	logger *utils.Logger
}

// NewReviewExtractor creates a ReviewExtractor with the given logger.
func NewReviewExtractor(logger *utils.Logger) *ReviewExtractor {
	return &ReviewExtractor{logger: logger}
}

// BranchNameFromURL parses the branch name from a Maps place URL of the
// form "/maps/place/<name>/@...". Returns "" when the pattern is absent.
func BranchNameFromURL(pageURL string) string {
	m := placeRegexp.FindStringSubmatch(pageURL)
	if m == nil {
		return ""
	}
	name := m[1]
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return strings.ReplaceAll(name, "+", " ")
}

// Extract returns the deduplicated reviews found in doc. The branch
// name comes from pageURL and is the same for every review in one run.
func (e *ReviewExtractor) Extract(doc *goquery.Document, pageURL string) []*models.ReviewRecord {
	branch := BranchNameFromURL(pageURL)
	if branch == "" {
		e.logger.Warn("[extract] could not parse branch name from URL: %s", pageURL)
	}

	elements := doc.Find("[data-reviewid]")
	e.logger.Info("[extract] found %d review elements", elements.Length())

	seen := make(map[string]struct{})
	var records []*models.ReviewRecord

	elements.Each(func(i int, el *goquery.Selection) {
		sourceID, _ := el.Attr("data-reviewid")
		text := findReviewText(el)
		stars := extractStars(el)
		date := findReviewDate(el)

		// An element with no recoverable content yields nothing.
		if text == "" && stars == 0 && date == "" {
			return
		}

		rec := &models.ReviewRecord{
			BranchName: branch,
			Text:       text,
			Stars:      stars,
			Date:       date,
			SourceID:   sourceID,
			ScrapedAt:  time.Now(),
		}

		key := rec.DedupeKey()
		if _, dup := seen[key]; dup {
			e.logger.Debug("[extract] duplicate review skipped: %s", sourceID)
			return
		}
		seen[key] = struct{}{}
		records = append(records, rec)
	})

	e.logger.Info("[extract] %d unique reviews for %q", len(records), branch)
	return records
}

// findReviewText returns the first non-empty text node match.
func findReviewText(el *goquery.Selection) string {
	for _, sel := range reviewTextSelectors {
		if t := strings.TrimSpace(el.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// extractStars determines a 0–5 star count. Probe order: accessible
// label on the element, filled-star count in the primary rating
// container, then both probes again on the fallback container.
func extractStars(el *goquery.Selection) int {
	if n := starsFromLabel(el); n > 0 {
		return n
	}
	if n := el.Find(".kvMYJc").Length(); n >= 1 && n <= 5 {
		return n
	}
	if alt := el.Find(".DU9Pgb").First(); alt.Length() > 0 {
		if n := starsFromLabel(alt); n > 0 {
			return n
		}
		if n := alt.Find(".elGi1d").Length(); n >= 1 && n <= 5 {
			return n
		}
	}
	return 0
}

// starsFromLabel scans aria-labels under sel for a "<n> star(s)" rating.
func starsFromLabel(sel *goquery.Selection) int {
	stars := 0
	sel.Find("[aria-label]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label, _ := s.Attr("aria-label")
		if !strings.Contains(strings.ToLower(label), "star") {
			return true
		}
		if m := starLabelRegexp.FindStringSubmatch(label); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 5 {
				stars = n
				return false
			}
		}
		return true
	})
	return stars
}

// findReviewDate returns the site-local relative date text ("2 months
// ago"), or "" when no dated element is present.
func findReviewDate(el *goquery.Selection) string {
	for _, sel := range reviewDateSelectors {
		date := ""
		el.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := strings.TrimSpace(s.Text())
			if strings.Contains(t, "ago") {
				date = t
				return false
			}
			return true
		})
		if date != "" {
			return date
		}
	}
	return ""
}
