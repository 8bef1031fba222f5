package services

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"branch-scraper/models"
	"branch-scraper/utils"
)

// cityRegexp captures the word immediately preceding "City" in an address line.
var cityRegexp = regexp.MustCompile(`(?i)(\w+)\s+City`)

// noiseTokens are lines that carry no branch information on their own.
var noiseTokens = map[string]struct{}{
	"Branch":       {},
	"NCR":          {},
	"Metro Manila": {},
}

// contactMarkers mark contact-detail lines, never names or addresses.
var contactMarkers = []string{"Phone", "Email", "Contact"}

// streetKeywords identify address lines that lack an explicit "City" token.
var streetKeywords = []string{"EDSA", "Ave", "Street", "Road", "Blvd", "Drive", "Plaza", "Center"}

// metroManilaCities is the fixed list used to infer a city from an
// address when no "<word> City" pattern matched.
var metroManilaCities = []string{
	"Makati", "Manila", "Quezon", "Pasig", "Taguig", "Mandaluyong",
	"San Juan", "Pasay", "Paranaque", "Las Pinas", "Muntinlupa",
	"Marikina", "Valenzuela", "Caloocan", "Malabon", "Navotas",
}

// BranchExtractor reads branch records out of a rendered locator page.
// It has no side effects on the document.
type BranchExtractor struct {
	logger *utils.Logger
}

// NewBranchExtractor creates a BranchExtractor with the given logger.
func NewBranchExtractor(logger *utils.Logger) *BranchExtractor {
	return &BranchExtractor{logger: logger}
}

// Extract returns the deduplicated branch records found in doc. A
// missing container chain means "wrong page or not yet loaded" and
// yields an empty result, not an error.
func (e *BranchExtractor) Extract(doc *goquery.Document) []*models.BranchRecord {
	scrollable := doc.Find(".scrollable-body").First()
	if scrollable.Length() == 0 {
		e.logger.Debug("[extract] no .scrollable-body found")
		return nil
	}

	inner := scrollable.Find(".inner-body").First()
	if inner.Length() == 0 {
		e.logger.Debug("[extract] no .inner-body within .scrollable-body")
		return nil
	}

	collection := inner.Find(".cards-collection").First()
	if collection.Length() == 0 {
		e.logger.Debug("[extract] no .cards-collection within .inner-body")
		return nil
	}

	cards := collection.Find(".card-result")
	e.logger.Info("[extract] found %d branch cards", cards.Length())

	var records []*models.BranchRecord
	cards.Each(func(i int, card *goquery.Selection) {
		rec := e.extractCard(card.Text())
		if rec == nil {
			e.logger.Debug("[extract] card %d yielded no valid branch", i+1)
			return
		}
		records = append(records, rec)
	})

	unique := dedupeBranches(records)
	e.logger.Info("[extract] %d branches after deduplication (dropped %d)",
		len(unique), len(records)-len(unique))
	return unique
}

// extractCard classifies the flattened card text into a branch record.
// The rules run as an ordered chain over an immutable line list; a nil
// return means the card had no recoverable branch.
func (e *BranchExtractor) extractCard(text string) *models.BranchRecord {
	lines := splitLines(text)
	if len(lines) < 2 {
		return nil
	}

	address, city := findCityAddress(lines)
	name := findBranchName(lines)

	if address == "" {
		streetAddr, streetCity := findStreetAddress(lines)
		if streetAddr != "" {
			address = streetAddr
			if city == "" {
				city = streetCity
			}
		}
	}

	if city == "" {
		city = inferCity(address)
	}

	if name == "" || address == "" || city == "" ||
		name == address || len(name) <= 3 || len(address) <= 10 {
		return nil
	}

	return &models.BranchRecord{
		City:       city,
		BranchName: name,
		Address:    address,
		ScrapedAt:  time.Now(),
	}
}

// splitLines flattens card text into trimmed, non-empty lines.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// isNoise reports whether a line carries no usable branch information.
func isNoise(line string) bool {
	if _, ok := noiseTokens[line]; ok {
		return true
	}
	for _, marker := range contactMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return len(line) < 3
}

// findCityAddress returns the first non-noise line containing "City" as
// the address, with the city name pulled from the "<word> City" pattern.
func findCityAddress(lines []string) (address, city string) {
	for _, line := range lines {
		if isNoise(line) || !strings.Contains(line, "City") {
			continue
		}
		address = line
		if m := cityRegexp.FindStringSubmatch(line); m != nil {
			city = m[1]
		}
		return address, city
	}
	return "", ""
}

// findBranchName returns the first line that plausibly names a branch:
// not noise, not an address line, 4–99 characters, no email/website
// markers, not starting with a digit. NCR suffixes are stripped.
func findBranchName(lines []string) string {
	for _, line := range lines {
		if isNoise(line) || strings.Contains(line, "City") {
			continue
		}
		if !isNameCandidate(line) {
			continue
		}
		return stripNCRSuffix(line)
	}
	return ""
}

func isNameCandidate(line string) bool {
	if len(line) <= 3 || len(line) >= 100 {
		return false
	}
	if strings.Contains(line, "@") || strings.Contains(line, "www.") || strings.Contains(line, ".com") {
		return false
	}
	if line[0] >= '0' && line[0] <= '9' {
		return false
	}
	return true
}

// stripNCRSuffix removes trailing region markers from a branch name.
func stripNCRSuffix(name string) string {
	name = strings.TrimSpace(name)
	switch {
	case strings.HasSuffix(name, ", NCR"):
		return strings.TrimSuffix(name, ", NCR")
	case strings.HasSuffix(name, " NCR"):
		return strings.TrimSuffix(name, " NCR")
	case strings.HasSuffix(name, "-NCR"):
		return strings.TrimSuffix(name, "-NCR")
	case strings.HasSuffix(name, "NCR"):
		return strings.TrimSpace(strings.TrimSuffix(name, "NCR"))
	}
	return name
}

// findStreetAddress scans all lines for one containing a street-type
// keyword, used when no "City" line was present.
func findStreetAddress(lines []string) (address, city string) {
	for _, line := range lines {
		if len(line) <= 10 {
			continue
		}
		for _, kw := range streetKeywords {
			if strings.Contains(line, kw) {
				if m := cityRegexp.FindStringSubmatch(line); m != nil {
					city = m[1]
				}
				return line, city
			}
		}
	}
	return "", ""
}

// inferCity matches the address against the known Metro Manila city
// list, case-insensitively; first match wins.
func inferCity(address string) string {
	if address == "" {
		return ""
	}
	lower := strings.ToLower(address)
	for _, c := range metroManilaCities {
		if strings.Contains(lower, strings.ToLower(c)) {
			return c
		}
	}
	return ""
}

// dedupeBranches drops records whose branch name duplicates an earlier
// one; the first occurrence wins.
func dedupeBranches(records []*models.BranchRecord) []*models.BranchRecord {
	seen := make(map[string]struct{}, len(records))
	unique := make([]*models.BranchRecord, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.BranchName]; dup {
			continue
		}
		seen[r.BranchName] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}
