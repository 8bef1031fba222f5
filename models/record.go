package models

import (
	"fmt"
	"strconv"
	"time"
)

// Sheet headers, in the exact column order the destination expects.
var (
	BranchHeader = []string{"city", "branch_name", "address", "latitude", "longitude"}
	ReviewHeader = []string{"branch_name", "review_text", "stars", "date"}
)

// Record is anything the sink and local writers can persist as one row.
type Record interface {
	// NaturalKey is the value checked against column 1 of existing rows
	// to decide whether the record is already present.
	NaturalKey() string
	Cells() []string
}

// BranchRecord is one branch extracted from the locator page.
// Latitude/Longitude are kept in their sheet-cell representation:
// empty string means geocoding found nothing or failed.
type BranchRecord struct {
	City       string
	BranchName string
	Address    string
	Latitude   string
	Longitude  string
	ScrapedAt  time.Time
}

func (b *BranchRecord) NaturalKey() string { return b.BranchName }

func (b *BranchRecord) Cells() []string {
	return []string{b.City, b.BranchName, b.Address, b.Latitude, b.Longitude}
}

// SetLocation stores a geocoding result.
func (b *BranchRecord) SetLocation(lat, lng float64) {
	b.Latitude = strconv.FormatFloat(lat, 'f', -1, 64)
	b.Longitude = strconv.FormatFloat(lng, 'f', -1, 64)
}

// HasLocation reports whether both coordinates are present.
func (b *BranchRecord) HasLocation() bool {
	return b.Latitude != "" && b.Longitude != ""
}

// ReviewRecord is one review extracted from a Google Maps place page.
// Stars is 0 when no rating could be determined. Date is the site's
// free-text form ("2 months ago"), never parsed to a calendar type.
type ReviewRecord struct {
	BranchName string
	Text       string
	Stars      int
	Date       string
	SourceID   string
	ScrapedAt  time.Time
}

func (r *ReviewRecord) NaturalKey() string { return r.Text }

func (r *ReviewRecord) Cells() []string {
	return []string{r.BranchName, r.Text, strconv.Itoa(r.Stars), r.Date}
}

// DedupeKey is the composite identity used within one extraction run.
// Two reviews are the same only if source element, text, stars and
// date all match.
func (r *ReviewRecord) DedupeKey() string {
	return fmt.Sprintf("%s|%s|%d|%s", r.SourceID, r.Text, r.Stars, r.Date)
}
