package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"branch-scraper/models"
	"branch-scraper/utils"
)

// Merger combines a previously exported branch CSV with freshly scraped
// rows and removes duplicate branches, preferring records that already
// carry coordinates.
type Merger struct {
	logger *utils.Logger
}

// NewMerger creates a Merger with the given logger.
func NewMerger(logger *utils.Logger) *Merger {
	return &Merger{logger: logger}
}

// Merge folds the rows of newPath into basePath and writes the result
// to outPath. Rows match on normalized city|branch_name|address; a
// matching base row gains coordinates if it lacked them, a non-matching
// row is appended. Returns (updated, added).
func (m *Merger) Merge(basePath, newPath, outPath string) (int, int, error) {
	base, err := readBranchCSV(basePath)
	if err != nil {
		return 0, 0, err
	}
	incoming, err := readBranchCSV(newPath)
	if err != nil {
		return 0, 0, err
	}
	m.logger.Info("[merge] loaded %d base rows, %d incoming rows", len(base), len(incoming))

	index := make(map[string][]*models.BranchRecord, len(base))
	for _, r := range base {
		k := mergeKey(r)
		index[k] = append(index[k], r)
	}

	updated, added := 0, 0
	for _, in := range incoming {
		matches, ok := index[mergeKey(in)]
		if !ok {
			base = append(base, in)
			index[mergeKey(in)] = []*models.BranchRecord{in}
			added++
			m.logger.Debug("[merge] added %s (%s)", in.BranchName, in.City)
			continue
		}
		for _, existing := range matches {
			if existing.HasLocation() {
				continue
			}
			existing.Latitude = in.Latitude
			existing.Longitude = in.Longitude
			updated++
			m.logger.Debug("[merge] filled coordinates for %s (%s)", existing.BranchName, existing.City)
		}
	}

	if err := writeBranchCSV(outPath, base); err != nil {
		return 0, 0, err
	}
	m.logger.Info("[merge] updated %d, added %d — %d rows written to %s",
		updated, added, len(base), outPath)
	return updated, added, nil
}

// Dedupe collapses rows sharing a normalized branch_name|address key,
// keeping the most complete record of each group, and writes the result
// sorted by city then branch name. Returns the number of rows removed.
func (m *Merger) Dedupe(inPath, outPath string) (int, error) {
	records, err := readBranchCSV(inPath)
	if err != nil {
		return 0, err
	}

	type group struct {
		best  *models.BranchRecord
		score int
	}
	groups := make(map[string]*group, len(records))
	var order []string

	for _, r := range records {
		k := dupeKey(r)
		score := completeness(r)
		g, ok := groups[k]
		if !ok {
			groups[k] = &group{best: r, score: score}
			order = append(order, k)
			continue
		}
		// Strictly better only: ties keep the earlier record.
		if score > g.score {
			g.best, g.score = r, score
		}
	}

	kept := make([]*models.BranchRecord, 0, len(order))
	for _, k := range order {
		kept = append(kept, groups[k].best)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].City != kept[j].City {
			return kept[i].City < kept[j].City
		}
		return kept[i].BranchName < kept[j].BranchName
	})

	if err := writeBranchCSV(outPath, kept); err != nil {
		return 0, err
	}

	removed := len(records) - len(kept)
	m.logger.Info("[dedupe] %d rows in, %d kept, %d duplicates removed", len(records), len(kept), removed)
	return removed, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func mergeKey(r *models.BranchRecord) string {
	return normalize(r.City) + "|" + normalize(r.BranchName) + "|" + normalize(r.Address)
}

func dupeKey(r *models.BranchRecord) string {
	return normalize(r.BranchName) + "|" + normalize(r.Address)
}

// completeness scores a record: two points per coordinate, one for a city.
func completeness(r *models.BranchRecord) int {
	score := 0
	if r.Latitude != "" {
		score += 2
	}
	if r.Longitude != "" {
		score += 2
	}
	if r.City != "" {
		score++
	}
	return score
}

// readBranchCSV loads a branch export. Header order is resolved by
// name, so files written before coordinates existed still load.
func readBranchCSV(path string) ([]*models.BranchRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("merge: open %q: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("merge: read %q: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]*models.BranchRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, &models.BranchRecord{
			City:       cell(row, "city"),
			BranchName: cell(row, "branch_name"),
			Address:    cell(row, "address"),
			Latitude:   cell(row, "latitude"),
			Longitude:  cell(row, "longitude"),
		})
	}
	return records, nil
}

func writeBranchCSV(path string, records []*models.BranchRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("merge: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("merge: create %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(models.BranchHeader); err != nil {
		return fmt.Errorf("merge: write header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(r.Cells()); err != nil {
			return fmt.Errorf("merge: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
