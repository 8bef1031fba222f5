package services

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return rows
}

func TestMergeFillsCoordinatesAndAddsNew(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "branch.csv")
	fresh := filepath.Join(dir, "sheet1.csv")
	out := filepath.Join(dir, "merged.csv")

	// Base export predates geocoding: no coordinate columns at all.
	writeCSV(t, base, [][]string{
		{"city", "branch_name", "address"},
		{"Makati", "Makati Branch", "6782 Ayala Ave, Makati City"},
	})
	writeCSV(t, fresh, [][]string{
		{"city", "branch_name", "address", "latitude", "longitude"},
		{"Makati", "Makati Branch", "6782 Ayala Ave, Makati City", "14.55", "121.02"},
		{"Pasig", "Pasig Branch", "88 Ortigas Center Road, Pasig City", "14.58", "121.06"},
	})

	updated, added, err := NewMerger(newTestLogger()).Merge(base, fresh, out)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if updated != 1 || added != 1 {
		t.Fatalf("updated=%d added=%d; want 1 and 1", updated, added)
	}

	rows := readCSV(t, out)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d rows", len(rows))
	}
	if rows[1][3] != "14.55" || rows[1][4] != "121.02" {
		t.Errorf("base row coordinates not filled: %v", rows[1])
	}
	if rows[2][1] != "Pasig Branch" {
		t.Errorf("new branch missing: %v", rows[2])
	}
}

func TestMergeKeepsExistingCoordinates(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "branch.csv")
	fresh := filepath.Join(dir, "sheet1.csv")
	out := filepath.Join(dir, "merged.csv")

	writeCSV(t, base, [][]string{
		{"city", "branch_name", "address", "latitude", "longitude"},
		{"Makati", "Makati Branch", "6782 Ayala Ave, Makati City", "14.50", "121.00"},
	})
	writeCSV(t, fresh, [][]string{
		{"city", "branch_name", "address", "latitude", "longitude"},
		{"makati", "MAKATI BRANCH", "6782 ayala ave, makati city", "99", "99"},
	})

	updated, added, err := NewMerger(newTestLogger()).Merge(base, fresh, out)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if updated != 0 || added != 0 {
		t.Fatalf("updated=%d added=%d; want 0 and 0", updated, added)
	}

	rows := readCSV(t, out)
	if rows[1][3] != "14.50" {
		t.Errorf("existing coordinates overwritten: %v", rows[1])
	}
}

func TestDedupePrefersCompleteRecords(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "branches.csv")
	out := filepath.Join(dir, "deduped.csv")

	writeCSV(t, in, [][]string{
		{"city", "branch_name", "address", "latitude", "longitude"},
		{"Makati", "Makati Branch", "6782 Ayala Ave, Makati City", "", ""},
		{"Makati", "Makati Branch", "6782 Ayala Ave, Makati City", "14.55", "121.02"},
		{"Pasig", "Pasig Branch", "88 Ortigas Center Road, Pasig City", "", ""},
	})

	removed, err := NewMerger(newTestLogger()).Dedupe(in, out)
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d; want 1", removed)
	}

	rows := readCSV(t, out)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	// Sorted by city: Makati first, and the coordinate-bearing row won.
	if rows[1][1] != "Makati Branch" || rows[1][3] != "14.55" {
		t.Errorf("wrong survivor: %v", rows[1])
	}
}

func TestDedupeTieKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "branches.csv")
	out := filepath.Join(dir, "deduped.csv")

	writeCSV(t, in, [][]string{
		{"city", "branch_name", "address", "latitude", "longitude"},
		{"Makati", "Makati Branch", "6782 Ayala Ave, Makati City", "14.55", "121.02"},
		{"Makati", "Makati Branch", "6782 Ayala Ave, Makati City", "1.0", "2.0"},
	})

	if _, err := NewMerger(newTestLogger()).Dedupe(in, out); err != nil {
		t.Fatalf("dedupe: %v", err)
	}

	rows := readCSV(t, out)
	if rows[1][3] != "14.55" {
		t.Errorf("tie should keep the first record, got %v", rows[1])
	}
}
