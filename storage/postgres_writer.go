package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"branch-scraper/models"
)

// PostgresWriter keeps a local archive mirror of enriched branch
// records. The spreadsheet stays the durable store; the archive exists
// for offline analysis and survives on the same natural key, so
// re-running a scrape never duplicates a branch here either.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema
// migrations, and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS branches (
			id          SERIAL PRIMARY KEY,
			city        TEXT        NOT NULL,
			branch_name TEXT        UNIQUE NOT NULL,
			address     TEXT        NOT NULL,
			latitude    TEXT        NOT NULL DEFAULT '',
			longitude   TEXT        NOT NULL DEFAULT '',
			scraped_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_branches_city ON branches(city);
	`)
	return err
}

// Archive batch-inserts branch records, skipping any branch name
// already present.
func (pw *PostgresWriter) Archive(records []*models.BranchRecord) error {
	if len(records) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := pw.insertBatch(records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch []*models.BranchRecord) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*6)

	for idx, r := range batch {
		base := idx * 6
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6))
		valueArgs = append(valueArgs,
			r.City, r.BranchName, r.Address, r.Latitude, r.Longitude, r.ScrapedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO branches (city, branch_name, address, latitude, longitude, scraped_at)
		VALUES %s
		ON CONFLICT (branch_name) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

// Close releases the database handle.
func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
