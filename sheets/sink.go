package sheets

import (
	"context"

	"branch-scraper/models"
	"branch-scraper/utils"
)

// Sink appends only records not already present in the destination
// sheet, writing the header row when the sheet starts out empty.
type Sink struct {
	client *Client
	header []string
	logger *utils.Logger
}

// NewSink creates a Sink writing rows shaped by header.
func NewSink(client *Client, header []string, logger *utils.Logger) *Sink {
	return &Sink{client: client, header: header, logger: logger}
}

// Append fetches the existing rows, filters records whose natural key
// is already present, and appends the remainder in input order with a
// single write. It returns the number of data rows added.
//
// A read failure of any kind aborts the run: the original treated
// non-auth read failures as an empty baseline, which re-appends
// existing rows after a transient error, so that behavior was not kept.
func (s *Sink) Append(ctx context.Context, records []models.Record) (int, error) {
	existing, err := s.client.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("[sink] baseline has %d rows", len(existing))

	// The natural key lives in the second column of every existing row.
	keys := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		if len(row) >= 2 {
			keys[row[1]] = struct{}{}
		}
	}

	fresh := make([]models.Record, 0, len(records))
	for _, r := range records {
		if _, dup := keys[r.NaturalKey()]; dup {
			continue
		}
		fresh = append(fresh, r)
	}

	if len(fresh) == 0 {
		s.logger.Info("[sink] all %d records already present — nothing to write", len(records))
		return 0, nil
	}

	rows := make([]Row, 0, len(fresh)+1)
	if len(existing) == 0 {
		rows = append(rows, HeaderRow(s.header))
	}
	for _, r := range fresh {
		rows = append(rows, DataRow(r.Cells()))
	}

	if err := s.client.Append(ctx, rows); err != nil {
		return 0, err
	}

	s.logger.Info("[sink] appended %d new rows (%d skipped as existing)",
		len(fresh), len(records)-len(fresh))
	return len(fresh), nil
}
