package storage

import "branch-scraper/models"

// RecordWriter is the interface any local storage backend must satisfy.
type RecordWriter interface {
	WriteRecords(records []models.Record) error
	Close() error
}
