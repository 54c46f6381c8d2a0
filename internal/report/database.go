package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"
)

const reportBucketName = "reports"

var (
	// ErrReportNotFound is returned for unknown report IDs.
	ErrReportNotFound = errors.New("report not found")
	// ErrReportExists is returned when saving a report under a used ID.
	ErrReportExists = errors.New("report already exists")
)

// DB defines the interface for database operations
type DB interface {
	// SaveReport stores a new report; an existing ID is ErrReportExists
	SaveReport(report *Report) error

	// GetReport retrieves a report by ID
	GetReport(id string) (*Report, error)

	// ListReports returns all reports, newest first
	ListReports() ([]*Report, error)

	// DeleteReport removes a report from the database
	DeleteReport(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(reportBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveReport stores a new report
func (b *BoltDB) SaveReport(report *Report) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reportBucketName))
		if bucket.Get([]byte(report.ID)) != nil {
			return fmt.Errorf("%w: %s", ErrReportExists, report.ID)
		}
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
		return bucket.Put([]byte(report.ID), data)
	})
}

// GetReport retrieves a report by ID
func (b *BoltDB) GetReport(id string) (*Report, error) {
	var report *Report
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reportBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrReportNotFound, id)
		}
		return json.Unmarshal(data, &report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListReports returns all reports, newest first
func (b *BoltDB) ListReports() ([]*Report, error) {
	reports := make([]*Report, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reportBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var report Report
			if err := json.Unmarshal(v, &report); err != nil {
				return fmt.Errorf("unmarshaling report: %w", err)
			}
			reports = append(reports, &report)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(reports, func(a, b *Report) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return reports, nil
}

// DeleteReport removes a report from the database
func (b *BoltDB) DeleteReport(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reportBucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrReportNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
