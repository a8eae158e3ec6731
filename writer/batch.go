// Package writer holds the batch-with-fallback insert loop shared by the sync families.
package writer

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

const DefaultBatchSize = 10000

// Batcher inserts rows in fixed-size batches. When a batch fails, its rows are
// retried one at a time so that one bad row does not sacrifice the rest of the batch.
// Rows that still fail are reported through OnRowError and skipped.
type Batcher[R any] struct {
	Size        int
	Logger      logrus.FieldLogger
	InsertBatch func(ctx context.Context, rows []R) error
	InsertOne   func(ctx context.Context, row R) error
	OnRowError  func(row R, err error)
}

type Outcome struct {
	Inserted        int
	Failed          int
	Batches         int
	FallbackBatches int
}

// Insert stops between batches when ctx is cancelled; a batch in flight is completed.
func (b Batcher[R]) Insert(ctx context.Context, rows []R) (Outcome, error) {
	var out Outcome
	if len(rows) == 0 {
		return out, nil
	}
	if b.InsertBatch == nil || b.InsertOne == nil {
		return out, errors.New("batcher: insert functions are required")
	}
	size := b.Size
	if size <= 0 {
		size = DefaultBatchSize
	}
	logger := b.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	for start := 0; start < len(rows); start += size {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		out.Batches++

		err := b.InsertBatch(ctx, batch)
		if err == nil {
			out.Inserted += len(batch)
			continue
		}

		out.FallbackBatches++
		logger.WithFields(logrus.Fields{
			"batch": out.Batches,
			"rows":  len(batch),
		}).WithError(err).Warn("batch insert failed, retrying rows one at a time")

		for i, row := range batch {
			if rerr := b.InsertOne(ctx, row); rerr != nil {
				out.Failed++
				logger.WithFields(logrus.Fields{
					"batch": out.Batches,
					"row":   start + i + 1,
				}).WithError(rerr).Error("row insert failed")
				if b.OnRowError != nil {
					b.OnRowError(row, rerr)
				}
				continue
			}
			out.Inserted++
		}
	}
	if out.Failed > 0 {
		logger.WithField("failed", out.Failed).Warn("some rows could not be inserted")
	}
	return out, nil
}

// MySQL server error numbers the sync classifies.
const (
	erDupEntry          = 1062
	erNoReferencedRow2  = 1452
	erDataTooLong       = 1406
	erTruncatedWrongVal = 1292
)

// IsDuplicateKey reports whether err is a MySQL unique-key violation.
func IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}

// RowErrorKind classifies a per-row insert failure for the discrepancy report.
func RowErrorKind(err error) string {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return "INSERT_FAILED"
	}
	switch me.Number {
	case erDupEntry:
		return "DUPLICATE_KEY"
	case erNoReferencedRow2:
		return "FOREIGN_KEY_VIOLATION"
	case erDataTooLong, erTruncatedWrongVal:
		return "VALUE_REJECTED"
	default:
		return "INSERT_FAILED"
	}
}
