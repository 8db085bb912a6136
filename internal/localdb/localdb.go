// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package localdb wraps the local SQLite database of snapshot contents
// and segment utilization: the structures consulted when deciding what
// data may be re-used from old backups, and mutated by segment
// cleaning.
package localdb

import (
	"context"
	"database/sql"
	"math"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
)

var mon = monkit.Package()

// MinAge is the boundary, in days, below which the balancer groups
// expired objects into bucket 0 rather than opening a dedicated young
// bucket, unless enough young data accumulates to warrant one.
const MinAge = 4

// DB is a handle to the local database.
type DB struct {
	log *zap.Logger
	sql *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func Open(log *zap.Logger, path string) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, cumuluserrs.Permanent.Wrap(err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, cumuluserrs.Permanent.Wrap(err)
	}

	return &DB{log: log, sql: sqlDB}, nil
}

// Close releases the underlying database connection.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Exec runs a query directly against the database, for callers that
// need lower-level access than the operations below provide.
func (db *DB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.sql.ExecContext(ctx, query, args...)
}

// QueryRow runs a single-row query directly against the database.
func (db *DB) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.sql.QueryRowContext(ctx, query, args...)
}

// Query runs a query directly against the database.
func (db *DB) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.sql.QueryContext(ctx, query, args...)
}

// withTx runs fn inside a transaction, committing on success and always
// rolling back on error or panic.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return cumuluserrs.Permanent.Wrap(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return cumuluserrs.Permanent.Wrap(err)
	}
	return nil
}

// GarbageCollect deletes rows whose referents have vanished: segment
// utilization rows for gone snapshots, segments unreferenced by any
// utilization row, block_index rows for gone segments, and sub-block
// signatures for gone blocks. All in one transaction.
func (db *DB) GarbageCollect(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM segment_utilization
			   WHERE snapshotid NOT IN (SELECT snapshotid FROM snapshots)`,
			`DELETE FROM segments
			   WHERE segmentid NOT IN (SELECT segmentid FROM segment_utilization)`,
			`DELETE FROM block_index
			   WHERE segmentid NOT IN (SELECT segmentid FROM segments)`,
			`DELETE FROM subblock_signatures
			   WHERE blockid NOT IN (SELECT blockid FROM block_index)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return cumuluserrs.Corrupt.Wrap(err)
			}
		}
		return nil
	})
}

// SegmentInfo is one row of the segment cleaning report.
type SegmentInfo struct {
	ID              int64
	UsedBytes       float64
	SizeBytes       float64
	AgeDays         float64
	CleaningBenefit float64
}

// GetSegmentCleaningList returns every currently live (non-expired)
// segment with its estimated cleaning benefit, sorted with the best
// candidates for cleaning first. ageBoost (in days) is added to every
// segment's age before computing benefit, letting a caller bias cleanup
// toward completeness ahead of a long-lived snapshot.
func (db *DB) GetSegmentCleaningList(ctx context.Context, ageBoost float64) (_ []SegmentInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.sql.QueryContext(ctx, `
		SELECT segmentid, used, size, julianday('now') - mtime AS age
		FROM segment_info
		WHERE expire_time IS NULL`)
	if err != nil {
		return nil, cumuluserrs.Corrupt.Wrap(err)
	}
	defer rows.Close()

	var segments []SegmentInfo
	for rows.Next() {
		var info SegmentInfo
		var used, size, age sql.NullFloat64
		if err := rows.Scan(&info.ID, &used, &size, &age); err != nil {
			return nil, cumuluserrs.Corrupt.Wrap(err)
		}
		if used.Valid {
			info.UsedBytes = used.Float64
		}
		if size.Valid {
			info.SizeBytes = size.Float64
		}
		if age.Valid {
			info.AgeDays = age.Float64
		}

		u := info.UsedBytes / info.SizeBytes
		info.CleaningBenefit = (1 - u) * (info.AgeDays + ageBoost) / (u + 0.1)
		segments = append(segments, info)
	}
	if err := rows.Err(); err != nil {
		return nil, cumuluserrs.Corrupt.Wrap(err)
	}

	sortByBenefitDescending(segments)
	return segments, nil
}

func sortByBenefitDescending(segments []SegmentInfo) {
	for i := 1; i < len(segments); i++ {
		for j := i; j > 0 && segments[j].CleaningBenefit > segments[j-1].CleaningBenefit; j-- {
			segments[j], segments[j-1] = segments[j-1], segments[j]
		}
	}
}

// MarkSegmentExpired marks every object in segmentID for rewrite:
// segments.expire_time is set to the id of the most recent snapshot (so
// later runs can tell whether any snapshot has been made since), and
// every block_index row for the segment is reset to expired=0.
func (db *DB) MarkSegmentExpired(ctx context.Context, segmentID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var lastSnapshotID sql.NullInt64
		row := tx.QueryRowContext(ctx, `SELECT MAX(snapshotid) FROM snapshots`)
		if err := row.Scan(&lastSnapshotID); err != nil {
			return cumuluserrs.Corrupt.Wrap(err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE segments SET expire_time = ? WHERE segmentid = ?`,
			lastSnapshotID, segmentID); err != nil {
			return cumuluserrs.Corrupt.Wrap(err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE block_index SET expired = 0 WHERE segmentid = ?`,
			segmentID); err != nil {
			return cumuluserrs.Corrupt.Wrap(err)
		}
		return nil
	})
}

type ageBucket struct {
	age   float64
	count int64
	bytes float64
}

// BalanceExpiredObjects groups all currently-expired block_index rows
// into a small number of age buckets, so that when they are eventually
// rewritten into new segments, objects of similar age end up colocated.
// The bucket boundaries come from computeCutoffs below.
func (db *DB) BalanceExpiredObjects(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE block_index SET expired = 0 WHERE expired IS NOT NULL`); err != nil {
			return cumuluserrs.Corrupt.Wrap(err)
		}

		var segmentSizeEstimate sql.NullFloat64
		row := tx.QueryRowContext(ctx, `
			SELECT AVG(COALESCE(disk_size, data_size)) FROM segments
			WHERE segmentid IN (
				SELECT DISTINCT segmentid FROM block_index WHERE expired IS NOT NULL)`)
		if err := row.Scan(&segmentSizeEstimate); err != nil {
			return cumuluserrs.Corrupt.Wrap(err)
		}
		if !segmentSizeEstimate.Valid || segmentSizeEstimate.Float64 == 0 {
			return nil
		}
		estimate := segmentSizeEstimate.Float64

		var now float64
		if err := tx.QueryRowContext(ctx, `SELECT julianday('now')`).Scan(&now); err != nil {
			return cumuluserrs.Corrupt.Wrap(err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE block_index SET timestamp = ? WHERE timestamp > ? AND expired IS NOT NULL`,
			now, now); err != nil {
			return cumuluserrs.Corrupt.Wrap(err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT ROUND(? - timestamp) AS age, COUNT(*), SUM(size)
			FROM block_index WHERE expired = 0
			GROUP BY age ORDER BY age`, now)
		if err != nil {
			return cumuluserrs.Corrupt.Wrap(err)
		}
		var distribution []ageBucket
		for rows.Next() {
			var b ageBucket
			if err := rows.Scan(&b.age, &b.count, &b.bytes); err != nil {
				rows.Close()
				return cumuluserrs.Corrupt.Wrap(err)
			}
			distribution = append(distribution, b)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return cumuluserrs.Corrupt.Wrap(err)
		}
		rows.Close()

		cutoffs := computeCutoffs(distribution, estimate)

		for i, cutoff := range cutoffs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE block_index SET expired = ?
				WHERE ROUND(? - timestamp) > ? AND expired IS NOT NULL`,
				i, now, cutoff); err != nil {
				return cumuluserrs.Corrupt.Wrap(err)
			}
		}
		return nil
	})
}

// computeCutoffs implements the age-bucket heuristic: walk the
// age distribution oldest-to-youngest, accumulating bytes into the
// current bucket and closing it once it reaches targetSize (or once the
// MinAge boundary is crossed with no young bucket open yet), then return
// the cutoffs in youngest-to-oldest order ready to drive the final
// UPDATE pass.
func computeCutoffs(distribution []ageBucket, segmentSizeEstimate float64) []float64 {
	var totalBytes float64
	for _, b := range distribution {
		totalBytes += b.bytes
	}

	targetBuckets := 2 * math.Pow(totalBytes/segmentSizeEstimate, 0.4)
	minSize := 1.5 * segmentSizeEstimate
	targetSize := math.Max(2*segmentSizeEstimate, totalBytes/targetBuckets)

	// distribution arrives youngest-first (the query orders by ascending
	// age); reverse it so the walk below goes oldest-first.
	oldestFirst := make([]ageBucket, len(distribution))
	for i, b := range distribution {
		oldestFirst[len(distribution)-1-i] = b
	}

	var cutoffs []float64
	var bucketSize float64
	minAgeBucketOpened := false

	for _, b := range oldestFirst {
		if bucketSize >= targetSize || (b.age < MinAge && !minAgeBucketOpened) {
			if bucketSize < targetSize && len(cutoffs) > 0 {
				cutoffs = cutoffs[:len(cutoffs)-1]
			}
			cutoffs = append(cutoffs, b.age)
			bucketSize = 0
		}

		bucketSize += b.bytes
		if b.age < MinAge {
			minAgeBucketOpened = true
		}
	}

	if bucketSize >= minSize || !minAgeBucketOpened {
		cutoffs = append(cutoffs, -1)
	}
	cutoffs = append(cutoffs, -1)

	// Reverse into youngest-to-oldest order for the UPDATE pass, where
	// expired = i for i = 0..len(cutoffs)-1.
	reversed := make([]float64, len(cutoffs))
	for i, c := range cutoffs {
		reversed[len(cutoffs)-1-i] = c
	}
	return reversed
}
