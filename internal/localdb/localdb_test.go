// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package localdb_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-backup/cumulus/internal/localdb"
)

func openTestDB(t *testing.T) *localdb.DB {
	t.Helper()
	dir, err := ioutil.TempDir("", "cumulus-localdb-")
	require.NoError(t, err)

	db, err := localdb.Open(nil, filepath.Join(dir, "localdb.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedSnapshotAndSegment(t *testing.T, db *localdb.DB, used, size int64) int64 {
	t.Helper()
	ctx := context.Background()

	res, err := db.Exec(ctx, `INSERT INTO snapshots (scheme, name) VALUES ('daily', 'test')`)
	require.NoError(t, err)
	snapshotID, err := res.LastInsertId()
	require.NoError(t, err)

	res, err = db.Exec(ctx, `INSERT INTO segments (segment, data_size, disk_size) VALUES (?, ?, ?)`,
		"11111111-1111-1111-1111-111111111111", size, size)
	require.NoError(t, err)
	segmentID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = db.Exec(ctx,
		`INSERT INTO segment_utilization (snapshotid, segmentid, bytes_referenced) VALUES (?, ?, ?)`,
		snapshotID, segmentID, used)
	require.NoError(t, err)

	return segmentID
}

func TestGetSegmentCleaningListComputesBenefit(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedSnapshotAndSegment(t, db, 50, 100)

	segments, err := db.GetSegmentCleaningList(ctx, 0)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.InDelta(t, 50, segments[0].UsedBytes, 0.001)
	assert.InDelta(t, 100, segments[0].SizeBytes, 0.001)

	u := 0.5
	want := (1 - u) * (segments[0].AgeDays + 0) / (u + 0.1)
	assert.InDelta(t, want, segments[0].CleaningBenefit, 0.001)
}

func TestMarkSegmentExpiredSetsBlockIndexAndExpireTime(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	segmentID := seedSnapshotAndSegment(t, db, 10, 100)

	_, err := db.Exec(ctx,
		`INSERT INTO block_index (segmentid, object, size) VALUES (?, 'aa', 10)`, segmentID)
	require.NoError(t, err)

	require.NoError(t, db.MarkSegmentExpired(ctx, segmentID))

	var expireTime int64
	require.NoError(t, db.QueryRow(ctx, `SELECT expire_time FROM segments WHERE segmentid = ?`, segmentID).Scan(&expireTime))
	assert.EqualValues(t, 1, expireTime)

	var expired int
	require.NoError(t, db.QueryRow(ctx, `SELECT expired FROM block_index WHERE segmentid = ?`, segmentID).Scan(&expired))
	assert.Equal(t, 0, expired)
}

func TestGarbageCollectRemovesDanglingRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	segmentID := seedSnapshotAndSegment(t, db, 10, 100)

	_, err := db.Exec(ctx, `DELETE FROM snapshots`)
	require.NoError(t, err)

	require.NoError(t, db.GarbageCollect(ctx))

	var count int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM segments WHERE segmentid = ?`, segmentID).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestBalanceExpiredObjectsNoExpiredRowsIsNoop(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedSnapshotAndSegment(t, db, 10, 100)

	assert.NoError(t, db.BalanceExpiredObjects(ctx))
}
