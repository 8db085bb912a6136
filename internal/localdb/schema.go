// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package localdb

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	snapshotid INTEGER PRIMARY KEY AUTOINCREMENT,
	scheme     TEXT NOT NULL,
	name       TEXT NOT NULL,
	timestamp  REAL NOT NULL DEFAULT (julianday('now')),
	intent     REAL NOT NULL DEFAULT 1.0
);

CREATE TABLE IF NOT EXISTS segments (
	segmentid   INTEGER PRIMARY KEY AUTOINCREMENT,
	segment     TEXT NOT NULL UNIQUE,
	timestamp   REAL NOT NULL DEFAULT (julianday('now')),
	data_size   INTEGER,
	disk_size   INTEGER,
	type        TEXT,
	expire_time INTEGER
);

CREATE TABLE IF NOT EXISTS block_index (
	blockid   INTEGER PRIMARY KEY AUTOINCREMENT,
	segmentid INTEGER NOT NULL REFERENCES segments(segmentid),
	object    TEXT NOT NULL,
	checksum  TEXT,
	size      INTEGER NOT NULL,
	timestamp REAL NOT NULL DEFAULT (julianday('now')),
	expired   INTEGER
);

CREATE TABLE IF NOT EXISTS segment_utilization (
	snapshotid      INTEGER NOT NULL REFERENCES snapshots(snapshotid),
	segmentid       INTEGER NOT NULL REFERENCES segments(segmentid),
	bytes_referenced INTEGER NOT NULL,
	PRIMARY KEY (snapshotid, segmentid)
);

CREATE TABLE IF NOT EXISTS subblock_signatures (
	blockid    INTEGER NOT NULL UNIQUE REFERENCES block_index(blockid),
	algorithm  TEXT NOT NULL,
	signatures BLOB
);

CREATE VIEW IF NOT EXISTS segment_info AS
SELECT
	s.segmentid                                AS segmentid,
	s.expire_time                               AS expire_time,
	s.timestamp                                 AS mtime,
	COALESCE(s.disk_size, s.data_size)           AS size,
	(SELECT SUM(u.bytes_referenced)
	   FROM segment_utilization u
	  WHERE u.segmentid = s.segmentid)           AS used
FROM segments s;
`
