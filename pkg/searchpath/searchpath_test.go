// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package searchpath_test

import (
	"context"
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-backup/cumulus/pkg/backend/backendtest"
	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/searchpath"
)

func snapshotsSearchPath() *searchpath.SearchPath {
	return searchpath.New(
		`^snapshot-(.*)\.(cumulus|lbs)$`,
		[]searchpath.Entry{
			{DirectoryPrefix: "snapshots", FilenameSuffix: ".cumulus"},
			{DirectoryPrefix: "snapshots", FilenameSuffix: ".lbs"},
			{DirectoryPrefix: "", FilenameSuffix: ".cumulus"},
			{DirectoryPrefix: "", FilenameSuffix: ".lbs"},
		},
	)
}

func TestGetFindsFirstMatchingEntry(t *testing.T) {
	ctx := context.Background()
	b := backendtest.New()
	b.Seed("snapshot-2024.lbs", []byte("descriptor"))

	sp := snapshotsSearchPath()

	r, res, err := sp.Get(ctx, b, "snapshot-2024")
	require.NoError(t, err)
	data, _ := ioutil.ReadAll(r)
	assert.Equal(t, "descriptor", string(data))
	assert.Equal(t, "snapshot-2024.lbs", res.Path)
}

func TestGetMoveToFront(t *testing.T) {
	ctx := context.Background()
	b := backendtest.New()
	// Only the bare ".lbs" form (4th candidate) exists.
	b.Seed("snapshot-2024.lbs", []byte("data"))

	sp := snapshotsSearchPath()
	_, _, err := sp.Get(ctx, b, "snapshot-2024")
	require.NoError(t, err)

	// A second lookup for the same shape tries the now-promoted entry
	// first: b2 also holds the originally first candidate, which would
	// win if the bare ".lbs" entry had not moved to the front.
	b2 := backendtest.New()
	b2.Seed("snapshots/snapshot-2024.cumulus", []byte("first-candidate"))
	b2.Seed("snapshot-2024.lbs", []byte("data-again"))
	r, _, err := sp.Get(ctx, b2, "snapshot-2024")
	require.NoError(t, err)
	data, _ := ioutil.ReadAll(r)
	assert.Equal(t, "data-again", string(data))
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	b := backendtest.New()
	sp := snapshotsSearchPath()

	_, _, err := sp.Get(ctx, b, "snapshot-missing")
	assert.True(t, cumuluserrs.NotFound.Has(err))
}

func TestListUnionsDirectories(t *testing.T) {
	ctx := context.Background()
	b := backendtest.New()
	b.Seed("snapshots/snapshot-a.cumulus", []byte("a"))
	b.Seed("snapshot-b.lbs", []byte("b"))
	b.Seed("snapshots/not-a-snapshot.txt", []byte("ignored"))

	sp := snapshotsSearchPath()
	listings, err := sp.List(ctx, b)
	require.NoError(t, err)
	assert.Len(t, listings, 2)
}
