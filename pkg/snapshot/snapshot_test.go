// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package snapshot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-backup/cumulus/pkg/backend/backendtest"
	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/snapshot"
)

const seg = "11111111-1111-1111-1111-111111111111"

func TestParseVersion(t *testing.T) {
	assert.Equal(t, []int{0, 11}, snapshot.ParseVersion("Cumulus Snapshot v0.11"))
	assert.Equal(t, []int{1}, snapshot.ParseVersion("LBS Snapshot v1"))
	assert.Nil(t, snapshot.ParseVersion("not a version string"))
}

func TestLoadAcceptsSupportedVersion(t *testing.T) {
	ctx := context.Background()
	b := backendtest.New()
	b.Seed("snapshots/snapshot-2024.cumulus", []byte(
		"Format: Cumulus Snapshot v0.11\n"+
			"Root: "+seg+"/aa\n"+
			"Segments: "+seg+"\n"))

	d, err := snapshot.Load(ctx, b, nil, "snapshot-2024")
	require.NoError(t, err)
	assert.Equal(t, seg+"/aa", d.Root)
	assert.Equal(t, []string{seg}, d.Segments)
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	b := backendtest.New()
	b.Seed("snapshots/snapshot-future.cumulus", []byte(
		"Format: Cumulus Snapshot v0.99\n"+
			"Root: "+seg+"/aa\n"))

	_, err := snapshot.Load(ctx, b, nil, "snapshot-future")
	assert.True(t, cumuluserrs.UnsupportedVersion.Has(err))
}

func TestLoadMissingRootField(t *testing.T) {
	ctx := context.Background()
	b := backendtest.New()
	b.Seed("snapshots/snapshot-bad.cumulus", []byte("Format: Cumulus Snapshot v0.11\n"))

	_, err := snapshot.Load(ctx, b, nil, "snapshot-bad")
	assert.True(t, cumuluserrs.Corrupt.Has(err))
}

func TestLoadMissingSegmentsField(t *testing.T) {
	ctx := context.Background()
	b := backendtest.New()
	b.Seed("snapshots/snapshot-nosegs.cumulus", []byte(
		"Format: Cumulus Snapshot v0.11\n"+
			"Root: "+seg+"/aa\n"))

	_, err := snapshot.Load(ctx, b, nil, "snapshot-nosegs")
	assert.True(t, cumuluserrs.Corrupt.Has(err))
}
