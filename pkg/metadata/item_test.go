// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package metadata_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/metadata"
)

func itemFromStanza(t *testing.T, body string) *metadata.Item {
	t.Helper()
	ctx := context.Background()
	f := fakeFetcher{seg + "/root": body + "\n"}

	items, err := metadata.Items(ctx, f, seg+"/root")
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0]
}

func TestItemDecodesHexOctalDecimalMode(t *testing.T) {
	assert.EqualValues(t, 0x1ff, itemFromStanza(t, "mode: 0x1ff").Mode)
	assert.EqualValues(t, 0755, itemFromStanza(t, "mode: 0755").Mode)
	assert.EqualValues(t, 420, itemFromStanza(t, "mode: 420").Mode)
}

func TestItemDecodesDeviceField(t *testing.T) {
	item := itemFromStanza(t, "type: b\ndevice: 8/1")
	require.True(t, item.HasDevice)
	assert.EqualValues(t, 8, item.Device.Major)
	assert.EqualValues(t, 1, item.Device.Minor)
}

func TestItemDecodesUserWithoutName(t *testing.T) {
	item := itemFromStanza(t, "user: 0")
	require.True(t, item.HasUser)
	assert.EqualValues(t, 0, item.User.ID)
	assert.Equal(t, "", item.User.Name)
}

func TestItemDataRecursionTooDeep(t *testing.T) {
	ctx := context.Background()
	f := fakeFetcher{
		seg + "/root": "data: @" + seg + "/a0\n\n",
		seg + "/a0":   "@" + seg + "/a1",
		seg + "/a1":   "@" + seg + "/a2",
		seg + "/a2":   "@" + seg + "/a3",
		seg + "/a3":   "leafblock",
	}

	parsed, err := metadata.Items(ctx, f, seg+"/root")
	require.NoError(t, err)
	require.Len(t, parsed, 1)

	_, err = parsed[0].Data(ctx)
	assert.True(t, cumuluserrs.RecursionTooDeep.Has(err))
}
