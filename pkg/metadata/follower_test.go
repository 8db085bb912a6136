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
	"github.com/cumulus-backup/cumulus/pkg/objref"
)

// fakeFetcher serves zero references as zero bytes and every other
// reference by its "segment/object" key. References still pass through
// objref.Parse first, so the keys use a canonical segment UUID.
type fakeFetcher map[string]string

func (f fakeFetcher) Get(ctx context.Context, ref objref.Ref) ([]byte, error) {
	if ref.Zero {
		return make([]byte, ref.ZeroLength), nil
	}
	key := ref.Segment + "/" + ref.Object
	data, ok := f[key]
	if !ok {
		return nil, cumuluserrs.NotFound.New("no such fake object %s", key)
	}
	return []byte(data), nil
}

const seg = "11111111-1111-1111-1111-111111111111"

func TestReadLogFollowsIndirectReference(t *testing.T) {
	ctx := context.Background()
	f := fakeFetcher{
		seg + "/aa": "name: a\ntype: f\n\n@" + seg + "/bb\n",
		seg + "/bb": "name: b\ntype: f\n\n",
	}

	lines, err := metadata.ReadLog(ctx, f, seg+"/aa")
	require.NoError(t, err)

	stanzas := metadata.Parse(lines, func(l string) bool { return len(l) == 0 })
	require.Len(t, stanzas, 2)
	assert.Equal(t, "a", stanzas[0]["name"])
	assert.Equal(t, "b", stanzas[1]["name"])
}

func TestReadLogRecursionTooDeep(t *testing.T) {
	ctx := context.Background()
	f := fakeFetcher{
		seg + "/a0": "@" + seg + "/a1\n",
		seg + "/a1": "@" + seg + "/a2\n",
		seg + "/a2": "@" + seg + "/a3\n",
		seg + "/a3": "leaf\n",
	}

	_, err := metadata.ReadLog(ctx, f, seg+"/a0")
	assert.True(t, cumuluserrs.RecursionTooDeep.Has(err))
}

func TestItemsParsesTypedFields(t *testing.T) {
	ctx := context.Background()
	f := fakeFetcher{
		seg + "/root": "name: some%20file\ntype: f\nmode: 0644\nsize: 11\nuser: 1000 (alice)\ndata: " + seg + "/d1\n\n",
	}

	items, err := metadata.Items(ctx, f, seg+"/root")
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "some file", item.Name)
	assert.EqualValues(t, 0644, item.Mode)
	assert.EqualValues(t, 11, item.Size)
	assert.Equal(t, int64(1000), item.User.ID)
	assert.Equal(t, "alice", item.User.Name)

	blocks, err := item.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{seg + "/d1"}, blocks)
}
