// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package store_test

import (
	"archive/tar"
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-backup/cumulus/pkg/backend/backendtest"
	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/layout"
	"github.com/cumulus-backup/cumulus/pkg/objref"
	"github.com/cumulus-backup/cumulus/pkg/store"
)

const testSegment = "11111111-1111-1111-1111-111111111111"

func buildSegment(t *testing.T, segment string, objects map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for object, data := range objects {
		hdr := &tar.Header{
			Name: segment + "/" + object,
			Mode: 0600,
			Size: int64(len(data)),
		}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func newTestStore(t *testing.T, objects map[string]string) (*store.Store, string) {
	t.Helper()
	b := backendtest.New()
	b.Seed("segments/"+testSegment, buildSegment(t, testSegment, objects))

	cacheDir, err := ioutil.TempDir("", "cumulus-store-")
	require.NoError(t, err)

	return store.New(nil, b, layout.Segments(), cacheDir), cacheDir
}

func TestGetExtractsAndReturnsObject(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, map[string]string{"aa": "hello world"})

	ref, err := objref.Parse(testSegment + "/aa")
	require.NoError(t, err)

	data, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Contains(t, s.AccessedSegments(), testSegment)
}

func TestGetZeroReference(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, map[string]string{})

	ref, err := objref.Parse("zero[5]")
	require.NoError(t, err)

	data, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, data)
}

func TestGetChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, map[string]string{"aa": "hello world"})

	ref, err := objref.Parse(testSegment + "/aa(sha1=deadbeefdeadbeefdeadbeefdeadbeefdeadbeef)")
	require.NoError(t, err)

	_, err = s.Get(ctx, ref)
	assert.True(t, cumuluserrs.ChecksumMismatch.Has(err))
}

func TestGetExactSliceViolation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, map[string]string{"aa": "hello world"})

	ref, err := objref.Parse(testSegment + "/aa[=3]")
	require.NoError(t, err)

	_, err = s.Get(ctx, ref)
	assert.True(t, cumuluserrs.ExactSizeViolation.Has(err))
}

func TestGetSliceRange(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, map[string]string{"aa": "hello world"})

	ref, err := objref.Parse(testSegment + "/aa[6+5]")
	require.NoError(t, err)

	data, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
}

func TestGetShortObject(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, map[string]string{"aa": "short"})

	ref, err := objref.Parse(testSegment + "/aa[0+100]")
	require.NoError(t, err)

	_, err = s.Get(ctx, ref)
	assert.True(t, cumuluserrs.ShortObject.Has(err))
}

func TestGetUnsupportedAlgorithm(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, map[string]string{"aa": "data"})

	ref, err := objref.Parse(testSegment + "/aa(md5=deadbeef)")
	require.NoError(t, err)

	_, err = s.Get(ctx, ref)
	assert.True(t, cumuluserrs.UnsupportedAlgorithm.Has(err))
}
