// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package filter_test

import (
	"context"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/filter"
)

func TestApplyNoCommandIsPassthrough(t *testing.T) {
	ctx := context.Background()
	raw := ioutil.NopCloser(strings.NewReader("verbatim"))

	r, err := filter.Apply(ctx, nil, "", raw)
	require.NoError(t, err)

	data, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "verbatim", string(data))
}

func TestApplyRunsCommand(t *testing.T) {
	ctx := context.Background()
	raw := ioutil.NopCloser(strings.NewReader("hello\n"))

	r, err := filter.Apply(ctx, nil, "cat", raw)
	require.NoError(t, err)

	data, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello\n", string(data))
}

func TestApplyNonZeroExitIsCorrupt(t *testing.T) {
	ctx := context.Background()
	raw := ioutil.NopCloser(strings.NewReader("ignored"))

	r, err := filter.Apply(ctx, nil, "cat >/dev/null; exit 7", raw)
	require.NoError(t, err)

	_, readErr := ioutil.ReadAll(r)
	closeErr := r.Close()
	err = readErr
	if err == nil {
		err = closeErr
	}
	assert.True(t, cumuluserrs.Corrupt.Has(err))
}
