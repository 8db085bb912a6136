// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package objref_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/objref"
)

func TestNewSegmentIsValid(t *testing.T) {
	seg := objref.NewSegment()
	assert.True(t, objref.ValidSegment(seg))
}

func TestValidSegmentRejectsUppercase(t *testing.T) {
	seg := objref.NewSegment()
	upper := ""
	for _, r := range seg {
		if r >= 'a' && r <= 'f' {
			r = r - 'a' + 'A'
		}
		upper += string(r)
	}
	assert.False(t, objref.ValidSegment(upper))
}

func TestValidSegmentRejectsGarbage(t *testing.T) {
	assert.False(t, objref.ValidSegment("not-a-uuid"))
}

func TestParseSegmentReturnsBadReference(t *testing.T) {
	_, err := objref.ParseSegment("garbage")
	assert.Error(t, err)
	assert.True(t, cumuluserrs.BadReference.Has(err))
}
