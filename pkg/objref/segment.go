// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package objref

import (
	uuid "github.com/satori/go.uuid"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
)

// NewSegment returns a freshly generated segment identifier in the
// canonical lowercase-hyphenated form new segment tar archives are
// named after.
func NewSegment() string {
	return uuid.NewV4().String()
}

// ValidSegment reports whether s is a well-formed segment identifier,
// the same grammar Parse expects in the SEGMENT position of a
// reference.
func ValidSegment(s string) bool {
	_, err := uuid.FromString(s)
	return err == nil && s == normalizeUUID(s)
}

func normalizeUUID(s string) string {
	u, err := uuid.FromString(s)
	if err != nil {
		return ""
	}
	return u.String()
}

// ParseSegment validates s as a segment identifier, returning
// cumuluserrs.BadReference if it is not a canonical UUID.
func ParseSegment(s string) (string, error) {
	if !ValidSegment(s) {
		return "", cumuluserrs.BadReference.New("not a valid segment identifier: %q", s)
	}
	return s, nil
}
