// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package cumuluserrs defines the error kinds shared across the snapshot
// engine. Every kind is a zeebo/errs class so callers can classify a
// returned error with a single Has check instead of type assertions.
package cumuluserrs

import "github.com/zeebo/errs"

// Error kinds, as named in the design's error handling section.
var (
	// NotFound means the backend could not locate the requested path.
	NotFound = errs.Class("not found")

	// BadReference means a reference string failed to parse.
	BadReference = errs.Class("bad reference")

	// ChecksumMismatch means an embedded checksum did not match fetched bytes.
	ChecksumMismatch = errs.Class("checksum mismatch")

	// ShortObject means a slice ran past the end of the underlying object.
	ShortObject = errs.Class("short object")

	// ExactSizeViolation means an exact-size slice disagreed with the
	// object's actual length.
	ExactSizeViolation = errs.Class("exact size violation")

	// RecursionTooDeep means an indirect-reference chain exceeded the
	// maximum recursion depth.
	RecursionTooDeep = errs.Class("recursion too deep")

	// UnsupportedVersion means a snapshot's format version is newer than
	// this reader supports.
	UnsupportedVersion = errs.Class("unsupported version")

	// UnsupportedAlgorithm means a checksum named an algorithm this
	// implementation does not know.
	UnsupportedAlgorithm = errs.Class("unsupported algorithm")

	// Corrupt means malformed tar data, a non-zero filter exit, or an
	// impossible row set turned up in the local database.
	Corrupt = errs.Class("corrupt")

	// Transient means a retryable I/O failure.
	Transient = errs.Class("transient")

	// Permanent means a non-retryable I/O failure (auth, permission).
	Permanent = errs.Class("permanent")

	// RestoreCorruption means a restored file failed its size or checksum
	// assertion.
	RestoreCorruption = errs.Class("restore corruption")
)
