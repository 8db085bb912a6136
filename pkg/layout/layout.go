// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package layout defines the four standard SearchPath categories a
// snapshot engine instance uses to locate files on a backend, and the
// filter command each filename suffix implies.
package layout

import (
	"github.com/cumulus-backup/cumulus/pkg/searchpath"
)

// FilterFor returns the shell command that decodes a file saved with the
// given suffix, or "" for a suffix that needs no filtering.
func FilterFor(suffix string) string {
	switch suffix {
	case ".gpg":
		return "gpg --decrypt"
	case ".gz":
		return "gzip -dc"
	case ".bz2":
		return "bzip2 -dc"
	default:
		return ""
	}
}

func withFilterContext(prefixes, suffixes []string) []searchpath.Entry {
	var entries []searchpath.Entry
	for _, suffix := range suffixes {
		for _, prefix := range prefixes {
			entries = append(entries, searchpath.Entry{
				DirectoryPrefix: prefix,
				FilenameSuffix:  suffix,
				Context:         FilterFor(suffix),
			})
		}
	}
	return entries
}

const uuidPattern = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`

// Snapshots locates top-level snapshot descriptor files.
func Snapshots() *searchpath.SearchPath {
	return searchpath.New(
		`^snapshot-(.*)\.(cumulus|lbs)$`,
		withFilterContext([]string{"snapshots", ""}, []string{".cumulus", ".lbs"}),
	)
}

// Segments locates segment tar archives by UUID, trying each known
// compression/encryption suffix against each conventional directory.
func Segments() *searchpath.SearchPath {
	return searchpath.New(
		`^(`+uuidPattern+`)(\.\S+)?$`,
		withFilterContext([]string{"segments0", "segments1", "", "segments"}, []string{"", ".gpg", ".gz", ".bz2"}),
	)
}

// Meta locates out-of-line metadata-log objects saved outside a segment.
func Meta() *searchpath.SearchPath {
	return searchpath.New(
		`^(`+uuidPattern+`)(\.\S+)?$`,
		withFilterContext([]string{"meta"}, []string{"", ".gpg", ".gz", ".bz2"}),
	)
}

// Checksums locates the sha1sums side file accompanying a snapshot.
func Checksums() *searchpath.SearchPath {
	return searchpath.New(
		`^snapshot-(.*)\.(\w+)sums$`,
		withFilterContext([]string{"meta", "checksums", ""}, []string{".sha1sums"}),
	)
}
