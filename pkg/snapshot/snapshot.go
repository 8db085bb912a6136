// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package snapshot reads and validates snapshot descriptors: the single
// stanza naming a metadata log root, the segments read to produce it,
// and the format version this reader must be compatible with.
package snapshot

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/cumulus-backup/cumulus/pkg/backend"
	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/layout"
	"github.com/cumulus-backup/cumulus/pkg/metadata"
	"github.com/cumulus-backup/cumulus/pkg/searchpath"
)

// FormatVersion is the newest descriptor version this reader
// understands; a descriptor whose version compares greater is rejected.
var FormatVersion = []int{0, 11}

// Descriptor is the parsed content of one snapshot file.
type Descriptor struct {
	Raw      metadata.Stanza
	Format   string
	Version  []int
	Root     string
	Segments []string
}

var versionPattern = regexp.MustCompile(`^(?:Cumulus|LBS) Snapshot v(\d+(?:\.\d+)*)$`)

// ParseVersion converts a "Format" field value into its numeric version
// tuple, or returns nil if s does not match the expected shape.
func ParseVersion(s string) []int {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	parts := strings.Split(m[1], ".")
	version := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		version[i] = n
	}
	return version
}

// compareVersions compares two version tuples component by component,
// treating a missing trailing component as 0.
func compareVersions(a, b []int) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Load resolves name on the snapshots SearchPath (layout.Snapshots() if
// sp is nil), parses its descriptor stanza, and rejects a descriptor
// whose format version is newer than FormatVersion.
func Load(ctx context.Context, b backend.Backend, sp *searchpath.SearchPath, name string) (Descriptor, error) {
	if sp == nil {
		sp = layout.Snapshots()
	}

	r, _, err := sp.Get(ctx, b, name)
	if err != nil {
		return Descriptor{}, err
	}
	defer r.Close()

	lines, err := readLines(r)
	if err != nil {
		return Descriptor{}, cumuluserrs.Corrupt.Wrap(err)
	}

	stanza := metadata.ParseFull(lines)
	return newDescriptor(stanza)
}

func newDescriptor(stanza metadata.Stanza) (Descriptor, error) {
	format, ok := stanza["Format"]
	if !ok {
		return Descriptor{}, cumuluserrs.Corrupt.New("snapshot descriptor missing Format field")
	}
	root, ok := stanza["Root"]
	if !ok {
		return Descriptor{}, cumuluserrs.Corrupt.New("snapshot descriptor missing Root field")
	}

	version := ParseVersion(format)
	if version == nil {
		return Descriptor{}, cumuluserrs.Corrupt.New("unrecognized Format field %q", format)
	}
	if compareVersions(version, FormatVersion) > 0 {
		return Descriptor{}, cumuluserrs.UnsupportedVersion.New("snapshot format %q is newer than supported %v", format, FormatVersion)
	}

	segmentsField, ok := stanza["Segments"]
	if !ok {
		return Descriptor{}, cumuluserrs.Corrupt.New("snapshot descriptor missing Segments field")
	}
	segments := strings.Fields(segmentsField)

	return Descriptor{
		Raw:      stanza,
		Format:   format,
		Version:  version,
		Root:     root,
		Segments: segments,
	}, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			lines = append(lines, line)
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
