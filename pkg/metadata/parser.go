// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package metadata parses snapshot descriptors and metadata logs: the
// RFC822-style stanza format shared by both, the depth-first indirect
// reference follower that assembles a metadata log from segment-stored
// fragments, and the typed per-file MetadataItem view.
package metadata

import (
	"regexp"
	"strings"
)

var fieldLine = regexp.MustCompile(`^([-\w]+):\s*(.*)$`)

// Stanza is one parsed block of "Key: Value" lines, continuation lines
// folded into their owning key.
type Stanza map[string]string

// Parse splits lines into stanzas. A line for which terminate returns
// true ends the current stanza (discarded if empty) and starts a fresh
// one; terminate may be nil, in which case only end-of-input ends a
// stanza. The final non-empty stanza is always returned even without a
// terminating line.
func Parse(lines []string, terminate func(string) bool) []Stanza {
	var stanzas []Stanza
	stanza := Stanza{}
	var lastKey string

	flush := func() {
		if len(stanza) > 0 {
			stanzas = append(stanzas, stanza)
		}
		stanza = Stanza{}
		lastKey = ""
	}

	for _, l := range lines {
		l = strings.TrimSuffix(l, "\n")

		if terminate != nil && terminate(l) {
			flush()
			continue
		}

		if m := fieldLine.FindStringSubmatch(l); m != nil {
			stanza[m[1]] = m[2]
			lastKey = m[1]
		} else if len(l) > 0 && isSpace(l[0]) && lastKey != "" {
			stanza[lastKey] += l
		} else {
			lastKey = ""
		}
	}

	flush()
	return stanzas
}

// ParseFull returns the single stanza parsed from lines with no
// terminator, or an empty Stanza if lines contained none.
func ParseFull(lines []string) Stanza {
	stanzas := Parse(lines, nil)
	if len(stanzas) == 0 {
		return Stanza{}
	}
	return stanzas[0]
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

// blankLine is the terminator used for the metadata log: stanzas are
// separated by blank lines.
func blankLine(l string) bool {
	return len(l) == 0
}
