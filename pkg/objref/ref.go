// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package objref parses and formats object references:
//
//	zero[N]
//	SEGMENT/OBJECT(CHECKSUM)[slice]
//
// where slice is one of N, S+N, or =N. See the grammar in the design's
// reference-grammar section for the full production rules.
package objref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
)

// Slice describes a byte range within an object.
type Slice struct {
	Start  int64
	Length int64
	// Exact means the full object must be exactly Length bytes; it is
	// set by the "=N" slice form.
	Exact bool
}

// Checksum is an embedded checksum assertion, e.g. "sha1=deadbeef".
type Checksum struct {
	Algorithm string
	Hex       string
}

// String reassembles the canonical "algo=hex" form.
func (c Checksum) String() string {
	return c.Algorithm + "=" + c.Hex
}

// Ref is a parsed object reference.
type Ref struct {
	// Zero is true for the "zero[N]" form; Segment/Object/Checksum are
	// meaningless when Zero is set.
	Zero bool

	Segment  string
	Object   string
	Checksum *Checksum
	Slice    *Slice

	// ZeroLength is the N in "zero[N]".
	ZeroLength int64
}

var (
	zeroPattern = regexp.MustCompile(`^zero\[(\d+)\]$`)

	// SEG is a canonical lowercase hyphenated UUID; OBJ is lowercase hex.
	normalPattern = regexp.MustCompile(
		`^([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})` +
			`/([0-9a-f]+)` +
			`(?:\(([a-zA-Z0-9]+)=([0-9a-fA-F]+)\))?` +
			`(?:\[([^\]]*)\])?$`,
	)
)

// Parse parses a reference string.
func Parse(s string) (Ref, error) {
	if m := zeroPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Ref{}, cumuluserrs.BadReference.Wrap(err)
		}
		return Ref{Zero: true, ZeroLength: n}, nil
	}

	m := normalPattern.FindStringSubmatch(s)
	if m == nil {
		return Ref{}, cumuluserrs.BadReference.New("cannot parse reference %q", s)
	}

	segment, err := ParseSegment(m[1])
	if err != nil {
		return Ref{}, err
	}

	ref := Ref{
		Segment: segment,
		Object:  m[2],
	}

	if m[3] != "" {
		ref.Checksum = &Checksum{Algorithm: m[3], Hex: m[4]}
	}

	if m[5] != "" {
		slice, err := parseSlice(m[5])
		if err != nil {
			return Ref{}, err
		}
		ref.Slice = &slice
	}

	return ref, nil
}

func parseSlice(s string) (Slice, error) {
	switch {
	case strings.HasPrefix(s, "="):
		n, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil {
			return Slice{}, cumuluserrs.BadReference.New("bad exact slice %q: %v", s, err)
		}
		return Slice{Start: 0, Length: n, Exact: true}, nil

	case strings.Contains(s, "+"):
		parts := strings.SplitN(s, "+", 2)
		start, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return Slice{}, cumuluserrs.BadReference.New("bad slice start %q: %v", s, err)
		}
		length, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Slice{}, cumuluserrs.BadReference.New("bad slice length %q: %v", s, err)
		}
		return Slice{Start: start, Length: length}, nil

	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Slice{}, cumuluserrs.BadReference.New("bad slice %q: %v", s, err)
		}
		return Slice{Start: 0, Length: n}, nil
	}
}

// String reassembles the canonical textual form of the reference. For
// every parseable reference, Parse(ref.String()) round-trips to an
// equal Ref.
func (r Ref) String() string {
	if r.Zero {
		return fmt.Sprintf("zero[%d]", r.ZeroLength)
	}

	var b strings.Builder
	b.WriteString(r.Segment)
	b.WriteByte('/')
	b.WriteString(r.Object)

	if r.Checksum != nil {
		b.WriteByte('(')
		b.WriteString(r.Checksum.String())
		b.WriteByte(')')
	}

	if r.Slice != nil {
		b.WriteByte('[')
		switch {
		case r.Slice.Exact:
			b.WriteByte('=')
			b.WriteString(strconv.FormatInt(r.Slice.Length, 10))
		case r.Slice.Start != 0:
			b.WriteString(strconv.FormatInt(r.Slice.Start, 10))
			b.WriteByte('+')
			b.WriteString(strconv.FormatInt(r.Slice.Length, 10))
		default:
			b.WriteString(strconv.FormatInt(r.Slice.Length, 10))
		}
		b.WriteByte(']')
	}

	return b.String()
}
