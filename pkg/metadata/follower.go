// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package metadata

import (
	"context"
	"strings"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/objref"
)

// MaxRecursionDepth bounds how many levels (the root level included) the
// log follower and MetadataItem.Data keep open at once; an indirect
// "@ref" that would open a level beyond it fails with RecursionTooDeep.
const MaxRecursionDepth = 3

// Fetcher resolves an object reference to its bytes; *store.Store
// satisfies this.
type Fetcher interface {
	Get(ctx context.Context, ref objref.Ref) ([]byte, error)
}

func fetchLines(ctx context.Context, f Fetcher, refstr string) ([]string, error) {
	ref, err := objref.Parse(refstr)
	if err != nil {
		return nil, err
	}
	data, err := f.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return splitLines(string(data)), nil
}

// splitLines breaks s into lines the way Python's str.splitlines(True)
// would, keeping the final partial line (if any) without a terminator.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for len(s) > 0 {
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:idx+1])
		s = s[idx+1:]
	}
	return lines
}

func reversed(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[len(lines)-1-i] = l
	}
	return out
}

// ReadLog walks the metadata log depth-first starting at root, following
// every "@ref"-prefixed line as an indirect reference to more of the log,
// and returns the flattened sequence of direct (non-"@") lines.
func ReadLog(ctx context.Context, f Fetcher, root string) ([]string, error) {
	var stack [][]string

	push := func(refstr string) error {
		if len(stack) >= MaxRecursionDepth {
			return cumuluserrs.RecursionTooDeep.New("metadata log recursion exceeds depth %d", MaxRecursionDepth)
		}
		lines, err := fetchLines(ctx, f, refstr)
		if err != nil {
			return err
		}
		stack = append(stack, reversed(lines))
		return nil
	}

	if err := push(root); err != nil {
		return nil, err
	}

	var out []string
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if len(top) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}

		line := top[len(top)-1]
		stack[len(stack)-1] = top[:len(top)-1]

		trimmed := strings.TrimSuffix(line, "\n")
		if strings.HasPrefix(trimmed, "@") {
			if err := push(strings.TrimSpace(trimmed[1:])); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, line)
	}

	return out, nil
}

// Items parses the full metadata log rooted at root into MetadataItem
// values, one per filesystem entry stanza.
func Items(ctx context.Context, f Fetcher, root string) ([]*Item, error) {
	lines, err := ReadLog(ctx, f, root)
	if err != nil {
		return nil, err
	}

	stanzas := Parse(lines, blankLine)
	items := make([]*Item, len(stanzas))
	for i, s := range stanzas {
		items[i] = newItem(s, f)
	}
	return items, nil
}
