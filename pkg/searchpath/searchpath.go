// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package searchpath resolves a logical file basename to one of several
// candidate physical paths (directory prefix x filename suffix) on a
// backend.Backend. On a hit, the winning entry is promoted to the front
// of the list so future lookups of the same backend shape need only one
// probe.
package searchpath

import (
	"context"
	"io"
	"path"
	"regexp"
	"sync"

	"github.com/cumulus-backup/cumulus/pkg/backend"
	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
)

// Entry is one candidate location for a logical basename: the physical
// path is directoryPrefix + basename + filenameSuffix. Context carries
// per-entry metadata, chiefly the filter command to apply when this
// entry is the one that matched.
type Entry struct {
	DirectoryPrefix string
	FilenameSuffix  string
	Context         interface{}
}

func (e Entry) buildPath(basename string) string {
	return path.Join(e.DirectoryPrefix, basename+e.FilenameSuffix)
}

// Result is what a successful Get/Stat returns.
type Result struct {
	Path    string
	Context interface{}
}

// SearchPath is an ordered list of Entry candidates plus a regex used to
// recognize matching basenames when listing a directory.
type SearchPath struct {
	nameRegex *regexp.Regexp

	mu      sync.Mutex
	entries []Entry
}

// New builds a SearchPath. nameRegex is matched against plain basenames
// (not full paths) during List.
func New(nameRegex string, entries []Entry) *SearchPath {
	return &SearchPath{
		nameRegex: regexp.MustCompile(nameRegex),
		entries:   append([]Entry(nil), entries...),
	}
}

// Match reports whether filename matches this category's regex, and if
// so returns the submatches (Match(filename)[1] is conventionally the
// file's logical name).
func (sp *SearchPath) Match(filename string) []string {
	return sp.nameRegex.FindStringSubmatch(filename)
}

// Directories returns the set of distinct directory prefixes searched by
// this SearchPath, used by List to enumerate backend directories and by
// Scan to prefetch them.
func (sp *SearchPath) Directories() []string {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	seen := make(map[string]bool)
	var dirs []string
	for _, e := range sp.entries {
		if !seen[e.DirectoryPrefix] {
			seen[e.DirectoryPrefix] = true
			dirs = append(dirs, e.DirectoryPrefix)
		}
	}
	return dirs
}

// Get tries each entry in order until one resolves on the backend,
// returning its stream, resolved path, and context. On success, the
// winning entry moves to the front of the list.
func (sp *SearchPath) Get(ctx context.Context, b backend.Backend, basename string) (io.ReadCloser, Result, error) {
	entries := sp.snapshotEntries()

	for _, e := range entries {
		p := e.buildPath(basename)
		r, err := b.Get(ctx, p)
		if err != nil {
			if cumuluserrs.NotFound.Has(err) {
				continue
			}
			return nil, Result{}, err
		}
		sp.promote(e)
		return r, Result{Path: p, Context: e.Context}, nil
	}

	return nil, Result{}, cumuluserrs.NotFound.New("%s not found in any search location", basename)
}

// Stat mirrors Get without fetching contents.
func (sp *SearchPath) Stat(ctx context.Context, b backend.Backend, basename string) (backend.Stat, Result, error) {
	entries := sp.snapshotEntries()

	for _, e := range entries {
		p := e.buildPath(basename)
		st, err := b.Stat(ctx, p)
		if err != nil {
			if cumuluserrs.NotFound.Has(err) {
				continue
			}
			return backend.Stat{}, Result{}, err
		}
		sp.promote(e)
		return st, Result{Path: p, Context: e.Context}, nil
	}

	return backend.Stat{}, Result{}, cumuluserrs.NotFound.New("%s not found in any search location", basename)
}

// Listing is one matched entry from List: Path is the full backend path,
// Groups is the regex submatch against its basename (Groups[1] is
// conventionally the logical name).
type Listing struct {
	Path   string
	Groups []string
}

// List unions List(dir) over every distinct directory prefix, yielding
// every basename that matches this category's regex. It reports
// NotFound only if every underlying directory listing raised NotFound.
func (sp *SearchPath) List(ctx context.Context, b backend.Backend) ([]Listing, error) {
	var anySucceeded bool
	var out []Listing

	for _, dir := range sp.Directories() {
		names, err := b.List(ctx, dir)
		if err != nil {
			if cumuluserrs.NotFound.Has(err) {
				continue
			}
			return nil, err
		}
		anySucceeded = true
		for _, name := range names {
			if m := sp.Match(name); m != nil {
				out = append(out, Listing{Path: path.Join(dir, name), Groups: m})
			}
		}
	}

	if !anySucceeded {
		return nil, cumuluserrs.NotFound.New("no search directory exists")
	}
	return out, nil
}

// Scan prefetches every distinct directory prefix on the backend.
func (sp *SearchPath) Scan(ctx context.Context, b backend.Backend) error {
	for _, dir := range sp.Directories() {
		if err := b.Scan(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (sp *SearchPath) snapshotEntries() []Entry {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return append([]Entry(nil), sp.entries...)
}

func (sp *SearchPath) promote(winner Entry) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	for i, e := range sp.entries {
		if e == winner {
			if i == 0 {
				return
			}
			sp.entries = append(sp.entries[:i], sp.entries[i+1:]...)
			sp.entries = append([]Entry{winner}, sp.entries...)
			return
		}
	}
}
