// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package backendtest provides an in-memory backend.Backend used by the
// rest of the engine's test suites, standing in for a real transport the
// way the design's §4.1 contract is consumed independent of transport.
package backendtest

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/cumulus-backup/cumulus/pkg/backend"
	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
)

// Fake is an in-memory backend.Backend.
type Fake struct {
	mu      sync.Mutex
	objects map[string][]byte
	closed  bool
}

// New returns an empty Fake backend.
func New() *Fake {
	return &Fake{objects: make(map[string][]byte)}
}

// Seed stores data at path directly, bypassing Put, for test setup.
func (f *Fake) Seed(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = append([]byte(nil), data...)
}

// List implements backend.Backend.
func (f *Fake) List(ctx context.Context, dir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir = strings.Trim(dir, "/")
	prefix := dir
	if prefix != "" {
		prefix += "/"
	}

	seen := make(map[string]bool)
	var names []string
	var anyPrefixed bool
	for p := range f.objects {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		anyPrefixed = true
		rest := p[len(prefix):]
		name := rest
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			name = rest[:idx]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	if !anyPrefixed {
		return nil, cumuluserrs.NotFound.New("no such directory: %s", dir)
	}

	sort.Strings(names)
	return names, nil
}

// Get implements backend.Backend.
func (f *Fake) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[path.Clean(p)]
	if !ok {
		return nil, cumuluserrs.NotFound.New("no such object: %s", p)
	}
	return ioutil.NopCloser(bytes.NewReader(data)), nil
}

// Put implements backend.Backend.
func (f *Fake) Put(ctx context.Context, p string, r io.Reader) error {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return cumuluserrs.Transient.Wrap(err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path.Clean(p)] = data
	return nil
}

// Delete implements backend.Backend.
func (f *Fake) Delete(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path.Clean(p))
	return nil
}

// Stat implements backend.Backend.
func (f *Fake) Stat(ctx context.Context, p string) (backend.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[path.Clean(p)]
	if !ok {
		return backend.Stat{}, cumuluserrs.NotFound.New("no such object: %s", p)
	}
	return backend.Stat{Size: int64(len(data))}, nil
}

// Scan implements backend.Backend as a no-op; the fake has nothing to
// prefetch.
func (f *Fake) Scan(ctx context.Context, dir string) error {
	return nil
}

// Close implements backend.Backend.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called, for test assertions.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
