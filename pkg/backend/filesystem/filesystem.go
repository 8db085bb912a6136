// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package filesystem implements backend.Backend over a local directory
// tree, the reference transport used by single-machine deployments and
// by the rest of this repository's integration tests.
package filesystem

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/cumulus-backup/cumulus/pkg/backend"
	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
)

var mon = monkit.Package()

// Backend stores objects as regular files under Root.
type Backend struct {
	Root string
	log  *zap.Logger
}

// New returns a filesystem-backed Backend rooted at root.
func New(root string, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{Root: root, log: log}
}

func (b *Backend) resolve(p string) string {
	return filepath.Join(b.Root, filepath.FromSlash(p))
}

// List implements backend.Backend.
func (b *Backend) List(ctx context.Context, dir string) (names []string, err error) {
	defer mon.Task()(&ctx)(&err)

	entries, err := ioutil.ReadDir(b.resolve(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cumuluserrs.NotFound.Wrap(err)
		}
		return nil, classifyOSError(err)
	}

	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Get implements backend.Backend.
func (b *Backend) Get(ctx context.Context, path string) (_ io.ReadCloser, err error) {
	defer mon.Task()(&ctx)(&err)

	f, err := os.Open(b.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cumuluserrs.NotFound.Wrap(err)
		}
		return nil, classifyOSError(err)
	}
	return f, nil
}

// Put implements backend.Backend. It writes to a temporary file in the
// same directory and renames into place, so a reader never observes a
// partially-written object.
func (b *Backend) Put(ctx context.Context, path string, r io.Reader) (err error) {
	defer mon.Task()(&ctx)(&err)

	dest := b.resolve(path)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return classifyOSError(err)
	}

	tmp, err := ioutil.TempFile(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return classifyOSError(err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return cumuluserrs.Transient.Wrap(err)
	}
	if err = tmp.Close(); err != nil {
		return cumuluserrs.Transient.Wrap(err)
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return classifyOSError(err)
	}
	return nil
}

// Delete implements backend.Backend.
func (b *Backend) Delete(ctx context.Context, path string) (err error) {
	defer mon.Task()(&ctx)(&err)

	err = os.Remove(b.resolve(path))
	if err != nil && !os.IsNotExist(err) {
		return classifyOSError(err)
	}
	return nil
}

// Stat implements backend.Backend.
func (b *Backend) Stat(ctx context.Context, path string) (_ backend.Stat, err error) {
	defer mon.Task()(&ctx)(&err)

	info, err := os.Stat(b.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return backend.Stat{}, cumuluserrs.NotFound.Wrap(err)
		}
		return backend.Stat{}, classifyOSError(err)
	}
	return backend.Stat{Size: info.Size()}, nil
}

// Scan is a no-op: the local filesystem has no prefetch metadata worth
// warming.
func (b *Backend) Scan(ctx context.Context, dir string) error {
	return nil
}

// Close implements backend.Backend; the filesystem backend holds no
// persistent connection.
func (b *Backend) Close() error {
	return nil
}

func classifyOSError(err error) error {
	if os.IsPermission(err) {
		return cumuluserrs.Permanent.Wrap(err)
	}
	return cumuluserrs.Transient.Wrap(err)
}
