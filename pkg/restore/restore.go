// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package restore implements the two-phase restore orchestrator: a plan
// pass that builds a segment-grouped file index, then a segment-ordered
// extraction pass, followed by a reverse-order pass that materializes
// special files and restores ownership/mode/timestamps.
package restore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/metadata"
	"github.com/cumulus-backup/cumulus/pkg/objref"
	"github.com/cumulus-backup/cumulus/pkg/verify"
)

var mon = monkit.Package()

// PathFilter decides whether a normalized destination-relative path
// should be restored. A nil filter restores everything.
type PathFilter func(path string) bool

// ProgressFunc is called once per file successfully restored, for a
// caller-driven progress bar.
type ProgressFunc func(path string)

// Fetcher resolves object references to bytes; *store.Store satisfies
// this, and additionally *store.Store.Get returns the raw slice this
// package streams from.
type Fetcher interface {
	Get(ctx context.Context, ref objref.Ref) ([]byte, error)
}

// Options configures a Restore run.
type Options struct {
	Log      *zap.Logger
	Filter   PathFilter
	Progress ProgressFunc
}

type planEntry struct {
	path     string // logical, '/'-separated path as it appeared in the metadata log
	destPath string // filesystem path under the restore destination
	item     *metadata.Item
}

// plan is the output of Phase 1: the ordered set of entries to
// materialize, and the inverted segment -> paths index driving Phase 2.
type plan struct {
	entries       []planEntry
	byPath        map[string]*planEntry
	bySegment     map[string][]string
	blocksForPath map[string][]string
}

// Restore restores the entries of the metadata log rooted at root into
// dest.
func Restore(ctx context.Context, f Fetcher, root string, dest string, opts Options) (err error) {
	defer mon.Task()(&ctx)(&err)

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	items, err := metadata.Items(ctx, f, root)
	if err != nil {
		return err
	}

	pl, err := buildPlan(ctx, f, items, dest, opts.Filter)
	if err != nil {
		return err
	}

	if err := extractFiles(ctx, f, pl, log, opts.Progress); err != nil {
		return err
	}

	restoreSpecialAndAttributes(pl, log)
	return nil
}

func normalizePath(name string) string {
	return strings.TrimPrefix(name, "/")
}

// buildPlan runs Phase 1: normalize paths, apply the filter, create
// ancestor directories, and build the segment -> paths inverted index
// used to drive segment-ordered extraction.
func buildPlan(ctx context.Context, f Fetcher, items []*metadata.Item, dest string, filter PathFilter) (*plan, error) {
	pl := &plan{
		byPath:        make(map[string]*planEntry),
		bySegment:     make(map[string][]string),
		blocksForPath: make(map[string][]string),
	}

	for _, item := range items {
		path := normalizePath(item.Name)
		if path == "" {
			continue
		}
		if filter != nil && !filter(path) {
			continue
		}

		full := filepath.Join(dest, filepath.FromSlash(path))
		entry := planEntry{path: path, destPath: full, item: item}
		pl.entries = append(pl.entries, entry)

		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return nil, cumuluserrs.Permanent.Wrap(err)
		}

		if item.IsRegular() {
			stored := entry
			pl.byPath[path] = &stored

			blocks, err := item.Data(ctx)
			if err != nil {
				return nil, err
			}
			pl.blocksForPath[path] = blocks

			seen := make(map[string]bool)
			for _, block := range blocks {
				ref, err := objref.Parse(block)
				if err != nil {
					return nil, err
				}
				if ref.Zero || seen[ref.Segment] {
					continue
				}
				seen[ref.Segment] = true
				pl.bySegment[ref.Segment] = append(pl.bySegment[ref.Segment], path)
			}
		}
	}

	return pl, nil
}

// extractFiles runs Phase 2: repeatedly drain one segment's file group
// at a time so each segment is fetched at most once per object it
// contains, then mop up any regular files left over (referencing only
// zero-fill or already-exhausted segments).
func extractFiles(ctx context.Context, f Fetcher, pl *plan, log *zap.Logger, progress ProgressFunc) error {
	for len(pl.bySegment) > 0 {
		var segment string
		for s := range pl.bySegment {
			segment = s
			break
		}
		paths := pl.bySegment[segment]
		delete(pl.bySegment, segment)

		sort.Strings(paths)
		for _, path := range paths {
			entry, ok := pl.byPath[path]
			if !ok {
				continue // already restored via another segment's pass
			}
			if err := restoreFile(ctx, f, entry, pl.blocksForPath[path], log); err != nil {
				return err
			}
			delete(pl.byPath, path)
			if progress != nil {
				progress(path)
			}
		}
	}

	var residual []string
	for path := range pl.byPath {
		residual = append(residual, path)
	}
	sort.Strings(residual)
	for _, path := range residual {
		entry := pl.byPath[path]
		if err := restoreFile(ctx, f, entry, pl.blocksForPath[path], log); err != nil {
			return err
		}
		delete(pl.byPath, path)
		if progress != nil {
			progress(path)
		}
	}

	return nil
}

func restoreFile(ctx context.Context, f Fetcher, entry *planEntry, blocks []string, log *zap.Logger) error {
	dest := entry.destPath
	item := entry.item

	file, err := os.Create(dest)
	if err != nil {
		return cumuluserrs.Permanent.Wrap(err)
	}
	defer file.Close()

	verifier, err := verify.New(item.Checksum)
	if err != nil {
		return err
	}

	var written int64
	for _, block := range blocks {
		ref, err := objref.Parse(block)
		if err != nil {
			return err
		}
		data, err := f.Get(ctx, ref)
		if err != nil {
			return err
		}
		if _, err := file.Write(data); err != nil {
			return cumuluserrs.Permanent.Wrap(err)
		}
		verifier.Update(data)
		written += int64(len(data))
	}

	if item.HasSize && written != item.Size {
		return cumuluserrs.RestoreCorruption.New("%s: wrote %d bytes, expected %d", dest, written, item.Size)
	}
	if !verifier.Valid() {
		return cumuluserrs.RestoreCorruption.New("%s: checksum verification failed", dest)
	}

	log.Info("restore: wrote file", zap.String("path", dest), zap.Int64("size", written))
	return nil
}

// restoreSpecialAndAttributes runs Phases 3 and 4: walk entries in
// reverse metadata order, materializing special files first (so a
// directory's mtime is set only after its children exist), then
// ownership, mode, and timestamps. Every step is best-effort.
func restoreSpecialAndAttributes(pl *plan, log *zap.Logger) {
	warn := func(path string, step string, err error) {
		log.Warn("restore: attribute step failed", zap.String("path", path), zap.String("step", step), zap.Error(err))
	}

	for i := len(pl.entries) - 1; i >= 0; i-- {
		entry := pl.entries[i]
		item := entry.item
		path := entry.destPath

		switch item.Type {
		case "l":
			if err := os.Symlink(item.Target, path); err != nil && !os.IsExist(err) {
				warn(path, "symlink", err)
			}
		case "p":
			if err := syscall.Mknod(path, uint32(0600)|syscall.S_IFIFO, 0); err != nil && err != syscall.EEXIST {
				warn(path, "mkfifo", err)
			}
		case "c", "b":
			if item.HasDevice {
				mode := uint32(0600) | syscall.S_IFCHR
				if item.Type == "b" {
					mode = uint32(0600) | syscall.S_IFBLK
				}
				dev := makedev(item.Device.Major, item.Device.Minor)
				if err := syscall.Mknod(path, mode, int(dev)); err != nil && err != syscall.EEXIST {
					warn(path, "mknod", err)
				}
			}
		}

		if item.HasUser || item.HasGroup {
			uid, gid := -1, -1
			if item.HasUser {
				uid = int(item.User.ID)
			}
			if item.HasGroup {
				gid = int(item.Group.ID)
			}
			if err := os.Lchown(path, uid, gid); err != nil {
				warn(path, "lchown", err)
			}
		}

		if item.HasMode && item.Type != "l" {
			if err := os.Chmod(path, os.FileMode(item.Mode)); err != nil {
				warn(path, "chmod", err)
			}
		}

		if item.HasMtime {
			mtime := time.Unix(item.Mtime, 0)
			if err := os.Chtimes(path, time.Now(), mtime); err != nil {
				warn(path, "utime", err)
			}
		}
	}
}

func makedev(major, minor int64) uint64 {
	return uint64((major&0xfff)<<8 | (minor & 0xff) | ((major &^ 0xfff) << 32) | ((minor &^ 0xff) << 12))
}
