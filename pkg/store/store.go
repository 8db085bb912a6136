// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package store implements the object store and per-segment extraction
// cache: given an object reference, it resolves the owning segment on a
// backend, extracts the segment's tar contents into a scratch directory
// (again only after the segment has been evicted from the cache), and
// serves individual objects out of that cache with
// checksum verification and slicing.
package store

import (
	"archive/tar"
	"container/list"
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/cumulus-backup/cumulus/pkg/backend"
	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/filter"
	"github.com/cumulus-backup/cumulus/pkg/layout"
	"github.com/cumulus-backup/cumulus/pkg/objref"
	"github.com/cumulus-backup/cumulus/pkg/searchpath"
	"github.com/cumulus-backup/cumulus/pkg/verify"
)

var mon = monkit.Package()

// CacheSize is the number of segment extractions kept on disk at once
// before the least-recently-used is evicted.
const CacheSize = 16

// Store resolves object references against a backend, maintaining an
// on-disk extraction cache scoped to this process.
type Store struct {
	log      *zap.Logger
	b        backend.Backend
	segments *searchpath.SearchPath
	cacheDir string

	mu               sync.Mutex
	lru              *list.List               // front = most recently used
	segmentDirs      map[string]*list.Element // segment uuid -> lru element
	accessedSegments map[string]bool
}

// New returns a Store that extracts segments from b into scratch
// directories under cacheDir, using segments to resolve segment UUIDs to
// backend paths. If segments is nil, layout.Segments() is used.
func New(log *zap.Logger, b backend.Backend, segments *searchpath.SearchPath, cacheDir string) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if segments == nil {
		segments = layout.Segments()
	}
	return &Store{
		log:              log,
		b:                b,
		segments:         segments,
		cacheDir:         cacheDir,
		lru:              list.New(),
		segmentDirs:      make(map[string]*list.Element),
		accessedSegments: make(map[string]bool),
	}
}

// AccessedSegments returns the set of segment UUIDs extracted so far,
// for the verifier to cross-check against a snapshot's declared
// Segments list.
func (s *Store) AccessedSegments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.accessedSegments))
	for seg := range s.accessedSegments {
		out = append(out, seg)
	}
	return out
}

// Cleanup removes every extracted segment still on disk and the cache
// directory itself. Callers that construct a Store own its cacheDir and
// must call Cleanup when done with it; Store never removes anything
// outside the directory it was given.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheDir == "" {
		// Segments were extracted relative to the working directory, so
		// remove each one rather than a cache directory.
		for e := s.lru.Front(); e != nil; e = e.Next() {
			if err := os.RemoveAll(e.Value.(*lruEntry).dir); err != nil {
				return cumuluserrs.Transient.Wrap(err)
			}
		}
	}

	s.lru.Init()
	s.segmentDirs = make(map[string]*list.Element)

	if s.cacheDir == "" {
		return nil
	}
	if err := os.RemoveAll(s.cacheDir); err != nil {
		return cumuluserrs.Transient.Wrap(err)
	}
	return nil
}

// Get resolves ref to its final byte slice.
func (s *Store) Get(ctx context.Context, ref objref.Ref) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	if ref.Zero {
		return make([]byte, ref.ZeroLength), nil
	}

	objPath, err := s.objectPath(ctx, ref.Segment, ref.Object)
	if err != nil {
		return nil, err
	}

	data, err := ioutil.ReadFile(objPath)
	if err != nil {
		return nil, cumuluserrs.Corrupt.Wrap(err)
	}

	if ref.Checksum != nil {
		if err := verifyChecksum(*ref.Checksum, data); err != nil {
			return nil, err
		}
	}

	if ref.Slice != nil {
		return applySlice(*ref.Slice, data)
	}
	return data, nil
}

func verifyChecksum(c objref.Checksum, data []byte) error {
	v, err := verify.New(c.String())
	if err != nil {
		return err
	}
	v.Update(data)
	if !v.Valid() {
		return cumuluserrs.ChecksumMismatch.New("object checksum mismatch for %s", c.String())
	}
	return nil
}

func applySlice(sl objref.Slice, data []byte) ([]byte, error) {
	if sl.Exact && int64(len(data)) != sl.Length {
		return nil, cumuluserrs.ExactSizeViolation.New("object is %d bytes, exact slice requires %d", len(data), sl.Length)
	}
	end := sl.Start + sl.Length
	if sl.Start < 0 || end > int64(len(data)) {
		return nil, cumuluserrs.ShortObject.New("slice [%d:%d] exceeds object length %d", sl.Start, end, len(data))
	}
	return data[sl.Start:end], nil
}

// objectPath returns the cached path of one extracted object, extracting
// its segment first if necessary, and touches the segment's LRU entry.
func (s *Store) objectPath(ctx context.Context, segment, object string) (string, error) {
	dir, err := s.ensureExtracted(ctx, segment)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, object), nil
}

func (s *Store) ensureExtracted(ctx context.Context, segment string) (dir string, err error) {
	defer mon.Task()(&ctx)(&err)

	s.mu.Lock()
	if elem, ok := s.segmentDirs[segment]; ok {
		s.lru.MoveToFront(elem)
		dir := elem.Value.(*lruEntry).dir
		s.mu.Unlock()
		return dir, nil
	}
	s.mu.Unlock()

	dir = filepath.Join(s.cacheDir, segment)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", cumuluserrs.Permanent.Wrap(err)
	}
	if err := s.extractSegment(ctx, segment, dir); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessedSegments[segment] = true
	elem := s.lru.PushFront(&lruEntry{segment: segment, dir: dir})
	s.segmentDirs[segment] = elem
	s.evictIfNeeded()

	return dir, nil
}

type lruEntry struct {
	segment string
	dir     string
}

// evictIfNeeded must be called with mu held.
func (s *Store) evictIfNeeded() {
	for s.lru.Len() > CacheSize {
		back := s.lru.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*lruEntry)
		s.lru.Remove(back)
		delete(s.segmentDirs, entry.segment)
		if err := os.RemoveAll(entry.dir); err != nil {
			s.log.Warn("store: failed to evict cached segment", zap.String("segment", entry.segment), zap.Error(err))
		}
	}
}

// extractSegment fetches segment from the backend, pipes it through its
// filter, and writes every tar entry named "segment/object" into dir.
func (s *Store) extractSegment(ctx context.Context, segment, dir string) (err error) {
	defer mon.Task()(&ctx)(&err)

	raw, res, err := s.segments.Get(ctx, s.b, segment)
	if err != nil {
		return err
	}

	command, _ := res.Context.(string)
	stream, err := filter.Apply(ctx, s.log, command, raw)
	if err != nil {
		return err
	}
	defer stream.Close()

	prefix := segment + "/"
	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return cumuluserrs.Corrupt.Wrap(err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasPrefix(hdr.Name, prefix) {
			continue
		}

		object := strings.TrimPrefix(hdr.Name, prefix)
		dest := filepath.Join(dir, object)
		if err := writeEntry(dest, tr); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(dest string, r io.Reader) error {
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return cumuluserrs.Permanent.Wrap(err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return cumuluserrs.Corrupt.Wrap(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return cumuluserrs.Permanent.Wrap(err)
	}
	return os.Rename(tmp, dest)
}
