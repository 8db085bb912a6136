// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package backend defines the uniform transport contract consumed by the
// snapshot engine: list, get, put, delete, stat, scan over a namespace of
// "/"-separated relative paths. Concrete transports (filesystem, S3; SFTP
// and FTP remain external collaborators per the design) satisfy this
// contract; the core never depends on a specific transport.
package backend

import (
	"context"
	"io"
)

// Stat describes a stored object's metadata.
type Stat struct {
	Size int64
}

// Backend is the uniform transport contract. All five I/O methods may
// block on the network; callers decide whether to retry Transient
// failures. NotFound, Transient, Permanent, and Corrupt are the only
// error classifications a Backend may return, as cumuluserrs values.
type Backend interface {
	// List returns the basenames of entries directly inside dir. It
	// fails with cumuluserrs.NotFound if dir itself does not exist.
	List(ctx context.Context, dir string) ([]string, error)

	// Get returns a readable stream for path. The caller must Close it.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Put stores the bytes read from r at path, replacing any existing
	// object there.
	Put(ctx context.Context, path string, r io.Reader) error

	// Delete removes path. Deleting a path that does not exist is not
	// an error.
	Delete(ctx context.Context, path string) error

	// Stat returns metadata for path without fetching its contents.
	Stat(ctx context.Context, path string) (Stat, error)

	// Scan is a best-effort prefetch hint for dir; backends that do not
	// benefit from prefetching may treat it as a no-op.
	Scan(ctx context.Context, dir string) error

	// Close releases any persistent connection held by the backend.
	Close() error
}
