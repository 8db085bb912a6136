// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package s3 implements backend.Backend over an S3-compatible object
// store using minio-go, demonstrating the uniform contract against a
// real SDK. Authentication, bucket creation, and endpoint selection are
// the caller's responsibility; this package only maps the six backend
// operations onto minio-go calls.
package s3

import (
	"context"
	"io"
	"path"
	"strings"

	minio "github.com/minio/minio-go"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/cumulus-backup/cumulus/pkg/backend"
	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
)

var mon = monkit.Package()

// Backend stores objects as keys within a single bucket.
type Backend struct {
	client *minio.Client
	bucket string
	prefix string
}

// New returns an S3-backed Backend. endpoint, accessKey, secretKey, and
// useSSL configure the minio-go client; bucket and prefix scope every
// path this Backend resolves.
func New(endpoint, accessKey, secretKey string, useSSL bool, bucket, prefix string) (*Backend, error) {
	client, err := minio.New(endpoint, accessKey, secretKey, useSSL)
	if err != nil {
		return nil, cumuluserrs.Permanent.Wrap(err)
	}
	return &Backend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (b *Backend) key(p string) string {
	if b.prefix == "" {
		return p
	}
	return path.Join(b.prefix, p)
}

// List implements backend.Backend by listing objects sharing dir as a
// prefix and collapsing them to their immediate basenames.
func (b *Backend) List(ctx context.Context, dir string) ([]string, error) {
	defer mon.Task()(&ctx)(nil)

	prefix := b.key(dir)
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}

	doneCh := make(chan struct{})
	defer close(doneCh)

	var names []string
	seen := make(map[string]bool)
	for obj := range b.client.ListObjects(b.bucket, prefix, false, doneCh) {
		if obj.Err != nil {
			return nil, classifyMinioError(obj.Err)
		}
		rest := strings.TrimPrefix(obj.Key, prefix)
		rest = strings.TrimSuffix(rest, "/")
		if rest == "" || seen[rest] {
			continue
		}
		seen[rest] = true
		names = append(names, rest)
	}

	if len(names) == 0 {
		return nil, cumuluserrs.NotFound.New("no objects under %s", dir)
	}
	return names, nil
}

// Get implements backend.Backend.
func (b *Backend) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	defer mon.Task()(&ctx)(nil)

	obj, err := b.client.GetObject(b.bucket, b.key(p))
	if err != nil {
		return nil, classifyMinioError(err)
	}
	// minio-go only surfaces a missing-key error on first read/stat.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, classifyMinioError(err)
	}
	return obj, nil
}

// Put implements backend.Backend.
func (b *Backend) Put(ctx context.Context, p string, r io.Reader) error {
	defer mon.Task()(&ctx)(nil)

	_, err := b.client.PutObject(b.bucket, b.key(p), r, -1, minio.PutObjectOptions{})
	if err != nil {
		return classifyMinioError(err)
	}
	return nil
}

// Delete implements backend.Backend.
func (b *Backend) Delete(ctx context.Context, p string) error {
	defer mon.Task()(&ctx)(nil)

	if err := b.client.RemoveObject(b.bucket, b.key(p)); err != nil {
		return classifyMinioError(err)
	}
	return nil
}

// Stat implements backend.Backend.
func (b *Backend) Stat(ctx context.Context, p string) (backend.Stat, error) {
	defer mon.Task()(&ctx)(nil)

	info, err := b.client.StatObject(b.bucket, b.key(p), minio.StatObjectOptions{})
	if err != nil {
		return backend.Stat{}, classifyMinioError(err)
	}
	return backend.Stat{Size: info.Size}, nil
}

// Scan walks the key listing for dir and discards it; nothing is kept
// for later List/Stat calls, which issue their own requests. It is a
// best-effort hint, so listing errors are swallowed.
func (b *Backend) Scan(ctx context.Context, dir string) error {
	defer mon.Task()(&ctx)(nil)

	doneCh := make(chan struct{})
	defer close(doneCh)
	for obj := range b.client.ListObjects(b.bucket, b.key(dir), false, doneCh) {
		if obj.Err != nil {
			break
		}
	}
	return nil
}

// Close implements backend.Backend; minio-go's client pools HTTP
// connections internally and has no explicit teardown.
func (b *Backend) Close() error {
	return nil
}

func classifyMinioError(err error) error {
	if resp := minio.ToErrorResponse(err); resp.Code != "" {
		switch resp.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return cumuluserrs.NotFound.Wrap(err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return cumuluserrs.Permanent.Wrap(err)
		}
	}
	return cumuluserrs.Transient.Wrap(err)
}
