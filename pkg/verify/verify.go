// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package verify computes and checks the "algo=hex" checksums carried
// by object references and metadata items.
package verify

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
)

// Verifier accumulates bytes and reports whether they match an
// expected checksum. A Verifier built from an empty checksum string
// always reports Valid.
type Verifier struct {
	want string
	h    hash.Hash
}

// New builds a Verifier for checksumStr, the "algo=hex" form carried by
// a MetadataItem's checksum field. An empty string yields a no-op
// Verifier that is always valid.
func New(checksumStr string) (*Verifier, error) {
	if checksumStr == "" {
		return &Verifier{}, nil
	}

	algo, hexDigest, ok := strings.Cut(checksumStr, "=")
	if !ok {
		return nil, cumuluserrs.Corrupt.New("malformed checksum %q", checksumStr)
	}

	h, err := newHash(algo)
	if err != nil {
		return nil, err
	}
	return &Verifier{want: hexDigest, h: h}, nil
}

// Update feeds more data into the running hash.
func (v *Verifier) Update(data []byte) {
	if v.h != nil {
		v.h.Write(data)
	}
}

// Valid reports whether the accumulated data matches the expected
// checksum.
func (v *Verifier) Valid() bool {
	if v.h == nil {
		return true
	}
	return strings.EqualFold(hex.EncodeToString(v.h.Sum(nil)), v.want)
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha1":
		return sha1.New(), nil
	case "sha224":
		return sha256.New224(), nil
	case "sha256":
		return sha256.New(), nil
	default:
		return nil, cumuluserrs.UnsupportedAlgorithm.New("unknown checksum algorithm %q", algorithm)
	}
}
