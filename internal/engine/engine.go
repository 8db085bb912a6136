// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package engine wires the core snapshot-engine components (a backend,
// an extraction-cache store, and an optional local database) from a
// single configuration surface, so the cmd/ tools share one assembly
// path instead of repeating it three times.
package engine

import (
	"go.uber.org/zap"

	"github.com/cumulus-backup/cumulus/pkg/backend"
	"github.com/cumulus-backup/cumulus/pkg/backend/filesystem"
	"github.com/cumulus-backup/cumulus/pkg/backend/s3"
	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/store"

	"github.com/cumulus-backup/cumulus/internal/localdb"
)

// Config names which backend to construct and where to keep local
// state. Fields are populated from flags/config file/environment by the
// caller (typically via spf13/viper); engine itself does no parsing.
type Config struct {
	Backend string // "filesystem" or "s3"

	FilesystemRoot string

	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3UseSSL     bool
	S3Bucket     string
	S3Prefix     string

	CacheDir    string
	LocalDBPath string // empty disables the local database
}

// Engine bundles the constructed components a CLI tool needs.
type Engine struct {
	Log     *zap.Logger
	Backend backend.Backend
	Store   *store.Store
	DB      *localdb.DB // nil if Config.LocalDBPath was empty
}

// New constructs the backend named by cfg.Backend, an extraction-cache
// Store over it, and (if configured) the local database.
func New(log *zap.Logger, cfg Config) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	b, err := newBackend(log, cfg)
	if err != nil {
		return nil, err
	}

	st := store.New(log, b, nil, cfg.CacheDir)

	e := &Engine{Log: log, Backend: b, Store: st}

	if cfg.LocalDBPath != "" {
		db, err := localdb.Open(log, cfg.LocalDBPath)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		e.DB = db
	}

	return e, nil
}

func newBackend(log *zap.Logger, cfg Config) (backend.Backend, error) {
	switch cfg.Backend {
	case "", "filesystem":
		if cfg.FilesystemRoot == "" {
			return nil, cumuluserrs.Permanent.New("filesystem backend requires a root directory")
		}
		return filesystem.New(cfg.FilesystemRoot, log), nil

	case "s3":
		return s3.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL, cfg.S3Bucket, cfg.S3Prefix)

	default:
		return nil, cumuluserrs.Permanent.New("unknown backend %q", cfg.Backend)
	}
}

// Close releases the engine's backend connection, removes the Store's
// extraction cache directory, and, if open, closes its local database
// handle.
func (e *Engine) Close() error {
	var err error
	if e.DB != nil {
		if dbErr := e.DB.Close(); dbErr != nil {
			err = dbErr
		}
	}
	if cleanErr := e.Store.Cleanup(); cleanErr != nil {
		err = cleanErr
	}
	if beErr := e.Backend.Close(); beErr != nil {
		err = beErr
	}
	return err
}
