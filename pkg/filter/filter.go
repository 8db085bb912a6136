// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package filter streams a raw byte stream through an external
// decompression/decryption command, producing the filtered stream the
// tar reader consumes. The feeding and consuming sides run concurrently
// because some filters (gpg) require interleaved read/write to avoid
// pipe-buffer deadlock.
package filter

import (
	"context"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
)

var mon = monkit.Package()

// GPGPassphraseEnv names the environment variable that holds the gpg
// passphrase. This package does not read it; Apply passes the whole
// process environment to the filter child unchanged.
const GPGPassphraseEnv = "LBS_GPG_PASSPHRASE"

// Apply runs raw through command (shell-interpreted) and returns the
// filtered stream. An empty command means pass-through: raw is returned
// unchanged. The caller must read the returned stream to completion (or
// close it early) to let the child process and its pump goroutine exit.
func Apply(ctx context.Context, log *zap.Logger, command string, raw io.ReadCloser) (io.ReadCloser, error) {
	if command == "" {
		return raw, nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, cumuluserrs.Corrupt.Wrap(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, cumuluserrs.Corrupt.Wrap(err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, cumuluserrs.Corrupt.Wrap(err)
	}

	go pump(log, raw, stdin)

	return &filteredStream{
		stdout: stdout,
		cmd:    cmd,
	}, nil
}

// pump feeds raw into stdin until EOF, then closes both ends so the
// child observes end-of-input. It runs as its own goroutine, concurrent
// with the caller reading the command's stdout, to avoid pipe deadlock.
func pump(log *zap.Logger, raw io.ReadCloser, stdin io.WriteCloser) {
	_, err := io.Copy(stdin, raw)
	if err != nil {
		log.Debug("filter: pump copy ended with error", zap.Error(err))
	}
	_ = raw.Close()
	_ = stdin.Close()
}

// filteredStream wraps the child's stdout; Close waits for the child and
// classifies a non-zero exit as Corrupt.
type filteredStream struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
	waited bool
}

func (f *filteredStream) Read(p []byte) (int, error) {
	n, err := f.stdout.Read(p)
	if err == io.EOF {
		if waitErr := f.wait(); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

func (f *filteredStream) Close() error {
	_ = f.stdout.Close()
	return f.wait()
}

func (f *filteredStream) wait() error {
	if f.waited {
		return nil
	}
	f.waited = true
	if err := f.cmd.Wait(); err != nil {
		return cumuluserrs.Corrupt.New("filter command exited with error: %v", err)
	}
	return nil
}
