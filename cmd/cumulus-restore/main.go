// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Command cumulus-restore extracts a snapshot's metadata log into a
// destination directory, reporting progress on a terminal bar and
// refusing to start if the destination's filesystem looks too full to
// hold the snapshot's recorded size.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cheggaaa/pb"
	"github.com/shirou/gopsutil/disk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cumulus-backup/cumulus/internal/engine"
	"github.com/cumulus-backup/cumulus/pkg/metadata"
	"github.com/cumulus-backup/cumulus/pkg/restore"
	"github.com/cumulus-backup/cumulus/pkg/snapshot"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "cumulus-restore <snapshot-name> <destination>",
		Short: "Restore a snapshot's files into a destination directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(context.Background(), v, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.String("store", "filesystem", "backend type: filesystem or s3")
	flags.String("root", "", "filesystem backend root directory")
	flags.String("s3-endpoint", "", "s3 endpoint")
	flags.String("s3-access-key", "", "s3 access key")
	flags.String("s3-secret-key", "", "s3 secret key")
	flags.Bool("s3-use-ssl", true, "use TLS for the s3 endpoint")
	flags.String("s3-bucket", "", "s3 bucket")
	flags.String("s3-prefix", "", "s3 key prefix")
	flags.String("cache-dir", "", "segment extraction cache directory")
	flags.Bool("skip-space-check", false, "skip the disk-space preflight check")
	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("cumulus")
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper, name, dest string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	e, err := engine.New(log, engine.Config{
		Backend:        v.GetString("store"),
		FilesystemRoot: v.GetString("root"),
		S3Endpoint:     v.GetString("s3-endpoint"),
		S3AccessKey:    v.GetString("s3-access-key"),
		S3SecretKey:    v.GetString("s3-secret-key"),
		S3UseSSL:       v.GetBool("s3-use-ssl"),
		S3Bucket:       v.GetString("s3-bucket"),
		S3Prefix:       v.GetString("s3-prefix"),
		CacheDir:       v.GetString("cache-dir"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	desc, err := snapshot.Load(ctx, e.Backend, nil, name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	if !v.GetBool("skip-space-check") {
		items, err := metadata.Items(ctx, e.Store, desc.Root)
		if err != nil {
			return err
		}
		if err := checkDiskSpace(dest, items); err != nil {
			return err
		}
	}

	total, err := countFiles(ctx, e.Store, desc.Root)
	if err != nil {
		return err
	}

	bar := pb.StartNew(total)
	defer bar.Finish()

	return restore.Restore(ctx, e.Store, desc.Root, dest, restore.Options{
		Log:      log,
		Progress: func(string) { bar.Increment() },
	})
}

func countFiles(ctx context.Context, f metadata.Fetcher, root string) (int, error) {
	items, err := metadata.Items(ctx, f, root)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, item := range items {
		if item.IsRegular() {
			count++
		}
	}
	return count, nil
}

// checkDiskSpace refuses to start a restore that is already known to
// exceed the free space on dest's filesystem.
func checkDiskSpace(dest string, items []*metadata.Item) error {
	var needed uint64
	for _, item := range items {
		if item.IsRegular() && item.HasSize && item.Size > 0 {
			needed += uint64(item.Size)
		}
	}

	usage, err := disk.Usage(dest)
	if err != nil {
		// Preflight is best-effort: a platform gopsutil cannot query
		// should not block the restore itself.
		return nil
	}
	if usage.Free < needed {
		return fmt.Errorf("restore needs %d bytes but only %d are free on %s", needed, usage.Free, dest)
	}
	return nil
}
