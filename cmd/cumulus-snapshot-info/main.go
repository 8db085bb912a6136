// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Command cumulus-snapshot-info parses a snapshot descriptor, walks its
// metadata log, and reports the descriptor fields plus item counts by
// type.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cumulus-backup/cumulus/internal/engine"
	"github.com/cumulus-backup/cumulus/pkg/metadata"
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
		Use:   "cumulus-snapshot-info <snapshot-name>",
		Short: "Print a snapshot descriptor and metadata log item counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(context.Background(), v, args[0])
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
	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("cumulus")
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper, name string) error {
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

	fmt.Printf("Format:   %s\n", desc.Format)
	fmt.Printf("Version:  %v\n", desc.Version)
	fmt.Printf("Root:     %s\n", desc.Root)
	fmt.Printf("Segments: %d referenced\n", len(desc.Segments))

	items, err := metadata.Items(ctx, e.Store, desc.Root)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	var size int64
	for _, item := range items {
		counts[item.Type]++
		if item.IsRegular() && item.HasSize {
			size += item.Size
		}
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	fmt.Printf("\nItems: %d\n", len(items))
	for _, t := range types {
		fmt.Printf("  %-12s %d\n", typeName(t), counts[t])
	}
	fmt.Printf("Total regular file size: %d bytes\n", size)

	return nil
}

func typeName(t string) string {
	switch t {
	case "f":
		return "regular"
	case "d":
		return "directory"
	case "l":
		return "symlink"
	case "p":
		return "fifo"
	case "c":
		return "char device"
	case "b":
		return "block device"
	default:
		return t
	}
}
