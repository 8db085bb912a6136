// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Command cumulus-clean prints the benefit-ranked segment cleaning list
// from the local database and, when asked, expires segments and
// rebalances the expiration schedule after an interactive confirmation.
package main

import (
	"context"
	"fmt"
	"os"

	prompt "github.com/segmentio/go-prompt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cumulus-backup/cumulus/internal/localdb"
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
		Use:   "cumulus-clean",
		Short: "List and expire segments eligible for cleaning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(context.Background(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("db", "", "path to the local database (required)")
	flags.Float64("age-boost", 0, "extra age, in days, added to every segment's cleaning benefit")
	flags.Bool("mark-expired", false, "expire the top-ranked segment after confirmation")
	flags.Bool("balance", false, "rebalance the expiration schedule across age buckets")
	flags.Bool("yes", false, "assume yes to the --balance and --mark-expired confirmation prompts")
	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("cumulus")
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	dbPath := v.GetString("db")
	if dbPath == "" {
		return fmt.Errorf("--db is required")
	}

	db, err := localdb.Open(log, dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	segments, err := db.GetSegmentCleaningList(ctx, v.GetFloat64("age-boost"))
	if err != nil {
		return err
	}

	fmt.Printf("%-10s %10s %10s %8s %10s\n", "segment", "used", "size", "age(d)", "benefit")
	for _, s := range segments {
		fmt.Printf("%-10d %10.0f %10.0f %8.1f %10.3f\n", s.ID, s.UsedBytes, s.SizeBytes, s.AgeDays, s.CleaningBenefit)
	}

	if v.GetBool("balance") {
		if !confirm(v, fmt.Sprintf("Rebalance the expiration schedule in %s?", dbPath)) {
			fmt.Println("Skipped.")
			return nil
		}
		if err := db.BalanceExpiredObjects(ctx); err != nil {
			return err
		}
		fmt.Println("Expiration schedule rebalanced.")
	}

	if v.GetBool("mark-expired") {
		if len(segments) == 0 {
			fmt.Println("No segments eligible for cleaning.")
			return nil
		}
		top := segments[0]
		if !confirm(v, fmt.Sprintf("Mark segment %d expired (benefit %.3f)?", top.ID, top.CleaningBenefit)) {
			fmt.Println("Skipped.")
			return nil
		}
		if err := db.MarkSegmentExpired(ctx, top.ID); err != nil {
			return err
		}
		fmt.Printf("Segment %d marked expired.\n", top.ID)
	}

	return nil
}

// confirm asks the operator to approve a destructive action, unless
// --yes was passed.
func confirm(v *viper.Viper, question string) bool {
	if v.GetBool("yes") {
		return true
	}
	return prompt.Confirm("%s [y/N]", question)
}
