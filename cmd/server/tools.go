package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/atmx/fund-ledger/internal/config"
	"github.com/atmx/fund-ledger/internal/snapshot"
	"github.com/atmx/fund-ledger/internal/store"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations to PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Postgres.DSN == "" {
				return fmt.Errorf("migrate: postgres dsn is not configured")
			}
			pool, err := openPool(cmd.Context(), cfg.Postgres)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := store.NewPostgresStore(pool).RunMigrations(cmd.Context()); err != nil {
				return err
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}

func newAuditCmd(cfg *config.Config) *cobra.Command {
	var file, key string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check ledger invariants and report every violation",
		Long: "Loads a snapshot from --file, from the snapshot bucket with --key, or " +
			"from the configured store, and exits non-zero if any invariant is broken.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := loadSnapshot(cmd.Context(), cfg, file, key)
			if err != nil {
				return err
			}
			violations := snap.Verify()
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, v := range violations {
				if err := enc.Encode(v); err != nil {
					return err
				}
			}
			if len(violations) > 0 {
				return fmt.Errorf("audit: %d invariant violations", len(violations))
			}
			slog.Info("audit passed",
				"funds", len(snap.Funds),
				"proposals", len(snap.Proposals),
				"events", len(snap.Events),
				"bets", len(snap.Bets),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "snapshot file to audit (- for stdin)")
	cmd.Flags().StringVar(&key, "key", "", "object key of a snapshot in the configured bucket")
	cmd.MarkFlagsMutuallyExclusive("file", "key")
	return cmd
}

func newSnapshotCmd(cfg *config.Config) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export a consistent JSON snapshot of the ledger",
		Long: "Writes the snapshot to --out, or uploads it to the configured S3 bucket " +
			"when --out is empty. Without a bucket it is written to stdout.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			snap, err := buildSnapshot(ctx, cfg)
			if err != nil {
				return err
			}
			if v := snap.Verify(); len(v) > 0 {
				slog.Warn("snapshot has invariant violations", "count", len(v))
			}

			switch {
			case out == "-" || (out == "" && !cfg.S3.Enabled()):
				return snap.WriteJSON(cmd.OutOrStdout())
			case out != "":
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := snap.WriteJSON(f); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			default:
				blobs, err := openBlobs(ctx, cfg.S3)
				if err != nil {
					return err
				}
				key := snapshot.Key(cfg.S3.Prefix, snap.TakenAt)
				if err := snapshot.Export(ctx, blobs, key, snap); err != nil {
					return err
				}
				slog.Info("snapshot exported", "bucket", cfg.S3.Bucket, "key", key)
				return nil
			}
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (- for stdout)")
	return cmd
}

func loadSnapshot(ctx context.Context, cfg *config.Config, file, key string) (*snapshot.Snapshot, error) {
	switch {
	case file == "-":
		return snapshot.ReadJSON(os.Stdin)
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return snapshot.ReadJSON(f)
	case key != "":
		blobs, err := openBlobs(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return snapshot.Fetch(ctx, blobs, key)
	default:
		return buildSnapshot(ctx, cfg)
	}
}

func buildSnapshot(ctx context.Context, cfg *config.Config) (*snapshot.Snapshot, error) {
	pg := cfg.Postgres
	pg.RunMigrations = false
	st, closeStore, err := openStore(ctx, pg)
	if err != nil {
		return nil, err
	}
	defer closeStore()
	return snapshot.Build(ctx, st, time.Now().UTC())
}
