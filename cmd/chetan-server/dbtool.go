package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/config"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/store"
)

// newDBToolCommand builds the maintenance CLI: row-count reporting and
// retention pruning against the sqlite audit store, run offline (the
// server does not need to be stopped, but concurrent writers are limited
// to one connection per spec.md §6, so long prune runs will contend with
// a live server).
func newDBToolCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "dbtool",
		Short: "Audit database maintenance (row counts, retention pruning, stuck commands)",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "database-path", "", "Path to the sqlite audit database (default: config database_path)")

	cmd.AddCommand(newDBToolStatsCommand(&dbPath))
	cmd.AddCommand(newDBToolPruneCommand(&dbPath))
	cmd.AddCommand(newDBToolStuckCommand(&dbPath))

	return cmd
}

func openDBToolStore(ctx context.Context, dbPath string) (*store.DB, error) {
	path := dbPath
	if path == "" {
		cfg, _, err := config.Load(config.Overrides{}, zerolog.Nop(), nil)
		if err != nil {
			return nil, fmt.Errorf("load config for default database path: %w", err)
		}
		path = cfg.DatabasePath
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return store.Open(ctx, path, log)
}

func newDBToolStatsCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print row counts for every audit-store table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDBToolStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			counts, err := db.TableCounts(ctx)
			if err != nil {
				return err
			}
			for _, table := range []string{"devices", "state_snapshots", "commands", "connection_events", "audio_transcripts"} {
				fmt.Printf("%-20s %d\n", table, counts[table])
			}
			return nil
		},
	}
}

func newDBToolPruneCommand(dbPath *string) *cobra.Command {
	var olderThanDays int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete state snapshots, connection events, and audio transcripts older than a retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThanDays <= 0 {
				return fmt.Errorf("--older-than-days must be positive")
			}
			ctx := cmd.Context()
			db, err := openDBToolStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

			if dryRun {
				fmt.Printf("dry run: would prune rows older than %s\n", cutoff.Format(time.RFC3339))
				return nil
			}

			snapshots, err := db.PruneStateSnapshotsOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			events, err := db.PruneConnectionEventsOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			transcripts, err := db.PruneTranscriptsOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}

			fmt.Printf("pruned %d state_snapshots, %d connection_events, %d audio_transcripts older than %s\n",
				snapshots, events, transcripts, cutoff.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 30, "Delete rows older than this many days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be pruned without deleting anything")

	return cmd
}

func newDBToolStuckCommand(dbPath *string) *cobra.Command {
	var olderThanMinutes int

	cmd := &cobra.Command{
		Use:   "stuck-commands",
		Short: "List commands stuck in \"sent\" past their expected ack deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDBToolStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			stuck, err := db.ListStuckCommands(ctx, time.Duration(olderThanMinutes)*time.Minute)
			if err != nil {
				return err
			}
			if len(stuck) == 0 {
				fmt.Println("no stuck commands found")
				return nil
			}
			for _, s := range stuck {
				fmt.Printf("%s  device_type=%s  command=%s  created_at=%s\n",
					s.CommandID, s.DeviceType, s.CommandName, s.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanMinutes, "older-than-minutes", 60, "Only list commands created more than this many minutes ago")

	return cmd
}
