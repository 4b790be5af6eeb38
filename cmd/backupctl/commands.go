package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shopdesk/backoffice/internal/backup"
	"github.com/shopdesk/backoffice/internal/config"
	"github.com/shopdesk/backoffice/internal/infra"
	"github.com/shopdesk/backoffice/internal/logging"
)

// env carries what the commands need from the outside world.
type env struct {
	out    io.Writer
	logger *slog.Logger
	// open returns the store to export from or restore into, plus a release func.
	open func(ctx context.Context, databaseURL string) (backup.TableStore, func(), error)
	cfg  func() (config.Config, error)
}

func defaultEnv() env {
	return env{
		out:    os.Stdout,
		logger: logging.NewWithWriter(os.Stderr, "backupctl", os.Getenv("LOG_LEVEL")),
		open: func(ctx context.Context, databaseURL string) (backup.TableStore, func(), error) {
			pool, err := infra.NewPostgresPool(ctx, databaseURL, "backupctl")
			if err != nil {
				return nil, nil, err
			}
			return backup.NewPostgresStore(pool), pool.Close, nil
		},
		cfg: config.Load,
	}
}

func newRootCmd(e env) *cobra.Command {
	var databaseURL string

	root := &cobra.Command{
		Use:           "backupctl",
		Short:         "Export, check and restore backoffice snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL != "" {
				return nil
			}
			cfg, err := e.cfg()
			if err != nil {
				return err
			}
			databaseURL = cfg.DatabaseURL
			if databaseURL == "" {
				return errors.New("no database: pass --database-url or set DATABASE_URL")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "postgres URL (default $DATABASE_URL)")

	withStore := func(cmd *cobra.Command, fn func(backup.TableStore) error) error {
		store, release, err := e.open(cmd.Context(), databaseURL)
		if err != nil {
			return err
		}
		defer release()
		return fn(store)
	}

	root.AddCommand(exportCmd(e, withStore))
	root.AddCommand(restoreCmd(e, withStore))
	root.AddCommand(migrateCmd(e, &databaseURL))
	return root
}

type storeRunner func(cmd *cobra.Command, fn func(backup.TableStore) error) error

func exportCmd(e env, withStore storeRunner) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of every live table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store backup.TableStore) error {
				snap, err := backup.NewExporter(store).Export(cmd.Context())
				if err != nil {
					return err
				}
				w := e.out
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("create %s: %w", output, err)
					}
					defer f.Close()
					w = f
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(snap); err != nil {
					return fmt.Errorf("write snapshot: %w", err)
				}
				e.logger.Info("snapshot exported", slog.Int("tables", len(snap.Tables)), slog.String("output", output))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "out", "o", "", "output file (default stdout)")
	return cmd
}

func restoreCmd(e env, withStore storeRunner) *cobra.Command {
	var (
		file      string
		dryRun    bool
		chunkSize int
	)
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace live tables with a snapshot",
		Long: `Replace every table carried by the snapshot. Tables the snapshot omits are
left alone. The snapshot is checked for referential integrity against the
final state before anything is deleted.

Examples:
  backupctl restore --file snapshot.json --dry-run
  backupctl restore --file snapshot.json --chunk-size 200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshot(file)
			if err != nil {
				return err
			}
			return withStore(cmd, func(store backup.TableStore) error {
				restorer := backup.NewRestorer(store, backup.RestoreConfig{ChunkSize: chunkSize, Logger: e.logger})
				run := restorer.Restore
				if dryRun {
					run = restorer.Check
				}
				report, err := run(cmd.Context(), snap)
				if err != nil {
					return describe(e.out, err)
				}
				enc := json.NewEncoder(e.out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot file, - for stdin")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only run the referential pre-check")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", backup.DefaultChunkSize, "rows per insert")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func migrateCmd(e env, databaseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return infra.Migrate(*databaseURL, e.logger)
		},
	}
}

func readSnapshot(file string) (backup.Snapshot, error) {
	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return backup.Snapshot{}, fmt.Errorf("open snapshot: %w", err)
		}
		defer f.Close()
		r = f
	}
	var snap backup.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return backup.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// describe prints pre-check violations before returning err.
func describe(w io.Writer, err error) error {
	var rie *backup.ReferentialIntegrityError
	if errors.As(err, &rie) {
		for _, v := range rie.Violations {
			fmt.Fprintf(w, "%s %s: %s\n", v.Table, v.RowID, v.Reason)
		}
	}
	return err
}
