package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/phobologic/classmap/internal/snapshot"
	"github.com/phobologic/classmap/internal/watch"
)

func newSnapshotCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [path]",
		Short: "Save the current relationship set for later comparison",
		Long: `Analyze path and save its relationships, grouped by category, to the
snapshot file (--snapshot). A .json or .yaml file holds one snapshot; a .db
or .sqlite file keeps every saved snapshot and compares against the newest.
Relative snapshot paths are resolved against the analyzed root.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepare(cmd, args, stderr)
			if err != nil {
				return err
			}
			result, err := env.analyzer.Run(cmd.Context(), env.root)
			if err != nil {
				return err
			}
			reportErrors(stderr, result.Errors)

			path := snapshotPath(env.root, env.cfg.Snapshot)
			store, err := snapshot.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			snap := snapshot.Take(result.Root, result.Relationships)
			if err := store.Save(cmd.Context(), snap); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "Saved snapshot %s to %s (%d relationships)\n",
				snap.ID, path, len(result.Relationships))
			return nil
		},
	}
}

func newCompareCmd(stdout, stderr io.Writer) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "compare [path]",
		Short: "Compare the current relationships against the saved snapshot",
		Long: `Analyze path and print the relationships added and removed since the
newest saved snapshot. With --list, print the saved snapshots instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepare(cmd, args, stderr)
			if err != nil {
				return err
			}

			path := snapshotPath(env.root, env.cfg.Snapshot)
			store, err := snapshot.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			if list {
				return listSnapshots(cmd.Context(), stdout, store, path)
			}

			old, err := store.Load(cmd.Context())
			if errors.Is(err, snapshot.ErrNotFound) {
				_, _ = fmt.Fprintf(stdout, "No snapshot at %s; run `classmap snapshot` first\n", path)
				return nil
			}
			if err != nil {
				return err
			}

			result, err := env.analyzer.Run(cmd.Context(), env.root)
			if err != nil {
				return err
			}
			reportErrors(stderr, result.Errors)
			return snapshot.WriteReport(stdout, snapshot.Compare(old, result.Relationships))
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list saved snapshots, newest first")
	return cmd
}

func listSnapshots(ctx context.Context, w io.Writer, store snapshot.Store, path string) error {
	entries, err := store.History(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintf(w, "No snapshot at %s; run `classmap snapshot` first\n", path)
		return nil
	}
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s  %s  %s\n", e.ID, e.CreatedAt.Format(time.RFC3339), e.Root)
	}
	return nil
}

func newWatchCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [path]",
		Short: "Re-analyze on every source change and print what moved",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepare(cmd, args, stderr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := &watch.Session{
				Root:     env.root,
				Analyzer: env.analyzer,
				Debounce: env.cfg.Debounce,
				Filter:   watch.SourceFilter(env.cfg.Extensions),
				Out:      stdout,
				Log:      env.log,
			}
			return s.Run(ctx)
		},
	}
}

func snapshotPath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func reportErrors(w io.Writer, errs []string) {
	for _, e := range errs {
		_, _ = fmt.Fprintf(w, "Warning: %s\n", e)
	}
}
