package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wouteroostervld/kgrag/pkg/indexer"
	"github.com/wouteroostervld/kgrag/pkg/metrics"
	"github.com/wouteroostervld/kgrag/pkg/watcher"
	"github.com/wouteroostervld/kgrag/pkg/worker"
)

func newWatchCmd() *cobra.Command {
	var (
		dir         string
		prune       bool
		metricsAddr string
		debounce    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync, then keep the index in step with the input directory",
		Long: `Run a full sync, then watch the input directory and sync every file that
settles after a change. With --prune, removed files are purged from the
graph. Metrics are served on --metrics-addr when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, profile)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			s, err := a.syncer(dir, prune)
			if err != nil {
				return err
			}
			if metricsAddr == "" {
				metricsAddr = a.profile.Metrics.Addr
			}
			return runWatch(ctx, s, debounce, metricsAddr, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Input directory (overrides the profile)")
	cmd.Flags().BoolVar(&prune, "prune", false, "Purge documents that are removed")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().DurationVar(&debounce, "debounce", time.Second, "Quiet period before a changed file is synced")
	return cmd
}

func runWatch(ctx context.Context, s *indexer.Syncer, debounce time.Duration, metricsAddr string, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gCtx, metricsAddr)
		})
	}

	summary, err := s.SyncAll(gCtx)
	printSummary(out, summary)
	if err != nil {
		return err
	}

	cfg := s.Config()
	w := worker.NewSyncWorker(&worker.Config{
		Syncer:       s,
		PruneMissing: cfg.PruneMissing,
		OnReport: func(r *indexer.DocumentReport) {
			if r.Status != indexer.StatusUnchanged {
				fmt.Fprintf(out, "  %s: %s, %d/%d chunks\n", r.Filename, r.Status, r.Inserted(), len(r.Chunks))
			}
		},
	})

	dw, err := watcher.New(&watcher.Config{
		DebounceDelay: debounce,
		Filter: func(path string) bool {
			ok, err := cfg.Rules.Eligible(path)
			return err == nil && ok
		},
		OnEvent: func(e watcher.Event) {
			w.Enqueue(e)
		},
	})
	if err != nil {
		return err
	}
	defer dw.Close()

	if err := dw.Watch(cfg.InputDir); err != nil {
		return err
	}
	slog.Info("Watching for changes", "dir", cfg.InputDir)

	g.Go(func() error {
		return dw.Start(gCtx)
	})
	g.Go(func() error {
		return w.Start(gCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
