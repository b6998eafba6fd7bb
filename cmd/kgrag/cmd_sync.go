package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wouteroostervld/kgrag/pkg/indexer"
)

func newSyncCmd() *cobra.Command {
	var (
		dir   string
		prune bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest new and changed documents",
		Long: `Hash every eligible file in the input directory, skip the unchanged ones,
and purge and re-ingest the changed ones. Progress is saved after each file,
so an interrupted sync resumes where it stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, profile)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			s, err := a.syncer(dir, prune)
			if err != nil {
				return err
			}
			summary, err := s.SyncAll(ctx)
			printSummary(cmd.OutOrStdout(), summary)
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Input directory (overrides the profile)")
	cmd.Flags().BoolVar(&prune, "prune", false, "Purge documents that no longer exist")
	return cmd
}

func printSummary(w io.Writer, summary *indexer.SyncSummary) {
	if summary == nil {
		return
	}
	for _, r := range summary.Documents {
		switch r.Status {
		case indexer.StatusUnchanged:
			fmt.Fprintf(w, "  %s: unchanged\n", r.Filename)
		case indexer.StatusFailed:
			fmt.Fprintf(w, "  %s: failed: %v\n", r.Filename, r.Err)
		default:
			line := fmt.Sprintf("  %s: %d/%d chunks", r.Filename, r.Inserted(), len(r.Chunks))
			if r.Purged {
				line += fmt.Sprintf(", %d stale nodes purged", r.PurgedNodes)
			}
			fmt.Fprintln(w, line)
			for _, c := range r.FailedChunks() {
				fmt.Fprintf(w, "    %s\n", c)
			}
		}
	}
	for _, name := range summary.Pruned {
		fmt.Fprintf(w, "  %s: pruned\n", name)
	}
	fmt.Fprintf(w, "Processed %d files (%d unchanged, %d failed) in %s\n",
		summary.Reprocessed, summary.Skipped, summary.Failed, summary.Duration.Round(time.Millisecond))
}
