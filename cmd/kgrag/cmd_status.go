package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/wouteroostervld/kgrag/pkg/config"
	"github.com/wouteroostervld/kgrag/pkg/domain"
	"github.com/wouteroostervld/kgrag/pkg/graph"
	"github.com/wouteroostervld/kgrag/pkg/state"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB000"))
)

func newStatusCmd() *cobra.Command {
	var noStore bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracked documents and store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := state.NewFileStore(profile.StateFile).Load()
			if err != nil {
				return err
			}

			var info *storeInfo
			if !noStore {
				info = inspectStore(cmd.Context(), profile)
			}
			printStatus(cmd.OutOrStdout(), profile, st, info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not connect to the graph store")
	return cmd
}

// storeInfo is what status reports about a reachable store
type storeInfo struct {
	stats  domain.StoreStats
	health error
}

// inspectStore returns nil when the store cannot be opened or counted
func inspectStore(ctx context.Context, p *config.Profile) *storeInfo {
	store, err := graph.Open(ctx, graph.Options{
		URI:       p.Store.URI,
		Username:  p.Store.Username,
		Password:  p.Store.Password,
		Database:  p.Store.Database,
		IndexName: p.Store.IndexName,
		Dimension: p.Embedding.Dimension,
	})
	if err != nil {
		slog.Warn("Failed to open store", "uri", p.Store.URI, "error", err)
		return nil
	}
	defer store.Close(ctx)

	stats, err := store.Stats(ctx)
	if err != nil {
		slog.Warn("Failed to read store statistics", "error", err)
		return nil
	}
	info := &storeInfo{stats: stats, health: graph.CheckHealth(ctx, store)}
	if info.health != nil {
		slog.Warn("Store health check failed", "uri", p.Store.URI, "error", info.health)
	}
	return info
}

func printStatus(w io.Writer, p *config.Profile, st *state.State, info *storeInfo) {
	fmt.Fprintln(w, titleStyle.Render("Profile "+p.Name))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Input dir:  "), p.InputDir)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("State file: "), p.StateFile)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Store:      "), p.Store.URI)

	model := st.EmbeddingModel
	switch {
	case model == "":
		model = warnStyle.Render("(not recorded)")
	case model != p.Embedding.Model:
		model += warnStyle.Render(fmt.Sprintf(" (configured: %s)", p.Embedding.Model))
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Embedding:  "), model)

	if info != nil {
		fmt.Fprintf(w, "%s %d chunks, %d entities, %d relations\n",
			labelStyle.Render("Graph:      "), info.stats.Chunks, info.stats.Entities, info.stats.Relations)
		health := "ok"
		if info.health != nil {
			health = warnStyle.Render(info.health.Error())
		}
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Health:     "), health)
	}

	names := st.Filenames()
	if len(names) == 0 {
		fmt.Fprintln(w, "\nNo documents tracked yet.")
		return
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		hash, _ := st.Hash(name)
		rows = append(rows, []string{name, hash})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("DOCUMENT", "MD5").
		Rows(rows...)
	fmt.Fprintf(w, "\n%s\n%d documents tracked\n", t.String(), len(names))
}
