package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wouteroostervld/kgrag/pkg/config"
)

// Build-time variables set via ldflags.
var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

var (
	flagConfig    string
	flagProfile   string
	flagLogLevel  string
	flagLogFormat string

	// profile is loaded before every command that needs it
	profile *config.Profile
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("kgrag version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("kgrag version %s-dev", version)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kgrag",
		Short: "Incremental knowledge-graph RAG over a directory of documents",
		Long: `kgrag ingests the documents of a directory into a property graph,
re-processing only files whose content changed, and answers questions
against the resulting index.`,
		Version: versionString(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(cmd.ErrOrStderr(), flagLogLevel, flagLogFormat); err != nil {
				return err
			}
			p, err := config.NewDefaultLoader().Load(flagConfig, flagProfile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			profile = p
			slog.Debug("Loaded profile", "profile", p.Name, "config", p.ConfigPath)
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.kgrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "Profile to use (default: active_profile)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format: text|json")

	initCmd := newInitCmd()
	initCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd.ErrOrStderr(), flagLogLevel, flagLogFormat)
	}
	versionCmd := newVersionCmd()
	versionCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error { return nil }

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWatchCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
			return nil
		},
	}
}

// parseLogLevel maps a flag value to a slog level
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

func setupLogging(w io.Writer, level, format string) error {
	logLevel, err := parseLogLevel(level)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
