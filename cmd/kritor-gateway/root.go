package main

import (
	"io"
	"log/slog"

	"github.com/ggoodman/kritor-gateway/internal/logctx"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "kritor-gateway",
		Short:        "Gateway between kritor bot cores and plugin services",
		Long:         "kritor-gateway accepts the event and reverse gRPC streams of kritor cores, keeps one session per bot account and fans events out to the registered services.",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		newServeCmd(),
		newSchemaCmd(),
	)
	return rootCmd
}

// newLogger builds the process logger. level is shared with the config
// store so reloads change verbosity in place.
func newLogger(w io.Writer, format string, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return logctx.Wrap(slog.New(h))
}
