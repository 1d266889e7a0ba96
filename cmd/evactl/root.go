package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/paradixe-xz/evaInstance-sub001/internal/config"
	"github.com/paradixe-xz/evaInstance-sub001/internal/elevenlabs"
	"github.com/paradixe-xz/evaInstance-sub001/internal/store"
	"github.com/paradixe-xz/evaInstance-sub001/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "evactl",
	Short: "Eva conversation sync tooling",
	Long: `evactl drives the Eva conversation synchronization engine from the
command line: pull conversations for an agent from ElevenLabs into the
local store, or export the synced set as CSV/JSON.

Configuration comes from the environment (or a local .env file):
  DATABASE_URL, ELEVENLABS_API_KEY, ELEVENLABS_AGENT_ID, ...`,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(exportCmd)
}

// cliLogger logs human-readable text to stderr, debug level when verbose.
func cliLogger() *slog.Logger {
	var out io.Writer = os.Stderr
	lvl := slog.LevelWarn
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl}))
}

// openStore connects to Postgres and ensures the conversations table.
func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildOrchestrator wires the sync engine from config.
func buildOrchestrator(cfg config.Config, db *store.Store, logger *slog.Logger) (*sync.Orchestrator, error) {
	client := elevenlabs.NewClient(cfg.ElevenLabsAPIKey, logger)

	state, err := sync.LoadState(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	startUnix, endUnix := cfg.WindowBounds(logger)
	return sync.NewOrchestrator(
		sync.NewWalker(client, logger),
		client,
		db,
		sync.Options{
			AgentID:          cfg.AgentID,
			DefaultStartUnix: startUnix,
			DefaultEndUnix:   endUnix,
			LastDays:         cfg.SyncLastDays,
			Incremental:      cfg.SyncIncremental,
		},
		logger,
	).WithState(state), nil
}
