package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paradixe-xz/evaInstance-sub001/internal/api"
	"github.com/paradixe-xz/evaInstance-sub001/internal/config"
	"github.com/paradixe-xz/evaInstance-sub001/internal/elevenlabs"
	"github.com/paradixe-xz/evaInstance-sub001/internal/events"
	"github.com/paradixe-xz/evaInstance-sub001/internal/export"
	"github.com/paradixe-xz/evaInstance-sub001/internal/store"
	"github.com/paradixe-xz/evaInstance-sub001/internal/sync"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("eva-sync starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// ElevenLabs client
	if cfg.ElevenLabsAPIKey == "" {
		slog.Error("ELEVENLABS_API_KEY is required")
		os.Exit(1)
	}
	client := elevenlabs.NewClient(cfg.ElevenLabsAPIKey, slog.Default())

	// Sync state (incremental windows, run bookkeeping)
	state, err := sync.LoadState(cfg.StatePath)
	if err != nil {
		slog.Error("failed to load sync state", "error", err)
		os.Exit(1)
	}

	// Orchestrator
	startUnix, endUnix := cfg.WindowBounds(slog.Default())
	orch := sync.NewOrchestrator(
		sync.NewWalker(client, slog.Default()),
		client,
		db,
		sync.Options{
			AgentID:          cfg.AgentID,
			DefaultStartUnix: startUnix,
			DefaultEndUnix:   endUnix,
			LastDays:         cfg.SyncLastDays,
			Incremental:      cfg.SyncIncremental,
		},
		slog.Default(),
	).WithState(state)

	// NATS publisher (optional — the engine works without monitoring events)
	if cfg.NatsURL != "" {
		publisher, err := events.NewPublisher(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		orch.WithNotifier(publisher)
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured — running without sync events")
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, orch, db, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Scheduled sync loop
	if cfg.SyncIntervalMins > 0 {
		go runScheduler(ctx, cfg, orch, db)
		slog.Info("scheduler started", "interval_minutes", cfg.SyncIntervalMins)
	}

	slog.Info("eva-sync ready", "port", cfg.Port, "agent_id", cfg.AgentID)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("eva-sync stopped")
}

func runScheduler(ctx context.Context, cfg config.Config, orch *sync.Orchestrator, db *store.Store) {
	interval := time.Duration(cfg.SyncIntervalMins) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		report, err := orch.SyncAll(ctx, "", 0, 0)
		if err != nil {
			slog.Error("scheduled sync failed", "error", err)
			continue
		}
		slog.Info("scheduled sync done",
			"run_id", report.RunID,
			"synced", report.Synced,
			"errors", len(report.Errors),
		)

		if cfg.ExportPath != "" {
			recs, err := db.ListConversations(ctx, cfg.AgentID, 0)
			if err != nil {
				slog.Warn("export query failed", "error", err)
				continue
			}
			if err := export.WriteFile(cfg.ExportPath, recs); err != nil {
				slog.Warn("export write failed", "path", cfg.ExportPath, "error", err)
			}
		}
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
