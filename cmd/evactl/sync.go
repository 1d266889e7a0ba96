package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paradixe-xz/evaInstance-sub001/internal/config"
	"github.com/paradixe-xz/evaInstance-sub001/internal/export"
	"github.com/paradixe-xz/evaInstance-sub001/internal/leads"
)

var (
	syncAgentID   string
	syncStartDate string
	syncEndDate   string
	syncLastDays  int
	syncExportTo  string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync conversations from ElevenLabs into the local store",
	Long: `Sync pulls every conversation for the agent within the time window,
normalizes the payloads and upserts them by conversation id. Re-running
the same window is safe: existing records are overwritten in place.

Window priority: --start-date beats --last-days, which beats the
configured defaults; with none set, the full history is synced.

Examples:
  evactl sync
  evactl sync --agent agent_abc123
  evactl sync --start-date 2026-08-01 --end-date 2026-08-20
  evactl sync --last-days 7 --export-to leads.csv`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncAgentID, "agent", "", "agent id (default: ELEVENLABS_AGENT_ID)")
	syncCmd.Flags().StringVar(&syncStartDate, "start-date", "", "lower window bound, YYYY-MM-DD")
	syncCmd.Flags().StringVar(&syncEndDate, "end-date", "", "upper window bound, YYYY-MM-DD")
	syncCmd.Flags().IntVar(&syncLastDays, "last-days", 0, "shorthand: sync the last N days")
	syncCmd.Flags().StringVar(&syncExportTo, "export-to", "", "write the synced set to this file after the run (.csv or .json)")
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	logger := cliLogger()

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ElevenLabsAPIKey == "" {
		return fmt.Errorf("ELEVENLABS_API_KEY is required")
	}
	if syncLastDays > 0 {
		cfg.SyncLastDays = syncLastDays
	}

	ctx := cmd.Context()
	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	orch, err := buildOrchestrator(cfg, db, logger)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	startUnix := config.ParseDateUnix(syncStartDate, logger)
	endUnix := config.ParseDateUnix(syncEndDate, logger)

	report, err := orch.SyncAll(ctx, syncAgentID, startUnix, endUnix)
	if err != nil && report == nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("\n=== Sync Report ===\n")
	fmt.Printf("Run:    %s\n", report.RunID)
	fmt.Printf("Total:  %d\n", report.Total)
	fmt.Printf("Synced: %d\n", report.Synced)
	fmt.Printf("Errors: %d\n", len(report.Errors))
	if report.Truncated {
		fmt.Printf("Note:   the conversation list was truncated by a remote failure\n")
	}
	for _, e := range report.Errors {
		fmt.Printf("  - %s [%s]: %s\n", e.ConversationID, e.Stage, e.Message)
	}

	agent := syncAgentID
	if agent == "" {
		agent = cfg.AgentID
	}

	if syncExportTo != "" {
		recs, err := db.ListConversations(ctx, agent, 0)
		if err != nil {
			return fmt.Errorf("export query: %w", err)
		}
		if err := export.WriteFile(syncExportTo, recs); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		classifier := leads.NewClassifier(leads.DefaultPolicy())
		fmt.Printf("Export: %s (%d records, %d effective leads)\n",
			syncExportTo, len(recs), classifier.Count(recs))
	}

	return err
}
