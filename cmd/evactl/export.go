package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paradixe-xz/evaInstance-sub001/internal/config"
	"github.com/paradixe-xz/evaInstance-sub001/internal/export"
	"github.com/paradixe-xz/evaInstance-sub001/internal/sync"
)

var (
	exportAgentID string
	exportFormat  string
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export synced conversations as CSV or JSON",
	Long: `Export renders the already-synced conversation set as a flat file.
It reads only from the local store and never calls the remote API.

Examples:
  evactl export --format csv --out conversations.csv
  evactl export --agent agent_abc123 --format json`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportAgentID, "agent", "", "agent id filter (default: all agents)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or json")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default: stdout)")
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx := cmd.Context()
	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	recs, err := db.ListConversations(ctx, exportAgentID, 0)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeRecords(out, exportFormat, recs); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Fprintf(os.Stderr, "wrote %d records to %s\n", len(recs), exportOut)
	}
	return nil
}

func writeRecords(out *os.File, format string, recs []sync.ConversationRecord) error {
	switch format {
	case "csv":
		return export.WriteCSV(out, recs)
	case "json":
		return export.WriteJSON(out, recs)
	default:
		return fmt.Errorf("unknown format %q, use csv or json", format)
	}
}
