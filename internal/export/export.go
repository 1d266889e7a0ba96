// Package export renders synced conversation sets as flat files. It is a
// formatting step only and feeds nothing back into the sync engine.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paradixe-xz/evaInstance-sub001/internal/leads"
	"github.com/paradixe-xz/evaInstance-sub001/internal/sync"
)

var csvHeader = []string{
	"id", "agent_id", "status", "lead_phone_number",
	"client_type", "requested_amount", "age", "approved", "channel", "motive",
	"evaluation_result", "evaluation_rationale", "effective_lead", "transcript",
}

// classifier tags each exported row with the effective-lead verdict.
var classifier = leads.NewClassifier(leads.DefaultPolicy())

// WriteCSV renders the records as CSV. Nil fields render as empty cells;
// the transcript renders as its canonical flat text.
func WriteCSV(w io.Writer, recs []sync.ConversationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range recs {
		row := []string{
			rec.ID,
			deref(rec.AgentID),
			deref(rec.Status),
			deref(rec.LeadPhoneNumber),
			deref(rec.ClientType),
			deref(rec.RequestedAmount),
			deref(rec.Age),
			deref(rec.Approved),
			deref(rec.Channel),
			deref(rec.Motive),
			deref(rec.EvaluationResult),
			deref(rec.EvaluationRationale),
			strconv.FormatBool(classifier.EffectiveLead(rec)),
			rec.CanonicalText(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", rec.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonRecord decorates a record with the effective-lead verdict.
type jsonRecord struct {
	sync.ConversationRecord
	EffectiveLead bool `json:"effective_lead"`
}

// WriteJSON renders the records as an indented JSON array. Nil fields render
// as JSON null, preserving the absent-vs-empty distinction.
func WriteJSON(w io.Writer, recs []sync.ConversationRecord) error {
	out := make([]jsonRecord, len(recs))
	for i, rec := range recs {
		out[i] = jsonRecord{ConversationRecord: rec, EffectiveLead: classifier.EffectiveLead(rec)}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteFile writes the records to path, picking the format from the file
// extension (.json for JSON, anything else CSV).
func WriteFile(path string, recs []sync.ConversationRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if filepath.Ext(path) == ".json" {
		return WriteJSON(f, recs)
	}
	return WriteCSV(f, recs)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
