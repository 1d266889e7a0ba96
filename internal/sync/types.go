package sync

import "strings"

// Turn is one exchange in a canonical transcript.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ConversationRecord is the single persisted entity. Pointer fields are
// nullable: nil means the remote payload did not carry the value, which is
// distinct from an empty string.
type ConversationRecord struct {
	ID                  string  `json:"id"`
	AgentID             *string `json:"agent_id"`
	Status              *string `json:"status"`
	LeadPhoneNumber     *string `json:"lead_phone_number"`
	ClientType          *string `json:"client_type"`
	RequestedAmount     *string `json:"requested_amount"`
	Age                 *string `json:"age"`
	Approved            *string `json:"approved"`
	Channel             *string `json:"channel"`
	Motive              *string `json:"motive"`
	EvaluationResult    *string `json:"evaluation_result"`
	EvaluationRationale *string `json:"evaluation_rationale"`
	Transcript          []Turn  `json:"transcript"`
}

// CanonicalText renders the transcript as flat text, one turn per line.
// Turns without a role render as bare text.
func (r *ConversationRecord) CanonicalText() string {
	if len(r.Transcript) == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.Transcript))
	for _, t := range r.Transcript {
		if t.Role == "" {
			lines = append(lines, t.Text)
			continue
		}
		lines = append(lines, t.Role+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

// ItemError records a single conversation that could not be synced.
type ItemError struct {
	ConversationID string `json:"conversation_id"`
	Stage          string `json:"stage"` // "list", "detail" or "persist"
	Message        string `json:"message"`
}

// Report is the outcome of one sync run. A run always produces a report;
// per-item failures land in Errors instead of aborting the run.
type Report struct {
	RunID     string      `json:"run_id"`
	AgentID   string      `json:"agent_id,omitempty"`
	StartUnix int64       `json:"start_unix,omitempty"`
	EndUnix   int64       `json:"end_unix,omitempty"`
	Total     int         `json:"total"`
	Synced    int         `json:"synced"`
	Truncated bool        `json:"truncated"`
	Errors    []ItemError `json:"errors"`
}
