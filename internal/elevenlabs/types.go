package elevenlabs

import (
	"encoding/json"
	"sort"
	"strconv"
)

// ListItem is one entry from the paginated conversations endpoint.
type ListItem struct {
	ConversationID    string `json:"conversation_id"`
	AgentID           string `json:"agent_id"`
	AgentName         string `json:"agent_name"`
	StartTimeUnixSecs int64  `json:"start_time_unix_secs"`
	CallDurationSecs  int    `json:"call_duration_secs"`
	MessageCount      int    `json:"message_count"`
	Status            string `json:"status"`
	CallSuccessful    string `json:"call_successful"`
}

// Page is one page of the conversation list walk.
type Page struct {
	Items      []ListItem
	HasMore    bool
	NextCursor string
}

type listResponse struct {
	Conversations []ListItem `json:"conversations"`
	HasMore       bool       `json:"has_more"`
	NextCursor    *string    `json:"next_cursor"`
}

// Detail is the per-conversation payload. The remote shape is loosely typed:
// the parts that vary (transcript, collected values) stay raw and are read
// through null-safe accessors instead of direct field access.
type Detail struct {
	ConversationID string          `json:"conversation_id"`
	AgentID        string          `json:"agent_id"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status"`
	Transcript     json.RawMessage `json:"transcript"`
	Metadata       *Metadata       `json:"metadata"`
	Analysis       *Analysis       `json:"analysis"`
}

type Metadata struct {
	StartTimeUnixSecs int64      `json:"start_time_unix_secs"`
	CallDurationSecs  int        `json:"call_duration_secs"`
	PhoneCall         *PhoneCall `json:"phone_call"`
}

type PhoneCall struct {
	Direction      string `json:"direction"`
	ExternalNumber string `json:"external_number"`
	AgentNumber    string `json:"agent_number"`
}

type Analysis struct {
	CallSuccessful            string                     `json:"call_successful"`
	TranscriptSummary         string                     `json:"transcript_summary"`
	EvaluationCriteriaResults map[string]CriterionResult `json:"evaluation_criteria_results"`
	DataCollectionResults     map[string]CollectedField  `json:"data_collection_results"`
}

type CriterionResult struct {
	CriteriaID string `json:"criteria_id"`
	Result     string `json:"result"`
	Rationale  string `json:"rationale"`
}

type CollectedField struct {
	DataCollectionID string          `json:"data_collection_id"`
	Value            json.RawMessage `json:"value"`
	Rationale        string          `json:"rationale"`
}

// Outcome returns analysis.call_successful, or nil when the remote analysis
// stage has not produced one.
func (d *Detail) Outcome() *string {
	if d == nil || d.Analysis == nil || d.Analysis.CallSuccessful == "" {
		return nil
	}
	v := d.Analysis.CallSuccessful
	return &v
}

// CollectedValue looks up a data-collection field by its short code and
// returns its scalar value as text, or nil when the code is absent or the
// value is null. Absence is distinct from an empty string.
func (d *Detail) CollectedValue(code string) *string {
	if d == nil || d.Analysis == nil {
		return nil
	}
	field, ok := d.Analysis.DataCollectionResults[code]
	if !ok {
		return nil
	}
	return scalarText(field.Value)
}

// Evaluation returns the result and rationale of the first evaluation
// criterion in stable (sorted key) order, or nils when none exist.
func (d *Detail) Evaluation() (result, rationale *string) {
	if d == nil || d.Analysis == nil || len(d.Analysis.EvaluationCriteriaResults) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(d.Analysis.EvaluationCriteriaResults))
	for k := range d.Analysis.EvaluationCriteriaResults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	crit := d.Analysis.EvaluationCriteriaResults[keys[0]]
	res, rat := crit.Result, crit.Rationale
	return &res, &rat
}

// PhoneNumber prefers the call's external number from phone metadata,
// falling back to the bare remote user identifier.
func (d *Detail) PhoneNumber() *string {
	if d == nil {
		return nil
	}
	if d.Metadata != nil && d.Metadata.PhoneCall != nil && d.Metadata.PhoneCall.ExternalNumber != "" {
		v := d.Metadata.PhoneCall.ExternalNumber
		return &v
	}
	if d.UserID != "" {
		v := d.UserID
		return &v
	}
	return nil
}

// scalarText renders a raw JSON scalar as text. JSON null and missing values
// map to nil; non-scalar values are kept as their compact JSON form.
func scalarText(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		s := string(raw)
		return &s
	}
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case bool:
		s := strconv.FormatBool(t)
		return &s
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s
	default:
		s := string(raw)
		return &s
	}
}
