package sync

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paradixe-xz/evaInstance-sub001/internal/elevenlabs"
)

// Short field codes of the agent's data-collection map.
const (
	codeClientType      = "tipo_cliente"
	codeRequestedAmount = "monto"
	codeAge             = "edad"
	codeApproved        = "aprobado"
	codeChannel         = "canal"
	codeMotive          = "motivo"
)

// Normalize maps a list item plus its detail payload onto the local record
// shape. It never fails: missing or malformed parts of the remote payload
// degrade to nil fields or best-effort text.
func Normalize(item elevenlabs.ListItem, detail *elevenlabs.Detail) ConversationRecord {
	rec := ConversationRecord{ID: item.ConversationID}
	if rec.ID == "" && detail != nil {
		rec.ID = detail.ConversationID
	}
	if item.AgentID != "" {
		agentID := item.AgentID
		rec.AgentID = &agentID
	}

	rec.Status = detail.Outcome()
	rec.LeadPhoneNumber = detail.PhoneNumber()
	rec.ClientType = detail.CollectedValue(codeClientType)
	rec.RequestedAmount = detail.CollectedValue(codeRequestedAmount)
	rec.Age = detail.CollectedValue(codeAge)
	rec.Approved = detail.CollectedValue(codeApproved)
	rec.Channel = detail.CollectedValue(codeChannel)
	rec.Motive = detail.CollectedValue(codeMotive)
	rec.EvaluationResult, rec.EvaluationRationale = detail.Evaluation()

	if detail != nil {
		rec.Transcript = NormalizeTranscript(detail.Transcript)
	}
	return rec
}

// NormalizeTranscript collapses the remote transcript, whatever its shape,
// into an ordered sequence of turns. Returns nil when no transcript is
// available.
func NormalizeTranscript(raw json.RawMessage) []Turn {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// Not JSON at all; keep the raw text as a single turn.
		s := strings.TrimSpace(string(raw))
		if s == "" {
			return nil
		}
		return []Turn{{Text: s}}
	}
	return transcriptTurns(v)
}

func transcriptTurns(v any) []Turn {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []Turn{{Text: t}}
	case []any:
		turns := make([]Turn, 0, len(t))
		for _, el := range t {
			turns = append(turns, elementTurn(el))
		}
		if len(turns) == 0 {
			return nil
		}
		return turns
	case map[string]any:
		// A singular object: either a nested message sequence or a single
		// text carrier.
		if msgs, ok := t["messages"].([]any); ok {
			return transcriptTurns(msgs)
		}
		return []Turn{elementTurn(t)}
	default:
		return []Turn{{Text: FlattenText(v)}}
	}
}

// elementTurn maps one transcript element to a turn, pulling the role when
// the element carries one.
func elementTurn(el any) Turn {
	m, ok := el.(map[string]any)
	if !ok {
		return Turn{Text: FlattenText(el)}
	}
	turn := Turn{}
	if role, ok := m["role"].(string); ok {
		turn.Role = role
	}
	for _, key := range []string{"message", "text", "content"} {
		if v, ok := m[key]; ok {
			turn.Text = FlattenText(v)
			return turn
		}
	}
	// Unknown shape: keep it verbatim rather than dropping it.
	turn.Text = FlattenText(m)
	return turn
}

// FlattenText reduces any transcript content value to flat text. Flattening
// an already-flat string returns it unchanged, so the operation is
// idempotent. Unknown shapes serialize to their compact JSON form.
func FlattenText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, el := range t {
			parts = append(parts, FlattenText(el))
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		for _, key := range []string{"text", "content", "message"} {
			if inner, ok := t[key]; ok {
				return FlattenText(inner)
			}
		}
		if msgs, ok := t["messages"]; ok {
			return FlattenText(msgs)
		}
		return jsonText(t)
	default:
		return jsonText(v)
	}
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
