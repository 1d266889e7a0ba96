package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/paradixe-xz/evaInstance-sub001/internal/sync"
)

// ErrNotFound is returned when a conversation id has no stored record.
var ErrNotFound = errors.New("conversation not found")

// UpsertConversation creates the record or fully overwrites the existing one
// with the same id. Every field is replaced, so a nil in the new record
// clears a previously stored value. Safe to call repeatedly.
func (s *Store) UpsertConversation(ctx context.Context, rec sync.ConversationRecord) error {
	transcript, err := transcriptJSON(rec.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (
			id, agent_id, status, lead_phone_number,
			client_type, requested_amount, age, approved, channel, motive,
			evaluation_result, evaluation_rationale, transcript,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			agent_id             = EXCLUDED.agent_id,
			status               = EXCLUDED.status,
			lead_phone_number    = EXCLUDED.lead_phone_number,
			client_type          = EXCLUDED.client_type,
			requested_amount     = EXCLUDED.requested_amount,
			age                  = EXCLUDED.age,
			approved             = EXCLUDED.approved,
			channel              = EXCLUDED.channel,
			motive               = EXCLUDED.motive,
			evaluation_result    = EXCLUDED.evaluation_result,
			evaluation_rationale = EXCLUDED.evaluation_rationale,
			transcript           = EXCLUDED.transcript,
			updated_at           = now()`,
		rec.ID, rec.AgentID, rec.Status, rec.LeadPhoneNumber,
		rec.ClientType, rec.RequestedAmount, rec.Age, rec.Approved, rec.Channel, rec.Motive,
		rec.EvaluationResult, rec.EvaluationRationale, transcript,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation %s: %w", rec.ID, err)
	}
	return nil
}

// GetConversation fetches one record by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*sync.ConversationRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, status, lead_phone_number,
		       client_type, requested_amount, age, approved, channel, motive,
		       evaluation_result, evaluation_rationale, transcript
		FROM conversations WHERE id = $1`, id)

	rec, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return rec, nil
}

// ListConversations returns records ordered by creation time, newest first.
// An empty agentID matches all agents; limit <= 0 means no limit.
func (s *Store) ListConversations(ctx context.Context, agentID string, limit int) ([]sync.ConversationRecord, error) {
	query := `
		SELECT id, agent_id, status, lead_phone_number,
		       client_type, requested_amount, age, approved, channel, motive,
		       evaluation_result, evaluation_rationale, transcript
		FROM conversations`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = $1`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []sync.ConversationRecord
	for rows.Next() {
		rec, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*sync.ConversationRecord, error) {
	var rec sync.ConversationRecord
	var transcript []byte
	err := row.Scan(
		&rec.ID, &rec.AgentID, &rec.Status, &rec.LeadPhoneNumber,
		&rec.ClientType, &rec.RequestedAmount, &rec.Age, &rec.Approved, &rec.Channel, &rec.Motive,
		&rec.EvaluationResult, &rec.EvaluationRationale, &transcript,
	)
	if err != nil {
		return nil, err
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &rec.Transcript); err != nil {
			return nil, fmt.Errorf("unmarshal transcript: %w", err)
		}
	}
	return &rec, nil
}

// transcriptJSON renders the transcript for the JSONB column; a missing
// transcript stores as SQL NULL, never as an empty array.
func transcriptJSON(turns []sync.Turn) (any, error) {
	if turns == nil {
		return nil, nil
	}
	b, err := json.Marshal(turns)
	if err != nil {
		return nil, err
	}
	return b, nil
}
