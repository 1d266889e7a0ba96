package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultStatePath is where run bookkeeping lives unless configured.
const DefaultStatePath = "~/.eva/sync-state.json"

// State tracks sync bookkeeping across runs: the last successful sync time
// per agent (used for incremental windows) and rolling counters.
type State struct {
	LastRunID   string               `json:"last_run_id"`
	LastRunAt   time.Time            `json:"last_run_at"`
	LastSyncAt  map[string]time.Time `json:"last_sync_at"` // keyed by agent id
	TotalSynced int                  `json:"total_synced"`
	Errors      []string             `json:"errors"`

	path string // not serialized
}

// LoadState loads the sync state from disk, or creates a fresh one.
func LoadState(path string) (*State, error) {
	p := expandHome(path)

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{
				LastSyncAt: make(map[string]time.Time),
				path:       p,
			}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.LastSyncAt == nil {
		s.LastSyncAt = make(map[string]time.Time)
	}
	s.path = p
	return &s, nil
}

// Save persists the state to disk.
func (s *State) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

// LastSync returns the last successful sync time for the agent, or zero.
func (s *State) LastSync(agentID string) time.Time {
	return s.LastSyncAt[agentID]
}

// MarkRun records a completed run. The incremental watermark only advances
// on a clean run: after a truncated list or a per-item failure the old
// watermark stays, so the missed conversations are re-listed next time.
func (s *State) MarkRun(runID, agentID string, at time.Time, synced int, clean bool) {
	s.LastRunID = runID
	s.LastRunAt = at
	if clean {
		s.LastSyncAt[agentID] = at
	}
	s.TotalSynced += synced
}

// AddError records a run-level error message.
func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
