package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/paradixe-xz/evaInstance-sub001/internal/elevenlabs"
)

// Detailer fetches the full payload of a single conversation.
type Detailer interface {
	GetConversation(ctx context.Context, id string) (*elevenlabs.Detail, error)
}

// Upserter persists a record, creating or fully overwriting by id.
type Upserter interface {
	UpsertConversation(ctx context.Context, rec ConversationRecord) error
}

// Notifier receives coarse progress signals. It is a side effect for
// external monitoring only and never influences the run's outcome.
type Notifier interface {
	SyncStarted(runID, agentID string, total int)
	SyncProgress(runID string, processed, total int)
	SyncCompleted(runID string, report *Report)
}

// Options carries the process-level sync defaults. Explicit SyncAll
// arguments take precedence over all of them.
type Options struct {
	AgentID          string // default agent filter
	DefaultStartUnix int64  // from a configured start date, 0 = unset
	DefaultEndUnix   int64  // from a configured end date, 0 = unset
	LastDays         int    // "last N days" shorthand, 0 = unset
	Incremental      bool   // resume from the last successful run time
	ProgressEvery    int    // items between progress notifications
}

// Orchestrator runs the full sync: walk the paginated list, then fetch,
// normalize and upsert each conversation independently.
type Orchestrator struct {
	walker   *Walker
	detailer Detailer
	store    Upserter
	notifier Notifier
	state    *State
	opts     Options
	logger   *slog.Logger

	now func() time.Time
}

func NewOrchestrator(walker *Walker, detailer Detailer, store Upserter, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 25
	}
	return &Orchestrator{
		walker:   walker,
		detailer: detailer,
		store:    store,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNotifier attaches a progress notifier.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// WithState attaches run bookkeeping, enabling incremental windows.
func (o *Orchestrator) WithState(s *State) *Orchestrator {
	o.state = s
	return o
}

// SyncAll syncs every conversation in the effective window. Zero arguments
// mean "not given" and fall back to the configured defaults.
//
// The run always completes with a report unless the very first list fetch
// fails with nothing accumulated; per-item failures are recorded in the
// report and never abort the run.
func (o *Orchestrator) SyncAll(ctx context.Context, agentID string, startUnix, endUnix int64) (*Report, error) {
	if agentID == "" {
		agentID = o.opts.AgentID
	}
	startUnix, endUnix = o.window(agentID, startUnix, endUnix)

	report := &Report{
		RunID:     uuid.NewString(),
		AgentID:   agentID,
		StartUnix: startUnix,
		EndUnix:   endUnix,
	}
	startedAt := o.now()

	o.logger.Info("sync starting",
		"run_id", report.RunID,
		"agent_id", agentID,
		"start_unix", startUnix,
		"end_unix", endUnix,
	)

	items, anomaly, walkErr := o.walker.Walk(ctx, agentID, startUnix, endUnix)
	if walkErr != nil {
		if len(items) == 0 {
			return nil, fmt.Errorf("list conversations: %w", walkErr)
		}
		// Partial accumulation: sync what we have, record the shortfall.
		report.Truncated = true
		report.Errors = append(report.Errors, ItemError{
			Stage:   "list",
			Message: walkErr.Error(),
		})
		o.logger.Warn("walk aborted with partial list, continuing",
			"run_id", report.RunID,
			"accumulated", len(items),
			"error", walkErr,
		)
	}
	if anomaly {
		// The list may be incomplete even though the walk ended cleanly.
		report.Truncated = true
		report.Errors = append(report.Errors, ItemError{
			Stage:   "list",
			Message: "pagination anomaly: has_more with no next cursor",
		})
	}
	report.Total = len(items)

	if o.notifier != nil {
		o.notifier.SyncStarted(report.RunID, agentID, report.Total)
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			o.logger.Info("sync cancelled, returning partial report",
				"run_id", report.RunID,
				"processed", i,
				"total", report.Total,
			)
			return report, err
		}

		if err := o.syncOne(ctx, agentID, item, report); err != nil {
			// Already recorded; keep going.
			continue
		}
		report.Synced++

		if o.notifier != nil && (i+1)%o.opts.ProgressEvery == 0 {
			o.notifier.SyncProgress(report.RunID, i+1, report.Total)
		}
	}

	if o.state != nil {
		// A dirty run holds the incremental watermark back, so conversations
		// that failed (or were never listed) fall inside the next window.
		clean := !report.Truncated && len(report.Errors) == 0
		o.state.MarkRun(report.RunID, agentID, startedAt, report.Synced, clean)
		for _, e := range report.Errors {
			if e.Stage == "list" {
				o.state.AddError(e.Message)
			}
		}
		if err := o.state.Save(); err != nil {
			o.logger.Warn("failed to save sync state", "error", err)
		}
	}

	if o.notifier != nil {
		o.notifier.SyncCompleted(report.RunID, report)
	}

	o.logger.Info("sync complete",
		"run_id", report.RunID,
		"total", report.Total,
		"synced", report.Synced,
		"errors", len(report.Errors),
		"truncated", report.Truncated,
	)
	return report, nil
}

func (o *Orchestrator) syncOne(ctx context.Context, agentID string, item elevenlabs.ListItem, report *Report) error {
	detail, err := o.detailer.GetConversation(ctx, item.ConversationID)
	if err != nil {
		o.logger.Error("detail fetch failed",
			"conversation_id", item.ConversationID,
			"error", err,
		)
		report.Errors = append(report.Errors, ItemError{
			ConversationID: item.ConversationID,
			Stage:          "detail",
			Message:        err.Error(),
		})
		return err
	}

	rec := Normalize(item, detail)
	if rec.AgentID == nil && agentID != "" {
		rec.AgentID = &agentID
	}

	if err := o.store.UpsertConversation(ctx, rec); err != nil {
		o.logger.Error("persist failed",
			"conversation_id", rec.ID,
			"error", err,
		)
		report.Errors = append(report.Errors, ItemError{
			ConversationID: rec.ID,
			Stage:          "persist",
			Message:        err.Error(),
		})
		return err
	}
	return nil
}

// window resolves the effective time bounds. Priority for the lower bound:
// explicit argument, configured start date, last-N-days shorthand, last
// successful run (incremental), unbounded.
func (o *Orchestrator) window(agentID string, startUnix, endUnix int64) (int64, int64) {
	if endUnix == 0 {
		endUnix = o.opts.DefaultEndUnix
	}
	if startUnix != 0 {
		return startUnix, endUnix
	}
	if o.opts.DefaultStartUnix != 0 {
		return o.opts.DefaultStartUnix, endUnix
	}
	if o.opts.LastDays > 0 {
		return o.now().AddDate(0, 0, -o.opts.LastDays).Unix(), endUnix
	}
	if o.opts.Incremental && o.state != nil {
		if last := o.state.LastSync(agentID); !last.IsZero() {
			return last.Unix(), endUnix
		}
	}
	return 0, endUnix
}
