package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/paradixe-xz/evaInstance-sub001/internal/elevenlabs"
	"github.com/paradixe-xz/evaInstance-sub001/internal/retry"
)

// Lister is the page source the walker drives.
type Lister interface {
	ListConversations(ctx context.Context, cursor, agentID string, startUnix, endUnix int64) (*elevenlabs.Page, error)
}

const (
	// Courtesy pause between successful page fetches.
	defaultPageDelay = 500 * time.Millisecond
	// Longer pause before resuming the same cursor after a transient failure.
	defaultResumeDelay = 15 * time.Second
	// Transient failures tolerated mid-walk before giving up on the cursor.
	defaultMaxResumes = 3
)

// Walker drives cursor-based pagination across the full result set,
// accumulating pages into one slice.
type Walker struct {
	client      Lister
	logger      *slog.Logger
	pageDelay   time.Duration
	resumeDelay time.Duration
	maxResumes  int

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWalker(client Lister, logger *slog.Logger) *Walker {
	return &Walker{
		client:      client,
		logger:      logger,
		pageDelay:   defaultPageDelay,
		resumeDelay: defaultResumeDelay,
		maxResumes:  defaultMaxResumes,
		sleep:       retry.Wait,
	}
}

// Walk fetches every page of the conversation list for the given filters.
// On failure it returns whatever was accumulated so far together with the
// error; the caller decides whether a partial list is usable.
//
// An API response claiming has_more with no continuation cursor is a
// data-quality anomaly: the walk terminates rather than spinning on the
// same page forever, and reports it via the anomaly return so callers
// can record that the list may be incomplete.
func (w *Walker) Walk(ctx context.Context, agentID string, startUnix, endUnix int64) (items []elevenlabs.ListItem, anomaly bool, err error) {
	var accumulated []elevenlabs.ListItem
	cursor := ""
	resumes := 0

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return accumulated, false, err
		}

		resp, err := w.client.ListConversations(ctx, cursor, agentID, startUnix, endUnix)
		if err != nil {
			// With a cursor in hand a transient failure is resumable: wait
			// longer and retry the same cursor instead of aborting.
			if cursor != "" && resumes < w.maxResumes && elevenlabs.IsTransient(err) {
				resumes++
				w.logger.Warn("transient failure mid-walk, resuming same cursor",
					"cursor", cursor,
					"resume", resumes,
					"max_resumes", w.maxResumes,
					"error", err,
				)
				if serr := w.sleep(ctx, w.resumeDelay); serr != nil {
					return accumulated, false, serr
				}
				page--
				continue
			}
			return accumulated, false, err
		}

		accumulated = append(accumulated, resp.Items...)
		w.logger.Debug("page fetched",
			"page", page,
			"items", len(resp.Items),
			"accumulated", len(accumulated),
			"has_more", resp.HasMore,
		)

		if !resp.HasMore {
			return accumulated, false, nil
		}
		if resp.NextCursor == "" {
			w.logger.Warn("pagination anomaly: has_more with no next cursor, terminating walk",
				"page", page,
				"accumulated", len(accumulated),
			)
			return accumulated, true, nil
		}
		cursor = resp.NextCursor

		if err := w.sleep(ctx, w.pageDelay); err != nil {
			return accumulated, false, err
		}
	}
}
