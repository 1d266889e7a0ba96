// Package events publishes sync lifecycle notifications over NATS for
// external monitoring. Publishing is best-effort: failures are logged and
// never affect the run's outcome.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/paradixe-xz/evaInstance-sub001/internal/sync"
)

const (
	SubjectSyncStarted   = "eva.sync.started"
	SubjectSyncProgress  = "eva.sync.progress"
	SubjectSyncCompleted = "eva.sync.completed"
)

type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewPublisher(url, token string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Publisher{conn: nc, logger: logger}, nil
}

func (p *Publisher) Close() {
	p.conn.Close()
}

// SyncStarted implements sync.Notifier.
func (p *Publisher) SyncStarted(runID, agentID string, total int) {
	p.publish(SubjectSyncStarted, map[string]any{
		"run_id":    runID,
		"agent_id":  agentID,
		"total":     total,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// SyncProgress implements sync.Notifier.
func (p *Publisher) SyncProgress(runID string, processed, total int) {
	p.publish(SubjectSyncProgress, map[string]any{
		"run_id":    runID,
		"processed": processed,
		"total":     total,
	})
}

// SyncCompleted implements sync.Notifier.
func (p *Publisher) SyncCompleted(runID string, report *sync.Report) {
	p.publish(SubjectSyncCompleted, map[string]any{
		"run_id":    runID,
		"total":     report.Total,
		"synced":    report.Synced,
		"errors":    len(report.Errors),
		"truncated": report.Truncated,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(subject string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Warn("marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("publish event", "subject", subject, "error", err)
	}
}
