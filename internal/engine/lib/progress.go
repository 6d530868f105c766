package lib

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Status is the lifecycle step a progress event reports
type Status string

const (
	StatusStarted    Status = "started"
	StatusGenerating Status = "generating"
	StatusRunning    Status = "running"
	StatusRecovering Status = "recovering"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCompleted  Status = "completed"
)

// Progress is one event of a run. Function is empty for run-level events.
type Progress struct {
	RunID    string `json:"runId"`
	Function string `json:"function,omitempty"`
	NodeID   string `json:"nodeId,omitempty"`
	Status   Status `json:"status"`
	Attempt  int    `json:"attempt,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ProgressFunc reports one event
type ProgressFunc func(Progress)

// Subject is the NATS subject a run publishes on
func Subject(tenantID, runID string) string {
	return fmt.Sprintf("tenant.%s.run.%s.progress", tenantID, runID)
}

// ProgressReporter publishes run events to NATS
type ProgressReporter struct {
	conn    *nats.Conn
	subject string
	noop    bool
	logger  zerolog.Logger
}

// NewProgressReporter connects to natsURL. Best effort: an empty URL or a
// failed connection yields a reporter that only logs.
func NewProgressReporter(natsURL, tenantID, runID string, logger zerolog.Logger) *ProgressReporter {
	subject := Subject(tenantID, runID)
	if natsURL == "" {
		return &ProgressReporter{noop: true, subject: subject, logger: logger}
	}

	nc, err := nats.Connect(natsURL, nats.Name("nature-run-"+runID))
	if err != nil {
		logger.Warn().Err(err).Str("url", natsURL).Msg("NATS connection failed, progress reporting disabled")
		return &ProgressReporter{noop: true, subject: subject, logger: logger}
	}

	logger.Debug().Str("subject", subject).Msg("Publishing run progress")
	return &ProgressReporter{
		conn:    nc,
		subject: subject,
		logger:  logger,
	}
}

// Close drains and closes the NATS connection
func (r *ProgressReporter) Close() {
	if r.noop || r.conn == nil {
		return
	}
	if err := r.conn.Drain(); err != nil {
		r.logger.Warn().Err(err).Msg("NATS drain error")
	}
}

// ReportFunc returns a ProgressFunc bound to this reporter
func (r *ProgressReporter) ReportFunc() ProgressFunc {
	if r.noop {
		return func(p Progress) {
			r.logger.Trace().Str("function", p.Function).Str("status", string(p.Status)).Msg("progress (no-op)")
		}
	}

	return func(p Progress) {
		data, err := json.Marshal(p)
		if err != nil {
			r.logger.Warn().Err(err).Msg("progress marshal error")
			return
		}
		if err := r.conn.Publish(r.subject, data); err != nil {
			r.logger.Warn().Err(err).Msg("progress publish error")
		}
	}
}
