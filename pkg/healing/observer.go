package healing

import (
	"context"
	"strings"

	"github.com/stratoci/healer/pkg/observability/logger"
	"github.com/stratoci/healer/pkg/queue"
)

// Observer converts queue lifecycle events into structured log records. It is
// a one-way consumer: it never re-enqueues, never affects scheduling, and
// never propagates a panic back into the event-delivery loop.
type Observer struct {
	log logger.Logger
}

// NewObserver creates an observer writing to the given logger.
func NewObserver(log logger.Logger) *Observer {
	return &Observer{log: log}
}

// HandleEvent is the queue.EventHandler entry point.
func (o *Observer) HandleEvent(ctx context.Context, event *queue.Event) {
	defer func() {
		// A logging failure must never take down the event loop.
		_ = recover()
	}()

	if o == nil || o.log == nil || event == nil {
		return
	}

	switch event.Outcome {
	case queue.OutcomeCompleted:
		o.OnCompleted(event.JobID)
	case queue.OutcomeFailed:
		o.OnFailed(event.JobID, event.Reason)
	}
}

// OnCompleted records that the identified healing job finished successfully.
func (o *Observer) OnCompleted(jobID string) {
	if o == nil || o.log == nil {
		return
	}
	o.log.Debug("healing job completed", "job_id", jobID)
}

// OnFailed records that the identified healing job failed. An absent reason
// is reported as "unknown" rather than an empty string.
func (o *Observer) OnFailed(jobID, reason string) {
	if o == nil || o.log == nil {
		return
	}
	if strings.TrimSpace(reason) == "" {
		reason = UnknownFailureReason
	}
	o.log.Warn("healing job failed", "job_id", jobID, "reason", reason)
}
