package healing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stratoci/healer/pkg/observability/logger"
	"github.com/stratoci/healer/pkg/observability/tracing"
	"github.com/stratoci/healer/pkg/queue"
)

// Producer submits healing attempts to the queue substrate. It holds no
// per-run state: the attempt counter is owned by the calling orchestrator,
// and every submission is a pure function of (runID, attemptNo).
type Producer struct {
	backend    queue.Backend
	log        logger.Logger
	retryDelay time.Duration
}

// NewProducer creates a healing producer over an established backend handle.
// retryDelay <= 0 selects DefaultRetryDelay.
func NewProducer(backend queue.Backend, log logger.Logger, retryDelay time.Duration) (*Producer, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Producer{
		backend:    backend,
		log:        log,
		retryDelay: retryDelay,
	}, nil
}

// SubmitHealingAttempt enqueues exactly one unit of work for the given run
// and attempt number. A resubmission with the same pair is absorbed by the
// substrate's idempotency key and leaves the existing job untouched. Enqueue
// failures propagate to the caller; the producer never retries them.
func (p *Producer) SubmitHealingAttempt(ctx context.Context, runID string, attemptNo int) error {
	if p == nil || p.backend == nil {
		return errors.New("producer is not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return errors.New("run id is required")
	}
	if attemptNo < 1 {
		return errors.New("attempt number must be >= 1")
	}

	payload, err := queue.MarshalPayloadJSON(Payload{RunID: runID})
	if err != nil {
		return err
	}

	jobKey := AttemptKey(runID, attemptNo)
	job := &queue.Job{
		ID:      jobKey,
		Name:    JobName,
		Queue:   QueueName,
		Payload: payload,
		Opts: queue.Options{
			// One execution per submission: retries happen only through a
			// new submission with an incremented attempt number.
			Attempts:         1,
			Delay:            AttemptDelay(attemptNo, p.retryDelay),
			RemoveOnComplete: true,
			RemoveOnFailed:   false,
		},
	}

	traceCtx, span := tracing.StartMessagingSpan(
		ctx,
		tracing.SpanOperationMsgPublish,
		tracing.WithMessagingDestination(QueueName),
		tracing.WithMessagingMessageID(jobKey),
		tracing.WithMessagingPayloadSize(len(payload)),
	)
	defer span.End()

	if err := p.backend.Enqueue(traceCtx, job); err != nil {
		tracing.RecordError(span, err)
		return err
	}

	tracing.RecordSuccess(span)
	p.log.Debug("healing attempt submitted", "run_id", runID, "attempt", attemptNo)
	return nil
}
