package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/stratoci/healer/pkg/observability/logger"
	"github.com/stratoci/healer/pkg/observability/tracing"
	"github.com/stratoci/healer/pkg/resilience"
)

const (
	DefaultWorkerReserveTimeout = time.Second
	DefaultWorkerStopTimeout    = 10 * time.Second
	DefaultWorkerAttemptTimeout = 30 * time.Second
)

// Handler processes consumed jobs.
type Handler func(ctx context.Context, job *Job) error

// WorkerConfig configures worker lifecycle and concurrency.
type WorkerConfig struct {
	Queues         []string
	Concurrency    int
	LeaseTTL       time.Duration
	ReserveTimeout time.Duration
	StopTimeout    time.Duration
	AttemptTimeout time.Duration
}

func (c *WorkerConfig) normalize() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if c.ReserveTimeout <= 0 {
		c.ReserveTimeout = DefaultWorkerReserveTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultWorkerStopTimeout
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultWorkerAttemptTimeout
	}
}

// Worker processes jobs from backend queues and reports terminal outcomes
// back through the backend, which publishes them on the event stream.
type Worker struct {
	backend Backend
	log     logger.Logger
	config  WorkerConfig

	mu       sync.RWMutex
	handlers map[string]Handler

	lifecycleMu sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewWorker creates a worker from backend + configuration.
func NewWorker(backend Backend, log logger.Logger, cfg WorkerConfig) (*Worker, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.normalize()

	queues := make([]string, 0, len(cfg.Queues))
	for _, queue := range cfg.Queues {
		trimmed := strings.TrimSpace(queue)
		if trimmed != "" {
			queues = append(queues, trimmed)
		}
	}
	if len(queues) == 0 {
		return nil, errors.New("at least one non-empty queue is required")
	}
	cfg.Queues = queues

	return &Worker{
		backend:  backend,
		log:      log,
		config:   cfg,
		handlers: map[string]Handler{},
	}, nil
}

// Register binds a handler to a logical job name.
func (w *Worker) Register(jobName string, handler Handler) error {
	if w == nil {
		return errors.New("worker is not initialized")
	}
	jobName = strings.TrimSpace(jobName)
	if jobName == "" {
		return errors.New("job name is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobName] = handler
	return nil
}

// Start launches worker loops and blocks until context cancellation.
func (w *Worker) Start(ctx context.Context) error {
	if w == nil {
		return errors.New("worker is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	w.lifecycleMu.Lock()
	if w.running {
		w.lifecycleMu.Unlock()
		return errors.New("worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.lifecycleMu.Unlock()

	for _, queue := range w.config.Queues {
		for idx := 0; idx < w.config.Concurrency; idx++ {
			w.wg.Add(1)
			go w.runQueueLoop(runCtx, queue)
		}
	}

	<-runCtx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), w.config.StopTimeout)
	defer stopCancel()
	return w.Stop(stopCtx)
}

// Stop requests graceful shutdown and waits for active workers to finish.
func (w *Worker) Stop(ctx context.Context) error {
	if w == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	w.lifecycleMu.Lock()
	if !w.running {
		w.lifecycleMu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.cancel = nil
	w.running = false
	w.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}

	waitCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waitCh:
		return nil
	}
}

func (w *Worker) runQueueLoop(ctx context.Context, queue string) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		reserveCtx, cancel := context.WithTimeout(ctx, w.config.ReserveTimeout)
		job, lease, err := w.backend.Reserve(reserveCtx, queue, w.config.LeaseTTL)
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.log.Warn("queue reserve failed", "queue", queue, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}
		if job == nil || lease == nil {
			continue
		}

		incrementJobInFlight(queue)
		if err := w.process(ctx, job, lease); err != nil {
			w.log.Warn("queue processing failed", "queue", queue, "job_id", job.ID, "job_name", job.Name, "error", err)
			recordJobProcessed(queue, job.Name, "error")
		}
		decrementJobInFlight(queue)
	}
}

func (w *Worker) process(ctx context.Context, job *Job, lease *Lease) error {
	traceCtx, span := tracing.StartMessagingSpan(
		ctx,
		tracing.SpanOperationMsgProcess,
		tracing.WithMessagingDestination(job.Queue),
		tracing.WithMessagingMessageID(job.ID),
		tracing.WithMessagingPayloadSize(len(job.Payload)),
	)
	span.SetAttributes(
		attribute.String("queue.job_name", strings.TrimSpace(job.Name)),
		attribute.Int("queue.attempt", job.Attempt),
		attribute.Int("queue.attempts_budget", job.Opts.Attempts),
	)
	defer span.End()

	handler, found := w.lookupHandler(job.Name)
	if !found {
		missingHandlerErr := fmt.Errorf("handler not registered for job %q", job.Name)
		tracing.RecordError(span, missingHandlerErr)
		if err := w.backend.Fail(traceCtx, lease, missingHandlerErr); err != nil {
			return fmt.Errorf("fail after missing handler: %w", err)
		}
		return nil
	}

	execErr := w.executeHandler(traceCtx, job, handler)
	if execErr != nil {
		tracing.RecordError(span, execErr)
		if err := w.backend.Fail(traceCtx, lease, execErr); err != nil {
			return fmt.Errorf("fail failed: %w", err)
		}
		return nil
	}

	if err := w.backend.Ack(traceCtx, lease); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("ack failed: %w", err)
	}
	tracing.RecordSuccess(span)
	return nil
}

func (w *Worker) executeHandler(ctx context.Context, job *Job, handler Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while handling job: %v; stack=%s", rec, string(debug.Stack()))
		}
	}()

	return resilience.WithTimeout(ctx, w.config.AttemptTimeout, func(runCtx context.Context) error {
		return handler(runCtx, job)
	})
}

func (w *Worker) lookupHandler(jobName string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	handler, ok := w.handlers[strings.TrimSpace(jobName)]
	return handler, ok
}
