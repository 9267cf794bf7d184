package healing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stratoci/healer/pkg/config"
	"github.com/stratoci/healer/pkg/observability/logger"
	"github.com/stratoci/healer/pkg/queue"
)

// Service binds the healing queue together: the producer, the worker that
// executes heal jobs, the observer subscribed to lifecycle events and the
// retention sweep. It owns the goroutines for the latter two and drains them
// on Stop.
type Service struct {
	backend  queue.Backend
	producer *Producer
	observer *Observer
	worker   *queue.Worker
	log      logger.Logger

	sweepInterval time.Duration

	lifecycleMu sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewService assembles the healing dispatch service. heal is the externally
// supplied healing action executed for each consumed job.
func NewService(
	backend queue.Backend,
	log logger.Logger,
	cfg *config.Config,
	heal HealFunc,
) (*Service, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	producer, err := NewProducer(backend, log, cfg.Healing.RetryDelay)
	if err != nil {
		return nil, err
	}

	worker, err := queue.NewWorker(backend, log, queue.WorkerConfig{
		Queues:         []string{QueueName},
		Concurrency:    cfg.Queue.Worker.Concurrency,
		LeaseTTL:       cfg.Queue.Worker.LeaseTTL,
		ReserveTimeout: cfg.Queue.Worker.ReserveTimeout,
		StopTimeout:    cfg.Queue.Worker.StopTimeout,
		AttemptTimeout: cfg.Queue.Worker.AttemptTimeout,
	})
	if err != nil {
		return nil, err
	}

	processor, err := NewProcessor(heal)
	if err != nil {
		return nil, err
	}
	if err := worker.Register(JobName, processor); err != nil {
		return nil, err
	}

	sweepInterval := cfg.Healing.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}

	return &Service{
		backend:       backend,
		producer:      producer,
		observer:      NewObserver(log),
		worker:        worker,
		log:           log,
		sweepInterval: sweepInterval,
	}, nil
}

// Producer exposes the submission surface for orchestrators.
func (s *Service) Producer() *Producer {
	return s.producer
}

// Start launches the worker loops, the event subscription and the retention
// sweeper, then blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("service is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	s.lifecycleMu.Lock()
	if s.running {
		s.lifecycleMu.Unlock()
		return errors.New("service already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.lifecycleMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.backend.SubscribeEvents(runCtx, QueueName, s.observer.HandleEvent); err != nil {
			s.log.Error("healing event subscription terminated", "error", err)
		}
	}()

	s.wg.Add(1)
	go s.runRetentionSweep(runCtx)

	err := s.worker.Start(runCtx)

	cancel()
	s.wg.Wait()
	s.lifecycleMu.Lock()
	s.running = false
	s.cancel = nil
	s.lifecycleMu.Unlock()
	return err
}

// Stop requests graceful shutdown. Safe to call more than once.
func (s *Service) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.lifecycleMu.Lock()
	cancel := s.cancel
	s.lifecycleMu.Unlock()
	if cancel != nil {
		cancel()
	}

	return s.worker.Stop(ctx)
}

func (s *Service) runRetentionSweep(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.backend.SweepCompleted(ctx, QueueName)
			if err != nil {
				s.log.Warn("healing retention sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.log.Debug("healing retention sweep pruned completed jobs", "removed", removed)
			}
		}
	}
}
