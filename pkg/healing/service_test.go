package healing

import (
	"context"
	"testing"
	"time"

	"github.com/stratoci/healer/pkg/config"
	"github.com/stratoci/healer/pkg/queue"
)

func testHealFunc(ctx context.Context, runID string) error { return nil }

func TestNewService_Validation(t *testing.T) {
	backend := newFakeBackend()
	log := &testLogger{}
	cfg := config.DefaultConfig()

	if _, err := NewService(nil, log, cfg, testHealFunc); err == nil {
		t.Fatal("expected error for nil backend")
	}
	if _, err := NewService(backend, nil, cfg, testHealFunc); err == nil {
		t.Fatal("expected error for nil logger")
	}
	if _, err := NewService(backend, log, nil, testHealFunc); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := NewService(backend, log, cfg, nil); err == nil {
		t.Fatal("expected error for nil heal function")
	}

	service, err := NewService(backend, log, cfg, testHealFunc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service.Producer() == nil {
		t.Fatal("expected producer to be wired")
	}
}

func TestService_StartSubscribesObserverAndStops(t *testing.T) {
	backend := newFakeBackend()
	log := &testLogger{}
	cfg := config.DefaultConfig()
	cfg.Healing.SweepInterval = 10 * time.Millisecond

	service, err := NewService(backend, log, cfg, testHealFunc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Start(ctx)
	}()

	select {
	case <-backend.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("event subscription was never established")
	}

	// Deliver a lifecycle event through the subscription and check it lands
	// in the observer's log output.
	backend.mu.Lock()
	handler := backend.handler
	backend.mu.Unlock()
	handler(ctx, &queue.Event{
		JobID:   AttemptKey("run-5", 2),
		Queue:   QueueName,
		Outcome: queue.OutcomeFailed,
		Reason:  "",
	})

	if records := log.byLevel("warn"); len(records) != 1 {
		t.Fatalf("expected 1 warn record from observer, got %d", len(records))
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := service.Stop(stopCtx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("service did not shut down")
	}
}

func TestService_RetentionSweepRuns(t *testing.T) {
	backend := newFakeBackend()
	cfg := config.DefaultConfig()
	cfg.Healing.SweepInterval = 5 * time.Millisecond

	service, err := NewService(backend, &testLogger{}, cfg, testHealFunc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Start(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		backend.mu.Lock()
		swept := backend.swept
		backend.mu.Unlock()
		if swept > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("retention sweep never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = service.Stop(stopCtx)
	<-done
}
