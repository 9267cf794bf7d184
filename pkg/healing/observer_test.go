package healing

import (
	"context"
	"testing"
	"time"

	"github.com/stratoci/healer/pkg/queue"
)

func TestObserver_OnCompletedLogsDebug(t *testing.T) {
	log := &testLogger{}
	observer := NewObserver(log)

	observer.HandleEvent(context.Background(), &queue.Event{
		JobID:   "run-1:attempt:1",
		Queue:   QueueName,
		Outcome: queue.OutcomeCompleted,
		At:      time.Now().UTC(),
	})

	records := log.byLevel("debug")
	if len(records) != 1 {
		t.Fatalf("expected 1 debug record, got %d", len(records))
	}
	if len(log.byLevel("warn")) != 0 {
		t.Fatal("completion must not log at warn level")
	}
}

func TestObserver_OnFailedLogsWarnWithReason(t *testing.T) {
	log := &testLogger{}
	observer := NewObserver(log)

	observer.HandleEvent(context.Background(), &queue.Event{
		JobID:   "run-1:attempt:2",
		Queue:   QueueName,
		Outcome: queue.OutcomeFailed,
		Reason:  "compile step timed out",
	})

	records := log.byLevel("warn")
	if len(records) != 1 {
		t.Fatalf("expected 1 warn record, got %d", len(records))
	}
	if !containsPair(records[0].args, "reason", "compile step timed out") {
		t.Fatalf("warn record missing failure reason: %v", records[0].args)
	}
}

func TestObserver_MissingReasonDefaultsToUnknown(t *testing.T) {
	log := &testLogger{}
	observer := NewObserver(log)

	for _, reason := range []string{"", "   "} {
		observer.OnFailed("run-1:attempt:1", reason)
	}

	records := log.byLevel("warn")
	if len(records) != 2 {
		t.Fatalf("expected 2 warn records, got %d", len(records))
	}
	for _, record := range records {
		if !containsPair(record.args, "reason", UnknownFailureReason) {
			t.Fatalf("expected reason %q, got %v", UnknownFailureReason, record.args)
		}
	}
}

func TestObserver_HandleEventNeverPanics(t *testing.T) {
	observer := NewObserver(&testLogger{panicOn: "warn"})

	// A misbehaving logger must not take down the event-delivery loop.
	observer.HandleEvent(context.Background(), &queue.Event{
		JobID:   "run-1:attempt:1",
		Outcome: queue.OutcomeFailed,
	})

	observer.HandleEvent(context.Background(), nil)

	var nilObserver *Observer
	nilObserver.HandleEvent(context.Background(), &queue.Event{Outcome: queue.OutcomeCompleted})
}

func TestObserver_IgnoresUnknownOutcome(t *testing.T) {
	log := &testLogger{}
	observer := NewObserver(log)

	observer.HandleEvent(context.Background(), &queue.Event{
		JobID:   "run-1:attempt:1",
		Outcome: queue.Outcome("stalled"),
	})

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.records) != 0 {
		t.Fatalf("expected no records for unknown outcome, got %d", len(log.records))
	}
}

func containsPair(args []any, key string, value any) bool {
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == key && args[i+1] == value {
			return true
		}
	}
	return false
}
