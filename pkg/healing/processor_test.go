package healing

import (
	"context"
	"errors"
	"testing"

	"github.com/stratoci/healer/pkg/queue"
)

func TestNewProcessor_RequiresHealFunc(t *testing.T) {
	if _, err := NewProcessor(nil); err == nil {
		t.Fatal("expected error for nil heal function")
	}
}

func TestProcessor_InvokesHealWithRunID(t *testing.T) {
	var healed []string
	processor, err := NewProcessor(func(ctx context.Context, runID string) error {
		healed = append(healed, runID)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, err := queue.MarshalPayloadJSON(Payload{RunID: "run-42"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := &queue.Job{ID: AttemptKey("run-42", 1), Name: JobName, Queue: QueueName, Payload: payload}
	if err := processor(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(healed) != 1 || healed[0] != "run-42" {
		t.Fatalf("unexpected heal invocations: %v", healed)
	}
}

func TestProcessor_PropagatesHealError(t *testing.T) {
	healErr := errors.New("rerun could not be scheduled")
	processor, err := NewProcessor(func(ctx context.Context, runID string) error {
		return healErr
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, _ := queue.MarshalPayloadJSON(Payload{RunID: "run-1"})
	err = processor(context.Background(), &queue.Job{Payload: payload})
	if !errors.Is(err, healErr) {
		t.Fatalf("expected heal error to propagate, got %v", err)
	}
}

func TestProcessor_RejectsMalformedPayloads(t *testing.T) {
	processor, err := NewProcessor(func(ctx context.Context, runID string) error {
		t.Fatal("heal must not run for a malformed payload")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := processor(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil job")
	}
	if err := processor(context.Background(), &queue.Job{Payload: []byte("not json")}); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if err := processor(context.Background(), &queue.Job{Payload: []byte(`{"run_id":""}`)}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}
