package queue

import (
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func xMessage(values map[string]any) redis.XMessage {
	return redis.XMessage{ID: "1-1", Values: values}
}

func TestRedisBackendConfigNormalize(t *testing.T) {
	cfg := RedisBackendConfig{}
	cfg.normalize()

	if cfg.Prefix == "" {
		t.Fatal("expected default redis prefix")
	}
	if cfg.OperationTimeout <= 0 {
		t.Fatal("expected positive operation timeout")
	}
	if cfg.PollInterval <= 0 {
		t.Fatal("expected positive poll interval")
	}
	if cfg.TransferBatch <= 0 {
		t.Fatal("expected positive transfer batch")
	}
	if cfg.EventStreamMaxLen != DefaultEventStreamMaxLen {
		t.Fatalf("expected default event stream cap %d, got %d", DefaultEventStreamMaxLen, cfg.EventStreamMaxLen)
	}
	if cfg.CompletedRetention != DefaultCompletedRetention {
		t.Fatalf("expected default completed retention %s, got %s", DefaultCompletedRetention, cfg.CompletedRetention)
	}
}

func TestNewRedisBackend_ValidationErrors(t *testing.T) {
	if _, err := NewRedisBackend(RedisBackendConfig{
		URL: "redis://localhost:6379",
	}, nil); err == nil {
		t.Fatal("expected logger validation error")
	}

	_, err := NewRedisBackend(RedisBackendConfig{}, &workerTestLogger{})
	if err == nil || !strings.Contains(err.Error(), "redis url is required") {
		t.Fatalf("expected missing redis url error, got %v", err)
	}

	_, err = NewRedisBackend(RedisBackendConfig{
		URL: "://bad-url",
	}, &workerTestLogger{})
	if err == nil {
		t.Fatal("expected invalid redis url error")
	}
}

func TestRedisBackendKeyBuilders(t *testing.T) {
	backend := &RedisBackend{
		config: RedisBackendConfig{
			Prefix:           "healer:queue:",
			OperationTimeout: time.Second,
		},
	}

	if got := backend.idsKey("CI_HEALING"); got != "healer:queue:queue:CI_HEALING:ids" {
		t.Fatalf("unexpected ids key: %s", got)
	}
	if got := backend.readyKey("CI_HEALING"); got != "healer:queue:queue:CI_HEALING:ready" {
		t.Fatalf("unexpected ready key: %s", got)
	}
	if got := backend.delayedKey("CI_HEALING"); got != "healer:queue:queue:CI_HEALING:delayed" {
		t.Fatalf("unexpected delayed key: %s", got)
	}
	if got := backend.completedKey("CI_HEALING"); got != "healer:queue:queue:CI_HEALING:completed" {
		t.Fatalf("unexpected completed key: %s", got)
	}
	if got := backend.eventsKey("CI_HEALING"); got != "healer:queue:queue:CI_HEALING:events" {
		t.Fatalf("unexpected events key: %s", got)
	}
	if got := backend.leaseKey("token-1"); got != "healer:queue:lease:token-1" {
		t.Fatalf("unexpected lease key: %s", got)
	}
	if got := backend.failedIndexKey("CI_HEALING"); got != "healer:queue:failed:index:CI_HEALING" {
		t.Fatalf("unexpected failed index key: %s", got)
	}
	if got := backend.failedEntryKey("CI_HEALING", "id-1"); got != "healer:queue:failed:entry:CI_HEALING:id-1" {
		t.Fatalf("unexpected failed entry key: %s", got)
	}
}

func TestDecodeStreamEvent(t *testing.T) {
	at := time.Now().UTC().Truncate(time.Millisecond)

	event := decodeStreamEvent("CI_HEALING", xMessage(map[string]any{
		"id":      "evt-1",
		"job_id":  "run-1:attempt:2",
		"outcome": "failed",
		"reason":  "compile step timed out",
		"at":      at.Format(time.RFC3339Nano),
	}))
	if event == nil {
		t.Fatal("expected decoded event")
	}
	if event.Outcome != OutcomeFailed {
		t.Fatalf("unexpected outcome: %s", event.Outcome)
	}
	if event.JobID != "run-1:attempt:2" {
		t.Fatalf("unexpected job id: %s", event.JobID)
	}
	if event.Reason != "compile step timed out" {
		t.Fatalf("unexpected reason: %s", event.Reason)
	}
	if !event.At.Equal(at) {
		t.Fatalf("unexpected timestamp: %s", event.At)
	}

	if got := decodeStreamEvent("CI_HEALING", xMessage(map[string]any{
		"outcome": "stalled",
	})); got != nil {
		t.Fatalf("expected unknown outcome to be dropped, got %+v", got)
	}
}

func TestRandomTokenIsUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		token := randomToken()
		if token == "" {
			t.Fatal("expected non-empty token")
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("token collision: %s", token)
		}
		seen[token] = struct{}{}
	}
}
