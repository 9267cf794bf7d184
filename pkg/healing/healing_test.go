package healing

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAttemptKey(t *testing.T) {
	if got := AttemptKey("run-1", 1); got != "run-1:attempt:1" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := AttemptKey("  run-1  ", 3); got != "run-1:attempt:3" {
		t.Fatalf("expected surrounding whitespace to be trimmed, got %s", got)
	}
}

func TestAttemptDelay(t *testing.T) {
	if got := AttemptDelay(1, 10*time.Second); got != 0 {
		t.Fatalf("first attempt must run immediately, got %s", got)
	}
	if got := AttemptDelay(2, 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected flat delay, got %s", got)
	}
	if got := AttemptDelay(50, 10*time.Second); got != 10*time.Second {
		t.Fatalf("delay must not grow with attempt number, got %s", got)
	}
}

func TestProperty_AttemptKeyDeterministicAndCollisionFree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	runIDs := gen.OneConstOf("run-a", "run-b", "run-42", "pipeline/77", "deadbeef")
	attempts := gen.IntRange(1, 50)

	properties.Property("equal inputs always map to the same key", prop.ForAll(
		func(runID string, attemptNo int) bool {
			return AttemptKey(runID, attemptNo) == AttemptKey(runID, attemptNo)
		},
		runIDs, attempts,
	))

	properties.Property("distinct attempt numbers never collide", prop.ForAll(
		func(runID string, a, b int) bool {
			if a == b {
				return true
			}
			return AttemptKey(runID, a) != AttemptKey(runID, b)
		},
		runIDs, attempts, attempts,
	))

	properties.Property("distinct runs never collide", prop.ForAll(
		func(a, b string, attemptNo int) bool {
			if a == b {
				return true
			}
			return AttemptKey(a, attemptNo) != AttemptKey(b, attemptNo)
		},
		runIDs, runIDs, attempts,
	))

	properties.TestingRun(t)
}

func TestProperty_AttemptDelayIsFlat(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every attempt after the first gets the same delay", prop.ForAll(
		func(attemptNo int, delayMillis int) bool {
			retryDelay := time.Duration(delayMillis) * time.Millisecond
			got := AttemptDelay(attemptNo, retryDelay)
			if attemptNo <= 1 {
				return got == 0
			}
			return got == retryDelay
		},
		gen.IntRange(1, 1000), gen.IntRange(1, 60_000),
	))

	properties.TestingRun(t)
}
