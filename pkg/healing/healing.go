// Package healing dispatches self-healing attempts for failed CI runs.
//
// Each run needing healing is a bounded sequence of caller-numbered attempts.
// Every attempt becomes one idempotent job on the CI_HEALING queue: the job
// key is derived from the run ID and attempt number, so resubmitting the same
// attempt collapses into the existing job. Attempts after the first are
// delayed by a flat interval to give transient conditions time to resolve.
package healing

import (
	"strconv"
	"strings"
	"time"
)

const (
	// QueueName is the queue all healing attempts are dispatched to.
	QueueName = "CI_HEALING"
	// JobName is the handler name healing jobs are registered under.
	JobName = "heal-run"

	// DefaultRetryDelay is the flat delay applied to every attempt after
	// the first. The delay is intentionally not exponential: a run either
	// heals within a couple of attempts or needs human attention.
	DefaultRetryDelay = 10 * time.Second

	// UnknownFailureReason marks failure events whose reason the substrate
	// did not supply.
	UnknownFailureReason = "unknown"

	attemptKeySeparator = ":attempt:"
)

// Payload is the job payload a heal processor receives. The attempt number
// is encoded only in the job key; the processor re-evaluates the run from
// scratch and does not need it.
type Payload struct {
	RunID string `json:"run_id"`
}

// AttemptKey derives the idempotency key for one healing attempt. The key is
// a pure function of its inputs: equal (runID, attemptNo) pairs always map to
// the same key and distinct pairs never collide.
func AttemptKey(runID string, attemptNo int) string {
	return strings.TrimSpace(runID) + attemptKeySeparator + strconv.Itoa(attemptNo)
}

// AttemptDelay computes the scheduling delay for one healing attempt. The
// first attempt runs immediately; every later attempt is delayed by the same
// flat retryDelay. The result depends on attemptNo alone, with no jitter and
// no state.
func AttemptDelay(attemptNo int, retryDelay time.Duration) time.Duration {
	if attemptNo <= 1 {
		return 0
	}
	return retryDelay
}
