package queue

import (
	"context"
	"time"
)

const (
	// DefaultLeaseTTL is the default lease duration when reserve does not provide one.
	DefaultLeaseTTL = 30 * time.Second
	// DefaultEventStreamMaxLen caps the lifecycle event stream per queue.
	DefaultEventStreamMaxLen = 1000
	// DefaultCompletedRetention bounds how long completed-job records are kept
	// when a job does not request prompt removal.
	DefaultCompletedRetention = 24 * time.Hour
)

// Outcome is the terminal state reported for one job execution.
type Outcome string

const (
	// OutcomeCompleted marks a successfully processed job.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed marks a job whose execution budget is exhausted.
	OutcomeFailed Outcome = "failed"
)

// Event is one lifecycle notification published on a queue's event stream.
type Event struct {
	ID      string    `json:"id"`
	JobID   string    `json:"job_id"`
	Queue   string    `json:"queue"`
	Outcome Outcome   `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// EventHandler consumes lifecycle events. Handlers run on the event-delivery
// goroutine and must return quickly.
type EventHandler func(ctx context.Context, event *Event)

// Lease tracks temporary ownership over a reserved job.
type Lease struct {
	JobID    string
	Token    string
	Queue    string
	ExpireAt time.Time
	Attempt  int
}

// FailedJob is one retained record of a terminally failed job.
type FailedJob struct {
	ID       string    `json:"id"`
	Queue    string    `json:"queue"`
	Job      *Job      `json:"job"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// Backend is the persistent delayed-job broker contract. Enqueue is
// idempotent by job ID; reserve/ack/fail provide at-least-once processing.
type Backend interface {
	// Enqueue registers the job for immediate or delayed execution. A job
	// whose ID is already registered is absorbed silently.
	Enqueue(ctx context.Context, job *Job) error
	// Reserve blocks for the next runnable job and returns it with a lease.
	Reserve(ctx context.Context, queue string, leaseFor time.Duration) (*Job, *Lease, error)
	// Ack completes the leased job and publishes a completed event.
	Ack(ctx context.Context, lease *Lease) error
	// Fail records a failed execution. The job is rescheduled while its
	// attempts budget allows, otherwise it lands in the failed index and a
	// failed event is published.
	Fail(ctx context.Context, lease *Lease, reason error) error
	// SubscribeEvents tails the queue's lifecycle event stream until ctx is
	// cancelled, invoking handler for every new event.
	SubscribeEvents(ctx context.Context, queue string, handler EventHandler) error
	// ListFailed returns the most recent retained failed jobs.
	ListFailed(ctx context.Context, queue string, limit int) ([]*FailedJob, error)
	// RemoveFailed clears retained failed jobs by record ID and reports how
	// many were removed.
	RemoveFailed(ctx context.Context, queue string, ids []string) (int, error)
	// SweepCompleted prunes completed-job records older than the retention
	// window and reports how many were removed.
	SweepCompleted(ctx context.Context, queue string) (int, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

func cloneLease(lease *Lease) *Lease {
	if lease == nil {
		return nil
	}
	copyLease := *lease
	return &copyLease
}
