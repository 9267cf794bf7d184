package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultContentType is the default content type for job payloads.
const DefaultContentType = "application/json"

// Job header constants
const (
	// HeaderFailureReason records why the last execution of a job failed.
	HeaderFailureReason = "job_failure_reason"
	// HeaderFailedAt records when the last execution of a job failed.
	HeaderFailedAt = "job_failed_at"
)

// Options control scheduling and retention for one submitted job.
type Options struct {
	// Attempts is the total execution budget the backend grants the job.
	// A value of 1 means the backend never retries on its own.
	Attempts int `json:"attempts"`
	// Delay postpones the first execution relative to enqueue time.
	Delay time.Duration `json:"delay"`
	// RemoveOnComplete prunes all bookkeeping for the job as soon as it
	// completes. When false the completed record is retained until the
	// queue retention window expires.
	RemoveOnComplete bool `json:"remove_on_complete"`
	// RemoveOnFailed prunes failed jobs immediately. When false failed
	// jobs stay in the failed index until explicitly removed.
	RemoveOnFailed bool `json:"remove_on_failed"`
}

func (o *Options) normalize() {
	if o.Attempts <= 0 {
		o.Attempts = 1
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
}

// Job describes one unit of work submitted to a queue. ID doubles as the
// idempotency key: two enqueues with the same ID collapse into one job.
type Job struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Queue       string            `json:"queue"`
	Payload     []byte            `json:"payload"`
	Headers     map[string]string `json:"headers,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Opts        Options           `json:"opts"`
	Attempt     int               `json:"attempt"`
	RunAt       time.Time         `json:"run_at"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Validate checks the required fields used by runtime behavior.
func (j *Job) Validate() error {
	if j == nil {
		return queueError(ErrValidation, "job is nil")
	}
	if strings.TrimSpace(j.ID) == "" {
		return queueError(ErrValidation, "job id is required")
	}
	if strings.TrimSpace(j.Name) == "" {
		return queueError(ErrValidation, "job name is required")
	}
	if strings.TrimSpace(j.Queue) == "" {
		return queueError(ErrValidation, "job queue is required")
	}
	if len(j.Payload) == 0 {
		return queueError(ErrValidation, "job payload is required")
	}
	if j.Attempt < 0 {
		return queueError(ErrValidation, "job attempt must be >= 0")
	}
	return nil
}

// MarshalPayloadJSON marshals a payload value with the queue's JSON conventions.
func MarshalPayloadJSON(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Join(queueError(ErrValidation, "marshal job payload failed"), err)
	}
	return data, nil
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	copyJob := *job
	copyJob.Payload = cloneBytes(job.Payload)
	copyJob.Headers = cloneHeaders(job.Headers)
	return &copyJob
}

func cloneHeaders(input map[string]string) map[string]string {
	if len(input) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out
}

func cloneBytes(input []byte) []byte {
	if len(input) == 0 {
		return nil
	}
	out := make([]byte, len(input))
	copy(out, input)
	return out
}
