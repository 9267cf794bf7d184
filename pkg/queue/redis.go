package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stratoci/healer/pkg/observability/logger"
)

const (
	defaultRedisPrefix           = "healer:queue"
	defaultRedisOperationTimeout = 5 * time.Second
	defaultRedisPollInterval     = 100 * time.Millisecond
	defaultRedisTransferBatch    = 100
	defaultRedisEventBlock       = 2 * time.Second
)

var (
	// Registers the job ID and schedules the payload in one round trip.
	// Returns 0 when the ID is already registered so duplicate submissions
	// collapse into the existing job.
	redisEnqueueScript = redis.NewScript(`
local ids = KEYS[1]
local ready = KEYS[2]
local delayed = KEYS[3]
local jobId = ARGV[1]
local payload = ARGV[2]
local runAtMs = tonumber(ARGV[3])
local nowMs = tonumber(ARGV[4])

if redis.call("SADD", ids, jobId) == 0 then
  return 0
end

if runAtMs <= nowMs then
  redis.call("RPUSH", ready, payload)
else
  redis.call("ZADD", delayed, runAtMs, payload)
end
return 1
`)

	redisReserveScript = redis.NewScript(`
local delayed = KEYS[1]
local ready = KEYS[2]
local leasePrefix = ARGV[1]
local nowMs = tonumber(ARGV[2])
local transferBatch = tonumber(ARGV[3])
local leaseMs = tonumber(ARGV[4])
local token = ARGV[5]

local due = redis.call("ZRANGEBYSCORE", delayed, "-inf", nowMs, "LIMIT", 0, transferBatch)
for _, payload in ipairs(due) do
  redis.call("RPUSH", ready, payload)
  redis.call("ZREM", delayed, payload)
end

local payload = redis.call("LPOP", ready)
if not payload then
  return nil
end

redis.call("SET", leasePrefix .. token, payload, "PX", leaseMs)
return payload
`)

	redisGetAndDeleteScript = redis.NewScript(`
local value = redis.call("GET", KEYS[1])
if not value then
  return nil
end
redis.call("DEL", KEYS[1])
return value
`)

	redisTransitionLeaseScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return -1
end

redis.call("DEL", KEYS[1])

local encoded = ARGV[2]
local runAtMs = tonumber(ARGV[3])
local nowMs = tonumber(ARGV[4])
if runAtMs <= nowMs then
  redis.call("RPUSH", KEYS[2], encoded)
else
  redis.call("ZADD", KEYS[3], runAtMs, encoded)
end
return 1
`)
)

// RedisBackendConfig configures the Redis-backed queue substrate client.
type RedisBackendConfig struct {
	URL                string
	Prefix             string
	OperationTimeout   time.Duration
	PollInterval       time.Duration
	TransferBatch      int
	EventStreamMaxLen  int64
	CompletedRetention time.Duration
}

func (c *RedisBackendConfig) normalize() {
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = defaultRedisPrefix
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultRedisOperationTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultRedisPollInterval
	}
	if c.TransferBatch <= 0 {
		c.TransferBatch = defaultRedisTransferBatch
	}
	if c.EventStreamMaxLen <= 0 {
		c.EventStreamMaxLen = DefaultEventStreamMaxLen
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = DefaultCompletedRetention
	}
}

type redisJobEnvelope struct {
	Job *Job `json:"job"`
}

type redisFailedRecord struct {
	ID       string    `json:"id"`
	Queue    string    `json:"queue"`
	Job      *Job      `json:"job"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// RedisBackend implements Backend with Redis lists/zsets, lease keys and a
// capped stream for lifecycle events.
type RedisBackend struct {
	client *redis.Client
	log    logger.Logger
	config RedisBackendConfig

	mu     sync.RWMutex
	closed bool
}

// NewRedisBackend creates a Redis-backed queue substrate client.
func NewRedisBackend(cfg RedisBackendConfig, log logger.Logger) (*RedisBackend, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redis url is required")
	}
	cfg.normalize()

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url failed: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}

	return &RedisBackend{
		client: client,
		log:    log,
		config: cfg,
	}, nil
}

// Enqueue schedules a job for immediate or delayed execution. A duplicate
// job ID is absorbed silently and leaves the existing job untouched.
func (b *RedisBackend) Enqueue(ctx context.Context, job *Job) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if job == nil {
		return errors.New("job is required")
	}
	jobCopy := cloneJob(job)
	jobCopy.Opts.normalize()
	if err := jobCopy.Validate(); err != nil {
		return err
	}
	if jobCopy.CreatedAt.IsZero() {
		jobCopy.CreatedAt = time.Now().UTC()
	}
	if jobCopy.RunAt.IsZero() {
		jobCopy.RunAt = jobCopy.CreatedAt.Add(jobCopy.Opts.Delay)
	}

	encoded, err := json.Marshal(redisJobEnvelope{Job: jobCopy})
	if err != nil {
		return fmt.Errorf("marshal job envelope failed: %w", err)
	}

	opCtx, cancel := b.operationContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	added, err := redisEnqueueScript.Run(
		opCtx,
		b.client,
		[]string{b.idsKey(jobCopy.Queue), b.readyKey(jobCopy.Queue), b.delayedKey(jobCopy.Queue)},
		strings.TrimSpace(jobCopy.ID),
		string(encoded),
		jobCopy.RunAt.UnixMilli(),
		now.UnixMilli(),
	).Int()
	if err != nil {
		return err
	}
	if added == 0 {
		recordJobDuplicate("redis", jobCopy.Queue, jobCopy.Name)
		b.log.Debug("queue duplicate enqueue absorbed", "queue", jobCopy.Queue, "job_id", jobCopy.ID)
		return nil
	}
	recordJobEnqueued("redis", jobCopy)
	return nil
}

// Reserve returns the next available job and a lease token.
func (b *RedisBackend) Reserve(ctx context.Context, queue string, leaseFor time.Duration) (*Job, *Lease, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, nil, err
	}
	if ctx == nil {
		return nil, nil, errors.New("context is required")
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return nil, nil, errors.New("queue is required")
	}
	if leaseFor <= 0 {
		leaseFor = DefaultLeaseTTL
	}
	leaseMilliseconds := leaseFor.Milliseconds()
	if leaseMilliseconds <= 0 {
		leaseMilliseconds = 1
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		token := randomToken()
		now := time.Now().UTC()
		opCtx, cancel := b.operationContext(ctx)
		result, reserveErr := redisReserveScript.Run(
			opCtx,
			b.client,
			[]string{b.delayedKey(queue), b.readyKey(queue)},
			b.leaseKeyPrefix(),
			now.UnixMilli(),
			b.config.TransferBatch,
			leaseMilliseconds,
			token,
		).Result()
		cancel()
		if reserveErr != nil && !errors.Is(reserveErr, redis.Nil) {
			return nil, nil, reserveErr
		}
		if errors.Is(reserveErr, redis.Nil) {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(b.config.PollInterval):
				continue
			}
		}
		raw, ok := result.(string)
		if !ok || strings.TrimSpace(raw) == "" {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(b.config.PollInterval):
				continue
			}
		}

		var envelope redisJobEnvelope
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			b.log.Warn("discarding malformed queued job payload", "queue", queue, "error", err)
			b.releaseLease(ctx, token)
			continue
		}
		if envelope.Job == nil {
			b.releaseLease(ctx, token)
			continue
		}
		if strings.TrimSpace(envelope.Job.Queue) == "" {
			envelope.Job.Queue = queue
		}
		if err := envelope.Job.Validate(); err != nil {
			b.log.Warn("discarding invalid queued job", "queue", queue, "error", err)
			b.releaseLease(ctx, token)
			continue
		}

		lease := &Lease{
			JobID:    strings.TrimSpace(envelope.Job.ID),
			Token:    token,
			Queue:    queue,
			ExpireAt: now.Add(leaseFor),
			Attempt:  envelope.Job.Attempt,
		}
		return cloneJob(envelope.Job), cloneLease(lease), nil
	}
}

// Ack confirms job completion, applies retention policy and publishes a
// completed event.
func (b *RedisBackend) Ack(ctx context.Context, lease *Lease) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	if lease == nil || strings.TrimSpace(lease.Token) == "" {
		return errors.New("lease token is required")
	}

	opCtx, cancel := b.operationContext(ctx)
	raw, err := redisGetAndDeleteScript.Run(opCtx, b.client, []string{b.leaseKey(strings.TrimSpace(lease.Token))}).Result()
	cancel()
	if errors.Is(err, redis.Nil) {
		return queueError(ErrNotFound, "lease not found")
	}
	if err != nil {
		return err
	}

	encoded, _ := raw.(string)
	var envelope redisJobEnvelope
	if unmarshalErr := json.Unmarshal([]byte(encoded), &envelope); unmarshalErr != nil || envelope.Job == nil {
		// Lease payload is gone; the completed event still references the lease.
		return b.appendEvent(ctx, &Event{
			JobID:   strings.TrimSpace(lease.JobID),
			Queue:   strings.TrimSpace(lease.Queue),
			Outcome: OutcomeCompleted,
		})
	}
	job := envelope.Job

	now := time.Now().UTC()
	opCtx, cancel = b.operationContext(ctx)
	_, err = b.client.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
		if job.Opts.RemoveOnComplete {
			pipe.SRem(opCtx, b.idsKey(job.Queue), strings.TrimSpace(job.ID))
		} else {
			pipe.ZAdd(opCtx, b.completedKey(job.Queue), redis.Z{
				Score:  float64(now.UnixMilli()),
				Member: strings.TrimSpace(job.ID),
			})
		}
		return nil
	})
	cancel()
	if err != nil {
		return err
	}

	recordJobProcessed(job.Queue, job.Name, "success")
	return b.appendEvent(ctx, &Event{
		JobID:   strings.TrimSpace(job.ID),
		Queue:   strings.TrimSpace(job.Queue),
		Outcome: OutcomeCompleted,
	})
}

// Fail records a failed execution. The job is retried through the delayed
// queue while its attempts budget allows; otherwise it lands in the failed
// index and a failed event is published.
func (b *RedisBackend) Fail(ctx context.Context, lease *Lease, reason error) error {
	rawLeasePayload, job, err := b.readLeasedJob(ctx, lease)
	if err != nil {
		return err
	}

	job.Attempt++
	if job.Headers == nil {
		job.Headers = map[string]string{}
	}
	if reason != nil {
		job.Headers[HeaderFailureReason] = reason.Error()
	}
	job.Headers[HeaderFailedAt] = time.Now().UTC().Format(time.RFC3339Nano)

	if job.Attempt < job.Opts.Attempts {
		job.RunAt = time.Now().UTC().Add(job.Opts.Delay)
		encodedJob, marshalErr := json.Marshal(redisJobEnvelope{Job: job})
		if marshalErr != nil {
			return fmt.Errorf("marshal retry job failed: %w", marshalErr)
		}
		if err := b.transitionLeaseToQueue(ctx, lease, rawLeasePayload, string(encodedJob), strings.TrimSpace(job.Queue), job.RunAt); err != nil {
			return err
		}
		recordJobRetry(job.Queue, job.Name)
		recordJobProcessed(job.Queue, job.Name, "retry")
		return nil
	}

	opCtx, cancel := b.operationContext(ctx)
	_, err = redisGetAndDeleteScript.Run(opCtx, b.client, []string{b.leaseKey(strings.TrimSpace(lease.Token))}).Result()
	cancel()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	reasonText := strings.TrimSpace(job.Headers[HeaderFailureReason])
	if job.Opts.RemoveOnFailed {
		opCtx, cancel := b.operationContext(ctx)
		err = b.client.SRem(opCtx, b.idsKey(job.Queue), strings.TrimSpace(job.ID)).Err()
		cancel()
		if err != nil {
			return err
		}
	} else {
		entry := &redisFailedRecord{
			ID:       uuid.NewString(),
			Queue:    strings.TrimSpace(job.Queue),
			Job:      cloneJob(job),
			Reason:   reasonText,
			FailedAt: time.Now().UTC(),
		}
		if err := b.saveFailedRecord(ctx, entry); err != nil {
			return err
		}
	}

	recordJobProcessed(job.Queue, job.Name, "failed")
	return b.appendEvent(ctx, &Event{
		JobID:   strings.TrimSpace(job.ID),
		Queue:   strings.TrimSpace(job.Queue),
		Outcome: OutcomeFailed,
		Reason:  reasonText,
	})
}

// SubscribeEvents tails the queue's lifecycle event stream until ctx is
// cancelled. Events published before the subscription starts are skipped.
func (b *RedisBackend) SubscribeEvents(ctx context.Context, queue string, handler EventHandler) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return errors.New("queue is required")
	}
	if handler == nil {
		return errors.New("event handler is required")
	}

	lastID := "$"
	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{b.eventsKey(queue), lastID},
			Count:   int64(b.config.TransferBatch),
			Block:   defaultRedisEventBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			b.log.Warn("queue event stream read failed", "queue", queue, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.config.PollInterval):
				continue
			}
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				lastID = message.ID
				event := decodeStreamEvent(queue, message)
				if event == nil {
					continue
				}
				handler(ctx, event)
			}
		}
	}
}

// ListFailed lists the most recent retained failed jobs for one queue.
func (b *RedisBackend) ListFailed(ctx context.Context, queue string, limit int) ([]*FailedJob, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return nil, errors.New("queue is required")
	}
	if limit <= 0 {
		limit = 50
	}

	opCtx, cancel := b.operationContext(ctx)
	ids, err := b.client.ZRevRange(opCtx, b.failedIndexKey(queue), 0, int64(limit-1)).Result()
	cancel()
	if err != nil {
		return nil, err
	}

	entries := make([]*FailedJob, 0, len(ids))
	for _, id := range ids {
		opCtx, cancel := b.operationContext(ctx)
		raw, getErr := b.client.Get(opCtx, b.failedEntryKey(queue, id)).Result()
		cancel()
		if getErr != nil {
			if errors.Is(getErr, redis.Nil) {
				continue
			}
			return nil, getErr
		}
		var record redisFailedRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			continue
		}
		entries = append(entries, &FailedJob{
			ID:       record.ID,
			Queue:    record.Queue,
			Job:      cloneJob(record.Job),
			Reason:   record.Reason,
			FailedAt: record.FailedAt,
		})
	}
	return entries, nil
}

// RemoveFailed clears retained failed jobs by record ID. The job IDs are also
// released from the idempotency registry so a fresh submission can reuse them.
func (b *RedisBackend) RemoveFailed(ctx context.Context, queue string, ids []string) (int, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return 0, errors.New("queue is required")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	removed := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}

		opCtx, cancel := b.operationContext(ctx)
		raw, err := b.client.Get(opCtx, b.failedEntryKey(queue, id)).Result()
		cancel()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return removed, err
		}

		var record redisFailedRecord
		jobID := ""
		if err := json.Unmarshal([]byte(raw), &record); err == nil && record.Job != nil {
			jobID = strings.TrimSpace(record.Job.ID)
		}

		opCtx, cancel = b.operationContext(ctx)
		_, err = b.client.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(opCtx, b.failedIndexKey(queue), id)
			pipe.Del(opCtx, b.failedEntryKey(queue, id))
			if jobID != "" {
				pipe.SRem(opCtx, b.idsKey(queue), jobID)
			}
			return nil
		})
		cancel()
		if err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// SweepCompleted prunes completed-job records older than the retention window
// and releases their IDs from the idempotency registry.
func (b *RedisBackend) SweepCompleted(ctx context.Context, queue string) (int, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return 0, errors.New("queue is required")
	}

	cutoff := time.Now().UTC().Add(-b.config.CompletedRetention).UnixMilli()
	cutoffArg := fmt.Sprintf("%d", cutoff)

	opCtx, cancel := b.operationContext(ctx)
	expired, err := b.client.ZRangeByScore(opCtx, b.completedKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoffArg,
	}).Result()
	cancel()
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	members := make([]any, 0, len(expired))
	for _, id := range expired {
		members = append(members, id)
	}

	opCtx, cancel = b.operationContext(ctx)
	_, err = b.client.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(opCtx, b.completedKey(queue), "-inf", cutoffArg)
		pipe.SRem(opCtx, b.idsKey(queue), members...)
		return nil
	})
	cancel()
	if err != nil {
		return 0, err
	}
	return len(expired), nil
}

// HealthCheck verifies Redis connectivity.
func (b *RedisBackend) HealthCheck(ctx context.Context) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	opCtx, cancel := b.operationContext(ctx)
	defer cancel()
	return b.client.Ping(opCtx).Err()
}

// Close closes Redis connections.
func (b *RedisBackend) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.client.Close()
}

func (b *RedisBackend) appendEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	opCtx, cancel := b.operationContext(ctx)
	defer cancel()
	err := b.client.XAdd(opCtx, &redis.XAddArgs{
		Stream: b.eventsKey(event.Queue),
		MaxLen: b.config.EventStreamMaxLen,
		Approx: true,
		Values: map[string]any{
			"id":      event.ID,
			"job_id":  event.JobID,
			"outcome": string(event.Outcome),
			"reason":  event.Reason,
			"at":      event.At.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append queue event failed: %w", err)
	}
	recordEventPublished(event.Queue, string(event.Outcome))
	return nil
}

func decodeStreamEvent(queue string, message redis.XMessage) *Event {
	outcome, _ := message.Values["outcome"].(string)
	if outcome != string(OutcomeCompleted) && outcome != string(OutcomeFailed) {
		return nil
	}
	event := &Event{
		Queue:   queue,
		Outcome: Outcome(outcome),
	}
	if id, ok := message.Values["id"].(string); ok {
		event.ID = id
	}
	if jobID, ok := message.Values["job_id"].(string); ok {
		event.JobID = jobID
	}
	if reason, ok := message.Values["reason"].(string); ok {
		event.Reason = reason
	}
	if at, ok := message.Values["at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			event.At = ts.UTC()
		}
	}
	return event
}

func (b *RedisBackend) ensureOpen() error {
	if b == nil || b.client == nil {
		return queueError(ErrNotInitialized, "redis backend is not initialized")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return queueError(ErrClosed, "redis backend is closed")
	}
	return nil
}

func (b *RedisBackend) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, b.config.OperationTimeout)
}

func (b *RedisBackend) releaseLease(ctx context.Context, token string) {
	opCtx, cancel := b.operationContext(ctx)
	defer cancel()
	_, _ = redisGetAndDeleteScript.Run(opCtx, b.client, []string{b.leaseKey(token)}).Result()
}

func (b *RedisBackend) readLeasedJob(ctx context.Context, lease *Lease) (string, *Job, error) {
	if err := b.ensureOpen(); err != nil {
		return "", nil, err
	}
	if lease == nil || strings.TrimSpace(lease.Token) == "" {
		return "", nil, errors.New("lease token is required")
	}
	token := strings.TrimSpace(lease.Token)

	opCtx, cancel := b.operationContext(ctx)
	raw, err := b.client.Get(opCtx, b.leaseKey(token)).Result()
	cancel()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil, queueError(ErrNotFound, "lease not found")
		}
		return "", nil, err
	}

	var envelope redisJobEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return "", nil, fmt.Errorf("decode lease payload failed: %w", err)
	}
	if envelope.Job == nil {
		return "", nil, errors.New("lease payload does not contain a job")
	}
	if strings.TrimSpace(envelope.Job.Queue) == "" {
		envelope.Job.Queue = strings.TrimSpace(lease.Queue)
	}
	if err := envelope.Job.Validate(); err != nil {
		return "", nil, err
	}

	return raw, cloneJob(envelope.Job), nil
}

func (b *RedisBackend) transitionLeaseToQueue(
	ctx context.Context,
	lease *Lease,
	expectedLeasePayload string,
	nextEncodedPayload string,
	queue string,
	runAt time.Time,
) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	if lease == nil || strings.TrimSpace(lease.Token) == "" {
		return errors.New("lease token is required")
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return errors.New("queue is required")
	}

	runAtUTC := runAt.UTC()
	if runAtUTC.IsZero() {
		runAtUTC = time.Now().UTC()
	}
	now := time.Now().UTC()

	opCtx, cancel := b.operationContext(ctx)
	transitionResult, err := redisTransitionLeaseScript.Run(
		opCtx,
		b.client,
		[]string{
			b.leaseKey(strings.TrimSpace(lease.Token)),
			b.readyKey(queue),
			b.delayedKey(queue),
		},
		expectedLeasePayload,
		nextEncodedPayload,
		runAtUTC.UnixMilli(),
		now.UnixMilli(),
	).Int()
	cancel()
	if err != nil {
		return err
	}
	switch transitionResult {
	case 1:
		return nil
	case 0:
		return queueError(ErrNotFound, "lease not found")
	case -1:
		return errors.New("lease payload changed while transitioning")
	default:
		return fmt.Errorf("invalid lease transition result: %d", transitionResult)
	}
}

func (b *RedisBackend) saveFailedRecord(ctx context.Context, entry *redisFailedRecord) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	opCtx, cancel := b.operationContext(ctx)
	defer cancel()
	_, err = b.client.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
		pipe.Set(opCtx, b.failedEntryKey(entry.Queue, entry.ID), string(encoded), 0)
		pipe.ZAdd(opCtx, b.failedIndexKey(entry.Queue), redis.Z{
			Score:  float64(entry.FailedAt.UnixMilli()),
			Member: entry.ID,
		})
		return nil
	})
	return err
}

func (b *RedisBackend) idsKey(queue string) string {
	return b.prefix() + ":queue:" + strings.TrimSpace(queue) + ":ids"
}

func (b *RedisBackend) readyKey(queue string) string {
	return b.prefix() + ":queue:" + strings.TrimSpace(queue) + ":ready"
}

func (b *RedisBackend) delayedKey(queue string) string {
	return b.prefix() + ":queue:" + strings.TrimSpace(queue) + ":delayed"
}

func (b *RedisBackend) completedKey(queue string) string {
	return b.prefix() + ":queue:" + strings.TrimSpace(queue) + ":completed"
}

func (b *RedisBackend) eventsKey(queue string) string {
	return b.prefix() + ":queue:" + strings.TrimSpace(queue) + ":events"
}

func (b *RedisBackend) leaseKey(token string) string {
	return b.prefix() + ":lease:" + strings.TrimSpace(token)
}

func (b *RedisBackend) leaseKeyPrefix() string {
	return b.prefix() + ":lease:"
}

func (b *RedisBackend) failedIndexKey(queue string) string {
	return b.prefix() + ":failed:index:" + strings.TrimSpace(queue)
}

func (b *RedisBackend) failedEntryKey(queue, id string) string {
	return b.prefix() + ":failed:entry:" + strings.TrimSpace(queue) + ":" + strings.TrimSpace(id)
}

func (b *RedisBackend) prefix() string {
	return strings.TrimRight(strings.TrimSpace(b.config.Prefix), ":")
}

func randomToken() string {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(raw)
}
