package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/checkio-backend/internal/model"
)

// ErrQueueFull is returned by MemoryLogQueue.Push when the buffer is full.
var ErrQueueFull = errors.New("log queue is full")

// LogJob is one pending attendance log append. Entry.At carries the
// toggle time so a backlog does not shift the logged instant.
type LogJob struct {
	Entry model.LogEntry `json:"entry"`
}

// LogQueue carries log jobs from the check-in/out service to the append
// worker. Pop returns ok=false when nothing arrived within timeout.
type LogQueue interface {
	Push(ctx context.Context, jobs ...LogJob) error
	Pop(ctx context.Context, timeout time.Duration) (job LogJob, ok bool, err error)
	TryPop(ctx context.Context) (job LogJob, ok bool, err error)
	Depth(ctx context.Context) (int64, error)
}

// ─── Redis ───────────────────────────────────────────────────────────────

// RedisLogQueue is a Redis list: RPUSH to enqueue, BLPOP to consume.
type RedisLogQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisLogQueue creates a queue on the given list key.
func NewRedisLogQueue(rdb *redis.Client, key string) *RedisLogQueue {
	return &RedisLogQueue{rdb: rdb, key: key}
}

func (q *RedisLogQueue) Push(ctx context.Context, jobs ...LogJob) error {
	if len(jobs) == 0 {
		return nil
	}
	values := make([]any, len(jobs))
	for i, j := range jobs {
		b, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("marshal log job: %w", err)
		}
		values[i] = b
	}
	return q.rdb.RPush(ctx, q.key, values...).Err()
}

func (q *RedisLogQueue) Pop(ctx context.Context, timeout time.Duration) (LogJob, bool, error) {
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return LogJob{}, false, nil
		}
		return LogJob{}, false, err
	}
	if len(result) < 2 {
		return LogJob{}, false, nil
	}
	return decodeJob(result[1])
}

func (q *RedisLogQueue) TryPop(ctx context.Context) (LogJob, bool, error) {
	result, err := q.rdb.LPop(ctx, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return LogJob{}, false, nil
		}
		return LogJob{}, false, err
	}
	return decodeJob(result)
}

func (q *RedisLogQueue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

func decodeJob(s string) (LogJob, bool, error) {
	var j LogJob
	if err := json.Unmarshal([]byte(s), &j); err != nil {
		return LogJob{}, false, fmt.Errorf("unmarshal log job: %w", err)
	}
	return j, true, nil
}

// ─── In-memory ───────────────────────────────────────────────────────────

// MemoryLogQueue is a bounded channel queue for development and tests.
// Jobs are lost on restart.
type MemoryLogQueue struct {
	ch chan LogJob
}

// NewMemoryLogQueue creates a queue holding up to size jobs.
func NewMemoryLogQueue(size int) *MemoryLogQueue {
	return &MemoryLogQueue{ch: make(chan LogJob, size)}
}

func (q *MemoryLogQueue) Push(ctx context.Context, jobs ...LogJob) error {
	for _, j := range jobs {
		select {
		case q.ch <- j:
		case <-ctx.Done():
			return ctx.Err()
		default:
			return ErrQueueFull
		}
	}
	return nil
}

func (q *MemoryLogQueue) Pop(ctx context.Context, timeout time.Duration) (LogJob, bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case j := <-q.ch:
		return j, true, nil
	case <-t.C:
		return LogJob{}, false, nil
	case <-ctx.Done():
		return LogJob{}, false, ctx.Err()
	}
}

func (q *MemoryLogQueue) TryPop(_ context.Context) (LogJob, bool, error) {
	select {
	case j := <-q.ch:
		return j, true, nil
	default:
		return LogJob{}, false, nil
	}
}

// Len is the number of buffered jobs.
func (q *MemoryLogQueue) Len() int { return len(q.ch) }

func (q *MemoryLogQueue) Depth(context.Context) (int64, error) { return int64(len(q.ch)), nil }
