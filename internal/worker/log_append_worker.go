package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/checkio-backend/internal/metrics"
	"github.com/stemsi/checkio-backend/internal/model"
)

const (
	popTimeout    = time.Second
	maxBatch      = 50
	errBufferSize = 256
)

// LogAppender persists attendance log entries.
type LogAppender interface {
	AppendLogs(ctx context.Context, entries []model.LogEntry) ([]model.LogRecord, error)
}

// LogAppendWorker consumes the log queue and appends entries to the
// attendance log. Failures are reported on Errors and never retried.
type LogAppendWorker struct {
	queue   LogQueue
	repo    LogAppender
	metrics *metrics.Metrics
	log     zerolog.Logger
	errs    chan error
}

// NewLogAppendWorker creates a new LogAppendWorker.
func NewLogAppendWorker(queue LogQueue, repo LogAppender, m *metrics.Metrics, log zerolog.Logger) *LogAppendWorker {
	return &LogAppendWorker{
		queue:   queue,
		repo:    repo,
		metrics: m,
		log:     log.With().Str("component", "log_append_worker").Logger(),
		errs:    make(chan error, errBufferSize),
	}
}

// Errors exposes failed enqueues and appends.
func (w *LogAppendWorker) Errors() <-chan error { return w.errs }

// Report records a log job failure without blocking the caller.
func (w *LogAppendWorker) Report(err error) {
	if err == nil {
		return
	}
	w.metrics.LogQueueFailures.Inc()
	select {
	case w.errs <- err:
	default:
		w.log.Error().Err(err).Msg("Error channel full, dropping report")
	}
}

// Start runs the worker loop until ctx is cancelled, then drains what is
// left in the queue. Call in a goroutine.
func (w *LogAppendWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	done := make(chan struct{})
	go w.logErrors(done)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			close(done)
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *LogAppendWorker) logErrors(done <-chan struct{}) {
	for {
		select {
		case err := <-w.errs:
			w.log.Error().Err(err).Msg("Attendance log not written")
		case <-done:
			for {
				select {
				case err := <-w.errs:
					w.log.Error().Err(err).Msg("Attendance log not written")
				default:
					return
				}
			}
		}
	}
}

func (w *LogAppendWorker) processNext(ctx context.Context) {
	job, ok, err := w.queue.Pop(ctx, popTimeout)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Pop error")
			time.Sleep(popTimeout)
		}
		return
	}
	if !ok {
		return
	}

	batch := []LogJob{job}
	for len(batch) < maxBatch {
		next, ok, err := w.queue.TryPop(ctx)
		if err != nil || !ok {
			break
		}
		batch = append(batch, next)
	}
	w.appendBatch(ctx, batch)
}

func (w *LogAppendWorker) appendBatch(ctx context.Context, batch []LogJob) {
	entries := make([]model.LogEntry, len(batch))
	for i, j := range batch {
		entries[i] = j.Entry
	}

	if _, err := w.repo.AppendLogs(ctx, entries); err != nil {
		w.metrics.LogAppends.WithLabelValues("error").Add(float64(len(entries)))
		for _, e := range entries {
			w.Report(fmt.Errorf("append %s log for student %s: %w", e.Action, e.StudentID, err))
		}
		return
	}
	w.metrics.LogAppends.WithLabelValues("ok").Add(float64(len(entries)))
	w.log.Debug().Int("count", len(entries)).Msg("Appended attendance logs")
}

// drain appends everything still queued before shutdown.
func (w *LogAppendWorker) drain(ctx context.Context) {
	drained := 0
	for {
		var batch []LogJob
		for len(batch) < maxBatch {
			job, ok, err := w.queue.TryPop(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("Drain pop error")
				break
			}
			if !ok {
				break
			}
			batch = append(batch, job)
		}
		if len(batch) == 0 {
			break
		}
		w.appendBatch(ctx, batch)
		drained += len(batch)
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
