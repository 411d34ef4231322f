package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/checkio-backend/internal/metrics"
	"github.com/stemsi/checkio-backend/internal/model"
)

// StudentLister lists the roster with current status flags.
type StudentLister interface {
	List(ctx context.Context) ([]model.Student, error)
}

// LogLedger reads the newest action per student and appends repairs.
type LogLedger interface {
	LogAppender
	LatestActions(ctx context.Context) (map[string]model.Action, error)
}

// PendingCounter reports how many log jobs are still queued.
type PendingCounter interface {
	Depth(ctx context.Context) (int64, error)
}

// ReconcileWorker periodically compares each student's status flag with
// its newest log action. When they disagree on two consecutive passes it
// appends a log matching the flag with no performer. Students without any
// log count as checked out. Passes are skipped while log jobs are queued,
// since a pending job is not drift.
type ReconcileWorker struct {
	students StudentLister
	logs     LogLedger
	pending  PendingCounter
	interval time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger

	// suspects holds the mismatches seen on the previous pass.
	suspects map[string]model.Action
}

// NewReconcileWorker creates a new ReconcileWorker. interval <= 0 disables it.
func NewReconcileWorker(students StudentLister, logs LogLedger, pending PendingCounter, interval time.Duration, m *metrics.Metrics, log zerolog.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		students: students,
		logs:     logs,
		pending:  pending,
		interval: interval,
		metrics:  m,
		log:      log.With().Str("component", "reconcile_worker").Logger(),
		suspects: make(map[string]model.Action),
	}
}

// Start runs RunOnce on every tick until ctx is cancelled. Call in a goroutine.
func (w *ReconcileWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		w.log.Info().Msg("Reconciliation disabled")
		return
	}
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Reconciliation failed")
			}
		}
	}
}

// RunOnce performs one pass and returns the number of repairs written.
// It is not safe for concurrent use.
func (w *ReconcileWorker) RunOnce(ctx context.Context) (int, error) {
	depth, err := w.pending.Depth(ctx)
	if err != nil {
		return 0, err
	}
	if depth > 0 {
		w.log.Debug().Int64("pending", depth).Msg("Log jobs pending, skipping pass")
		return 0, nil
	}

	students, err := w.students.List(ctx)
	if err != nil {
		return 0, err
	}
	latest, err := w.logs.LatestActions(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]model.Action)
	var repairs []model.LogEntry
	for _, s := range students {
		last, ok := latest[s.ID]
		if !ok {
			last = model.ActionOut
		}
		want := model.ActionFor(s.CheckedIn)
		if last == want {
			continue
		}
		if prev, ok := w.suspects[s.ID]; !ok || prev != want {
			seen[s.ID] = want
			continue
		}
		repairs = append(repairs, model.LogEntry{StudentID: s.ID, Action: want})
	}
	w.suspects = seen
	if len(repairs) == 0 {
		return 0, nil
	}

	if _, err := w.logs.AppendLogs(ctx, repairs); err != nil {
		return 0, err
	}
	w.metrics.ReconcileRepairs.Add(float64(len(repairs)))
	w.log.Warn().Int("count", len(repairs)).Msg("Repaired status/log drift")
	return len(repairs), nil
}
