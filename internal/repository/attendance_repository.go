package repository

import (
	"context"
	"slices"
	"time"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/attendance"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
)

const logsTable = "attendance_logs"

var logFields = []string{"id", "student_id", "action", "timestamp", "performed_by"}

// LogQuery narrows GetLogs. Dates are YYYY-MM-DD and compare against the
// UTC date portion of each timestamp, both ends inclusive.
type LogQuery struct {
	StudentID string
	StartDate string
	EndDate   string
}

// AttendanceRepository is the append-only attendance log.
type AttendanceRepository struct {
	store recordstore.Store
	now   func() time.Time
}

// NewAttendanceRepository creates a new AttendanceRepository.
func NewAttendanceRepository(store recordstore.Store) *AttendanceRepository {
	return &AttendanceRepository{store: store, now: time.Now}
}

// AppendLog records one check-in or check-out stamped with the current time.
func (r *AttendanceRepository) AppendLog(ctx context.Context, studentID string, action model.Action, performedBy string) (model.LogRecord, error) {
	recs, err := r.AppendLogs(ctx, []model.LogEntry{{StudentID: studentID, Action: action, PerformedBy: performedBy}})
	if err != nil {
		return model.LogRecord{}, err
	}
	if len(recs) == 0 {
		return model.LogRecord{}, apperror.Store("append attendance log", errNoRowsReturned)
	}
	return recs[0], nil
}

// AppendLogs inserts a batch of entries, each stamped with its own At or
// the current time when At is zero. Every entry is validated before
// anything is written.
func (r *AttendanceRepository) AppendLogs(ctx context.Context, entries []model.LogEntry) ([]model.LogRecord, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	now := r.now().UTC()
	rows := make([]recordstore.Row, 0, len(entries))
	for _, e := range entries {
		if !e.Action.Valid() {
			return nil, apperror.Validation("action", "invalid action: %q", e.Action)
		}
		if e.StudentID == "" {
			return nil, apperror.Validation("student_id", "missing student id")
		}
		ts := now
		if !e.At.IsZero() {
			ts = e.At.UTC()
		}
		rows = append(rows, recordstore.Row{
			"student_id":   e.StudentID,
			"action":       string(e.Action),
			"performed_by": nullable(e.PerformedBy),
			"timestamp":    ts,
		})
	}

	inserted, err := r.store.Insert(ctx, logsTable, rows)
	if err != nil {
		return nil, apperror.Store("append attendance logs", err)
	}

	out := make([]model.LogRecord, len(inserted))
	for i, row := range inserted {
		out[i] = NormalizeLog(row)
	}
	return out, nil
}

// GetLogs returns logs newest first. Rows without a usable timestamp are
// dropped.
func (r *AttendanceRepository) GetLogs(ctx context.Context, q LogQuery) ([]model.LogRecord, error) {
	filters := recordstore.Filters{}
	if q.StudentID != "" {
		filters["student_id"] = q.StudentID
	}

	rows, err := r.store.Select(ctx, logsTable, recordstore.Query{Fields: logFields, Filters: filters})
	if err != nil {
		return nil, apperror.Store("select attendance logs", err)
	}

	type dated struct {
		rec model.LogRecord
		at  time.Time
	}
	kept := make([]dated, 0, len(rows))
	for _, row := range rows {
		rec := NormalizeLog(row)
		at, ok := attendance.ParseInstant(rec.Timestamp)
		if !ok {
			continue
		}
		day := at.Format(attendance.DateLayout)
		if q.StartDate != "" && day < q.StartDate {
			continue
		}
		if q.EndDate != "" && day > q.EndDate {
			continue
		}
		kept = append(kept, dated{rec: rec, at: at})
	}

	slices.SortStableFunc(kept, func(a, b dated) int { return b.at.Compare(a.at) })

	out := make([]model.LogRecord, len(kept))
	for i, d := range kept {
		out[i] = d.rec
	}
	return out, nil
}

// DeleteLog removes one log. It returns a not-found error when no row had
// that id.
func (r *AttendanceRepository) DeleteLog(ctx context.Context, id string) error {
	if id == "" {
		return apperror.Validation("id", "missing log id")
	}
	n, err := r.store.Delete(ctx, logsTable, recordstore.Filters{"id": id})
	if err != nil {
		return apperror.Store("delete attendance log", err)
	}
	if n == 0 {
		return apperror.NotFound("attendance log %s not found", id)
	}
	return nil
}

// DeleteLogsBefore removes every log stamped at or before date 23:59:59Z.
func (r *AttendanceRepository) DeleteLogsBefore(ctx context.Context, date string) (int64, error) {
	cutoff, err := CutoffInstant(date)
	if err != nil {
		return 0, err
	}
	n, err := r.store.Delete(ctx, logsTable, recordstore.Filters{
		"timestamp": recordstore.Cond{Op: recordstore.OpLte, Value: cutoff},
	})
	if err != nil {
		return 0, apperror.Store("delete attendance logs before cutoff", err)
	}
	return n, nil
}

// DeleteAllLogs empties the log.
func (r *AttendanceRepository) DeleteAllLogs(ctx context.Context) (int64, error) {
	n, err := r.store.Delete(ctx, logsTable, recordstore.Filters{
		"id": recordstore.Cond{Op: recordstore.OpNeq, Value: ""},
	})
	if err != nil {
		return 0, apperror.Store("delete all attendance logs", err)
	}
	return n, nil
}

// LatestActions maps each student to the action of its newest log.
func (r *AttendanceRepository) LatestActions(ctx context.Context) (map[string]model.Action, error) {
	rows, err := r.store.Select(ctx, logsTable, recordstore.Query{
		Fields: []string{"student_id", "action", "timestamp"},
	})
	if err != nil {
		return nil, apperror.Store("select latest attendance actions", err)
	}

	latest := make(map[string]time.Time)
	actions := make(map[string]model.Action)
	for _, row := range rows {
		rec := NormalizeLog(row)
		at, ok := attendance.ParseInstant(rec.Timestamp)
		if !ok || rec.StudentID == "" {
			continue
		}
		if prev, seen := latest[rec.StudentID]; seen && !at.After(prev) {
			continue
		}
		latest[rec.StudentID] = at
		actions[rec.StudentID] = rec.Action
	}
	return actions, nil
}

// CutoffInstant is the last second of a YYYY-MM-DD day in UTC.
func CutoffInstant(date string) (time.Time, error) {
	d, ok := attendance.ParseDate(date)
	if !ok {
		return time.Time{}, apperror.Validation("date", "invalid cutoff date %q, want YYYY-MM-DD", date)
	}
	return d.Add(23*time.Hour + 59*time.Minute + 59*time.Second), nil
}
