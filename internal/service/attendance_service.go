package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/appstate"
	"github.com/stemsi/checkio-backend/internal/attendance"
	"github.com/stemsi/checkio-backend/internal/export"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/repository"
)

// LogStore is the attendance log as seen by the feed.
type LogStore interface {
	GetLogs(ctx context.Context, q repository.LogQuery) ([]model.LogRecord, error)
	DeleteLog(ctx context.Context, id string) error
	DeleteLogsBefore(ctx context.Context, date string) (int64, error)
	DeleteAllLogs(ctx context.Context) (int64, error)
}

// StudentLookup fetches students by id.
type StudentLookup interface {
	GetByIDs(ctx context.Context, ids []string) ([]model.Student, error)
}

// UserLookup fetches user names by id.
type UserLookup interface {
	GetNamesByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

// Export is a rendered CSV file.
type Export struct {
	Filename string
	Body     string
}

// CleanupPreview describes what a bulk delete up to Cutoff would remove.
type CleanupPreview struct {
	Cutoff string `json:"cutoff"`
	Until  string `json:"until"`
	Count  int    `json:"count"`
}

// AttendanceService serves the log feed, its compressed form and exports,
// and log cleanup.
type AttendanceService struct {
	logs     LogStore
	students StudentLookup
	users    UserLookup
	state    *appstate.State
	grace    int
	format   export.Formatter
	now      func() time.Time
	log      zerolog.Logger
}

// NewAttendanceService creates a new AttendanceService. grace is the
// default billing grace in minutes; loc is the export display zone.
func NewAttendanceService(
	logs LogStore,
	students StudentLookup,
	users UserLookup,
	state *appstate.State,
	grace int,
	loc *time.Location,
	log zerolog.Logger,
) *AttendanceService {
	return &AttendanceService{
		logs:     logs,
		students: students,
		users:    users,
		state:    state,
		grace:    grace,
		format:   export.NewFormatter(loc),
		now:      time.Now,
		log:      log.With().Str("component", "attendance_service").Logger(),
	}
}

// CriteriaFrom turns a feed query into engine criteria. An explicit dir
// overrides the one implied by sort, and "action-in" / "action-out" set
// the action filter unless one was given.
func CriteriaFrom(q model.LogListQuery) (attendance.Criteria, error) {
	opt, ok := attendance.ParseSortOption(q.Sort)
	if !ok {
		return attendance.Criteria{}, apperror.Validation("sort", "unknown sort option %q", q.Sort)
	}

	c := attendance.Criteria{
		Search:    q.Search,
		StartDate: strings.TrimSpace(q.StartDate),
		EndDate:   strings.TrimSpace(q.EndDate),
		Action:    model.Action(strings.ToLower(strings.TrimSpace(q.Action))),
		SortField: opt.Field,
		SortDir:   opt.Dir,
	}
	if q.Dir != "" {
		c.SortDir = attendance.SortDir(q.Dir)
	}
	if c.Action == "" {
		c.Action = opt.Action
	}
	if err := c.Validate(); err != nil {
		return attendance.Criteria{}, err
	}
	return c, nil
}

// Feed returns the filtered, sorted log with student and performer names.
func (s *AttendanceService) Feed(ctx context.Context, q model.LogListQuery) ([]model.LogRecord, error) {
	c, err := CriteriaFrom(q)
	if err != nil {
		return nil, err
	}

	logs, err := s.logs.GetLogs(ctx, repository.LogQuery{
		StudentID: q.StudentID,
		StartDate: dayOnly(c.StartDate),
		EndDate:   dayOnly(c.EndDate),
	})
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, logs); err != nil {
		return nil, err
	}

	return attendance.ApplySortAndFilter(logs, c, nil), nil
}

// Compressed pairs the feed into in/out intervals. A nil grace uses the
// configured default.
func (s *AttendanceService) Compressed(ctx context.Context, q model.LogListQuery) ([]attendance.Interval, error) {
	logs, err := s.Feed(ctx, q)
	if err != nil {
		return nil, err
	}
	return attendance.Compress(logs, s.graceFor(q)), nil
}

// ExportRaw renders the feed as CSV.
func (s *AttendanceService) ExportRaw(ctx context.Context, q model.LogListQuery) (Export, error) {
	logs, err := s.Feed(ctx, q)
	if err != nil {
		return Export{}, err
	}
	return Export{
		Filename: export.RawFilename(q.StartDate, q.EndDate),
		Body:     export.ToCSV(export.RawHeaders, s.format.RawRows(logs)),
	}, nil
}

// ExportCompressed renders the compressed feed as CSV.
func (s *AttendanceService) ExportCompressed(ctx context.Context, q model.LogListQuery) (Export, error) {
	intervals, err := s.Compressed(ctx, q)
	if err != nil {
		return Export{}, err
	}
	return Export{
		Filename: export.CompressedFilename(),
		Body:     export.ToCSV(export.CompressedHeaders, s.format.CompressedRows(intervals)),
	}, nil
}

// ExportAll renders every log, newest first, with ids kept.
func (s *AttendanceService) ExportAll(ctx context.Context) (Export, error) {
	logs, err := s.logs.GetLogs(ctx, repository.LogQuery{})
	if err != nil {
		return Export{}, err
	}
	if err := s.hydrate(ctx, logs); err != nil {
		return Export{}, err
	}
	return Export{
		Filename: export.BulkFilename(s.now().UTC()),
		Body:     export.ToCSV(export.BulkHeaders, s.format.BulkRows(logs)),
	}, nil
}

// DeleteLog removes one log. Deleting a log that is already gone succeeds.
func (s *AttendanceService) DeleteLog(ctx context.Context, id string) error {
	err := s.logs.DeleteLog(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		s.log.Debug().Str("log_id", id).Msg("Log already deleted")
		return nil
	}
	return err
}

// PreviewCleanup counts the logs a cleanup up to cutoff would delete.
func (s *AttendanceService) PreviewCleanup(ctx context.Context, cutoff string) (CleanupPreview, error) {
	logs, until, err := s.logsUpTo(ctx, cutoff)
	if err != nil {
		return CleanupPreview{}, err
	}
	return CleanupPreview{Cutoff: cutoff, Until: attendance.FormatInstant(until), Count: len(logs)}, nil
}

// ExportCleanup renders the logs a cleanup up to cutoff would delete, so
// they can be saved first.
func (s *AttendanceService) ExportCleanup(ctx context.Context, cutoff string) (Export, error) {
	logs, _, err := s.logsUpTo(ctx, cutoff)
	if err != nil {
		return Export{}, err
	}
	if err := s.hydrate(ctx, logs); err != nil {
		return Export{}, err
	}
	return Export{
		Filename: export.RawFilename("", cutoff),
		Body:     export.ToCSV(export.RawHeaders, s.format.RawRows(logs)),
	}, nil
}

// DeleteLogsBefore removes every log stamped at or before cutoff 23:59:59 UTC.
func (s *AttendanceService) DeleteLogsBefore(ctx context.Context, cutoff string) (int64, error) {
	n, err := s.logs.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("cutoff", cutoff).Int64("deleted", n).Msg("Deleted attendance logs")
	return n, nil
}

// DeleteAllLogs wipes the log.
func (s *AttendanceService) DeleteAllLogs(ctx context.Context) (int64, error) {
	n, err := s.logs.DeleteAllLogs(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Warn().Int64("deleted", n).Msg("Deleted every attendance log")
	return n, nil
}

// logsUpTo uses the same cutoff instant as the delete, so the preview
// matches what will be removed.
func (s *AttendanceService) logsUpTo(ctx context.Context, cutoff string) ([]model.LogRecord, time.Time, error) {
	until, err := repository.CutoffInstant(cutoff)
	if err != nil {
		return nil, time.Time{}, err
	}
	logs, err := s.logs.GetLogs(ctx, repository.LogQuery{EndDate: cutoff})
	if err != nil {
		return nil, time.Time{}, err
	}

	kept := logs[:0]
	for _, l := range logs {
		if at, ok := attendance.ParseInstant(l.Timestamp); ok && !at.After(until) {
			kept = append(kept, l)
		}
	}
	return kept, until, nil
}

// hydrate fills student and performer names from the cache, loading the
// ids it does not know yet. Ids the store no longer has stay nameless.
func (s *AttendanceService) hydrate(ctx context.Context, logs []model.LogRecord) error {
	var studentIDs, userIDs []string
	for _, l := range logs {
		studentIDs = append(studentIDs, l.StudentID)
		if l.PerformedBy != "" {
			userIDs = append(userIDs, l.PerformedBy)
		}
	}
	missingStudents := s.state.MissingStudents(studentIDs)
	missingUsers := s.state.MissingUsers(userIDs)

	g, gctx := errgroup.WithContext(ctx)
	if len(missingStudents) > 0 {
		g.Go(func() error {
			students, err := s.students.GetByIDs(gctx, missingStudents)
			if err != nil {
				return err
			}
			s.state.PutStudents(students...)
			return nil
		})
	}
	if len(missingUsers) > 0 {
		g.Go(func() error {
			users, err := s.users.GetNamesByIDs(gctx, missingUsers)
			if err != nil {
				return err
			}
			s.state.PutUsers(users...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range logs {
		l := &logs[i]
		if st, ok := s.state.Student(l.StudentID); ok {
			l.StudentFirstName, l.StudentLastName = st.FirstName, st.LastName
		}
		if l.PerformedBy == "" {
			continue
		}
		if u, ok := s.state.User(l.PerformedBy); ok {
			l.PerformerFirstName, l.PerformerLastName = u.FirstName, u.LastName
		}
	}
	return nil
}

func (s *AttendanceService) graceFor(q model.LogListQuery) int {
	if q.Grace != nil {
		return *q.Grace
	}
	return s.grace
}

// dayOnly passes YYYY-MM-DD bounds through to the store query. Instant
// bounds are left to the engine.
func dayOnly(bound string) string {
	if _, ok := attendance.ParseDate(bound); ok {
		return bound
	}
	return ""
}
