package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/appstate"
	"github.com/stemsi/checkio-backend/internal/metrics"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/worker"
)

// RosterStore reads and flips students.
type RosterStore interface {
	List(ctx context.Context) ([]model.Student, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Student, error)
	SetCheckedIn(ctx context.Context, ids []string, checkedIn bool) ([]model.Student, error)
}

// ParentLinks resolves which students belong to a parent.
type ParentLinks interface {
	ForParent(ctx context.Context, parentID string) ([]model.Relation, error)
}

// BoardPublisher broadcasts boards to live subscribers.
type BoardPublisher interface {
	Publish(b model.Board) bool
}

// ErrorReporter receives failures of background work.
type ErrorReporter interface {
	Report(err error)
}

// CheckIOService flips the checked-in flag and keeps the live board current.
type CheckIOService struct {
	students  RosterStore
	relations ParentLinks
	state     *appstate.State
	board     BoardPublisher
	queue     worker.LogQueue
	reporter  ErrorReporter
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// NewCheckIOService creates a new CheckIOService.
func NewCheckIOService(
	students RosterStore,
	relations ParentLinks,
	state *appstate.State,
	board BoardPublisher,
	queue worker.LogQueue,
	reporter ErrorReporter,
	m *metrics.Metrics,
	log zerolog.Logger,
) *CheckIOService {
	return &CheckIOService{
		students:  students,
		relations: relations,
		state:     state,
		board:     board,
		queue:     queue,
		reporter:  reporter,
		metrics:   m,
		log:       log.With().Str("component", "checkio_service").Logger(),
		now:       time.Now,
	}
}

// Toggle moves students to checkedIn and returns the caller's board.
//
// The cache is updated first and the store second, in one batch. When the
// store fails the touched cache entries are evicted and no log is written.
// On success the board is published before the log jobs are queued, so
// subscribers see the move without waiting on the attendance log.
func (s *CheckIOService) Toggle(ctx context.Context, actor Actor, ids []string, checkedIn bool) (model.Board, error) {
	action := model.ActionFor(checkedIn)

	ids, err := s.authorizeToggle(ctx, actor, ids, checkedIn)
	if err != nil {
		return model.Board{}, err
	}

	if err := s.loadRoster(ctx); err != nil {
		return model.Board{}, err
	}
	if unknown := s.state.MissingStudents(ids); len(unknown) > 0 {
		if err := s.loadStudents(ctx, unknown); err != nil {
			return model.Board{}, err
		}
		if unknown = s.state.MissingStudents(ids); len(unknown) > 0 {
			return model.Board{}, apperror.NotFound("unknown student ids: %v", unknown)
		}
	}

	s.state.SetCheckedIn(ids, checkedIn)

	updated, err := s.students.SetCheckedIn(ctx, ids, checkedIn)
	if err != nil {
		s.state.EvictStudents(ids...)
		s.metrics.Toggles.WithLabelValues(string(action), "error").Add(float64(len(ids)))
		s.log.Error().Err(err).Int("count", len(ids)).Str("action", string(action)).Msg("Failed to update checked-in flag")
		return model.Board{}, err
	}
	s.state.PutStudents(updated...)
	s.metrics.Toggles.WithLabelValues(string(action), "ok").Add(float64(len(ids)))

	b := s.snapshot(s.state.NextGeneration())
	s.board.Publish(b)

	s.enqueueLogs(ctx, actor, ids, action)

	return s.viewFor(ctx, actor, b)
}

// authorizeToggle dedupes ids and applies the role rules: staff may move
// anyone, parents may only check out their own children.
func (s *CheckIOService) authorizeToggle(ctx context.Context, actor Actor, ids []string, checkedIn bool) ([]string, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, apperror.Validation("student_ids", "empty student id")
		}
		if !slices.Contains(clean, id) {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return nil, apperror.Validation("student_ids", "no students selected")
	}

	switch {
	case actor.IsStaff():
		return clean, nil
	case actor.Role == model.RoleParent:
		if checkedIn {
			return nil, apperror.Forbidden("parents can only check students out")
		}
		children, err := s.childrenOf(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		for _, id := range clean {
			if _, ok := children[id]; !ok {
				return nil, apperror.Forbidden("student %s is not your child", id)
			}
		}
		return clean, nil
	default:
		return nil, apperror.Forbidden("role %q cannot check students in or out", actor.Role)
	}
}

func (s *CheckIOService) enqueueLogs(ctx context.Context, actor Actor, ids []string, action model.Action) {
	now := s.now().UTC()
	jobs := make([]worker.LogJob, len(ids))
	for i, id := range ids {
		jobs[i] = worker.LogJob{
			Entry: model.LogEntry{StudentID: id, Action: action, PerformedBy: actor.UserID, At: now},
		}
	}

	// The request may finish before the queue answers.
	if err := s.queue.Push(context.WithoutCancel(ctx), jobs...); err != nil {
		s.reporter.Report(fmt.Errorf("enqueue %d %s logs: %w", len(jobs), action, err))
	}
}

// Board returns the current partition as seen by actor.
func (s *CheckIOService) Board(ctx context.Context, actor Actor) (model.Board, error) {
	if err := s.loadRoster(ctx); err != nil {
		return model.Board{}, err
	}
	return s.viewFor(ctx, actor, s.snapshot(s.state.NextGeneration()))
}

// ViewFor returns the board filter for a live subscriber. Staff see
// everything, parents only their children.
func (s *CheckIOService) ViewFor(ctx context.Context, actor Actor) (func(model.Board) model.Board, error) {
	if actor.IsStaff() {
		return nil, nil
	}
	if actor.Role != model.RoleParent {
		return nil, apperror.Forbidden("role %q cannot view the board", actor.Role)
	}
	children, err := s.childrenOf(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return func(b model.Board) model.Board { return onlyStudents(b, children) }, nil
}

func (s *CheckIOService) viewFor(ctx context.Context, actor Actor, b model.Board) (model.Board, error) {
	view, err := s.ViewFor(ctx, actor)
	if err != nil {
		return model.Board{}, err
	}
	if view == nil {
		return b, nil
	}
	return view(b), nil
}

// loadRoster fills the cache with the full roster once. After an eviction
// the roster is reloaded on the next read.
func (s *CheckIOService) loadRoster(ctx context.Context) error {
	if s.state.Complete() {
		return nil
	}
	students, err := s.students.List(ctx)
	if err != nil {
		return err
	}
	s.state.ReplaceStudents(students)
	return nil
}

func (s *CheckIOService) loadStudents(ctx context.Context, ids []string) error {
	students, err := s.students.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	s.state.PutStudents(students...)
	return nil
}

func (s *CheckIOService) childrenOf(ctx context.Context, parentID string) (map[string]struct{}, error) {
	rels, err := s.relations.ForParent(ctx, parentID)
	if err != nil {
		return nil, err
	}
	children := make(map[string]struct{}, len(rels))
	for _, r := range rels {
		children[r.StudentID] = struct{}{}
	}
	return children, nil
}

// snapshot partitions the cached roster, each side sorted by last name
// then first name.
func (s *CheckIOService) snapshot(gen uint64) model.Board {
	b := model.Board{CheckedIn: []model.Student{}, CheckedOut: []model.Student{}, Generation: gen}
	for _, st := range s.state.Students() {
		if st.CheckedIn {
			b.CheckedIn = append(b.CheckedIn, st)
		} else {
			b.CheckedOut = append(b.CheckedOut, st)
		}
	}

	sortStudentsByName(b.CheckedIn)
	sortStudentsByName(b.CheckedOut)
	return b
}

func onlyStudents(b model.Board, keep map[string]struct{}) model.Board {
	filter := func(in []model.Student) []model.Student {
		out := make([]model.Student, 0, len(in))
		for _, st := range in {
			if _, ok := keep[st.ID]; ok {
				out = append(out, st)
			}
		}
		return out
	}
	return model.Board{CheckedIn: filter(b.CheckedIn), CheckedOut: filter(b.CheckedOut), Generation: b.Generation}
}
