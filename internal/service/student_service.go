package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/appstate"
	"github.com/stemsi/checkio-backend/internal/model"
)

// StudentStore is the students table.
type StudentStore interface {
	List(ctx context.Context) ([]model.Student, error)
	Create(ctx context.Context, s model.Student) (model.Student, error)
	CreateMany(ctx context.Context, students []model.Student) (int, error)
	Update(ctx context.Context, s model.Student) (model.Student, error)
	Delete(ctx context.Context, id string) error
}

// RelationStore is the student-parent join table.
type RelationStore interface {
	List(ctx context.Context) ([]model.Relation, error)
	ForParent(ctx context.Context, parentID string) ([]model.Relation, error)
	Add(ctx context.Context, parentID string, studentIDs []string) error
	Remove(ctx context.Context, parentID string, studentIDs []string) error
}

// UserStore is the users table.
type UserStore interface {
	List(ctx context.Context) ([]model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	PinTaken(ctx context.Context, pin, excludeID string) (bool, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	Update(ctx context.Context, u model.User) (model.User, error)
	Delete(ctx context.Context, id string) error
}

// StudentService handles roster management.
type StudentService struct {
	students  StudentStore
	relations RelationStore
	users     UserStore
	state     *appstate.State
	log       zerolog.Logger
}

// NewStudentService creates a new StudentService.
func NewStudentService(students StudentStore, relations RelationStore, users UserStore, state *appstate.State, log zerolog.Logger) *StudentService {
	return &StudentService{
		students:  students,
		relations: relations,
		users:     users,
		state:     state,
		log:       log.With().Str("component", "student_service").Logger(),
	}
}

// List returns every student with its parents, sorted by q.
func (s *StudentService) List(ctx context.Context, q model.StudentListQuery) ([]model.StudentWithParents, error) {
	var (
		students  []model.Student
		relations []model.Relation
		users     []model.User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		students, err = s.students.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		relations, err = s.relations.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		users, err = s.users.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.state.PutUsers(users...)

	userByID := make(map[string]model.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}
	parentsOf := make(map[string][]model.Parent)
	for _, r := range relations {
		u, ok := userByID[r.ParentID]
		if !ok {
			continue
		}
		parentsOf[r.StudentID] = append(parentsOf[r.StudentID], model.Parent{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName})
	}

	rows := make([]model.StudentWithParents, len(students))
	for i, st := range students {
		parents := parentsOf[st.ID]
		if parents == nil {
			parents = []model.Parent{}
		}
		for _, p := range parents {
			st.ParentIDs = append(st.ParentIDs, p.ID)
		}
		rows[i] = model.StudentWithParents{Student: st, Parents: parents}
	}

	sortStudentRows(rows, q.Sort, q.Dir)
	return rows, nil
}

// Create adds a checked-out student.
func (s *StudentService) Create(ctx context.Context, req model.CreateStudentRequest) (model.Student, error) {
	st, err := s.students.Create(ctx, model.Student{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Grade:     strings.TrimSpace(req.Grade),
	})
	if err != nil {
		return model.Student{}, err
	}
	s.state.PutStudents(st)
	return st, nil
}

// Import adds many students in one insert and returns how many were stored.
func (s *StudentService) Import(ctx context.Context, students []model.Student) (int, error) {
	for i := range students {
		students[i].FirstName = strings.TrimSpace(students[i].FirstName)
		students[i].LastName = strings.TrimSpace(students[i].LastName)
		students[i].Grade = strings.TrimSpace(students[i].Grade)
		students[i].CheckedIn = false
	}
	n, err := s.students.CreateMany(ctx, students)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int("count", n).Msg("Imported students")
	return n, nil
}

// Update edits a student's name and grade. The checked-in flag is left
// alone.
func (s *StudentService) Update(ctx context.Context, id string, req model.UpdateStudentRequest) (model.Student, error) {
	st, err := s.students.Update(ctx, model.Student{
		ID:        id,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Grade:     strings.TrimSpace(req.Grade),
	})
	if err != nil {
		return model.Student{}, err
	}
	s.state.PutStudents(st)
	return st, nil
}

// Delete removes a student. Its logs are kept. Deleting a missing
// student succeeds.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	err := s.students.Delete(ctx, id)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	s.state.RemoveStudent(id)
	return nil
}
