package repository

import (
	"context"
	"errors"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
)

const studentsTable = "students"

var studentFields = []string{"id", "first_name", "last_name", "grade", "checked_in"}

var errNoRowsReturned = errors.New("store returned no rows")

// StudentRepository handles student data access.
type StudentRepository struct {
	store recordstore.Store
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(store recordstore.Store) *StudentRepository {
	return &StudentRepository{store: store}
}

// List returns every student.
func (r *StudentRepository) List(ctx context.Context) ([]model.Student, error) {
	rows, err := r.store.Select(ctx, studentsTable, recordstore.Query{Fields: studentFields, OrderBy: "last_name"})
	if err != nil {
		return nil, apperror.Store("select students", err)
	}
	return mapStudents(rows), nil
}

// GetByIDs returns the students with the given ids, in store order.
func (r *StudentRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.store.Select(ctx, studentsTable, recordstore.Query{
		Fields:  studentFields,
		Filters: recordstore.Filters{"id": ids},
	})
	if err != nil {
		return nil, apperror.Store("select students by id", err)
	}
	return mapStudents(rows), nil
}

// Create inserts a checked-out student.
func (r *StudentRepository) Create(ctx context.Context, s model.Student) (model.Student, error) {
	rows, err := r.store.Insert(ctx, studentsTable, []recordstore.Row{{
		"first_name": s.FirstName,
		"last_name":  s.LastName,
		"grade":      s.Grade,
		"checked_in": false,
	}})
	if err != nil {
		return model.Student{}, apperror.Store("insert student", err)
	}
	if len(rows) == 0 {
		return model.Student{}, apperror.Store("insert student", errNoRowsReturned)
	}
	return normalizeStudent(rows[0]), nil
}

// CreateMany inserts a roster batch.
func (r *StudentRepository) CreateMany(ctx context.Context, students []model.Student) (int, error) {
	if len(students) == 0 {
		return 0, nil
	}
	rows := make([]recordstore.Row, len(students))
	for i, s := range students {
		rows[i] = recordstore.Row{
			"first_name": s.FirstName,
			"last_name":  s.LastName,
			"grade":      s.Grade,
			"checked_in": false,
		}
	}
	inserted, err := r.store.Insert(ctx, studentsTable, rows)
	if err != nil {
		return 0, apperror.Store("insert students", err)
	}
	return len(inserted), nil
}

// Update changes a student's name and grade. The presence flag is only
// changed through SetCheckedIn.
func (r *StudentRepository) Update(ctx context.Context, s model.Student) (model.Student, error) {
	rows, err := r.store.Update(ctx, studentsTable, recordstore.Row{
		"first_name": s.FirstName,
		"last_name":  s.LastName,
		"grade":      s.Grade,
	}, recordstore.Filters{"id": s.ID})
	if err != nil {
		return model.Student{}, apperror.Store("update student", err)
	}
	if len(rows) == 0 {
		return model.Student{}, apperror.NotFound("student %s not found", s.ID)
	}
	return normalizeStudent(rows[0]), nil
}

// SetCheckedIn sets the presence flag of every listed student in one
// statement and returns the updated rows.
func (r *StudentRepository) SetCheckedIn(ctx context.Context, ids []string, checkedIn bool) ([]model.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.store.Update(ctx, studentsTable, recordstore.Row{"checked_in": checkedIn}, recordstore.Filters{"id": ids})
	if err != nil {
		return nil, apperror.Store("update student status", err)
	}
	return mapStudents(rows), nil
}

// Delete removes a student.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	n, err := r.store.Delete(ctx, studentsTable, recordstore.Filters{"id": id})
	if err != nil {
		return apperror.Store("delete student", err)
	}
	if n == 0 {
		return apperror.NotFound("student %s not found", id)
	}
	return nil
}

func mapStudents(rows []recordstore.Row) []model.Student {
	out := make([]model.Student, len(rows))
	for i, row := range rows {
		out[i] = normalizeStudent(row)
	}
	return out
}
