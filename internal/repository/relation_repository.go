package repository

import (
	"context"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
)

// RelationsTable is the student-parent join table. It has no id column.
const RelationsTable = "students_parents"

// RelationRepository handles student-parent links.
type RelationRepository struct {
	store recordstore.Store
}

// NewRelationRepository creates a new RelationRepository.
func NewRelationRepository(store recordstore.Store) *RelationRepository {
	return &RelationRepository{store: store}
}

// List returns every relation.
func (r *RelationRepository) List(ctx context.Context) ([]model.Relation, error) {
	return r.selectWhere(ctx, nil)
}

// ForParent returns the relations of one parent.
func (r *RelationRepository) ForParent(ctx context.Context, parentID string) ([]model.Relation, error) {
	return r.selectWhere(ctx, recordstore.Filters{"parent_id": parentID})
}

func (r *RelationRepository) selectWhere(ctx context.Context, f recordstore.Filters) ([]model.Relation, error) {
	rows, err := r.store.Select(ctx, RelationsTable, recordstore.Query{
		Fields:  []string{"student_id", "parent_id"},
		Filters: f,
	})
	if err != nil {
		return nil, apperror.Store("select relations", err)
	}
	out := make([]model.Relation, len(rows))
	for i, row := range rows {
		out[i] = model.Relation{StudentID: str(row["student_id"]), ParentID: str(row["parent_id"])}
	}
	return out, nil
}

// Add links a parent to several students in one insert.
func (r *RelationRepository) Add(ctx context.Context, parentID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	rows := make([]recordstore.Row, len(studentIDs))
	for i, sid := range studentIDs {
		rows[i] = recordstore.Row{"student_id": sid, "parent_id": parentID}
	}
	if _, err := r.store.Insert(ctx, RelationsTable, rows); err != nil {
		return apperror.Store("insert relations", err)
	}
	return nil
}

// Remove unlinks a parent from several students in one delete.
func (r *RelationRepository) Remove(ctx context.Context, parentID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	_, err := r.store.Delete(ctx, RelationsTable, recordstore.Filters{
		"parent_id":  parentID,
		"student_id": studentIDs,
	})
	if err != nil {
		return apperror.Store("delete relations", err)
	}
	return nil
}
