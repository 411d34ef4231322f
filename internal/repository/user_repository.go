package repository

import (
	"context"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
)

const usersTable = "users"

var (
	userFields   = []string{"id", "first_name", "last_name", "role", "pin"}
	userNameOnly = []string{"id", "first_name", "last_name"}
)

// UserRepository handles user data access.
type UserRepository struct {
	store recordstore.Store
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(store recordstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

// List returns every user including PINs.
func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.store.Select(ctx, usersTable, recordstore.Query{Fields: userFields, OrderBy: "last_name"})
	if err != nil {
		return nil, apperror.Store("select users", err)
	}
	return mapUsers(rows), nil
}

// GetNamesByIDs returns id and name of the given users, without PINs.
func (r *UserRepository) GetNamesByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.store.Select(ctx, usersTable, recordstore.Query{
		Fields:  userNameOnly,
		Filters: recordstore.Filters{"id": ids},
	})
	if err != nil {
		return nil, apperror.Store("select users by id", err)
	}
	return mapUsers(rows), nil
}

// GetByID returns one user.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, recordstore.Filters{"id": id}, "user %s not found", id)
}

// GetByPIN returns the user holding pin.
func (r *UserRepository) GetByPIN(ctx context.Context, pin string) (*model.User, error) {
	return r.getOne(ctx, recordstore.Filters{"pin": pin}, "no user with that PIN")
}

func (r *UserRepository) getOne(ctx context.Context, f recordstore.Filters, notFound string, args ...any) (*model.User, error) {
	rows, err := r.store.Select(ctx, usersTable, recordstore.Query{Fields: userFields, Filters: f})
	if err != nil {
		return nil, apperror.Store("select user", err)
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound(notFound, args...)
	}
	u := normalizeUser(rows[0])
	return &u, nil
}

// PinTaken reports whether another user than excludeID holds pin.
func (r *UserRepository) PinTaken(ctx context.Context, pin, excludeID string) (bool, error) {
	f := recordstore.Filters{"pin": pin}
	if excludeID != "" {
		f["id"] = recordstore.Cond{Op: recordstore.OpNeq, Value: excludeID}
	}
	rows, err := r.store.Select(ctx, usersTable, recordstore.Query{Fields: []string{"id"}, Filters: f})
	if err != nil {
		return false, apperror.Store("check pin", err)
	}
	return len(rows) > 0, nil
}

// Create inserts a user. A PIN collision surfaces as a conflict error.
func (r *UserRepository) Create(ctx context.Context, u model.User) (model.User, error) {
	rows, err := r.store.Insert(ctx, usersTable, []recordstore.Row{userRow(u)})
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, apperror.Conflict("pin", "PIN already in use")
		}
		return model.User{}, apperror.Store("insert user", err)
	}
	if len(rows) == 0 {
		return model.User{}, apperror.Store("insert user", errNoRowsReturned)
	}
	return normalizeUser(rows[0]), nil
}

// Update rewrites a user's profile and PIN.
func (r *UserRepository) Update(ctx context.Context, u model.User) (model.User, error) {
	rows, err := r.store.Update(ctx, usersTable, userRow(u), recordstore.Filters{"id": u.ID})
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, apperror.Conflict("pin", "PIN already in use")
		}
		return model.User{}, apperror.Store("update user", err)
	}
	if len(rows) == 0 {
		return model.User{}, apperror.NotFound("user %s not found", u.ID)
	}
	return normalizeUser(rows[0]), nil
}

// Delete removes a user.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	n, err := r.store.Delete(ctx, usersTable, recordstore.Filters{"id": id})
	if err != nil {
		return apperror.Store("delete user", err)
	}
	if n == 0 {
		return apperror.NotFound("user %s not found", id)
	}
	return nil
}

func userRow(u model.User) recordstore.Row {
	return recordstore.Row{
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"role":       string(u.Role),
		"pin":        u.PIN,
	}
}

func mapUsers(rows []recordstore.Row) []model.User {
	out := make([]model.User, len(rows))
	for i, row := range rows {
		out[i] = normalizeUser(row)
	}
	return out
}
