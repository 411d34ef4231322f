package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/appstate"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
	"github.com/stemsi/checkio-backend/internal/repository"
)

type rosterFixture struct {
	mem      *recordstore.Memory
	state    *appstate.State
	students *StudentService
	users    *UserService
}

func newRosterFixture(t *testing.T) *rosterFixture {
	t.Helper()
	mem := recordstore.NewMemory().Keyless(repository.RelationsTable)
	mem.Seed("students",
		recordstore.Row{"id": "s1", "first_name": "Ada", "last_name": "Lovelace", "grade": "10"},
		recordstore.Row{"id": "s2", "first_name": "Alan", "last_name": "turing", "grade": "9"},
		recordstore.Row{"id": "s3", "first_name": "Bea", "last_name": "Lovelace", "grade": "K"},
	)
	mem.Seed("users",
		recordstore.Row{"id": "u1", "first_name": "Pat", "last_name": "Parent", "role": "parent", "pin": "1111"},
		recordstore.Row{"id": "u2", "first_name": "Tess", "last_name": "Teacher", "role": "teacher", "pin": "2222"},
		recordstore.Row{"id": "u3", "first_name": "Al", "last_name": "Admin", "role": "admin", "pin": "3333"},
	)
	mem.Seed(repository.RelationsTable,
		recordstore.Row{"student_id": "s1", "parent_id": "u1"},
		recordstore.Row{"student_id": "s3", "parent_id": "u1"},
	)

	state := appstate.New()
	students := repository.NewStudentRepository(mem)
	users := repository.NewUserRepository(mem)
	relations := repository.NewRelationRepository(mem)
	return &rosterFixture{
		mem:      mem,
		state:    state,
		students: NewStudentService(students, relations, users, state, zerolog.Nop()),
		users:    NewUserService(users, relations, state, zerolog.Nop()),
	}
}

func studentIDs(rows []model.StudentWithParents) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func userIDs(users []model.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

func TestStudentService_ListSortsWithFallback(t *testing.T) {
	ctx := context.Background()
	f := newRosterFixture(t)

	rows, err := f.students.List(ctx, model.StudentListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3", "s2"}, studentIDs(rows))
	assert.Equal(t, []model.Parent{{ID: "u1", FirstName: "Pat", LastName: "Parent"}}, rows[0].Parents)
	assert.Empty(t, rows[2].Parents)

	// Direction only applies to the primary field.
	rows, err = f.students.List(ctx, model.StudentListQuery{Sort: "lastName", Dir: "desc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1", "s3"}, studentIDs(rows))

	rows, err = f.students.List(ctx, model.StudentListQuery{Sort: "grade"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1", "s3"}, studentIDs(rows))
}

func TestCompareGrades(t *testing.T) {
	cl := newNameCollator()
	assert.Negative(t, compareGrades(cl, "9", "10"))
	assert.Positive(t, compareGrades(cl, "K", "10"))
	assert.Zero(t, compareGrades(cl, "", "0"))
	assert.Negative(t, compareGrades(cl, "a", "B"))
}

func TestStudentService_CRUDKeepsCacheInStep(t *testing.T) {
	ctx := context.Background()
	f := newRosterFixture(t)

	st, err := f.students.Create(ctx, model.CreateStudentRequest{FirstName: " Grace ", LastName: "Hopper", Grade: "5"})
	require.NoError(t, err)
	assert.Equal(t, "Grace", st.FirstName)
	assert.False(t, st.CheckedIn)
	_, cached := f.state.Student(st.ID)
	assert.True(t, cached)

	st, err = f.students.Update(ctx, st.ID, model.UpdateStudentRequest{FirstName: "Grace", LastName: "Murray", Grade: "6"})
	require.NoError(t, err)
	cachedSt, _ := f.state.Student(st.ID)
	assert.Equal(t, "Murray", cachedSt.LastName)

	require.NoError(t, f.students.Delete(ctx, st.ID))
	_, cached = f.state.Student(st.ID)
	assert.False(t, cached)

	assert.NoError(t, f.students.Delete(ctx, st.ID))
	_, err = f.students.Update(ctx, "missing", model.UpdateStudentRequest{FirstName: "x", LastName: "y"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestStudentService_Import(t *testing.T) {
	f := newRosterFixture(t)

	n, err := f.students.Import(context.Background(), []model.Student{
		{FirstName: "A", LastName: "One", CheckedIn: true},
		{FirstName: "B", LastName: "Two"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.mem.Rows("students"), 5)
}

func TestUserService_ListSorts(t *testing.T) {
	ctx := context.Background()
	f := newRosterFixture(t)

	users, err := f.users.List(ctx, model.UserListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u1", "u2"}, userIDs(users))
	assert.ElementsMatch(t, []string{"s1", "s3"}, users[1].ChildIDs)

	users, err = f.users.List(ctx, model.UserListQuery{Sort: "children"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3", "u2"}, userIDs(users))

	users, err = f.users.List(ctx, model.UserListQuery{Sort: "children-no"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u2", "u1"}, userIDs(users))

	users, err = f.users.List(ctx, model.UserListQuery{Sort: "role", Dir: "desc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u1", "u3"}, userIDs(users))
}

func TestUserService_PinUniqueness(t *testing.T) {
	ctx := context.Background()
	f := newRosterFixture(t)

	ok, err := f.users.PinAvailable(ctx, "1111", "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.users.PinAvailable(ctx, "1111", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.users.Create(ctx, model.SaveUserRequest{FirstName: "N", LastName: "New", Role: model.RoleTeacher, PIN: "2222"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = f.users.Create(ctx, model.SaveUserRequest{FirstName: "N", LastName: "New", Role: model.RoleTeacher, PIN: "22a2"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	// Keeping your own PIN is fine.
	_, err = f.users.Update(ctx, "u2", model.SaveUserRequest{FirstName: "Tess", LastName: "T", Role: model.RoleTeacher, PIN: "2222"})
	require.NoError(t, err)
}

func TestUserService_CreateParentLinksChildren(t *testing.T) {
	ctx := context.Background()
	f := newRosterFixture(t)

	u, err := f.users.Create(ctx, model.SaveUserRequest{
		FirstName: "Mo", LastName: "Mom", Role: model.RoleParent, PIN: "4444",
		ChildIDs: []string{"s2", "s2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, u.ChildIDs)

	rels, err := repository.NewRelationRepository(f.mem).ForParent(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Relation{{StudentID: "s2", ParentID: u.ID}}, rels)

	cached, ok := f.state.User(u.ID)
	require.True(t, ok)
	assert.Empty(t, cached.PIN)
}

func TestUserService_UpdateDiffsChildren(t *testing.T) {
	ctx := context.Background()
	f := newRosterFixture(t)

	u, err := f.users.Update(ctx, "u1", model.SaveUserRequest{
		FirstName: "Pat", LastName: "Parent", Role: model.RoleParent, PIN: "1111",
		ChildIDs: []string{"s3", "s2"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s3", "s2"}, u.ChildIDs)

	rels, err := repository.NewRelationRepository(f.mem).ForParent(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Relation{{StudentID: "s3", ParentID: "u1"}, {StudentID: "s2", ParentID: "u1"}}, rels)

	// Leaving the parent role drops every link.
	u, err = f.users.Update(ctx, "u1", model.SaveUserRequest{
		FirstName: "Pat", LastName: "Parent", Role: model.RoleTeacher, PIN: "1111",
		ChildIDs: []string{"s3"},
	})
	require.NoError(t, err)
	assert.Empty(t, u.ChildIDs)
	rels, err = repository.NewRelationRepository(f.mem).ForParent(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestDiffIDs(t *testing.T) {
	add, remove := diffIDs([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"c"}, add)
	assert.Equal(t, []string{"a"}, remove)
}

func TestUserService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newRosterFixture(t)
	f.state.PutUsers(model.User{ID: "u2"})

	require.NoError(t, f.users.Delete(ctx, "u2"))
	_, ok := f.state.User("u2")
	assert.False(t, ok)
	assert.NoError(t, f.users.Delete(ctx, "u2"))
}
