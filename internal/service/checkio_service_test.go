package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/appstate"
	"github.com/stemsi/checkio-backend/internal/metrics"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
	"github.com/stemsi/checkio-backend/internal/repository"
	"github.com/stemsi/checkio-backend/internal/worker"
)

type recordingBoard struct {
	mu     sync.Mutex
	boards []model.Board
}

func (r *recordingBoard) Publish(b model.Board) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards = append(r.boards, b)
	return true
}

type recordingReporter struct {
	errs []error
}

func (r *recordingReporter) Report(err error) { r.errs = append(r.errs, err) }

type checkIOFixture struct {
	mem      *recordstore.Memory
	state    *appstate.State
	board    *recordingBoard
	queue    *worker.MemoryLogQueue
	reporter *recordingReporter
	svc      *CheckIOService
}

func newCheckIOFixture(t *testing.T) *checkIOFixture {
	t.Helper()
	mem := recordstore.NewMemory().Keyless(repository.RelationsTable)
	mem.Seed("students",
		recordstore.Row{"id": "s1", "first_name": "ada", "last_name": "Zimmer", "grade": "3", "checked_in": false},
		recordstore.Row{"id": "s2", "first_name": "Ben", "last_name": "adams", "grade": "4", "checked_in": false},
		recordstore.Row{"id": "s3", "first_name": "Cy", "last_name": "Brown", "grade": "4", "checked_in": true},
	)
	mem.Seed(repository.RelationsTable, recordstore.Row{"student_id": "s3", "parent_id": "p1"})

	f := &checkIOFixture{
		mem:      mem,
		state:    appstate.New(),
		board:    &recordingBoard{},
		queue:    worker.NewMemoryLogQueue(16),
		reporter: &recordingReporter{},
	}
	f.svc = NewCheckIOService(
		repository.NewStudentRepository(mem),
		repository.NewRelationRepository(mem),
		f.state, f.board, f.queue, f.reporter, metrics.New(), zerolog.Nop(),
	)
	return f
}

var staff = Actor{UserID: "t1", Role: model.RoleTeacher}

func ids(students []model.Student) []string {
	out := make([]string, len(students))
	for i, s := range students {
		out[i] = s.ID
	}
	return out
}

func TestToggle_BoardShowsStudentBeforeLogIsWritten(t *testing.T) {
	ctx := context.Background()
	f := newCheckIOFixture(t)

	b, err := f.svc.Toggle(ctx, staff, []string{"s1", "s2"}, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"s2", "s3", "s1"}, ids(b.CheckedIn))
	assert.Empty(t, b.CheckedOut)

	require.Len(t, f.board.boards, 1)
	assert.Equal(t, b.Generation, f.board.boards[0].Generation)

	// Nothing consumed the queue yet.
	assert.Empty(t, f.mem.Rows("attendance_logs"))
	assert.Equal(t, 2, f.queue.Len())

	j, ok, err := f.queue.TryPop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.LogEntry{StudentID: "s1", Action: model.ActionIn, PerformedBy: "t1"}, j.Entry)

	listed, err := f.svc.Board(ctx, staff)
	require.NoError(t, err)
	assert.Contains(t, ids(listed.CheckedIn), "s1")
	assert.Greater(t, listed.Generation, b.Generation)
}

func TestToggle_PersistsFlag(t *testing.T) {
	ctx := context.Background()
	f := newCheckIOFixture(t)

	_, err := f.svc.Toggle(ctx, staff, []string{"s3"}, false)
	require.NoError(t, err)

	for _, row := range f.mem.Rows("students") {
		if row.String("id") == "s3" {
			assert.False(t, row.Bool("checked_in"))
		}
	}
}

func TestToggle_StoreFailureEvictsAndSkipsLog(t *testing.T) {
	ctx := context.Background()
	f := newCheckIOFixture(t)

	_, err := f.svc.Board(ctx, staff)
	require.NoError(t, err)
	require.True(t, f.state.Complete())

	f.mem.FailOn["update"] = errors.New("connection reset")
	_, err = f.svc.Toggle(ctx, staff, []string{"s1"}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrStore)

	_, cached := f.state.Student("s1")
	assert.False(t, cached)
	assert.False(t, f.state.Complete())
	assert.Empty(t, f.board.boards)
	assert.Zero(t, f.queue.Len())

	// The next read reloads the stored (unchanged) flag.
	delete(f.mem.FailOn, "update")
	b, err := f.svc.Board(ctx, staff)
	require.NoError(t, err)
	assert.Contains(t, ids(b.CheckedOut), "s1")
}

func TestToggle_Validation(t *testing.T) {
	ctx := context.Background()
	f := newCheckIOFixture(t)

	_, err := f.svc.Toggle(ctx, staff, nil, true)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.Toggle(ctx, staff, []string{""}, true)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.Toggle(ctx, staff, []string{"nope"}, true)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestToggle_DuplicateIDsQueueOneLog(t *testing.T) {
	f := newCheckIOFixture(t)

	_, err := f.svc.Toggle(context.Background(), staff, []string{"s1", "s1"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.queue.Len())
}

func TestToggle_ParentRules(t *testing.T) {
	ctx := context.Background()
	f := newCheckIOFixture(t)
	parent := Actor{UserID: "p1", Role: model.RoleParent}

	_, err := f.svc.Toggle(ctx, parent, []string{"s3"}, true)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.Toggle(ctx, parent, []string{"s1"}, false)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	b, err := f.svc.Toggle(ctx, parent, []string{"s3"}, false)
	require.NoError(t, err)
	assert.Empty(t, b.CheckedIn)
	assert.Equal(t, []string{"s3"}, ids(b.CheckedOut))

	// Subscribers still get the full board.
	require.Len(t, f.board.boards, 1)
	assert.Len(t, f.board.boards[0].CheckedOut, 3)
}

func TestToggle_EnqueueFailureIsReportedNotReturned(t *testing.T) {
	ctx := context.Background()
	f := newCheckIOFixture(t)
	f.queue = worker.NewMemoryLogQueue(1)
	f.svc.queue = f.queue

	_, err := f.svc.Toggle(ctx, staff, []string{"s1", "s2"}, true)
	require.NoError(t, err)

	require.Len(t, f.reporter.errs, 1)
	assert.ErrorIs(t, f.reporter.errs[0], worker.ErrQueueFull)
}

func TestBoard_ParentSeesOwnChildrenOnly(t *testing.T) {
	f := newCheckIOFixture(t)

	b, err := f.svc.Board(context.Background(), Actor{UserID: "p1", Role: model.RoleParent})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3"}, ids(b.CheckedIn))
	assert.Empty(t, b.CheckedOut)

	_, err = f.svc.Board(context.Background(), Actor{UserID: "x", Role: "guest"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestToggle_LogJobsCarryToggleTime(t *testing.T) {
	f := newCheckIOFixture(t)
	at := time.Date(2024, 1, 15, 9, 10, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return at }

	_, err := f.svc.Toggle(context.Background(), staff, []string{"s1", "s2"}, true)
	require.NoError(t, err)

	for range 2 {
		j, ok, err := f.queue.TryPop(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, j.Entry.At.Equal(at))
	}
}
