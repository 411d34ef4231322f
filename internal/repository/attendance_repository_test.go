package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
)

func newAttendanceRepo(t *testing.T, at time.Time) (*AttendanceRepository, *recordstore.Memory) {
	t.Helper()
	mem := recordstore.NewMemory()
	repo := NewAttendanceRepository(mem)
	repo.now = func() time.Time { return at }
	return repo, mem
}

func TestAppendLog(t *testing.T) {
	at := time.Date(2024, 1, 15, 9, 10, 0, 0, time.UTC)
	repo, mem := newAttendanceRepo(t, at)

	rec, err := repo.AppendLog(context.Background(), "s1", model.ActionIn, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "s1", rec.StudentID)
	assert.Equal(t, model.ActionIn, rec.Action)
	assert.Equal(t, "u1", rec.PerformedBy)
	assert.Equal(t, "2024-01-15T09:10:00Z", rec.Timestamp)
	assert.Len(t, mem.Rows(logsTable), 1)
}

func TestAppendLogs_KeepsEntryTime(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	repo, _ := newAttendanceRepo(t, now)
	earlier := time.Date(2024, 1, 15, 9, 10, 0, 0, time.FixedZone("WIB", 7*3600))

	recs, err := repo.AppendLogs(context.Background(), []model.LogEntry{
		{StudentID: "s1", Action: model.ActionIn, At: earlier},
		{StudentID: "s2", Action: model.ActionIn},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2024-01-15T02:10:00Z", recs[0].Timestamp)
	assert.Equal(t, "2024-01-15T12:00:00Z", recs[1].Timestamp)
}

func TestAppendLog_RejectsBadInput(t *testing.T) {
	repo, mem := newAttendanceRepo(t, time.Now())

	_, err := repo.AppendLog(context.Background(), "s1", "sideways", "u1")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = repo.AppendLog(context.Background(), "", model.ActionOut, "u1")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	assert.Empty(t, mem.Rows(logsTable))
}

func TestAppendLogs_StoresEmptyPerformerAsNull(t *testing.T) {
	repo, mem := newAttendanceRepo(t, time.Now())

	_, err := repo.AppendLogs(context.Background(), []model.LogEntry{
		{StudentID: "s1", Action: model.ActionIn},
		{StudentID: "s2", Action: model.ActionOut, PerformedBy: "u1"},
	})
	require.NoError(t, err)

	rows := mem.Rows(logsTable)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0]["performed_by"])
	assert.Equal(t, "u1", rows[1]["performed_by"])
}

func TestAppendLog_StoreFailure(t *testing.T) {
	repo, mem := newAttendanceRepo(t, time.Now())
	mem.FailOn["insert"] = errors.New("connection reset")

	_, err := repo.AppendLog(context.Background(), "s1", model.ActionIn, "u1")
	assert.ErrorIs(t, err, apperror.ErrStore)
}

func seedLogs(mem *recordstore.Memory) {
	mem.Seed(logsTable,
		recordstore.Row{"id": "1", "student_id": "s1", "action": "in", "timestamp": time.Date(2024, 1, 14, 8, 0, 0, 0, time.UTC)},
		recordstore.Row{"id": "2", "student_id": "s1", "action": "out", "timestamp": time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC)},
		recordstore.Row{"id": "3", "student_id": "s2", "action": "in", "timestamp": time.Date(2024, 1, 15, 23, 59, 59, 500_000_000, time.UTC)},
		recordstore.Row{"id": "4", "student_id": "s2", "action": "out", "timestamp": time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)},
		recordstore.Row{"id": "5", "student_id": "s3", "action": "in", "timestamp": nil},
	)
}

func TestGetLogs_DatePortionAndOrder(t *testing.T) {
	repo, mem := newAttendanceRepo(t, time.Now())
	seedLogs(mem)

	all, err := repo.GetLogs(context.Background(), LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3", "2", "1"}, logIDs(all))

	day, err := repo.GetLogs(context.Background(), LogQuery{StartDate: "2024-01-15", EndDate: "2024-01-15"})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, logIDs(day))

	one, err := repo.GetLogs(context.Background(), LogQuery{StudentID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, logIDs(one))
}

func TestDeleteLog(t *testing.T) {
	repo, mem := newAttendanceRepo(t, time.Now())
	seedLogs(mem)

	require.NoError(t, repo.DeleteLog(context.Background(), "1"))
	assert.Len(t, mem.Rows(logsTable), 4)

	err := repo.DeleteLog(context.Background(), "1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	err = repo.DeleteLog(context.Background(), "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDeleteLogsBefore_CutoffIsEndOfDaySecond(t *testing.T) {
	repo, mem := newAttendanceRepo(t, time.Now())
	seedLogs(mem)

	n, err := repo.DeleteLogsBefore(context.Background(), "2024-01-15")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	var left []string
	for _, r := range mem.Rows(logsTable) {
		left = append(left, r.String("id"))
	}
	// 23:59:59.5 is after the cutoff second; null timestamps never match.
	assert.ElementsMatch(t, []string{"3", "4", "5"}, left)
}

func TestDeleteLogsBefore_InvalidDate(t *testing.T) {
	repo, _ := newAttendanceRepo(t, time.Now())
	_, err := repo.DeleteLogsBefore(context.Background(), "01/15/2024")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDeleteAllLogs(t *testing.T) {
	repo, mem := newAttendanceRepo(t, time.Now())
	seedLogs(mem)

	n, err := repo.DeleteAllLogs(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.Empty(t, mem.Rows(logsTable))
}

func TestLatestActions(t *testing.T) {
	repo, mem := newAttendanceRepo(t, time.Now())
	seedLogs(mem)

	got, err := repo.LatestActions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Action{"s1": model.ActionOut, "s2": model.ActionOut}, got)
}

func logIDs(rows []model.LogRecord) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}
