package service

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/appstate"
	"github.com/stemsi/checkio-backend/internal/attendance"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
	"github.com/stemsi/checkio-backend/internal/repository"
)

func newAttendanceFixture(t *testing.T) (*AttendanceService, *recordstore.Memory) {
	t.Helper()
	mem := recordstore.NewMemory()
	mem.Seed("students",
		recordstore.Row{"id": "s1", "first_name": "Ada", "last_name": "Lovelace"},
		recordstore.Row{"id": "s2", "first_name": "Alan", "last_name": "Turing"},
	)
	mem.Seed("users",
		recordstore.Row{"id": "t1", "first_name": "Grace", "last_name": "Hopper", "role": "teacher", "pin": "1234"},
	)
	mem.Seed("attendance_logs",
		recordstore.Row{"id": "l1", "student_id": "s1", "action": "in", "timestamp": "2024-01-15T09:10:00Z", "performed_by": "t1"},
		recordstore.Row{"id": "l2", "student_id": "s1", "action": "out", "timestamp": "2024-01-15T12:05:00Z", "performed_by": "t1"},
		recordstore.Row{"id": "l3", "student_id": "s2", "action": "in", "timestamp": "2024-01-16T08:00:00Z", "performed_by": nil},
		recordstore.Row{"id": "l4", "student_id": "gone", "action": "in", "timestamp": "2024-01-15T23:59:59.500Z", "performed_by": "t1"},
	)

	svc := NewAttendanceService(
		repository.NewAttendanceRepository(mem),
		repository.NewStudentRepository(mem),
		repository.NewUserRepository(mem),
		appstate.New(),
		5,
		time.UTC,
		zerolog.Nop(),
	)
	svc.now = func() time.Time { return time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC) }
	return svc, mem
}

func logIDs(logs []model.LogRecord) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.ID
	}
	return out
}

func TestCriteriaFrom(t *testing.T) {
	c, err := CriteriaFrom(model.LogListQuery{})
	require.NoError(t, err)
	assert.Equal(t, attendance.DefaultCriteria(), c)

	c, err = CriteriaFrom(model.LogListQuery{Sort: "action-out"})
	require.NoError(t, err)
	assert.Equal(t, attendance.SortAction, c.SortField)
	assert.Equal(t, model.ActionOut, c.Action)

	c, err = CriteriaFrom(model.LogListQuery{Sort: "action-out", Action: "IN"})
	require.NoError(t, err)
	assert.Equal(t, model.ActionIn, c.Action)

	c, err = CriteriaFrom(model.LogListQuery{Sort: "lastName", Dir: "desc"})
	require.NoError(t, err)
	assert.Equal(t, attendance.Desc, c.SortDir)

	_, err = CriteriaFrom(model.LogListQuery{Sort: "grade"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = CriteriaFrom(model.LogListQuery{StartDate: "15/01/2024"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestFeed_HydratesNames(t *testing.T) {
	svc, _ := newAttendanceFixture(t)

	logs, err := svc.Feed(context.Background(), model.LogListQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{"l3", "l4", "l2", "l1"}, logIDs(logs))

	assert.Equal(t, "Alan Turing", logs[0].StudentName())
	assert.Equal(t, "System", logs[0].PerformerName())
	assert.Equal(t, "Unknown", logs[1].StudentName())
	assert.Equal(t, "Grace Hopper", logs[2].PerformerName())
}

func TestFeed_FiltersBySearchDateAndStudent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAttendanceFixture(t)

	logs, err := svc.Feed(ctx, model.LogListQuery{Search: "lovelace"})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2", "l1"}, logIDs(logs))

	logs, err = svc.Feed(ctx, model.LogListQuery{StartDate: "2024-01-15", EndDate: "2024-01-15"})
	require.NoError(t, err)
	assert.Equal(t, []string{"l4", "l2", "l1"}, logIDs(logs))

	logs, err = svc.Feed(ctx, model.LogListQuery{StudentID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"l3"}, logIDs(logs))

	logs, err = svc.Feed(ctx, model.LogListQuery{Search: "no such name"})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestCompressed_UsesGrace(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAttendanceFixture(t)

	intervals, err := svc.Compressed(ctx, model.LogListQuery{StudentID: "s1"})
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, attendance.Hours{Value: 3, Valid: true}, intervals[0].Hours)

	hour := 60
	intervals, err = svc.Compressed(ctx, model.LogListQuery{StudentID: "s1", Grace: &hour})
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, 1, intervals[0].Hours.Value)
}

func TestExports(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAttendanceFixture(t)

	raw, err := svc.ExportRaw(ctx, model.LogListQuery{StartDate: "2024-01-15"})
	require.NoError(t, err)
	assert.Equal(t, "attendance_2024-01-15_all.csv", raw.Filename)
	records, err := csv.NewReader(strings.NewReader(raw.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, []string{"Name", "Action", "Timestamp", "Performed By"}, records[0])
	assert.Equal(t, []string{"Alan Turing", "in", "2024-01-16 08:00:00", "System"}, records[1])

	all, err := svc.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "attendance-logs-2024-02-01.csv", all.Filename)
	records, err = csv.NewReader(strings.NewReader(all.Body)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 5)

	comp, err := svc.ExportCompressed(ctx, model.LogListQuery{StudentID: "s1"})
	require.NoError(t, err)
	records, err = csv.NewReader(strings.NewReader(comp.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Ada Lovelace", "2024-01-15 09:10:00", "2024-01-15 12:05:00", "3"}, records[1])
}

func TestDeleteLog_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, mem := newAttendanceFixture(t)

	require.NoError(t, svc.DeleteLog(ctx, "l1"))
	require.NoError(t, svc.DeleteLog(ctx, "l1"))
	assert.Len(t, mem.Rows("attendance_logs"), 3)

	assert.ErrorIs(t, svc.DeleteLog(ctx, ""), apperror.ErrValidation)
}

func TestCleanup_PreviewMatchesDelete(t *testing.T) {
	ctx := context.Background()
	svc, mem := newAttendanceFixture(t)

	p, err := svc.PreviewCleanup(ctx, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count)
	assert.Equal(t, "2024-01-15T23:59:59Z", p.Until)

	exp, err := svc.ExportCleanup(ctx, "2024-01-15")
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(exp.Body)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)

	n, err := svc.DeleteLogsBefore(ctx, "2024-01-15")
	require.NoError(t, err)
	assert.EqualValues(t, p.Count, n)

	left := mem.Rows("attendance_logs")
	require.Len(t, left, 2)

	_, err = svc.PreviewCleanup(ctx, "yesterday")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDeleteAllLogs(t *testing.T) {
	svc, mem := newAttendanceFixture(t)

	n, err := svc.DeleteAllLogs(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Empty(t, mem.Rows("attendance_logs"))
}
