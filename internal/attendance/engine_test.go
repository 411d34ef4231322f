package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/model"
)

func rec(id, first, last string, action model.Action, ts string) model.LogRecord {
	return model.LogRecord{
		ID:               id,
		StudentID:        "s-" + last,
		Action:           action,
		Timestamp:        ts,
		StudentFirstName: first,
		StudentLastName:  last,
	}
}

func ids(rows []model.LogRecord) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func sampleLogs() []model.LogRecord {
	return []model.LogRecord{
		rec("1", "Ada", "Lovelace", model.ActionIn, "2024-01-14T08:00:00Z"),
		rec("2", "Alan", "Turing", model.ActionOut, "2024-01-15T23:59:59.500Z"),
		rec("3", "Grace", "Hopper", model.ActionIn, "2024-01-16T00:00:00Z"),
		rec("4", "ada", "lovelace", model.ActionOut, "not a time"),
		rec("5", "Edsger", "Dijkstra", model.ActionIn, "2024-01-15T00:00:00Z"),
	}
}

func TestApplySortAndFilter_DefaultNewestFirstInvalidLast(t *testing.T) {
	got := ApplySortAndFilter(sampleLogs(), DefaultCriteria(), nil)
	assert.Equal(t, []string{"3", "2", "5", "1", "4"}, ids(got))
}

func TestApplySortAndFilter_AscendingKeepsInvalidLast(t *testing.T) {
	got := ApplySortAndFilter(sampleLogs(), Criteria{SortField: SortTimestamp, SortDir: Asc}, nil)
	assert.Equal(t, []string{"1", "5", "2", "3", "4"}, ids(got))
}

func TestApplySortAndFilter_EndDateIncludesWholeDay(t *testing.T) {
	c := DefaultCriteria()
	c.StartDate = "2024-01-15"
	c.EndDate = "2024-01-15"

	got := ApplySortAndFilter(sampleLogs(), c, nil)
	assert.Equal(t, []string{"2", "5"}, ids(got))
}

func TestApplySortAndFilter_DateFilterIsIdempotent(t *testing.T) {
	c := DefaultCriteria()
	c.StartDate = "2024-01-14"
	c.EndDate = "2024-01-15"

	once := ApplySortAndFilter(sampleLogs(), c, nil)
	twice := ApplySortAndFilter(once, c, nil)
	assert.Equal(t, once, twice)
}

func TestApplySortAndFilter_InstantBounds(t *testing.T) {
	c := DefaultCriteria()
	c.StartDate = "2024-01-15T00:00:00Z"
	c.EndDate = "2024-01-16T00:00:00Z"

	got := ApplySortAndFilter(sampleLogs(), c, nil)
	assert.Equal(t, []string{"3", "2", "5"}, ids(got))
}

func TestApplySortAndFilter_SearchMissesEverything(t *testing.T) {
	c := DefaultCriteria()
	c.Search = "zzz-nobody"
	assert.Empty(t, ApplySortAndFilter(sampleLogs(), c, nil))
}

func TestApplySortAndFilter_SearchIsCaseInsensitive(t *testing.T) {
	c := DefaultCriteria()
	c.Search = "LOVELACE"
	got := ApplySortAndFilter(sampleLogs(), c, nil)
	assert.ElementsMatch(t, []string{"1", "4"}, ids(got))
}

func TestApplySortAndFilter_UnknownStudentSearchable(t *testing.T) {
	rows := []model.LogRecord{{ID: "x", Action: model.ActionIn, Timestamp: "2024-01-15T10:00:00Z"}}
	c := DefaultCriteria()
	c.Search = "unknown"
	assert.Len(t, ApplySortAndFilter(rows, c, nil), 1)
}

func TestApplySortAndFilter_CustomFieldMap(t *testing.T) {
	fields := FieldMap{func(r model.LogRecord) string { return r.ID }}
	c := DefaultCriteria()
	c.Search = "3"
	got := ApplySortAndFilter(sampleLogs(), c, fields)
	assert.Equal(t, []string{"3"}, ids(got))
}

func TestApplySortAndFilter_ActionCaseInsensitive(t *testing.T) {
	c := DefaultCriteria()
	c.Action = "OUT"
	got := ApplySortAndFilter(sampleLogs(), c, nil)
	assert.Equal(t, []string{"2", "4"}, ids(got))
}

func TestApplySortAndFilter_DoesNotMutateInput(t *testing.T) {
	in := sampleLogs()
	_ = ApplySortAndFilter(in, DefaultCriteria(), nil)
	assert.Equal(t, sampleLogs(), in)
}

func TestSort_FallbackChain(t *testing.T) {
	ts := "2024-01-15T10:00:00Z"
	rows := []model.LogRecord{
		{ID: "a", Timestamp: ts, StudentLastName: "Brown", StudentFirstName: "Zoe", Action: model.ActionOut},
		{ID: "b", Timestamp: ts, StudentLastName: "adams", StudentFirstName: "Yan", Action: model.ActionIn},
		{ID: "c", Timestamp: ts, StudentLastName: "Brown", StudentFirstName: "amy", Action: model.ActionIn, PerformerLastName: "Xu"},
		{ID: "d", Timestamp: ts, StudentLastName: "Brown", StudentFirstName: "Amy", Action: model.ActionIn, PerformerLastName: "Lee"},
	}

	Sort(rows, SortTimestamp, Desc)
	assert.Equal(t, []string{"b", "d", "c", "a"}, ids(rows))
}

func TestSort_PrimaryDirectionOnly(t *testing.T) {
	rows := []model.LogRecord{
		{ID: "1", Timestamp: "2024-01-15T10:00:00Z", StudentLastName: "Adams"},
		{ID: "2", Timestamp: "2024-01-15T11:00:00Z", StudentLastName: "Adams"},
		{ID: "3", Timestamp: "2024-01-15T09:00:00Z", StudentLastName: "Baker"},
	}

	Sort(rows, SortLastName, Desc)
	// Timestamp fallback stays descending.
	assert.Equal(t, []string{"3", "2", "1"}, ids(rows))
}

func TestSort_PerformedByLastThenFirst(t *testing.T) {
	ts := "2024-01-15T10:00:00Z"
	rows := []model.LogRecord{
		{ID: "1", Timestamp: ts, PerformerLastName: "Smith", PerformerFirstName: "Zed"},
		{ID: "2", Timestamp: ts, PerformerLastName: "smith", PerformerFirstName: "Ann"},
		{ID: "3", Timestamp: ts, PerformerLastName: "Jones"},
		{ID: "4", Timestamp: ts},
	}

	Sort(rows, SortPerformedBy, Asc)
	assert.Equal(t, []string{"4", "3", "2", "1"}, ids(rows))
}

func TestSort_RepeatableAcrossCalls(t *testing.T) {
	a := sampleLogs()
	b := sampleLogs()
	Sort(a, SortAction, Asc)
	Sort(b, SortAction, Asc)
	assert.Equal(t, ids(a), ids(b))
	assert.Equal(t, []string{"3", "5", "1", "2", "4"}, ids(a))
}

func TestCriteria_Validate(t *testing.T) {
	assert.NoError(t, DefaultCriteria().Validate())

	c := DefaultCriteria()
	c.EndDate = "15/01/2024"
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	c = DefaultCriteria()
	c.SortField = "grade"
	assert.ErrorIs(t, c.Validate(), apperror.ErrValidation)

	c = DefaultCriteria()
	c.Action = "sideways"
	assert.ErrorIs(t, c.Validate(), apperror.ErrValidation)
}

func TestParseSortOption(t *testing.T) {
	tests := []struct {
		in   string
		want SortOption
		ok   bool
	}{
		{"", SortOption{Field: SortTimestamp, Dir: Desc}, true},
		{"timestamp-asc", SortOption{Field: SortTimestamp, Dir: Asc}, true},
		{"lastName-desc", SortOption{Field: SortLastName, Dir: Desc}, true},
		{"firstName", SortOption{Field: SortFirstName, Dir: Asc}, true},
		{"action-in", SortOption{Field: SortAction, Dir: Asc, Action: model.ActionIn}, true},
		{"action-out", SortOption{Field: SortAction, Dir: Asc, Action: model.ActionOut}, true},
		{"lastName-in", SortOption{}, false},
		{"grade-asc", SortOption{}, false},
		{"timestamp-up", SortOption{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSortOption(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInstant(t *testing.T) {
	for _, s := range []string{
		"2024-01-15T10:00:00Z",
		"2024-01-15T12:00:00+02:00",
		"2024-01-15 10:00:00+00",
		"2024-01-15 10:00:00.123456+00",
		"2024-01-15T10:00:00",
	} {
		got, ok := ParseInstant(s)
		require.True(t, ok, s)
		assert.Equal(t, 10, got.Hour(), s)
	}

	_, ok := ParseInstant("yesterday")
	assert.False(t, ok)
	_, ok = ParseInstant("")
	assert.False(t, ok)
}
