package attendance

import (
	"encoding/json"
	"slices"
	"strconv"
	"time"

	"github.com/stemsi/checkio-backend/internal/model"
)

// ErrorMarker is shown in place of hours that cannot be computed.
const ErrorMarker = "Error"

const halfHour = 30 * time.Minute

// Hours is a billable-hours count or the error marker.
type Hours struct {
	Value int
	Valid bool
}

func (h Hours) String() string {
	if !h.Valid {
		return ErrorMarker
	}
	return strconv.Itoa(h.Value)
}

// MarshalJSON renders a number, or "Error" when the count is invalid.
func (h Hours) MarshalJSON() ([]byte, error) {
	if !h.Valid {
		return json.Marshal(ErrorMarker)
	}
	return json.Marshal(h.Value)
}

// Interval is one in/out pair. Out is nil while the student is still in.
type Interval struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	In          string  `json:"in"`
	Out         *string `json:"out"`
	Hours       Hours   `json:"billable_hours"`
}

// Compress pairs each student's in and out entries. Groups keep the order
// in which students first appear in rows; pairs within a group are in time
// order.
//
// A second "in" before an "out" replaces the first. An "out" with no open
// "in" is ignored. An "in" left open at the end yields a pair with a nil Out.
func Compress(rows []model.LogRecord, graceMinutes int) []Interval {
	var order []string
	groups := make(map[string][]model.LogRecord)
	for _, r := range rows {
		if _, ok := groups[r.StudentID]; !ok {
			order = append(order, r.StudentID)
		}
		groups[r.StudentID] = append(groups[r.StudentID], r)
	}

	var out []Interval
	for _, id := range order {
		entries := groups[id]
		cache := newInstantCache(entries)
		slices.SortStableFunc(entries, func(a, b model.LogRecord) int {
			return compareInstants(cache.get(a.Timestamp), cache.get(b.Timestamp), Asc)
		})

		var open *model.LogRecord
		for i := range entries {
			e := &entries[i]
			switch e.Action {
			case model.ActionIn:
				open = e
			case model.ActionOut:
				if open == nil {
					continue
				}
				ts := e.Timestamp
				out = append(out, Interval{
					StudentID:   id,
					StudentName: open.StudentName(),
					In:          open.Timestamp,
					Out:         &ts,
					Hours:       BillableHours(open.Timestamp, ts, graceMinutes),
				})
				open = nil
			}
		}
		if open != nil {
			out = append(out, Interval{
				StudentID:   id,
				StudentName: open.StudentName(),
				In:          open.Timestamp,
				Hours:       Hours{},
			})
		}
	}
	return out
}

// BillableHours counts billable hours between in and out.
//
// The start is rounded up to the next half hour (an aligned instant stays)
// and moved later by grace minutes. The end is rounded down to the previous
// half hour and moved earlier by grace minutes. The count is the number of
// one-hour steps from start while the cursor is at or before the end.
//
// The result is invalid when out is empty, either instant does not parse,
// or the rounded end is not after the rounded start.
func BillableHours(in, out string, graceMinutes int) Hours {
	if out == "" {
		return Hours{}
	}
	s, ok := ParseInstant(in)
	if !ok {
		return Hours{}
	}
	e, ok := ParseInstant(out)
	if !ok {
		return Hours{}
	}

	grace := time.Duration(graceMinutes) * time.Minute
	start := ceilHalfHour(s).Add(grace)
	end := e.Truncate(halfHour).Add(-grace)
	if !end.After(start) {
		return Hours{}
	}

	n := 0
	for cursor := start; !cursor.After(end); cursor = cursor.Add(time.Hour) {
		n++
	}
	return Hours{Value: n, Valid: true}
}

func ceilHalfHour(t time.Time) time.Time {
	f := t.Truncate(halfHour)
	if f.Equal(t) {
		return t
	}
	return f.Add(halfHour)
}
