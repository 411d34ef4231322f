// Package export renders attendance data as CSV.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/checkio-backend/internal/attendance"
	"github.com/stemsi/checkio-backend/internal/model"
)

// ContentType is the MIME type of every export.
const ContentType = "text/csv;charset=utf-8"

const displayLayout = "2006-01-02 15:04:05"

var (
	RawHeaders        = []string{"Name", "Action", "Timestamp", "Performed By"}
	CompressedHeaders = []string{"Name", "In Timestamp", "Out Timestamp", "Hours"}
	BulkHeaders       = []string{"ID", "Student ID", "Student", "Action", "Timestamp", "Performed By ID", "Performed By"}
)

// ToCSV quotes every cell, doubles embedded quotes and joins rows with
// "\n". Nil cells become empty strings. There is no trailing newline.
func ToCSV(headers []string, rows [][]any) string {
	var b strings.Builder
	writeLine(&b, stringsToAny(headers))
	for _, r := range rows {
		b.WriteByte('\n')
		writeLine(&b, r)
	}
	return b.String()
}

func writeLine(b *strings.Builder, cells []any) {
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(cellString(c), `"`, `""`))
		b.WriteByte('"')
	}
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func stringsToAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// Formatter renders stored instants in the display time zone.
type Formatter struct {
	loc *time.Location
}

// NewFormatter returns a Formatter for loc; nil means UTC.
func NewFormatter(loc *time.Location) Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return Formatter{loc: loc}
}

// Instant formats s, or returns it unchanged when it does not parse.
func (f Formatter) Instant(s string) string {
	t, ok := attendance.ParseInstant(s)
	if !ok {
		return s
	}
	return t.In(f.loc).Format(displayLayout)
}

// RawRows builds the feed export rows.
func (f Formatter) RawRows(logs []model.LogRecord) [][]any {
	rows := make([][]any, len(logs))
	for i, l := range logs {
		rows[i] = []any{l.StudentName(), string(l.Action), f.Instant(l.Timestamp), l.PerformerName()}
	}
	return rows
}

// CompressedRows builds the in/out export rows. Open intervals have an
// empty Out cell.
func (f Formatter) CompressedRows(intervals []attendance.Interval) [][]any {
	rows := make([][]any, len(intervals))
	for i, iv := range intervals {
		var out any
		if iv.Out != nil {
			out = f.Instant(*iv.Out)
		}
		rows[i] = []any{iv.StudentName, f.Instant(iv.In), out, iv.Hours}
	}
	return rows
}

// BulkRows builds the admin full-log export rows. Timestamps stay in the
// stored form so the file can be re-imported.
func (f Formatter) BulkRows(logs []model.LogRecord) [][]any {
	rows := make([][]any, len(logs))
	for i, l := range logs {
		rows[i] = []any{l.ID, l.StudentID, l.StudentName(), string(l.Action), l.Timestamp, l.PerformedBy, l.PerformerName()}
	}
	return rows
}

// RawFilename is attendance_<start|all>_<end|all>.csv.
func RawFilename(start, end string) string {
	if start == "" {
		start = "all"
	}
	if end == "" {
		end = "all"
	}
	return fmt.Sprintf("attendance_%s_%s.csv", sanitize(start), sanitize(end))
}

// CompressedFilename is the compressed export's file name.
func CompressedFilename() string { return "attendance_compressed.csv" }

// BulkFilename is attendance-logs-<YYYY-MM-DD>.csv for the given day.
func BulkFilename(day time.Time) string {
	return "attendance-logs-" + day.Format(attendance.DateLayout) + ".csv"
}

// sanitize keeps bounds safe inside a Content-Disposition filename.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
			return r
		}
		return '-'
	}, s)
}
