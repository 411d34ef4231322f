package repository

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stemsi/checkio-backend/internal/attendance"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
)

// instantColumns are the names a log's instant has gone by.
var instantColumns = []string{"timestamp", "created_at", "inserted_at"}

// NormalizeLog maps any stored log shape onto model.LogRecord. It accepts
// nested "students"/"users" objects from joined selects as well as flat
// student_first_name / performer_first_name columns.
func NormalizeLog(row recordstore.Row) model.LogRecord {
	rec := model.LogRecord{
		ID:          str(row["id"]),
		StudentID:   str(row["student_id"]),
		Action:      model.Action(str(row["action"])),
		PerformedBy: str(row["performed_by"]),
	}

	for _, col := range instantColumns {
		if ts := instant(row[col]); ts != "" {
			rec.Timestamp = ts
			break
		}
	}

	if s := nested(row, "students", "student"); s != nil {
		rec.StudentFirstName = str(s["first_name"])
		rec.StudentLastName = str(s["last_name"])
		if rec.StudentID == "" {
			rec.StudentID = str(s["id"])
		}
	}
	if rec.StudentFirstName == "" && rec.StudentLastName == "" {
		rec.StudentFirstName = str(row["student_first_name"])
		rec.StudentLastName = str(row["student_last_name"])
	}

	if u := nested(row, "users", "performer"); u != nil {
		rec.PerformerFirstName = str(u["first_name"])
		rec.PerformerLastName = str(u["last_name"])
	}
	if rec.PerformerFirstName == "" && rec.PerformerLastName == "" {
		rec.PerformerFirstName = str(row["performer_first_name"])
		rec.PerformerLastName = str(row["performer_last_name"])
	}

	return rec
}

func normalizeStudent(row recordstore.Row) model.Student {
	return model.Student{
		ID:        str(row["id"]),
		FirstName: str(row["first_name"]),
		LastName:  str(row["last_name"]),
		Grade:     str(row["grade"]),
		CheckedIn: row.Bool("checked_in"),
	}
}

func normalizeUser(row recordstore.Row) model.User {
	return model.User{
		ID:        str(row["id"]),
		FirstName: str(row["first_name"]),
		LastName:  str(row["last_name"]),
		Role:      model.Role(str(row["role"])),
		PIN:       str(row["pin"]),
	}
}

func nested(row recordstore.Row, keys ...string) map[string]any {
	for _, k := range keys {
		switch v := row[k].(type) {
		case map[string]any:
			return v
		case recordstore.Row:
			return v
		}
	}
	return nil
}

func instant(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return attendance.FormatInstant(t)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return attendance.FormatInstant(*t)
	}
	return str(v)
}

func str(v any) string {
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
	case []byte:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case [16]byte:
		// pgx decodes uuid columns into [16]byte when scanned into any.
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	}
	return fmt.Sprint(v)
}

// nullable stores empty strings as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
