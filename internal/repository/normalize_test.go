package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
)

func TestNormalizeLog_NestedShape(t *testing.T) {
	got := NormalizeLog(recordstore.Row{
		"id":           "l1",
		"student_id":   "s1",
		"action":       "in",
		"performed_by": "u1",
		"timestamp":    time.Date(2024, 1, 15, 9, 0, 0, 0, time.FixedZone("x", 3600)),
		"students":     map[string]any{"first_name": "Ada", "last_name": "Lovelace"},
		"users":        map[string]any{"first_name": "Grace", "last_name": "Hopper"},
	})

	assert.Equal(t, model.LogRecord{
		ID:                 "l1",
		StudentID:          "s1",
		Action:             model.ActionIn,
		PerformedBy:        "u1",
		Timestamp:          "2024-01-15T08:00:00Z",
		StudentFirstName:   "Ada",
		StudentLastName:    "Lovelace",
		PerformerFirstName: "Grace",
		PerformerLastName:  "Hopper",
	}, got)
}

func TestNormalizeLog_FlatShapeAndAlternateInstant(t *testing.T) {
	got := NormalizeLog(recordstore.Row{
		"id":                 "l2",
		"action":             "out",
		"created_at":         "2024-01-15T10:00:00Z",
		"student":            recordstore.Row{"id": "s9"},
		"student_first_name": "Bo",
		"student_last_name":  "Bee",
		"performed_by":       nil,
	})

	assert.Equal(t, "s9", got.StudentID)
	assert.Equal(t, "Bo", got.StudentFirstName)
	assert.Equal(t, "Bee", got.StudentLastName)
	assert.Equal(t, "2024-01-15T10:00:00Z", got.Timestamp)
	assert.Empty(t, got.PerformedBy)
	assert.Equal(t, "System", got.PerformerName())
}

func TestNormalizeLog_InsertedAtFallback(t *testing.T) {
	got := NormalizeLog(recordstore.Row{"timestamp": nil, "inserted_at": "2024-01-15T10:00:00Z"})
	assert.Equal(t, "2024-01-15T10:00:00Z", got.Timestamp)
	assert.Equal(t, "Unknown", got.StudentName())
}
