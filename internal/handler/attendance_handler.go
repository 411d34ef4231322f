package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/checkio-backend/internal/export"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/response"
	"github.com/stemsi/checkio-backend/internal/service"
	"github.com/stemsi/checkio-backend/internal/validator"
)

// AttendanceHandler serves the attendance log feed, exports and cleanup.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	log        zerolog.Logger
}

// NewAttendanceHandler creates a new AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, log zerolog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		attendance: attendance,
		log:        log.With().Str("component", "attendance_handler").Logger(),
	}
}

// bindLogQuery binds the feed query or writes a 400 and returns false.
func bindLogQuery(c *gin.Context) (model.LogListQuery, bool) {
	var q model.LogListQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return q, false
	}
	return q, true
}

// ListLogs godoc
// GET /api/v1/attendance/logs
// Returns the filtered, sorted attendance log.
func (h *AttendanceHandler) ListLogs(c *gin.Context) {
	q, ok := bindLogQuery(c)
	if !ok {
		return
	}

	logs, err := h.attendance.Feed(c.Request.Context(), q)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// CompressedLogs godoc
// GET /api/v1/attendance/logs/compressed
// Pairs the feed into in/out intervals with billable hours.
func (h *AttendanceHandler) CompressedLogs(c *gin.Context) {
	q, ok := bindLogQuery(c)
	if !ok {
		return
	}

	intervals, err := h.attendance.Compressed(c.Request.Context(), q)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"intervals": intervals, "count": len(intervals)})
}

// ExportRaw godoc
// GET /api/v1/attendance/logs/export
// Downloads the feed as CSV.
func (h *AttendanceHandler) ExportRaw(c *gin.Context) {
	q, ok := bindLogQuery(c)
	if !ok {
		return
	}

	file, err := h.attendance.ExportRaw(c.Request.Context(), q)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	sendCSV(c, file)
}

// ExportCompressed godoc
// GET /api/v1/attendance/logs/export/compressed
// Downloads the compressed feed as CSV.
func (h *AttendanceHandler) ExportCompressed(c *gin.Context) {
	q, ok := bindLogQuery(c)
	if !ok {
		return
	}

	file, err := h.attendance.ExportCompressed(c.Request.Context(), q)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	sendCSV(c, file)
}

// ExportAll godoc
// GET /api/v1/attendance/logs/export/all
// Downloads every log as CSV.
func (h *AttendanceHandler) ExportAll(c *gin.Context) {
	file, err := h.attendance.ExportAll(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	sendCSV(c, file)
}

// DeleteLog godoc
// DELETE /api/v1/attendance/logs/:id?confirm=true
// Deletes one log. Deleting a missing log succeeds.
func (h *AttendanceHandler) DeleteLog(c *gin.Context) {
	id := c.Param("id")
	if err := h.attendance.DeleteLog(c.Request.Context(), id); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id})
}

// CleanupPreview godoc
// GET /api/v1/attendance/cleanup/preview?cutoff=YYYY-MM-DD
// Counts the logs a cleanup would delete.
func (h *AttendanceHandler) CleanupPreview(c *gin.Context) {
	p, err := h.attendance.PreviewCleanup(c.Request.Context(), c.Query("cutoff"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

// CleanupExport godoc
// GET /api/v1/attendance/cleanup/export?cutoff=YYYY-MM-DD
// Downloads the logs a cleanup would delete.
func (h *AttendanceHandler) CleanupExport(c *gin.Context) {
	file, err := h.attendance.ExportCleanup(c.Request.Context(), c.Query("cutoff"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	sendCSV(c, file)
}

// DeleteBefore godoc
// DELETE /api/v1/attendance/logs/before/:date?confirm=true
// Deletes every log up to the end of date (UTC).
func (h *AttendanceHandler) DeleteBefore(c *gin.Context) {
	date := c.Param("date")
	n, err := h.attendance.DeleteLogsBefore(c.Request.Context(), date)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cutoff": date, "deleted": n})
}

// DeleteAll godoc
// DELETE /api/v1/attendance/logs?confirm=true
// Deletes every log.
func (h *AttendanceHandler) DeleteAll(c *gin.Context) {
	n, err := h.attendance.DeleteAllLogs(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": n})
}

func sendCSV(c *gin.Context, file service.Export) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, export.ContentType, []byte(file.Body))
}
