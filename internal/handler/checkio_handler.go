package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/checkio-backend/internal/middleware"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/response"
	"github.com/stemsi/checkio-backend/internal/service"
	"github.com/stemsi/checkio-backend/internal/validator"
)

// CheckIOHandler serves the board and the check-in/out actions.
type CheckIOHandler struct {
	checkIO *service.CheckIOService
	log     zerolog.Logger
}

// NewCheckIOHandler creates a new CheckIOHandler.
func NewCheckIOHandler(checkIO *service.CheckIOService, log zerolog.Logger) *CheckIOHandler {
	return &CheckIOHandler{
		checkIO: checkIO,
		log:     log.With().Str("component", "checkio_handler").Logger(),
	}
}

// Board godoc
// GET /api/v1/checkio/board
// Returns the checked-in and checked-out students visible to the caller.
func (h *CheckIOHandler) Board(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	b, err := h.checkIO.Board(c.Request.Context(), actor)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, b)
}

// CheckIn godoc
// POST /api/v1/checkio/check-in
// Marks the selected students present.
func (h *CheckIOHandler) CheckIn(c *gin.Context) {
	h.toggle(c, true)
}

// CheckOut godoc
// POST /api/v1/checkio/check-out
// Marks the selected students absent.
func (h *CheckIOHandler) CheckOut(c *gin.Context) {
	h.toggle(c, false)
}

func (h *CheckIOHandler) toggle(c *gin.Context, checkedIn bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CheckIORequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	b, err := h.checkIO.Toggle(c.Request.Context(), actor, req.StudentIDs, checkedIn)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, b)
}
