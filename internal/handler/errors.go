package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/response"
)

// fail logs server-side failures once and writes the mapped error response.
// Caller mistakes (validation, not found, forbidden, conflict) are not logged.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	switch apperror.KindOf(err) {
	case apperror.KindValidation, apperror.KindNotFound, apperror.KindForbidden, apperror.KindConflict:
	default:
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}
	response.FailError(c, err)
}
