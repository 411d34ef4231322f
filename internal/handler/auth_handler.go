package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/checkio-backend/internal/middleware"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/response"
	"github.com/stemsi/checkio-backend/internal/service"
	"github.com/stemsi/checkio-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// VerifyPin godoc
// POST /api/v1/auth/verify-pin
// Signs a user in with a 4-digit PIN and returns a JWT with the user's role.
func (h *AuthHandler) VerifyPin(c *gin.Context) {
	var req model.VerifyPinRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.authService.VerifyPin(c.Request.Context(), req.PIN)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidPin)
			return
		}
		fail(c, h.log, err)
		return
	}

	h.log.Info().Str("user_id", sess.UserID).Str("role", string(sess.Role)).Msg("User signed in")
	response.Success(c, http.StatusOK, sess)
}

// Session godoc
// GET /api/v1/auth/session
// Restores the signed-in user from the token.
func (h *AuthHandler) Session(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sess, err := h.authService.Session(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, service.ErrSessionInvalidated) {
			response.Fail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, sess)
}

// Logout godoc
// POST /api/v1/auth/logout
// Revokes the current token.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
