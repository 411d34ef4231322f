package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/response"
)

// RequireRole lets the request through when the caller has one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if slices.Contains(roles, claims.Role) {
			c.Next()
			return
		}

		code := response.ErrForbidden
		switch {
		case len(roles) == 1 && roles[0] == model.RoleAdmin:
			code = response.ErrAdminOnly
		case slices.Contains(roles, model.RoleTeacher) && !slices.Contains(roles, model.RoleParent):
			code = response.ErrStaffOnly
		}
		response.AbortFail(c, http.StatusForbidden, code)
	}
}

// RequireAdmin is RequireRole(admin).
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(model.RoleAdmin)
}

// RequireStaff is RequireRole(admin, teacher).
func RequireStaff() gin.HandlerFunc {
	return RequireRole(model.RoleAdmin, model.RoleTeacher)
}

// RequireConfirm guards destructive endpoints: the caller must repeat the
// request with ?confirm=true.
func RequireConfirm() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("confirm") != "true" {
			response.AbortFail(c, http.StatusPreconditionRequired, response.ErrConfirmMissing)
			return
		}
		c.Next()
	}
}
