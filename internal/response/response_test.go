package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/checkio-backend/internal/apperror"
)

func TestFailError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		code   ErrCode
	}{
		{"validation", apperror.Validation("pin", "PIN must be 4 digits"), http.StatusBadRequest, ErrValidation},
		{"not found", apperror.NotFound("student %s not found", "s1"), http.StatusNotFound, ErrNotFound},
		{"forbidden", apperror.Forbidden("parents may only check out"), http.StatusForbidden, ErrForbidden},
		{"pin conflict", apperror.Conflict("pin", "PIN already in use"), http.StatusConflict, ErrPinInUse},
		{"store", apperror.Store("select students", errors.New("timeout")), http.StatusBadGateway, ErrStoreFailed},
		{"wrapped", fmt.Errorf("toggle: %w", apperror.NotFound("gone")), http.StatusNotFound, ErrNotFound},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, ErrInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			FailError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.NotNil(t, body.Error)
			assert.Equal(t, tc.code, body.Error.Code)
			assert.NotEmpty(t, body.Metadata.RequestID)
		})
	}
}

func TestFailError_ValidationCarriesField(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	FailError(c, apperror.Validation("cutoff", "invalid cutoff date"))

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid cutoff date", body.Error.Fields["cutoff"])
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"id": RequestID(c)}) })

	cases := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"no header", "", false},
		{"well formed", "req-123.abc_9", true},
		{"log injection", "abc\nlevel=error", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(HeaderRequestID, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(HeaderRequestID)
			require.NotEmpty(t, got)
			if tc.reuse {
				assert.Equal(t, tc.header, got)
			} else {
				assert.NotEqual(t, tc.header, got)
				_, err := uuid.Parse(got)
				assert.NoError(t, err)
			}

			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, got, body.Metadata.RequestID)
		})
	}
}
