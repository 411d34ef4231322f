package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/checkio-backend/internal/model"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	Setup()
	m.Run()
}

func bindBody(t *testing.T, body string, dst any) map[string]string {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func bindQuery(t *testing.T, query string, dst any) map[string]string {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return BindQuery(c, dst)
}

func TestPinTag(t *testing.T) {
	var req model.VerifyPinRequest
	assert.Nil(t, bindBody(t, `{"pin":"0420"}`, &req))
	assert.Equal(t, "0420", req.PIN)

	for _, bad := range []string{`{"pin":"042"}`, `{"pin":"04200"}`, `{"pin":"04a0"}`} {
		fields := bindBody(t, bad, &model.VerifyPinRequest{})
		require.NotNil(t, fields, bad)
		assert.Equal(t, "pin must be exactly 4 digits", fields["pin"])
	}
}

func TestLogActionTag(t *testing.T) {
	var q model.LogListQuery
	assert.Nil(t, bindQuery(t, "action=IN&sort=timestamp", &q))
	assert.Equal(t, "IN", q.Action)

	fields := bindQuery(t, "action=sideways", &model.LogListQuery{})
	require.NotNil(t, fields)
	assert.Contains(t, fields["action"], "'in' or 'out'")
}

func TestTranslateErrors_NonValidation(t *testing.T) {
	fields := bindBody(t, `{"pin":`, &model.VerifyPinRequest{})
	require.NotNil(t, fields)
	assert.Contains(t, fields, "detail")
}
