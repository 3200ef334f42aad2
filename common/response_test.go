package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestReturnSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ReturnSuccess(c, 1, "Tags fetched successfully.", []string{})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "success", body["result"])
	assert.Equal(t, float64(1), body["code"])
	assert.Equal(t, []interface{}{}, body["data"])
	assert.NotContains(t, body, "count")
}

func TestReturnSuccess_WithoutData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ReturnSuccess(c, 3, "Logged out.", nil)

	assert.NotContains(t, decodeEnvelope(t, w), "data")
}

func TestReturnSuccessWithCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ReturnSuccessWithCount(c, 1, "Articles fetched successfully.", []string{"a"}, 12)

	assert.Equal(t, float64(12), decodeEnvelope(t, w)["count"])
}

func TestReturnFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	failures := Failures{
		KindNotFound: {Code: 8, Description: "Undefined user."},
	}
	fallback := Failure{Code: 62, Description: "Unable to complete the login."}

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   float64
	}{
		{"mapped kind", NotFound("login"), http.StatusNotFound, 8},
		{"unmapped kind", Conflict("login"), http.StatusInternalServerError, 62},
		{"raw store error", errors.New("database is locked"), http.StatusInternalServerError, 62},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest("POST", "/user.login", nil)

			ReturnFailure(c, zap.NewNop(), tt.err, failures, fallback)

			assert.Equal(t, tt.expectedStatus, w.Code)
			body := decodeEnvelope(t, w)
			assert.Equal(t, "error", body["result"])
			assert.Equal(t, tt.expectedCode, body["code"])
			assert.NotContains(t, w.Body.String(), "locked")
		})
	}
}
