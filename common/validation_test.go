package common

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type loginRequest struct {
	Email    string `form:"email" json:"email" validate:"required,email" code:"1" msg:"Invalid e-mail address."`
	Password string `form:"password" json:"password" validate:"required,max=30" code:"2" msg:"Invalid password."`
	Remember bool   `form:"remember" json:"remember"`
}

func bindForm(body string, contentType string, req interface{}) (Failure, bool) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request, _ = http.NewRequest("POST", "/user.login", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", contentType)
	return BindRequest(c, req)
}

func TestBindRequest(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		contentType  string
		ok           bool
		expectedCode int
	}{
		{"valid form", "email=a%40example.com&password=secret&remember=1", "application/x-www-form-urlencoded", true, 0},
		{"valid json", `{"email":" a@example.com ","password":"secret"}`, "application/json", true, 0},
		{"bad email", "email=nope&password=secret", "application/x-www-form-urlencoded", false, 1},
		{"blank password", "email=a%40example.com&password=%20%20", "application/x-www-form-urlencoded", false, 2},
		{"long password", "email=a%40example.com&password=" + strings.Repeat("x", 31), "application/x-www-form-urlencoded", false, 2},
		{"malformed json", `{"email":`, "application/json", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req loginRequest
			failure, ok := bindForm(tt.body, tt.contentType, &req)

			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Equal(t, tt.expectedCode, failure.Code)
				assert.NotEmpty(t, failure.Description)
			}
		})
	}
}

func TestBindRequest_TrimsStrings(t *testing.T) {
	var req loginRequest
	_, ok := bindForm(`{"email":"  a@example.com  ","password":" secret "}`, "application/json", &req)

	assert.True(t, ok)
	assert.Equal(t, "a@example.com", req.Email)
	assert.Equal(t, "secret", req.Password)
}

func TestValidate_Slices(t *testing.T) {
	req := struct {
		Tags []string `validate:"dive,max=5"`
	}{Tags: []string{"  go  ", "rust"}}

	assert.NoError(t, Validate(&req))
	assert.Equal(t, "go", req.Tags[0])
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("0b7f3c1e-8a51-4d5e-9b7a-3f1c2d4e5a6b"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("42"))
}
