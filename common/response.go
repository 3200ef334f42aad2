package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Result      string      `json:"result"`
	Code        int         `json:"code"`
	Description string      `json:"description"`
	Data        interface{} `json:"data,omitempty"`
	Count       *int64      `json:"count,omitempty"`
}

// Failure is the code and description reported for a failed request.
type Failure struct {
	Code        int
	Description string
}

// Failures maps domain error kinds to the codes of one endpoint.
type Failures map[Kind]Failure

func ReturnSuccess(c *gin.Context, code int, description string, data interface{}) {
	c.JSON(http.StatusOK, Envelope{
		Result:      ResultSuccess,
		Code:        code,
		Description: description,
		Data:        data,
	})
}

func ReturnSuccessWithCount(c *gin.Context, code int, description string, data interface{}, count int64) {
	c.JSON(http.StatusOK, Envelope{
		Result:      ResultSuccess,
		Code:        code,
		Description: description,
		Data:        data,
		Count:       &count,
	})
}

func ReturnError(c *gin.Context, status int, failure Failure) {
	c.AbortWithStatusJSON(status, Envelope{
		Result:      ResultError,
		Code:        failure.Code,
		Description: failure.Description,
	})
}

// ReturnFailure answers with the failure registered for the kind of err.
// Anything unmapped is logged and reported with the fallback failure so
// store error text never reaches the client.
func ReturnFailure(c *gin.Context, logger *zap.Logger, err error, failures Failures, fallback Failure) {
	kind := KindOf(err)
	if failure, ok := failures[kind]; ok {
		ReturnError(c, StatusFor(kind), failure)
		return
	}
	logger.Error("request failed",
		zap.String("path", c.Request.URL.Path),
		zap.Stringer("kind", kind),
		zap.Error(err),
	)
	ReturnError(c, http.StatusInternalServerError, fallback)
}

func StatusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBadCredentials:
		return http.StatusUnauthorized
	case KindForbidden, KindLastAdminProtected:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
