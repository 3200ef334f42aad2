package analytics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func setupTestRouter(module *AnalyticsModule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(module.Middleware())
	module.RegisterRoutes(router)
	router.GET("/article/:url", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/broken", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMiddleware_CountsByRoute(t *testing.T) {
	module := NewAnalyticsModule(zap.NewNop())
	router := setupTestRouter(module)

	get(router, "/article/one")
	get(router, "/article/two")
	get(router, "/broken")
	get(router, "/nowhere")

	assert.Equal(t, float64(2), testutil.ToFloat64(module.requests.WithLabelValues("GET", "/article/:url", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(module.requests.WithLabelValues("GET", "/broken", "500")))
	assert.Equal(t, float64(1), testutil.ToFloat64(module.requests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, float64(0), testutil.ToFloat64(module.inFlight))
}

func TestMiddleware_AccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := setupTestRouter(NewAnalyticsModule(zap.New(core)))

	get(router, "/article/one")
	get(router, "/broken")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/article/one", entries[0].ContextMap()["path"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestMetricsEndpoint(t *testing.T) {
	module := NewAnalyticsModule(zap.NewNop())
	router := setupTestRouter(module)

	get(router, "/article/one")
	w := get(router, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `inkwell_http_requests_total{method="GET",route="/article/:url",status="200"} 1`)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
