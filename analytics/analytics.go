package analytics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "inkwell"

// AnalyticsModule records request metrics and the access log.
type AnalyticsModule struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewAnalyticsModule(logger *zap.Logger) *AnalyticsModule {
	a := &AnalyticsModule{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
	}
	a.registry.MustRegister(
		a.inFlight,
		a.requests,
		a.duration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return a
}

// Registry lets other components register their own collectors.
func (a *AnalyticsModule) Registry() *prometheus.Registry {
	return a.registry
}

func (a *AnalyticsModule) Handler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

func (a *AnalyticsModule) RegisterRoutes(router gin.IRouter) {
	router.GET("/metrics", gin.WrapH(a.Handler()))
}

// Middleware counts and times every request by route template and writes
// one access log line per request.
func (a *AnalyticsModule) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		a.inFlight.Inc()
		defer a.inFlight.Dec()

		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		a.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		a.duration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("ip", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			a.logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			a.logger.Warn("request", fields...)
		default:
			a.logger.Info("request", fields...)
		}
	}
}
