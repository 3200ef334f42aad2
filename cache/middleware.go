package cache

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware serves GET responses of contentType from the store, keyed by
// request path. Misses are captured and stored when the handler answers 200
// with that content type and a non-empty body.
func Middleware(store *Store, contentType string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		key := c.Request.URL.Path

		if cached, found := store.Read(key); found {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, contentType, cached)
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")
		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = writer

		c.Next()

		if c.Writer.Status() != http.StatusOK || writer.body.Len() == 0 {
			return
		}
		if !strings.HasPrefix(c.Writer.Header().Get("Content-Type"), contentType) {
			return
		}
		if err := store.Write(key, writer.body.Bytes()); err != nil {
			logger.Warn("response not cached", zap.String("path", key), zap.Error(err))
		}
	}
}
