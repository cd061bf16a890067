package api

import (
	"net/http"
	"time"

	"github.com/bloops-games/carousing/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// Logger writes one access log line per request and puts a request-scoped sugared logger into
// the request context. Health and metrics probes are not logged.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		ctx := logging.WithLogger(c.Request.Context(), log.Sugar().With("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", requestID),
		}
		if caller, ok := c.Get(callerKey); ok {
			fields = append(fields, zap.String("caller", caller.(string)))
		}

		if len(c.Errors) > 0 {
			for _, ginErr := range c.Errors.ByType(gin.ErrorTypeAny) {
				log.Error("request error", append(fields, zap.Error(ginErr.Err))...)
			}
			return
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("server error", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("client error", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
