// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Request correlation and the request-scoped logger. Mount order:
// RequestID, ContextLogger, RedactingLogger, Recovery. Handlers log through
// LoggerFrom(c) so every line carries request_id, method and path.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
)

// inboundRequestID limits what a client may supply as a correlation ID, so
// arbitrary header content never lands in log lines.
var inboundRequestID = regexp.MustCompile(`^[A-Za-z0-9._\-:]{1,128}$`)

// RequestID reuses a well-formed inbound X-Request-ID or generates a UUID,
// and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !inboundRequestID.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation ID set by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	s, _ := c.Value(requestIDKey).(string)
	return s
}

// ContextLogger stores a logger carrying request_id, method and path (the
// route template when one matched) in the Gin context.
func ContextLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &l)
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// ContextLogger did not run. It never returns nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if lg, ok := c.Value(loggerKey).(*zerolog.Logger); ok && lg != nil {
		return lg
	}
	l := log.Logger
	return &l
}

// Recovery turns a panic into the 500 error envelope. The panic value and
// stack go to the log only. If the handler already wrote, only the status
// is recorded.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("event", "panic_recovered").
				Msg("panic recovered")
			CountAPIError("panic_recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			AbortWithError(c, http.StatusInternalServerError, "")
		}()
		c.Next()
	}
}
