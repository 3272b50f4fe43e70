package logger

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

// GinLoggerMiddleware пишет одну JSON запись на HTTP запрос.
// Пробы /health/* и /metrics пишутся на уровне debug, чтобы не засорять ELK.
func GinLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)

		c.Next()

		status := c.Writer.Status()
		logEvent := requestEvent(c.Request.URL.Path, status).
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("path", c.Request.URL.Path).
			Str("query", c.Request.URL.RawQuery).
			Str("remote_addr", c.ClientIP()).
			Int("status", status).
			Int("size", c.Writer.Size()).
			Float64("duration_ms", float64(time.Since(start).Microseconds())/1000)

		// user_id кладет AuthMiddleware, provider - маршрут вебхуков
		if userID := c.GetString("user_id"); userID != "" {
			logEvent.Str("user_id", userID)
		}
		if provider := c.Param("provider"); provider != "" {
			logEvent.Str("provider", provider)
		}
		if len(c.Errors) > 0 {
			logEvent.Str("error", c.Errors.String())
		}

		logEvent.Msg("HTTP request")
	}
}

func requestEvent(path string, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return Error()
	case status >= 400:
		return Warn()
	case path == "/metrics" || strings.HasPrefix(path, "/health"):
		return Debug()
	}
	return Info()
}
