package server

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// AccessLog logs every request with a request id, skipping health
// probes.
func AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		path := string(c.Path())
		if path == "/healthz" {
			c.Next(ctx)
			return
		}

		requestID := string(c.Request.Header.Peek(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Response.Header.Set(requestIDHeader, requestID)

		c.Next(ctx)

		latency := time.Since(start)
		status := c.Response.StatusCode()
		logger := slog.Default().With(
			"request_id", requestID,
			"method", string(c.Method()),
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		)
		switch {
		case status >= 500:
			logger.Error("request completed with server error")
		case status >= 400:
			logger.Warn("request completed with client error")
		default:
			logger.Info("request completed")
		}
	}
}

// Recovery turns handler panics into a 500 envelope.
func Recovery() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				slog.Default().Error("panic recovered",
					"method", string(c.Method()),
					"path", string(c.Path()),
					"panic", fmt.Sprintf("%v", err),
					"stack", string(debug.Stack()),
				)
				c.JSON(consts.StatusInternalServerError, Response{
					Code:    "INTERNAL_ERROR",
					Message: "internal server error",
				})
				c.Abort()
			}
		}()
		c.Next(ctx)
	}
}
