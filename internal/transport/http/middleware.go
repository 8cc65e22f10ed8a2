package http

import (
	"net/http"
	"time"

	"log/slog"

	appperms "github.com/astro-web3/txcache-auth/internal/app/perms"
	"github.com/astro-web3/txcache-auth/pkg/logger"
	"github.com/astro-web3/txcache-auth/pkg/tracer"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// SubjectHeader carries the permissioned subject to the wrapped handlers.
const SubjectHeader = "x-jwt-claim-sub"

const requestIDHeader = "x-request-id"

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func missingHeaderError() apiError {
	return apiError{Error: "MISSING_AUTH_HEADER", Message: "Missing authentication header"}
}

func permissionDeniedError(message string) apiError {
	if message == "" {
		message = "Permission denied"
	}
	return apiError{Error: "PERMISSION_DENIED", Message: message}
}

func serviceUnavailableError() apiError {
	return apiError{Error: "PERMISSION_SERVICE_UNAVAILABLE", Message: "Permission check could not be completed"}
}

// RequirePermission gates every request behind a permission check. Denied
// requests are short-circuited before the wrapped handler runs; the check
// failing to complete denies as well, never the other way around.
//
// When exposeReasons is false, rejection bodies carry a generic message and
// the detailed reason is only logged.
func RequirePermission(svc appperms.Service, exposeReasons bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "transport.http.RequirePermission")
		defer span.End()

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			span.SetAttributes(attribute.Bool("perms.missing_header", true))
			c.AbortWithStatusJSON(http.StatusUnauthorized, missingHeaderError())
			return
		}

		decision := svc.Check(ctx, authHeader)

		if !decision.Allow {
			span.SetAttributes(
				attribute.Bool("perms.allowed", false),
				attribute.String("perms.reason", decision.Reason),
			)
			logger.WarnContext(ctx, "permission denied",
				slog.String("reason", decision.Reason),
				slog.String("path", c.Request.URL.Path),
			)

			if decision.Unavailable {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, serviceUnavailableError())
				return
			}

			message := ""
			if exposeReasons {
				message = decision.Reason
			}
			c.AbortWithStatusJSON(http.StatusForbidden, permissionDeniedError(message))
			return
		}

		span.SetAttributes(
			attribute.Bool("perms.allowed", true),
			attribute.String("perms.subject", decision.Subject),
		)

		if decision.Subject != "" {
			c.Request.Header.Set(SubjectHeader, decision.Subject)
		}

		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Header(requestIDHeader, requestID)
		c.Set("request_id", requestID)

		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request.Context(), "request failed",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.Duration("duration", duration),
				slog.String("request_id", c.GetString("request_id")),
			)
		} else {
			logger.InfoContext(c.Request.Context(), "request completed",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.Duration("duration", duration),
				slog.String("request_id", c.GetString("request_id")),
			)
		}
	}
}
