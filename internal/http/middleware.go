package http

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/example/library-lending/internal/logging"
)

var errInvalidTriggerSecret = errors.New("missing or invalid trigger secret")

// RequestLogger assigns a request id and attaches a per-request logger to the
// request context.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	base = defaultLogger(base)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			logger := base.With(
				"request_id", id,
				"method", req.Method,
				"path", req.URL.Path,
			)
			ctx := logging.ContextWithLogger(ContextWithRequestID(req.Context(), id), logger)
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			logger.DebugContext(ctx, "request started")
			if err := next(c); err != nil {
				c.Error(err)
			}
			logger.InfoContext(ctx, "request completed",
				"status", c.Response().Status,
				"duration", time.Since(start),
			)
			return nil
		}
	}
}

// RequireBearer rejects requests whose Authorization header does not carry
// secret. An empty secret disables the check.
func RequireBearer(secret string, logger *slog.Logger) echo.MiddlewareFunc {
	responder := newResponder(logger)
	expected := []byte("Bearer " + secret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(c echo.Context) error {
			got := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
			if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				return responder.writeError(c, http.StatusUnauthorized, errInvalidTriggerSecret)
			}
			return next(c)
		}
	}
}
