package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/library-lending/internal/application"
	"github.com/example/library-lending/internal/worker"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errMissingLoanID  = errors.New("loan id is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(c echo.Context, status int, payload any) error {
	if status == http.StatusNoContent || payload == nil {
		return c.NoContent(status)
	}
	if err := c.JSON(status, payload); err != nil {
		ctx := c.Request().Context()
		r.loggerFor(c).ErrorContext(ctx, "failed to encode response", "error", err)
		return err
	}
	return nil
}

func (r responder) writeError(c echo.Context, status int, err error) error {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(c).WarnContext(c.Request().Context(), "request failed", "status", status, "error", err)
	}
	return r.writeJSON(c, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(c echo.Context, err error) error {
	if err == nil {
		return r.writeError(c, http.StatusInternalServerError, errors.New("unknown error"))
	}

	var (
		conflict *application.ConflictError
		vErr     *application.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		code := "ALREADY_BORROWED"
		if errors.Is(err, application.ErrOutOfCopies) {
			code = "OUT_OF_COPIES"
		}
		return r.writeJSON(c, http.StatusConflict, errorResponse{ErrorCode: code, Message: conflict.Reason.Error()})
	case errors.Is(err, application.ErrUserNotEligible):
		return r.writeJSON(c, http.StatusForbidden, errorResponse{ErrorCode: "NOT_ELIGIBLE", Message: "user is not approved to borrow"})
	case errors.Is(err, application.ErrUnauthorized):
		return r.writeJSON(c, http.StatusUnauthorized, errorResponse{ErrorCode: "UNAUTHORIZED", Message: statusMessage(http.StatusUnauthorized)})
	case errors.Is(err, application.ErrNotFound):
		return r.writeJSON(c, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.As(err, &vErr):
		return r.writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			Message: statusMessage(http.StatusUnprocessableEntity),
			Errors:  vErr.FieldErrors,
		})
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolStopped):
		return r.writeError(c, http.StatusServiceUnavailable, err)
	default:
		r.loggerFor(c).ErrorContext(c.Request().Context(), "unexpected service error",
			"error", err,
			"error_kind", application.ErrorKind(err),
		)
		return r.writeJSON(c, http.StatusInternalServerError, errorResponse{Message: statusMessage(http.StatusInternalServerError)})
	}
}

// handleEchoError renders errors returned by handlers and by echo itself.
func (r responder) handleEchoError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = r.writeJSON(c, he.Code, errorResponse{Message: fmt.Sprint(he.Message)})
		return
	}
	_ = r.handleServiceError(c, err)
}

func (r responder) loggerFor(c echo.Context) *slog.Logger {
	if logger := LoggerFromContext(c.Request().Context()); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request is malformed"
	case http.StatusUnauthorized:
		return "missing or invalid credentials"
	case http.StatusForbidden:
		return "the operation is not allowed"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusConflict:
		return "the request conflicts with the current state"
	case http.StatusUnprocessableEntity:
		return "the request contains invalid fields"
	default:
		return "internal server error"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
