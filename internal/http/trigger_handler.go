package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/example/library-lending/internal/application"
	"github.com/example/library-lending/internal/worker"
)

// TriggerRunner runs reminder passes.
type TriggerRunner interface {
	Trigger(ctx context.Context, category application.Category) (application.TriggerResult, error)
	RunConsolidated(ctx context.Context) (application.ConsolidatedResult, error)
	PreviewRecipientCounts(ctx context.Context) (application.PreviewCounts, error)
}

// JobQueue runs work in the background and reports on it.
type JobQueue interface {
	Submit(ctx context.Context, name string, fn worker.Func) (string, error)
	Get(id string) (worker.Job, error)
}

// TriggerHandler serves the trigger, preview and job routes.
type TriggerHandler struct {
	runner    TriggerRunner
	jobs      JobQueue
	responder responder
	logger    *slog.Logger
}

func NewTriggerHandler(runner TriggerRunner, jobs JobQueue, logger *slog.Logger) *TriggerHandler {
	logger = defaultLogger(logger)
	return &TriggerHandler{runner: runner, jobs: jobs, responder: newResponder(logger), logger: logger}
}

// Run returns the handler for one category.
func (h *TriggerHandler) Run(category application.Category) echo.HandlerFunc {
	return func(c echo.Context) error {
		if async, _ := strconv.ParseBool(c.QueryParam("async")); async && h.jobs != nil {
			return h.submit(c, "trigger:"+string(category), func(ctx context.Context) (any, error) {
				return h.runner.Trigger(ctx, category)
			})
		}

		ctx := c.Request().Context()
		result, err := h.runner.Trigger(ctx, category)
		if err != nil {
			var vErr *application.ValidationError
			if errors.As(err, &vErr) {
				return h.responder.handleServiceError(c, err)
			}
			handlerLogger(ctx, h.logger, "TriggerHandler", "Run", "category", category).
				ErrorContext(ctx, "pass failed", "error", err, "error_kind", application.ErrorKind(err))
			return h.responder.writeJSON(c, http.StatusInternalServerError, result)
		}
		return h.responder.writeJSON(c, http.StatusOK, result)
	}
}

// Consolidated runs the three reminder passes.
func (h *TriggerHandler) Consolidated(c echo.Context) error {
	if async, _ := strconv.ParseBool(c.QueryParam("async")); async && h.jobs != nil {
		return h.submit(c, "trigger:consolidated", func(ctx context.Context) (any, error) {
			return h.runner.RunConsolidated(ctx)
		})
	}

	result, _ := h.runner.RunConsolidated(c.Request().Context())
	return h.responder.writeJSON(c, consolidatedStatus(result), result)
}

func consolidatedStatus(result application.ConsolidatedResult) int {
	switch {
	case result.Success:
		return http.StatusOK
	case result.PartialSuccess:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// Preview reports the recipient counts per window.
func (h *TriggerHandler) Preview(c echo.Context) error {
	counts, err := h.runner.PreviewRecipientCounts(c.Request().Context())
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, counts)
}

// Job reports an async job.
func (h *TriggerHandler) Job(c echo.Context) error {
	if h.jobs == nil {
		return h.responder.handleServiceError(c, application.ErrJobNotFound)
	}
	job, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, worker.ErrJobNotFound) {
			err = application.ErrJobNotFound
		}
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, toJobDTO(job))
}

func (h *TriggerHandler) submit(c echo.Context, name string, fn worker.Func) error {
	id, err := h.jobs.Submit(c.Request().Context(), name, fn)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/jobs/"+id)
	return h.responder.writeJSON(c, http.StatusAccepted, acceptedDTO{JobID: id, Status: string(worker.StatusQueued)})
}
