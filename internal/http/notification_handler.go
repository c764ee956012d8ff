package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/example/library-lending/internal/application"
	"github.com/example/library-lending/internal/notification"
)

const maxWorkerBody = 8 << 20

// AccountNotifier sends account notices.
type AccountNotifier interface {
	Send(ctx context.Context, userID string, kind notification.Kind) (application.Outcome, error)
}

// AuditLister lists audit rows.
type AuditLister interface {
	List(ctx context.Context, filter application.AuditFilter) ([]application.AuditEntry, error)
}

// BatchHandler processes signed batches delivered by the queue.
type BatchHandler interface {
	HandleSealed(ctx context.Context, body []byte) (application.BatchReport, error)
}

// NotificationHandler serves account notices, the audit log and the queue
// worker callback.
type NotificationHandler struct {
	accounts  AccountNotifier
	audit     AuditLister
	batches   BatchHandler
	responder responder
	logger    *slog.Logger
}

func NewNotificationHandler(accounts AccountNotifier, audit AuditLister, batches BatchHandler, logger *slog.Logger) *NotificationHandler {
	logger = defaultLogger(logger)
	return &NotificationHandler{
		accounts:  accounts,
		audit:     audit,
		batches:   batches,
		responder: newResponder(logger),
		logger:    logger,
	}
}

type accountNoticeRequest struct {
	Kind string `json:"kind"`
}

type outcomeDTO struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId,omitempty"`
	AuditID   string `json:"auditId,omitempty"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

func (h *NotificationHandler) SendAccountNotice(c echo.Context) error {
	var req accountNoticeRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}

	outcome, err := h.accounts.Send(c.Request().Context(), c.Param("id"), notification.Kind(req.Kind))
	dto := outcomeDTO{
		Status:    string(outcome.Status),
		MessageID: outcome.MessageID,
		AuditID:   outcome.AuditID,
		Attempts:  outcome.Attempts,
		Error:     outcome.Error,
	}
	if err != nil {
		var dErr *application.DeliveryError
		if errors.As(err, &dErr) {
			return h.responder.writeJSON(c, http.StatusBadGateway, dto)
		}
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, dto)
}

func (h *NotificationHandler) ListLog(c echo.Context) error {
	filter := application.AuditFilter{
		Status:        c.QueryParam("status"),
		Kind:          c.QueryParam("kind"),
		CorrelationID: c.QueryParam("correlationId"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			vErr := &application.ValidationError{FieldErrors: map[string]string{"limit": "limit must be an integer"}}
			return h.responder.handleServiceError(c, vErr)
		}
		filter.Limit = limit
	}

	entries, err := h.audit.List(c.Request().Context(), filter)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	out := make([]auditDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditDTO(e))
	}
	return h.responder.writeJSON(c, http.StatusOK, out)
}

// Worker handles a batch callback. Errors other than a bad signature or body
// answer 500 so the queue retries the delivery.
func (h *NotificationHandler) Worker(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWorkerBody+1))
	if err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	if len(body) > maxWorkerBody {
		return h.responder.writeError(c, http.StatusRequestEntityTooLarge, fmt.Errorf("batch exceeds %d bytes", maxWorkerBody))
	}

	report, err := h.batches.HandleSealed(c.Request().Context(), body)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, toBatchReportDTO(report))
}
