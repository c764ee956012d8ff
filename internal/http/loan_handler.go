package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/library-lending/internal/application"
)

// Lender is the lending service consumed by LoanHandler.
type Lender interface {
	Borrow(ctx context.Context, input application.BorrowInput) (application.Loan, error)
	ReturnLoan(ctx context.Context, loanID string) (application.ReturnResult, error)
}

// LoanHandler serves borrow and return requests.
type LoanHandler struct {
	lender    Lender
	responder responder
	logger    *slog.Logger
}

func NewLoanHandler(lender Lender, logger *slog.Logger) *LoanHandler {
	logger = defaultLogger(logger)
	return &LoanHandler{lender: lender, responder: newResponder(logger), logger: logger}
}

type borrowRequest struct {
	UserID string `json:"userId"`
	BookID string `json:"bookId"`
}

func (h *LoanHandler) Borrow(c echo.Context) error {
	var req borrowRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}

	ctx := c.Request().Context()
	loan, err := h.lender.Borrow(ctx, application.BorrowInput{UserID: req.UserID, BookID: req.BookID})
	if err != nil {
		handlerLogger(ctx, h.logger, "LoanHandler", "Borrow").InfoContext(ctx, "borrow refused", "error_kind", application.ErrorKind(err))
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusCreated, toLoanDTO(loan))
}

func (h *LoanHandler) Return(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return h.responder.writeError(c, http.StatusBadRequest, errMissingLoanID)
	}

	result, err := h.lender.ReturnLoan(c.Request().Context(), id)
	if err != nil {
		return h.responder.handleServiceError(c, err)
	}
	return h.responder.writeJSON(c, http.StatusOK, returnDTO{
		Loan:            toLoanDTO(result.Loan),
		AlreadyReturned: result.AlreadyReturned,
	})
}
