package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/library-lending/internal/notification"
)

// AccountNotices sends the account lifecycle notifications an administrator
// triggers by hand.
type AccountNotices struct {
	users      UserDirectory
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// invalidator is implemented by directories that cache approval status.
type invalidator interface {
	Invalidate(id string)
}

// NewAccountNotices constructs the service.
func NewAccountNotices(users UserDirectory, dispatcher *Dispatcher, logger *slog.Logger) *AccountNotices {
	return &AccountNotices{users: users, dispatcher: dispatcher, logger: defaultLogger(logger)}
}

// Send dispatches kind to the user. Approval and rejection notices require
// the matching approval status.
func (s *AccountNotices) Send(ctx context.Context, userID string, kind notification.Kind) (outcome Outcome, err error) {
	userID = strings.TrimSpace(userID)
	logger := serviceLogger(ctx, s.logger, "AccountNotices", "Send", "user_id", userID, "kind", kind)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "account notice failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "account notice dispatched", "status", outcome.Status)
	}()

	vErr := &ValidationError{}
	if userID == "" {
		vErr.add("userId", "user id is required")
	}
	switch kind {
	case notification.KindAccountApproval, notification.KindAccountRejection, notification.KindWelcome:
	default:
		vErr.add("kind", fmt.Sprintf("%q is not an account notification", kind))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if kind != notification.KindWelcome {
		if inv, ok := s.users.(invalidator); ok {
			inv.Invalidate(userID)
		}
	}

	var user User
	user, err = s.users.GetUser(ctx, userID)
	if err != nil {
		err = mapUserError(err)
		return
	}

	switch {
	case kind == notification.KindAccountApproval && user.ApprovalStatus != ApprovalApproved,
		kind == notification.KindAccountRejection && user.ApprovalStatus != ApprovalRejected:
		vErr.add("kind", fmt.Sprintf("user approval status is %s", user.ApprovalStatus))
		err = vErr
		return
	}

	return s.dispatcher.Dispatch(ctx, Message{Kind: kind, Recipient: user})
}

// AuditService lists notification log rows for administrators.
type AuditService struct {
	audit  AuditLog
	logger *slog.Logger
}

// NewAuditService constructs the service.
func NewAuditService(audit AuditLog, logger *slog.Logger) *AuditService {
	return &AuditService{audit: audit, logger: defaultLogger(logger)}
}

// List returns entries newest first. Limit defaults to 100 and is capped at 1000.
func (s *AuditService) List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	vErr := &ValidationError{}
	if filter.Status != "" {
		switch filter.Status {
		case AuditSent, AuditFailed, AuditPending:
		default:
			vErr.add("status", "status must be SENT, FAILED or PENDING")
		}
	}
	if filter.Kind != "" {
		if _, err := notification.ParseKind(filter.Kind); err != nil {
			vErr.add("kind", err.Error())
		}
	}
	if filter.Limit < 0 {
		vErr.add("limit", "limit must not be negative")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}

	entries, err := s.audit.List(ctx, filter)
	if err != nil {
		serviceLogger(ctx, s.logger, "AuditService", "List").ErrorContext(ctx, "failed to list audit log", "error", err)
		return nil, storeError("list audit log", err)
	}
	return entries, nil
}
