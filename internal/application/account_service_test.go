package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/library-lending/internal/notification"
)

func TestAccountNotices_Send(t *testing.T) {
	users := newUserDirStub(
		User{ID: "ok", Email: "ok@school.test", Name: "Approved", ApprovalStatus: ApprovalApproved},
		User{ID: "no", Email: "no@school.test", Name: "Rejected", ApprovalStatus: ApprovalRejected},
	)

	tests := []struct {
		name      string
		userID    string
		kind      notification.Kind
		wantErr   func(error) bool
		wantSends int
	}{
		{name: "approval", userID: "ok", kind: notification.KindAccountApproval, wantSends: 1},
		{name: "rejection", userID: "no", kind: notification.KindAccountRejection, wantSends: 1},
		{name: "welcome", userID: "ok", kind: notification.KindWelcome, wantSends: 1},
		{
			name:    "approval for rejected user",
			userID:  "no",
			kind:    notification.KindAccountApproval,
			wantErr: func(err error) bool { var v *ValidationError; return errors.As(err, &v) },
		},
		{
			name:    "loan kind",
			userID:  "ok",
			kind:    notification.KindDueToday,
			wantErr: func(err error) bool { var v *ValidationError; return errors.As(err, &v) },
		},
		{
			name:    "unknown user",
			userID:  "ghost",
			kind:    notification.KindWelcome,
			wantErr: func(err error) bool { return errors.Is(err, ErrUserNotFound) },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ch := &channelStub{}
			svc := NewAccountNotices(users, newTestDispatcher(t, ch, nil, &auditStub{}), discardLogger())

			outcome, err := svc.Send(context.Background(), tc.userID, tc.kind)
			if tc.wantErr != nil {
				if !tc.wantErr(err) {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if outcome.Status != OutcomeSent || len(ch.sent) != tc.wantSends {
				t.Fatalf("unexpected outcome %+v with %d sends", outcome, len(ch.sent))
			}
		})
	}
}

func TestAuditService_List(t *testing.T) {
	audit := &auditStub{entries: []AuditEntry{
		{ID: "1", Status: AuditSent},
		{ID: "2", Status: AuditFailed},
	}}
	svc := NewAuditService(audit, discardLogger())

	entries, err := svc.List(context.Background(), AuditFilter{Status: AuditFailed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "2" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	_, err = svc.List(context.Background(), AuditFilter{Status: "LOST", Kind: "postcard", Limit: -1})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"status", "kind", "limit"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
		}
	}
}

func TestCachedUserDirectory(t *testing.T) {
	next := newUserDirStub(approvedUser("u1"))
	dir := NewCachedUserDirectory(next, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := dir.GetUser(context.Background(), "u1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one lookup, got %d", next.calls)
	}

	dir.Invalidate("u1")
	if _, err := dir.GetUser(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("expected a fresh lookup after invalidation, got %d", next.calls)
	}

	for i := 0; i < 2; i++ {
		if _, err := dir.GetUser(context.Background(), "ghost"); err == nil {
			t.Fatalf("expected an error for a missing user")
		}
	}
	if next.calls != 4 {
		t.Fatalf("missing users must not be cached, got %d lookups", next.calls)
	}
}

func TestAccountNotices_ApprovalReadsFreshStatus(t *testing.T) {
	next := newUserDirStub(User{ID: "u1", Email: "u1@school.test", ApprovalStatus: ApprovalPending})
	dir := NewCachedUserDirectory(next, time.Minute)
	ch := &channelStub{}
	svc := NewAccountNotices(dir, newTestDispatcher(t, ch, nil, &auditStub{}), discardLogger())

	if _, err := svc.Send(context.Background(), "u1", notification.KindWelcome); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next.mu.Lock()
	next.users["u1"] = User{ID: "u1", Email: "u1@school.test", ApprovalStatus: ApprovalApproved}
	next.mu.Unlock()

	if _, err := svc.Send(context.Background(), "u1", notification.KindAccountApproval); err != nil {
		t.Fatalf("approval notice should see the new status, got %v", err)
	}
	if len(ch.sent) != 2 {
		t.Fatalf("expected two notices, got %d", len(ch.sent))
	}
}
