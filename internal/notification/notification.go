// Package notification renders library emails and delivers them through a
// Channel. Delivery failures are classified so callers can tell a single bad
// recipient from an unreachable transport.
package notification

import (
	"context"
	"fmt"
)

// Kind identifies one notification template and its audit label.
type Kind string

const (
	KindBorrowConfirmation Kind = "borrow_confirmation"
	KindReturnConfirmation Kind = "return_confirmation"
	KindDueToday           Kind = "due_today"
	KindDueTomorrow        Kind = "due_tomorrow"
	KindOverduePenalty     Kind = "overdue_penalty"
	KindAccountApproval    Kind = "account_approval"
	KindAccountRejection   Kind = "account_rejection"
	KindWelcome            Kind = "welcome"
	KindInactivity         Kind = "inactivity"
)

var allKinds = []Kind{
	KindBorrowConfirmation,
	KindReturnConfirmation,
	KindDueToday,
	KindDueTomorrow,
	KindOverduePenalty,
	KindAccountApproval,
	KindAccountRejection,
	KindWelcome,
	KindInactivity,
}

// Kinds returns every known kind.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind validates s as a known kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown notification kind %q", s)
}

// Envelope is one addressed, rendered email.
type Envelope struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Channel delivers an envelope and returns a transport message id.
type Channel interface {
	Send(ctx context.Context, envelope Envelope) (string, error)
}
