package application

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/example/library-lending/internal/notification"
)

type orchestratorFixture struct {
	loans    *loanRepoStub
	audit    *auditStub
	channel  *channelStub
	locks    *lockStub
	reporter *reporterStub
	users    *inactiveStub
	orch     *Orchestrator
}

type inactiveStub struct {
	users []User
	since time.Time
}

func (s *inactiveStub) ListInactiveUsers(ctx context.Context, since time.Time, kind string) ([]User, error) {
	s.since = since
	return s.users, nil
}

func newOrchestratorFixture(t *testing.T, cands ...Candidate) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		loans:    newLoanRepoStub(cands...),
		audit:    &auditStub{},
		channel:  &channelStub{},
		locks:    &lockStub{},
		reporter: &reporterStub{},
		users:    &inactiveStub{},
	}
	dispatcher := newTestDispatcher(t, f.channel, f.loans, f.audit)
	f.orch = NewOrchestrator(OrchestratorDeps{
		Windows:     newTestSelector(t, f.loans),
		Executor:    NewDirectExecutor(dispatcher),
		Dispatcher:  dispatcher,
		Locks:       f.locks,
		Inactive:    f.users,
		Reporter:    f.reporter,
		IDGenerator: sequentialIDs("run"),
		Now:         fixedNow,
		Logger:      discardLogger(),
	})
	return f
}

func TestOrchestrator_TriggerDueTomorrowTwice(t *testing.T) {
	f := newOrchestratorFixture(t,
		candidate("a", "a@school.test", day(1)),
		candidate("b", "b@school.test", day(1)),
		candidate("c", "c@school.test", day(2)),
	)

	first, err := f.orch.TriggerDueTomorrow(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Success || first.ProcessedCount != 2 || first.SentCount != 2 || first.FailedCount != 0 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := f.orch.TriggerDueTomorrow(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Success || second.ProcessedCount != 0 || second.SentCount != 0 {
		t.Fatalf("expected an empty second run, got %+v", second)
	}
	if len(f.channel.sentTo()) != 2 {
		t.Fatalf("expected exactly two reminders, got %v", f.channel.sentTo())
	}
	if len(f.locks.held) != 0 {
		t.Fatalf("expected locks to be released, got %v", f.locks.held)
	}
}

func TestOrchestrator_RecipientFailureKeepsPassSuccessful(t *testing.T) {
	f := newOrchestratorFixture(t,
		candidate("a", "a@school.test", day(0)),
		candidate("b", "bad@school.test", day(0)),
	)
	f.channel.failFor = map[string]error{"bad@school.test": errors.New("550 no such user")}

	result, err := f.orch.TriggerDueToday(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.SentCount != 1 || result.FailedCount != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(f.reporter.errs) != 0 {
		t.Fatalf("recipient failures must not be reported as pass failures")
	}
}

func TestOrchestrator_ChannelFailures(t *testing.T) {
	timeout := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("i/o timeout")}

	t.Run("one unreachable recipient keeps the pass successful", func(t *testing.T) {
		f := newOrchestratorFixture(t,
			candidate("a", "a@school.test", day(1)),
			candidate("b", "slow@school.test", day(1)),
			candidate("c", "c@school.test", day(1)),
		)
		f.channel.failFor = map[string]error{"slow@school.test": timeout}

		result, err := f.orch.TriggerDueTomorrow(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Success || result.ProcessedCount != 3 || result.SentCount != 2 || result.FailedCount != 1 {
			t.Fatalf("unexpected result: %+v", result)
		}
		if len(f.reporter.errs) != 0 {
			t.Fatalf("expected no pass failure report, got %v", f.reporter.errs)
		}
	})

	t.Run("channel down for every recipient fails the pass", func(t *testing.T) {
		f := newOrchestratorFixture(t,
			candidate("a", "a@school.test", day(1)),
			candidate("b", "b@school.test", day(1)),
		)
		f.channel.failFor = map[string]error{"a@school.test": timeout, "b@school.test": timeout}

		result, err := f.orch.TriggerDueTomorrow(context.Background())
		if !errors.Is(err, notification.ErrChannelUnavailable) {
			t.Fatalf("expected ErrChannelUnavailable, got %v", err)
		}
		if result.Success || result.FailedCount != 2 {
			t.Fatalf("unexpected result: %+v", result)
		}
	})
}

func TestOrchestrator_LockHeld(t *testing.T) {
	f := newOrchestratorFixture(t, candidate("a", "a@school.test", day(-2)))
	f.locks.held = map[string]string{"trigger:overdue": "other-process"}

	result, err := f.orch.TriggerOverdue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.ProcessedCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(result.Message, "already in progress") {
		t.Fatalf("unexpected message: %q", result.Message)
	}
	if len(f.channel.sentTo()) != 0 {
		t.Fatalf("expected no deliveries while locked")
	}
	if f.locks.held["trigger:overdue"] != "other-process" {
		t.Fatalf("foreign lock must not be released")
	}
}

func TestOrchestrator_StoreFailureAbortsPass(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.loans.listErr = errors.New("unable to open database file")

	result, err := f.orch.TriggerDueToday(context.Background())

	var sErr *StoreError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if result.Success || !strings.Contains(result.Message, "failed") {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(f.reporter.errs) != 1 || f.reporter.tags[0]["category"] != string(CategoryDueToday) {
		t.Fatalf("expected one reported failure, got %v", f.reporter.tags)
	}
}

func TestOrchestrator_RunConsolidated(t *testing.T) {
	t.Run("partial success when one pass loses the channel", func(t *testing.T) {
		f := newOrchestratorFixture(t,
			candidate("today", "today@school.test", day(0)),
			candidate("tomorrow", "tomorrow@school.test", day(1)),
			candidate("late", "late@school.test", day(-3)),
		)
		f.channel.failFor = map[string]error{"today@school.test": errors.New("dial tcp: connection refused")}

		result, err := f.orch.RunConsolidated(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Success || !result.PartialSuccess {
			t.Fatalf("expected partial success, got %+v", result)
		}
		if result.PerCategory.DueToday.Success {
			t.Fatalf("expected due today to fail")
		}
		if !result.PerCategory.DueTomorrow.Success || !result.PerCategory.Overdue.Success {
			t.Fatalf("expected the other passes to succeed: %+v", result.PerCategory)
		}
		if result.SentCount != 2 || result.TotalSent != 2 {
			t.Fatalf("expected two sends, got %d", result.SentCount)
		}
		if result.FailedCount != 1 {
			t.Fatalf("expected one failure, got %d", result.FailedCount)
		}
		if len(f.reporter.errs) != 1 || !errors.Is(f.reporter.errs[0], notification.ErrChannelUnavailable) {
			t.Fatalf("expected the channel failure to be reported, got %v", f.reporter.errs)
		}
	})

	t.Run("full success", func(t *testing.T) {
		f := newOrchestratorFixture(t, candidate("late", "late@school.test", day(-3)))

		result, err := f.orch.RunConsolidated(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Success || result.PartialSuccess || result.SentCount != 1 {
			t.Fatalf("unexpected result: %+v", result)
		}
		if len(result.Details) != 1 || result.Details[0].LoanID != "late" {
			t.Fatalf("unexpected details: %+v", result.Details)
		}
	})

	t.Run("every pass failing is an error", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		f.loans.listErr = errors.New("unable to open database file")

		result, err := f.orch.RunConsolidated(context.Background())
		if err == nil {
			t.Fatalf("expected an error")
		}
		if result.Success || result.PartialSuccess {
			t.Fatalf("unexpected result: %+v", result)
		}
	})
}

func TestOrchestrator_PreviewRecipientCounts(t *testing.T) {
	f := newOrchestratorFixture(t,
		candidate("a", "a@school.test", day(0)),
		candidate("b", "b@school.test", day(-1)),
	)

	counts, err := f.orch.PreviewRecipientCounts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Total != 2 || counts.DueToday != 1 || counts.Overdue != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if len(f.channel.sentTo()) != 0 || len(f.audit.entries) != 0 {
		t.Fatalf("preview must not dispatch")
	}
}

func TestOrchestrator_TriggerInactivity(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.users.users = []User{
		{ID: "u1", Email: "idle@school.test", Name: "Idle Reader", ApprovalStatus: ApprovalApproved},
	}

	result, err := f.orch.Trigger(context.Background(), CategoryInactivity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.SentCount != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if want := testNow.AddDate(0, 0, -30); !f.users.since.Equal(want) {
		t.Fatalf("expected since %v, got %v", want, f.users.since)
	}
	sent := f.audit.byStatus(AuditSent)
	if len(sent) != 1 || sent[0].Kind != string(notification.KindInactivity) || sent[0].LoanID != nil {
		t.Fatalf("unexpected audit rows: %+v", sent)
	}
}

func TestOrchestrator_UnknownCategory(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orch.Trigger(context.Background(), Category("weekly"))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
