package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/example/library-lending/internal/notification"
	"github.com/example/library-lending/internal/queue"
	"github.com/example/library-lending/internal/scheduler"
)

func TestResolveStrategy(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		queueURL string
		want     Strategy
	}{
		{name: "unset base url", baseURL: "", queueURL: "https://queue.example", want: StrategyDirect},
		{name: "relative base url", baseURL: "library.school.test", queueURL: "https://queue.example", want: StrategyDirect},
		{name: "localhost", baseURL: "http://localhost:8080", queueURL: "https://queue.example", want: StrategyDirect},
		{name: "loopback v4", baseURL: "http://127.0.0.53", queueURL: "https://queue.example", want: StrategyDirect},
		{name: "loopback v6", baseURL: "http://[::1]:8080", queueURL: "https://queue.example", want: StrategyDirect},
		{name: "no queue", baseURL: "https://library.school.test", queueURL: "", want: StrategyDirect},
		{name: "public", baseURL: "https://library.school.test", queueURL: "https://queue.example", want: StrategyQueued},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := ResolveStrategy(tc.baseURL, tc.queueURL)
			if got != tc.want {
				t.Fatalf("expected %s, got %s (%s)", tc.want, got, reason)
			}
			if reason == "" {
				t.Fatalf("expected a reason")
			}
		})
	}
}

func TestDirectExecutor_ContinuesAfterRecipientFailure(t *testing.T) {
	a := candidate("a", "a@school.test", day(0))
	b := candidate("b", "bad@school.test", day(0))
	c := candidate("c", "c@school.test", day(0))
	loans := newLoanRepoStub(a, b, c)
	ch := &channelStub{failFor: map[string]error{"bad@school.test": errors.New("553 invalid address")}}
	audit := &auditStub{}
	executor := NewDirectExecutor(newTestDispatcher(t, ch, loans, audit))

	report, err := executor.Execute(context.Background(), Batch{
		Category:   CategoryDueToday,
		Kind:       notification.KindDueToday,
		Candidates: []Candidate{a, b, c},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 3 || report.Sent != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.ChannelDown() {
		t.Fatalf("a rejected recipient is not a channel failure")
	}
	if report.Details[1].Status != string(OutcomeFailed) || report.Details[1].Error == "" {
		t.Fatalf("expected failed detail for b, got %+v", report.Details[1])
	}
	for i, d := range report.Details {
		if d.AuditID == "" || d.AuditID != audit.entries[i].ID {
			t.Fatalf("detail %d does not link to its audit row: %+v", i, d)
		}
	}
}

func TestQueuedExecutor_Execute(t *testing.T) {
	signer, err := queue.NewSigner([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	candidates := make([]Candidate, 0, 250)
	for i := 0; i < 250; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("l%03d", i), fmt.Sprintf("r%d@school.test", i), day(-2)))
	}

	t.Run("splits, signs and records a summary", func(t *testing.T) {
		enqueuer := &enqueuerStub{}
		audit := &auditStub{}
		executor := NewQueuedExecutor(QueuedExecutorDeps{
			Enqueuer:    enqueuer,
			Signer:      signer,
			Endpoint:    "https://library.school.test/api/notifications/worker",
			Audit:       audit,
			IDGenerator: sequentialIDs("id"),
			Now:         fixedNow,
			Logger:      discardLogger(),
		})

		report, err := executor.Execute(context.Background(), Batch{
			Category:      CategoryOverdue,
			Kind:          notification.KindOverduePenalty,
			Candidates:    candidates,
			CorrelationID: "corr-9",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Processed != 250 || report.Queued != 250 || report.Sent != 0 {
			t.Fatalf("unexpected report: %+v", report)
		}
		if len(enqueuer.payloads) != 3 {
			t.Fatalf("expected 3 batches, got %d", len(enqueuer.payloads))
		}

		sizes := []int{100, 100, 50}
		for i, payload := range enqueuer.payloads {
			batch, err := signer.Open(payload)
			if err != nil {
				t.Fatalf("batch %d: %v", i, err)
			}
			if batch.CorrelationID != "corr-9" || batch.Sequence != i+1 || batch.Total != 3 {
				t.Fatalf("unexpected batch header: %+v", batch)
			}
			if len(batch.Items) != sizes[i] {
				t.Fatalf("batch %d: expected %d items, got %d", i, sizes[i], len(batch.Items))
			}
		}

		pending := audit.byStatus(AuditPending)
		if len(pending) != 1 {
			t.Fatalf("expected one PENDING summary, got %+v", audit.entries)
		}
		if pending[0].Metadata["recipients"] != 250 || pending[0].Metadata["batches"] != 3 {
			t.Fatalf("unexpected summary metadata: %v", pending[0].Metadata)
		}
		if len(report.Details) != 3 || report.Details[0].MessageID != "qmsg-1" {
			t.Fatalf("expected queue message ids in details, got %+v", report.Details)
		}
	})

	t.Run("unreachable queue marks the channel down", func(t *testing.T) {
		audit := &auditStub{}
		executor := NewQueuedExecutor(QueuedExecutorDeps{
			Enqueuer:    &enqueuerStub{err: errors.New("dial tcp 10.0.0.1:443: connection refused")},
			Signer:      signer,
			Audit:       audit,
			IDGenerator: sequentialIDs("id"),
			Now:         fixedNow,
		})

		report, err := executor.Execute(context.Background(), Batch{
			Category:   CategoryOverdue,
			Kind:       notification.KindOverduePenalty,
			Candidates: candidates[:10],
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !report.ChannelDown() || report.Failed != 10 {
			t.Fatalf("unexpected report: %+v", report)
		}
		if len(audit.byStatus(AuditFailed)) != 1 {
			t.Fatalf("expected a FAILED batch row, got %+v", audit.entries)
		}
	})

	t.Run("empty batch does nothing", func(t *testing.T) {
		enqueuer := &enqueuerStub{}
		audit := &auditStub{}
		executor := NewQueuedExecutor(QueuedExecutorDeps{Enqueuer: enqueuer, Signer: signer, Audit: audit})

		report, err := executor.Execute(context.Background(), Batch{Category: CategoryDueToday, Kind: notification.KindDueToday})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Processed != 0 || len(enqueuer.payloads) != 0 || len(audit.entries) != 0 {
			t.Fatalf("expected no work, got %+v", report)
		}
	})
}

func TestBatchWorker_HandleSealed(t *testing.T) {
	signer, err := queue.NewSigner([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	eligible := candidate("eligible", "e@school.test", day(-3))
	returned := candidate("returned", "r@school.test", day(-3))
	returned.Loan.Status = LoanReturned
	noticed := candidate("noticed", "n@school.test", day(-3))
	noticed.Loan.PenaltyNoticeSent = true

	loans := newLoanRepoStub(eligible, returned, noticed)
	audit := &auditStub{}
	ch := &channelStub{}
	worker := NewBatchWorker(BatchWorkerDeps{
		Signer:   signer,
		Loans:    loans,
		Direct:   NewDirectExecutor(newTestDispatcher(t, ch, loans, audit)),
		Calendar: scheduler.NewCalendar(nil),
		Penalty:  testPenalty(t),
		Now:      fixedNow,
		Logger:   discardLogger(),
	})

	kind := string(notification.KindOverduePenalty)
	body, err := signer.Seal(queue.Batch{
		CorrelationID: "corr-1",
		Category:      string(CategoryOverdue),
		Sequence:      1,
		Total:         1,
		Items: []queue.Item{
			{LoanID: "eligible", Kind: kind},
			{LoanID: "returned", Kind: kind},
			{LoanID: "noticed", Kind: kind},
			{LoanID: "vanished", Kind: kind},
		},
	})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	t.Run("rechecks eligibility", func(t *testing.T) {
		report, err := worker.HandleSealed(context.Background(), body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Processed != 4 || report.Sent != 1 || report.Skipped != 3 {
			t.Fatalf("unexpected report: %+v", report)
		}
		if got := ch.sentTo(); len(got) != 1 || got[0] != "e@school.test" {
			t.Fatalf("unexpected deliveries: %v", got)
		}
		sent := audit.byStatus(AuditSent)
		if len(sent) != 1 || sent[0].CorrelationID == nil || *sent[0].CorrelationID != "corr-1" {
			t.Fatalf("expected correlated audit row, got %+v", sent)
		}
		if sent[0].Metadata["days_overdue"] != 3 {
			t.Fatalf("expected recomputed days overdue, got %v", sent[0].Metadata)
		}
	})

	t.Run("redelivery is skipped", func(t *testing.T) {
		report, err := worker.HandleSealed(context.Background(), body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Sent != 0 || report.Skipped != 4 {
			t.Fatalf("expected everything skipped, got %+v", report)
		}
	})

	t.Run("rejects tampered payloads", func(t *testing.T) {
		other, _ := queue.NewSigner([]byte("another-key"))
		forged, err := other.Seal(queue.Batch{CorrelationID: "x"})
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		if _, err := worker.HandleSealed(context.Background(), forged); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		_, err := worker.HandleSealed(context.Background(), []byte("not json"))
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}
