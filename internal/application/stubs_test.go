package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/example/library-lending/internal/notification"
	"github.com/example/library-lending/internal/persistence"
	"github.com/example/library-lending/internal/scheduler"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func day(offset int) time.Time {
	return time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func candidate(id, email string, due time.Time) Candidate {
	return Candidate{
		Loan: Loan{
			ID:         id,
			UserID:     "user-" + id,
			BookID:     "book-" + id,
			BorrowedAt: due.AddDate(0, 0, -14),
			DueDate:    due,
			Status:     LoanBorrowed,
		},
		Email:     email,
		Name:      "Reader " + id,
		BookTitle: "Title " + id,
	}
}

func testPenalty(t *testing.T) scheduler.PenaltyPolicy {
	t.Helper()
	policy, err := scheduler.NewPenaltyPolicy("0.50", "")
	if err != nil {
		t.Fatalf("penalty policy: %v", err)
	}
	return policy
}

func fastRetry() notification.RetryPolicy {
	return notification.RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     2,
	}
}

// loanRepoStub answers window queries from memory using the same predicates
// as the SQL repository.
type loanRepoStub struct {
	mu         sync.Mutex
	candidates map[string]Candidate
	listErr    error
	markErr    error
	marks      []string
}

func newLoanRepoStub(cands ...Candidate) *loanRepoStub {
	r := &loanRepoStub{candidates: make(map[string]Candidate)}
	for _, c := range cands {
		r.candidates[c.Loan.ID] = c
	}
	return r
}

func (r *loanRepoStub) matches(c Candidate, q WindowQuery) bool {
	if c.Loan.Status != LoanBorrowed {
		return false
	}
	if q.DueOn != nil && !c.Loan.DueDate.Equal(*q.DueOn) {
		return false
	}
	if q.DueBefore != nil && !c.Loan.DueDate.Before(*q.DueBefore) {
		return false
	}
	switch q.Unflagged {
	case FlagDueTomorrow:
		return !c.Loan.ReminderSent
	case FlagPenaltyNotice:
		return !c.Loan.PenaltyNoticeSent
	}
	return true
}

func (r *loanRepoStub) GetLoan(ctx context.Context, id string) (Loan, error) {
	c, err := r.GetCandidate(ctx, id)
	return c.Loan, err
}

func (r *loanRepoStub) ListCandidates(ctx context.Context, q WindowQuery) ([]Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []Candidate
	for _, c := range r.candidates {
		if r.matches(c, q) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Loan.DueDate.Equal(out[j].Loan.DueDate) {
			return out[i].Loan.DueDate.Before(out[j].Loan.DueDate)
		}
		return out[i].Loan.ID < out[j].Loan.ID
	})
	return out, nil
}

func (r *loanRepoStub) CountCandidates(ctx context.Context, q WindowQuery) (int, error) {
	list, err := r.ListCandidates(ctx, q)
	return len(list), err
}

func (r *loanRepoStub) GetCandidate(ctx context.Context, id string) (Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[id]
	if !ok {
		return Candidate{}, persistence.ErrNotFound
	}
	return c, nil
}

func (r *loanRepoStub) MarkFlag(ctx context.Context, id string, flag ReminderFlag, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return false, r.markErr
	}
	c, ok := r.candidates[id]
	if !ok {
		return false, persistence.ErrNotFound
	}
	var flipped bool
	switch flag {
	case FlagDueTomorrow:
		flipped = !c.Loan.ReminderSent
		c.Loan.ReminderSent = true
	case FlagPenaltyNotice:
		flipped = !c.Loan.PenaltyNoticeSent
		c.Loan.PenaltyNoticeSent = true
	}
	r.candidates[id] = c
	if flipped {
		r.marks = append(r.marks, id+":"+string(flag))
	}
	return flipped, nil
}

func (r *loanRepoStub) get(id string) Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.candidates[id]
}

type lendingStoreStub struct {
	borrowErr error
	borrowed  []Loan

	closeLoan    Loan
	closeAlready bool
	closeErr     error
	closedID     string
}

func (s *lendingStoreStub) BorrowCopy(ctx context.Context, loan Loan) error {
	if s.borrowErr != nil {
		return s.borrowErr
	}
	s.borrowed = append(s.borrowed, loan)
	return nil
}

func (s *lendingStoreStub) CloseLoan(ctx context.Context, id string, at time.Time) (Loan, bool, error) {
	if s.closeErr != nil {
		return Loan{}, false, s.closeErr
	}
	s.closedID = id
	loan := s.closeLoan
	loan.ID = id
	if !s.closeAlready {
		loan.Status = LoanReturned
		loan.ReturnedAt = &at
	}
	return loan, s.closeAlready, nil
}

type userDirStub struct {
	mu    sync.Mutex
	users map[string]User
	err   error
	calls int
}

func newUserDirStub(users ...User) *userDirStub {
	d := &userDirStub{users: make(map[string]User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *userDirStub) GetUser(ctx context.Context, id string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return User{}, d.err
	}
	u, ok := d.users[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	return u, nil
}

type auditStub struct {
	mu        sync.Mutex
	entries   []AuditEntry
	appendErr error
}

func (a *auditStub) Append(ctx context.Context, e AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.appendErr != nil {
		return a.appendErr
	}
	a.entries = append(a.entries, e)
	return nil
}

func (a *auditStub) List(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []AuditEntry
	for _, e := range a.entries {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (a *auditStub) byStatus(status string) []AuditEntry {
	list, _ := a.List(context.Background(), AuditFilter{Status: status})
	return list
}

type lockStub struct {
	mu         sync.Mutex
	held       map[string]string
	acquireErr error
	released   []string
}

func (l *lockStub) Acquire(ctx context.Context, lock RunLock) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.held == nil {
		l.held = make(map[string]string)
	}
	if _, ok := l.held[lock.Name]; ok {
		return false, nil
	}
	l.held[lock.Name] = lock.Holder
	return true, nil
}

func (l *lockStub) Release(ctx context.Context, name, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] == holder {
		delete(l.held, name)
		l.released = append(l.released, name)
	}
	return nil
}

// channelStub fails sends to the addresses in failFor and records the rest.
type channelStub struct {
	mu      sync.Mutex
	failFor map[string]error
	script  []error
	sent    []notification.Envelope
	calls   int
}

func (c *channelStub) Send(ctx context.Context, env notification.Envelope) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if err, ok := c.failFor[env.To]; ok {
		return "", err
	}
	if len(c.script) > 0 {
		err := c.script[0]
		c.script = c.script[1:]
		if err != nil {
			return "", err
		}
	}
	c.sent = append(c.sent, env)
	return fmt.Sprintf("msg-%d", len(c.sent)), nil
}

func (c *channelStub) sentTo() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, env := range c.sent {
		out = append(out, env.To)
	}
	return out
}

type enqueuerStub struct {
	mu       sync.Mutex
	payloads [][]byte
	endpoint string
	err      error
}

func (q *enqueuerStub) Enqueue(ctx context.Context, endpoint string, payload []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.endpoint = endpoint
	q.payloads = append(q.payloads, payload)
	return fmt.Sprintf("qmsg-%d", len(q.payloads)), nil
}

type notifierStub struct {
	events []string
}

func (n *notifierStub) NotifyLoanEvent(ctx context.Context, kind notification.Kind, loanID string) {
	n.events = append(n.events, string(kind)+":"+loanID)
}

type reporterStub struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (r *reporterStub) Report(ctx context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

type inlineRunner struct {
	names   []string
	results []any
	errs    []error
}

func (r *inlineRunner) Submit(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (string, error) {
	res, err := fn(ctx)
	r.names = append(r.names, name)
	r.results = append(r.results, res)
	r.errs = append(r.errs, err)
	return fmt.Sprintf("job-%d", len(r.names)), nil
}

func newTestRenderer(t *testing.T) *notification.Renderer {
	t.Helper()
	renderer, err := notification.NewRenderer("Westfield School Library")
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	return renderer
}

func newTestDispatcher(t *testing.T, ch notification.Channel, loans LoanRepository, audit AuditLog) *Dispatcher {
	t.Helper()
	return NewDispatcher(DispatcherDeps{
		Channel:     ch,
		Renderer:    newTestRenderer(t),
		Audit:       audit,
		Loans:       loans,
		Retry:       fastRetry(),
		SendTimeout: time.Second,
		Penalty:     testPenalty(t),
		IDGenerator: sequentialIDs("audit"),
		Now:         fixedNow,
		Logger:      discardLogger(),
	})
}
