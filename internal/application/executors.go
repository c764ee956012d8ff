package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/example/library-lending/internal/notification"
	"github.com/example/library-lending/internal/queue"
)

// Strategy names how a pass delivers its notifications.
type Strategy string

const (
	StrategyDirect Strategy = "direct"
	StrategyQueued Strategy = "queued"
)

// ResolveStrategy picks the delivery strategy once at startup. Queued delivery
// needs a queue and a public base URL the queue can call back.
func ResolveStrategy(baseURL, queueURL string) (Strategy, string) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return StrategyDirect, "base url is not set"
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return StrategyDirect, "base url is not absolute"
	}
	if isLoopbackHost(u.Hostname()) {
		return StrategyDirect, "base url is loopback"
	}
	if strings.TrimSpace(queueURL) == "" {
		return StrategyDirect, "queue url is not set"
	}
	return StrategyQueued, "base url is public"
}

func isLoopbackHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// Batch is the work of one pass.
type Batch struct {
	Category      Category
	Kind          notification.Kind
	Candidates    []Candidate
	CorrelationID string
}

// BatchReport tallies what an executor did with a batch.
type BatchReport struct {
	Processed     int
	Sent          int
	Failed        int
	Skipped       int
	Queued        int
	Details       []Detail
	CorrelationID string
	// ChannelFailures counts failed deliveries whose cause was an unreachable
	// channel rather than the recipient.
	ChannelFailures int
}

// ChannelDown reports whether the channel looked unreachable for the whole
// batch: nothing went out and every failure was channel level.
func (r BatchReport) ChannelDown() bool {
	return r.ChannelFailures > 0 && r.Sent == 0 && r.Queued == 0 && r.ChannelFailures == r.Failed
}

func (r *BatchReport) record(d Detail, status OutcomeStatus) {
	r.Processed++
	switch status {
	case OutcomeSent:
		r.Sent++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	}
	r.Details = append(r.Details, d)
}

// BatchExecutor delivers a batch with one strategy.
type BatchExecutor interface {
	Strategy() Strategy
	Execute(ctx context.Context, batch Batch) (BatchReport, error)
}

// DirectExecutor dispatches each candidate in sequence.
type DirectExecutor struct {
	dispatcher *Dispatcher
}

// NewDirectExecutor constructs a direct executor.
func NewDirectExecutor(dispatcher *Dispatcher) *DirectExecutor {
	return &DirectExecutor{dispatcher: dispatcher}
}

// Strategy implements BatchExecutor.
func (e *DirectExecutor) Strategy() Strategy { return StrategyDirect }

// Execute implements BatchExecutor. A store failure or cancellation stops the
// batch; per-recipient failures do not.
func (e *DirectExecutor) Execute(ctx context.Context, batch Batch) (BatchReport, error) {
	report := BatchReport{CorrelationID: batch.CorrelationID}
	for _, c := range batch.Candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.dispatchOne(ctx, batch.Kind, c, batch.CorrelationID, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// dispatchOne sends one candidate's message and records it. Only errors that
// must stop the batch are returned.
func (e *DirectExecutor) dispatchOne(ctx context.Context, kind notification.Kind, c Candidate, correlationID string, report *BatchReport) error {
	return recordDispatch(ctx, e.dispatcher, candidateMessage(kind, c, correlationID), c.Loan.ID, report)
}

func recordDispatch(ctx context.Context, dispatcher *Dispatcher, msg Message, loanID string, report *BatchReport) error {
	outcome, err := dispatcher.Dispatch(ctx, msg)
	detail := Detail{
		LoanID:    loanID,
		UserID:    msg.Recipient.ID,
		Email:     msg.Recipient.Email,
		Kind:      string(msg.Kind),
		Status:    string(outcome.Status),
		Attempts:  outcome.Attempts,
		MessageID: outcome.MessageID,
		AuditID:   outcome.AuditID,
		Error:     outcome.Error,
	}
	if err != nil && outcome.Status == "" {
		detail.Status = string(OutcomeFailed)
		detail.Error = err.Error()
		outcome.Status = OutcomeFailed
	}
	report.record(detail, outcome.Status)

	if err == nil {
		return nil
	}
	var sErr *StoreError
	if errors.As(err, &sErr) {
		return err
	}
	if isChannelDown(err) {
		report.ChannelFailures++
	}
	return nil
}

// QueuedExecutorDeps wires a QueuedExecutor.
type QueuedExecutorDeps struct {
	Enqueuer    Enqueuer
	Signer      *queue.Signer
	Endpoint    string
	BatchSize   int
	Audit       AuditLog
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// QueuedExecutor splits a batch into signed chunks and hands them to the
// queue. Delivery happens later in the worker endpoint.
type QueuedExecutor struct {
	enqueuer    Enqueuer
	signer      *queue.Signer
	endpoint    string
	batchSize   int
	audit       AuditLog
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewQueuedExecutor constructs a queued executor. Batch size defaults to 100.
func NewQueuedExecutor(deps QueuedExecutorDeps) *QueuedExecutor {
	if deps.BatchSize <= 0 {
		deps.BatchSize = 100
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &QueuedExecutor{
		enqueuer:    deps.Enqueuer,
		signer:      deps.Signer,
		endpoint:    deps.Endpoint,
		batchSize:   deps.BatchSize,
		audit:       deps.Audit,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
	}
}

// Strategy implements BatchExecutor.
func (e *QueuedExecutor) Strategy() Strategy { return StrategyQueued }

// Execute implements BatchExecutor. Processed counts the recipients handed to
// the queue; nothing is sent synchronously.
func (e *QueuedExecutor) Execute(ctx context.Context, batch Batch) (report BatchReport, err error) {
	correlationID := batch.CorrelationID
	if correlationID == "" {
		correlationID = e.idGenerator()
	}
	report.CorrelationID = correlationID
	if len(batch.Candidates) == 0 {
		return report, nil
	}

	logger := serviceLogger(ctx, e.logger, "QueuedExecutor", "Execute",
		"category", batch.Category,
		"correlation_id", correlationID,
	)

	items := make([]queue.Item, 0, len(batch.Candidates))
	for _, c := range batch.Candidates {
		items = append(items, queue.Item{LoanID: c.Loan.ID, Kind: string(batch.Kind)})
	}
	chunks := queue.Split(items, e.batchSize)
	now := e.now().UTC()

	summary := AuditEntry{
		ID:            e.idGenerator(),
		RecipientName: "batch summary",
		Kind:          string(batch.Kind),
		Status:        AuditPending,
		Subject:       fmt.Sprintf("%s: %d recipient(s) queued in %d batch(es)", batch.Category, len(items), len(chunks)),
		CorrelationID: stringRef(correlationID),
		Metadata: map[string]any{
			"category":   string(batch.Category),
			"strategy":   string(StrategyQueued),
			"recipients": len(items),
			"batches":    len(chunks),
		},
		SentAt: now,
	}
	if e.audit != nil {
		if aErr := e.audit.Append(ctx, summary); aErr != nil {
			return report, storeError("append batch summary", aErr)
		}
	}

	for i, chunk := range chunks {
		qb := queue.Batch{
			CorrelationID: correlationID,
			Category:      string(batch.Category),
			Sequence:      i + 1,
			Total:         len(chunks),
			Items:         chunk,
			CreatedAt:     now,
		}
		detail := Detail{Kind: string(batch.Kind)}

		messageID, enqueueErr := e.enqueue(ctx, qb)
		report.Processed += len(chunk)
		if enqueueErr != nil {
			logger.WarnContext(ctx, "failed to enqueue batch", "sequence", qb.Sequence, "error", enqueueErr)
			report.Failed += len(chunk)
			if isChannelDown(notification.Classify(enqueueErr)) {
				report.ChannelFailures += len(chunk)
			}
			detail.Status = string(OutcomeFailed)
			detail.Error = fmt.Sprintf("batch %d/%d: %v", qb.Sequence, qb.Total, enqueueErr)
			report.Details = append(report.Details, detail)
			if aErr := e.appendFailedBatch(ctx, batch, qb, enqueueErr); aErr != nil {
				return report, aErr
			}
			continue
		}
		report.Queued += len(chunk)
		detail.Status = "queued"
		detail.MessageID = messageID
		report.Details = append(report.Details, detail)
	}

	logger.InfoContext(ctx, "batches enqueued",
		"recipients", len(items),
		"batches", len(chunks),
		"queued", report.Queued,
	)
	return report, nil
}

func (e *QueuedExecutor) enqueue(ctx context.Context, qb queue.Batch) (string, error) {
	if e.enqueuer == nil || e.signer == nil {
		return "", errors.New("queue is not configured")
	}
	payload, err := e.signer.Seal(qb)
	if err != nil {
		return "", err
	}
	return e.enqueuer.Enqueue(ctx, e.endpoint, payload)
}

func (e *QueuedExecutor) appendFailedBatch(ctx context.Context, batch Batch, qb queue.Batch, cause error) error {
	if e.audit == nil {
		return nil
	}
	entry := AuditEntry{
		ID:            e.idGenerator(),
		RecipientName: "batch summary",
		Kind:          string(batch.Kind),
		Status:        AuditFailed,
		Subject:       fmt.Sprintf("%s: batch %d/%d not queued", batch.Category, qb.Sequence, qb.Total),
		ErrorMessage:  stringRef(cause.Error()),
		CorrelationID: stringRef(qb.CorrelationID),
		Metadata: map[string]any{
			"sequence":   qb.Sequence,
			"recipients": len(qb.Items),
		},
		SentAt: e.now().UTC(),
	}
	if err := e.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		return storeError("append batch failure", err)
	}
	return nil
}
