package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/library-lending/internal/notification"
	"github.com/example/library-lending/internal/scheduler"
)

// Renderer turns a kind and its data into a subject and HTML body.
type Renderer interface {
	Render(kind notification.Kind, data notification.Data) (notification.Content, error)
}

// DispatcherDeps wires a Dispatcher. A nil Channel puts the dispatcher in
// log-only mode.
type DispatcherDeps struct {
	Channel     notification.Channel
	MissingKey  string
	Renderer    Renderer
	Audit       AuditLog
	Loans       LoanRepository
	Retry       notification.RetryPolicy
	SendTimeout time.Duration
	Limiter     *rate.Limiter
	Penalty     scheduler.PenaltyPolicy
	Metrics     Metrics
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// Dispatcher renders one message, delivers it with bounded retries and
// records the attempt in the audit log.
type Dispatcher struct {
	channel     notification.Channel
	configErr   *ConfigurationError
	renderer    Renderer
	audit       AuditLog
	loans       LoanRepository
	retry       notification.RetryPolicy
	sendTimeout time.Duration
	limiter     *rate.Limiter
	penalty     scheduler.PenaltyPolicy
	metrics     Metrics
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	d := &Dispatcher{
		channel:     deps.Channel,
		renderer:    deps.Renderer,
		audit:       deps.Audit,
		loans:       deps.Loans,
		retry:       deps.Retry,
		sendTimeout: deps.SendTimeout,
		limiter:     deps.Limiter,
		penalty:     deps.Penalty,
		metrics:     deps.Metrics,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
	}
	if d.channel == nil {
		key := deps.MissingKey
		if key == "" {
			key = "delivery.url"
		}
		d.configErr = &ConfigurationError{Key: key}
	}
	if d.retry.MaxAttempts <= 0 {
		d.retry = notification.DefaultRetryPolicy()
	}
	if d.metrics == nil {
		d.metrics = noopMetrics{}
	}
	if d.idGenerator == nil {
		d.idGenerator = func() string { return "" }
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// LogOnly reports whether messages are logged instead of delivered.
func (d *Dispatcher) LogOnly() bool {
	return d.channel == nil
}

func (d *Dispatcher) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, d.logger, "Dispatcher", operation, attrs...)
}

// Dispatch delivers msg. Per-recipient failures are returned as a
// DeliveryError alongside a failed outcome. Audit or flag failures are
// returned as a StoreError.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (outcome Outcome, err error) {
	logger := d.loggerWith(ctx, "Dispatch",
		"kind", msg.Kind,
		"recipient", msg.Recipient.Email,
	)
	if msg.Loan != nil {
		logger = logger.With("loan_id", msg.Loan.ID)
	}
	if msg.CorrelationID != "" {
		logger = logger.With("correlation_id", msg.CorrelationID)
	}

	start := d.now()
	defer func() {
		d.metrics.ObserveDelivery(string(msg.Kind), string(outcome.Status), outcome.Attempts, d.now().Sub(start))
		if err != nil {
			logger.WarnContext(ctx, "notification not delivered",
				"error", err,
				"error_kind", ErrorKind(err),
				"attempts", outcome.Attempts,
			)
			return
		}
		logger.DebugContext(ctx, "notification dispatched", "status", outcome.Status, "attempts", outcome.Attempts)
	}()

	content, renderErr := d.renderer.Render(msg.Kind, d.templateData(msg))
	if renderErr != nil {
		outcome = Outcome{Status: OutcomeFailed, Error: renderErr.Error()}
		if d.channel == nil {
			err = &DeliveryError{Kind: msg.Kind, Recipient: msg.Recipient.Email, Err: renderErr}
			return
		}
		if outcome.AuditID, err = d.appendAudit(ctx, msg, notification.Content{Subject: string(msg.Kind)}, outcome); err != nil {
			return
		}
		err = &DeliveryError{Kind: msg.Kind, Recipient: msg.Recipient.Email, Err: renderErr}
		return
	}

	if d.channel == nil {
		outcome = Outcome{Status: OutcomeSkipped}
		logger.WarnContext(ctx, "would send notification",
			"reason", d.configErr.Error(),
			"subject", content.Subject,
			"body", notification.PlainText(content.HTML),
		)
		return
	}

	if d.limiter != nil {
		if waitErr := d.limiter.Wait(ctx); waitErr != nil {
			outcome = Outcome{Status: OutcomeFailed, Error: waitErr.Error()}
			err = &DeliveryError{Kind: msg.Kind, Recipient: msg.Recipient.Email, Err: waitErr}
			return
		}
	}

	envelope := notification.Envelope{
		To:      msg.Recipient.Email,
		ToName:  msg.Recipient.Name,
		Subject: content.Subject,
		HTML:    content.HTML,
	}
	var messageID string
	attempts, sendErr := d.retry.Do(ctx, func(ctx context.Context) error {
		sendCtx, cancel := d.withSendTimeout(ctx)
		defer cancel()
		id, err := d.channel.Send(sendCtx, envelope)
		if err != nil {
			return notification.Classify(err)
		}
		messageID = id
		return nil
	})

	outcome = Outcome{Status: OutcomeSent, MessageID: messageID, Attempts: attempts}
	if sendErr != nil {
		outcome.Status = OutcomeFailed
		outcome.Error = sendErr.Error()
	}

	// The delivery already happened; record it even if the caller gave up.
	writeCtx := context.WithoutCancel(ctx)
	if outcome.AuditID, err = d.appendAudit(writeCtx, msg, content, outcome); err != nil {
		return
	}
	if sendErr != nil {
		err = &DeliveryError{Kind: msg.Kind, Recipient: msg.Recipient.Email, Attempts: attempts, Err: sendErr}
		return
	}

	if flag := flagFor(msg.Kind); flag != FlagNone && msg.Loan != nil && d.loans != nil {
		flipped, flagErr := d.loans.MarkFlag(writeCtx, msg.Loan.ID, flag, d.now().UTC())
		if flagErr != nil {
			err = storeError("mark reminder flag", flagErr)
			return
		}
		if !flipped {
			logger.InfoContext(ctx, "reminder flag already set", "flag", flag)
		}
	}
	return
}

func (d *Dispatcher) withSendTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.sendTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.sendTimeout)
}

func (d *Dispatcher) templateData(msg Message) notification.Data {
	data := notification.Data{
		RecipientName: msg.Recipient.Name,
		BookTitle:     msg.BookTitle,
		DaysOverdue:   msg.DaysOverdue,
		InactiveDays:  msg.InactiveDays,
	}
	if msg.Loan != nil {
		data.DueDate = msg.Loan.DueDate
		if msg.Loan.ReturnedAt != nil {
			data.ReturnedAt = *msg.Loan.ReturnedAt
		}
	}
	if msg.Penalty != nil {
		data.Penalty = d.penalty.Format(*msg.Penalty)
	}
	return data
}

// appendAudit writes the audit row for outcome and returns its id.
func (d *Dispatcher) appendAudit(ctx context.Context, msg Message, content notification.Content, outcome Outcome) (string, error) {
	if d.audit == nil {
		return "", nil
	}

	status := AuditSent
	if outcome.Status == OutcomeFailed {
		status = AuditFailed
	}
	metadata := map[string]any{}
	if outcome.MessageID != "" {
		metadata["message_id"] = outcome.MessageID
	}
	if msg.DaysOverdue > 0 {
		metadata["days_overdue"] = msg.DaysOverdue
	}
	if msg.Penalty != nil {
		metadata["penalty"] = msg.Penalty.StringFixed(2)
	}
	if msg.InactiveDays > 0 {
		metadata["inactive_days"] = msg.InactiveDays
	}

	entry := AuditEntry{
		ID:             d.idGenerator(),
		RecipientEmail: msg.Recipient.Email,
		RecipientName:  msg.Recipient.Name,
		Kind:           string(msg.Kind),
		Status:         status,
		Subject:        content.Subject,
		ErrorMessage:   stringRef(outcome.Error),
		Attempts:       outcome.Attempts,
		CorrelationID:  stringRef(msg.CorrelationID),
		Metadata:       metadata,
		SentAt:         d.now().UTC(),
	}
	if msg.Loan != nil {
		entry.LoanID = stringRef(msg.Loan.ID)
	}
	if err := d.audit.Append(ctx, entry); err != nil {
		return "", storeError("append audit entry", err)
	}
	return entry.ID, nil
}

// candidateMessage builds the message a pass sends for one candidate.
func candidateMessage(kind notification.Kind, c Candidate, correlationID string) Message {
	loan := c.Loan
	msg := Message{
		Kind:          kind,
		Recipient:     User{ID: loan.UserID, Email: c.Email, Name: c.Name},
		Loan:          &loan,
		BookTitle:     c.BookTitle,
		CorrelationID: correlationID,
	}
	if kind == notification.KindOverduePenalty {
		penalty := c.Penalty
		msg.DaysOverdue = c.DaysOverdue
		msg.Penalty = &penalty
	}
	return msg
}

func isChannelDown(err error) bool {
	return errors.Is(err, notification.ErrChannelUnavailable)
}
