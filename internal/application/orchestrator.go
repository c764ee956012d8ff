package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/library-lending/internal/notification"
)

var categoryLabels = map[Category]string{
	CategoryDueToday:    "Due today",
	CategoryDueTomorrow: "Due tomorrow",
	CategoryOverdue:     "Overdue",
	CategoryInactivity:  "Inactivity",
}

// OrchestratorDeps wires an Orchestrator.
type OrchestratorDeps struct {
	Windows        *WindowSelector
	Executor       BatchExecutor
	Dispatcher     *Dispatcher
	Locks          RunLocker
	LockTTL        time.Duration
	Inactive       InactiveUserFinder
	InactivityDays int
	Reporter       ErrorReporter
	Metrics        Metrics
	IDGenerator    func() string
	Now            func() time.Time
	Logger         *slog.Logger
}

// Orchestrator runs the reminder passes. Passes for different categories may
// run concurrently; a run lock keeps two passes of one category apart.
type Orchestrator struct {
	windows        *WindowSelector
	executor       BatchExecutor
	dispatcher     *Dispatcher
	locks          RunLocker
	lockTTL        time.Duration
	inactive       InactiveUserFinder
	inactivityDays int
	reporter       ErrorReporter
	metrics        Metrics
	idGenerator    func() string
	now            func() time.Time
	logger         *slog.Logger
}

// NewOrchestrator constructs an orchestrator. The lock TTL defaults to 15
// minutes and the inactivity period to 30 days.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		windows:        deps.Windows,
		executor:       deps.Executor,
		dispatcher:     deps.Dispatcher,
		locks:          deps.Locks,
		lockTTL:        deps.LockTTL,
		inactive:       deps.Inactive,
		inactivityDays: deps.InactivityDays,
		reporter:       deps.Reporter,
		metrics:        deps.Metrics,
		idGenerator:    deps.IDGenerator,
		now:            deps.Now,
		logger:         defaultLogger(deps.Logger),
	}
	if o.lockTTL <= 0 {
		o.lockTTL = 15 * time.Minute
	}
	if o.inactivityDays <= 0 {
		o.inactivityDays = 30
	}
	if o.reporter == nil {
		o.reporter = noopReporter{}
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.idGenerator == nil {
		o.idGenerator = func() string { return "" }
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Strategy reports the delivery strategy of the reminder passes.
func (o *Orchestrator) Strategy() Strategy {
	if o.executor == nil {
		return StrategyDirect
	}
	return o.executor.Strategy()
}

// TriggerDueToday runs the due-today pass.
func (o *Orchestrator) TriggerDueToday(ctx context.Context) (TriggerResult, error) {
	return o.Trigger(ctx, CategoryDueToday)
}

// TriggerDueTomorrow runs the due-tomorrow pass.
func (o *Orchestrator) TriggerDueTomorrow(ctx context.Context) (TriggerResult, error) {
	return o.Trigger(ctx, CategoryDueTomorrow)
}

// TriggerOverdue runs the overdue pass.
func (o *Orchestrator) TriggerOverdue(ctx context.Context) (TriggerResult, error) {
	return o.Trigger(ctx, CategoryOverdue)
}

// Trigger runs the pass of category. The returned result is always filled;
// a non-nil error means the pass failed as a whole.
func (o *Orchestrator) Trigger(ctx context.Context, category Category) (TriggerResult, error) {
	switch category {
	case CategoryDueToday, CategoryDueTomorrow, CategoryOverdue:
		return o.runPass(ctx, category, func(ctx context.Context, correlationID string) (BatchReport, error) {
			candidates, err := o.windows.Select(ctx, category)
			if err != nil {
				return BatchReport{}, err
			}
			return o.executor.Execute(ctx, Batch{
				Category:      category,
				Kind:          category.Kind(),
				Candidates:    candidates,
				CorrelationID: correlationID,
			})
		})
	case CategoryInactivity:
		return o.TriggerInactivity(ctx)
	default:
		vErr := &ValidationError{}
		vErr.add("category", fmt.Sprintf("unknown category %q", category))
		return TriggerResult{Category: category, Message: vErr.Error(), Details: []Detail{}}, vErr
	}
}

// TriggerInactivity reminds approved members who have not borrowed anything
// within the inactivity period. It always delivers directly.
func (o *Orchestrator) TriggerInactivity(ctx context.Context) (TriggerResult, error) {
	return o.runPass(ctx, CategoryInactivity, func(ctx context.Context, correlationID string) (BatchReport, error) {
		report := BatchReport{CorrelationID: correlationID}
		if o.inactive == nil || o.dispatcher == nil {
			return report, &ConfigurationError{Key: "scheduler.inactivity_days"}
		}
		since := o.now().UTC().AddDate(0, 0, -o.inactivityDays)
		users, err := o.inactive.ListInactiveUsers(ctx, since, string(notification.KindInactivity))
		if err != nil {
			return report, storeError("list inactive users", err)
		}
		for _, user := range users {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			msg := Message{
				Kind:          notification.KindInactivity,
				Recipient:     user,
				InactiveDays:  o.inactivityDays,
				CorrelationID: correlationID,
			}
			if err := recordDispatch(ctx, o.dispatcher, msg, "", &report); err != nil {
				return report, err
			}
		}
		return report, nil
	})
}

type passFunc func(ctx context.Context, correlationID string) (BatchReport, error)

func (o *Orchestrator) runPass(ctx context.Context, category Category, execute passFunc) (result TriggerResult, err error) {
	label := categoryLabels[category]
	logger := serviceLogger(ctx, o.logger, "Orchestrator", "RunPass",
		"category", category,
		"strategy", o.Strategy(),
	)

	start := o.now()
	result = TriggerResult{Category: category, Strategy: string(o.Strategy()), Details: []Detail{}}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s pass panicked: %v", category, r)
		}
		if err != nil {
			result.Success = false
			result.Message = fmt.Sprintf("%s pass failed: %v", label, err)
			o.reporter.Report(ctx, err, map[string]string{
				"category":   string(category),
				"error_kind": ErrorKind(err),
			})
			logger.ErrorContext(ctx, "pass failed",
				"error", err,
				"error_kind", ErrorKind(err),
				"processed", result.ProcessedCount,
				"failed", result.FailedCount,
			)
		} else {
			logger.InfoContext(ctx, "pass completed",
				"processed", result.ProcessedCount,
				"sent", result.SentCount,
				"failed", result.FailedCount,
				"correlation_id", result.CorrelationID,
			)
		}
		o.metrics.ObservePass(string(category), result.Success, result.SentCount, result.FailedCount, o.now().Sub(start))
	}()

	if o.locks != nil {
		holder := o.idGenerator()
		lockName := "trigger:" + string(category)
		now := o.now().UTC()
		acquired, lockErr := o.locks.Acquire(ctx, RunLock{
			Name:       lockName,
			Holder:     holder,
			AcquiredAt: now,
			ExpiresAt:  now.Add(o.lockTTL),
		})
		if lockErr != nil {
			err = storeError("acquire run lock", lockErr)
			return
		}
		if !acquired {
			result.Success = true
			result.Message = fmt.Sprintf("%s: run already in progress", label)
			return
		}
		defer func() {
			if relErr := o.locks.Release(context.WithoutCancel(ctx), lockName, holder); relErr != nil {
				logger.WarnContext(ctx, "failed to release run lock", "lock", lockName, "error", relErr)
			}
		}()
	}

	report, execErr := execute(ctx, o.idGenerator())
	result.ProcessedCount = report.Processed
	result.SentCount = report.Sent
	result.FailedCount = report.Failed
	result.CorrelationID = report.CorrelationID
	if report.Details != nil {
		result.Details = report.Details
	}
	if execErr != nil {
		err = execErr
		return
	}
	if report.ChannelDown() {
		err = fmt.Errorf("%s pass: %w", category, notification.ErrChannelUnavailable)
		return
	}

	result.Success = true
	result.Message = passMessage(label, o.Strategy(), report)
	return
}

func passMessage(label string, strategy Strategy, report BatchReport) string {
	if report.Processed == 0 {
		return fmt.Sprintf("%s: no recipients", label)
	}
	if strategy == StrategyQueued && report.Queued > 0 {
		return fmt.Sprintf("%s: %d recipient(s) queued, %d failed to queue", label, report.Queued, report.Failed)
	}
	msg := fmt.Sprintf("%s: processed %d, sent %d, failed %d", label, report.Processed, report.Sent, report.Failed)
	if report.Skipped > 0 {
		msg += fmt.Sprintf(", skipped %d", report.Skipped)
	}
	return msg
}

// RunConsolidated runs the due-today, due-tomorrow and overdue passes
// independently. A failing pass never stops the others. The error is non-nil
// only when every pass failed.
func (o *Orchestrator) RunConsolidated(ctx context.Context) (result ConsolidatedResult, err error) {
	logger := serviceLogger(ctx, o.logger, "Orchestrator", "RunConsolidated")

	categories := []Category{CategoryDueToday, CategoryDueTomorrow, CategoryOverdue}
	results := make([]TriggerResult, len(categories))
	errs := make([]error, len(categories))

	var g errgroup.Group
	for i, category := range categories {
		g.Go(func() error {
			results[i], errs[i] = o.Trigger(ctx, category)
			return nil
		})
	}
	_ = g.Wait()

	result.PerCategory = CategoryResults{DueToday: results[0], DueTomorrow: results[1], Overdue: results[2]}
	result.Details = []Detail{}
	var failed []string
	for i, r := range results {
		result.ProcessedCount += r.ProcessedCount
		result.SentCount += r.SentCount
		result.FailedCount += r.FailedCount
		result.Details = append(result.Details, r.Details...)
		if !r.Success {
			failed = append(failed, string(categories[i]))
		}
	}
	result.TotalSent = result.SentCount

	switch {
	case len(failed) == 0:
		result.Success = true
		result.Message = fmt.Sprintf("All passes succeeded: %d sent, %d failed", result.SentCount, result.FailedCount)
	case len(failed) < len(categories):
		result.PartialSuccess = true
		result.Message = fmt.Sprintf("Partial success: %s failed; %d sent", strings.Join(failed, ", "), result.SentCount)
	default:
		result.Message = "All passes failed"
		err = errors.Join(errs...)
	}

	logger.InfoContext(ctx, "consolidated run completed",
		"success", result.Success,
		"partial_success", result.PartialSuccess,
		"failed_categories", failed,
		"sent", result.SentCount,
	)
	return result, err
}

// PreviewRecipientCounts reports the window sizes without dispatching.
func (o *Orchestrator) PreviewRecipientCounts(ctx context.Context) (counts PreviewCounts, err error) {
	logger := serviceLogger(ctx, o.logger, "Orchestrator", "PreviewRecipientCounts")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "preview failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "preview computed", "total", counts.Total)
	}()
	return o.windows.CountWindows(ctx)
}
