package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/library-lending/internal/application"
	"github.com/example/library-lending/internal/scheduler"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers, clocks and the default UTC calendar.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Calendar    scheduler.Calendar
	Penalty     scheduler.PenaltyPolicy
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults: ReferenceTime,
// "id" prefixed identifiers and a 0.50 per day penalty.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	penalty, err := scheduler.NewPenaltyPolicy("0.50", "")
	if err != nil {
		panic(err)
	}
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Calendar:    scheduler.NewCalendar(nil),
		Penalty:     penalty,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithCalendar overrides the library calendar.
func WithCalendar(calendar scheduler.Calendar) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Calendar = calendar
	}
}

// NewLendingService builds a lending service, filling clock, identifiers and
// calendar from the factory when deps leaves them unset.
func (f *ServiceFactory) NewLendingService(deps application.LendingDeps) *application.LendingService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = f.IDGenerator.NextFunc()
	}
	if deps.Now == nil {
		deps.Now = f.Clock.NowFunc()
	}
	if deps.Calendar == (scheduler.Calendar{}) {
		deps.Calendar = f.Calendar
	}
	return application.NewLendingService(deps)
}

// NewDispatcher builds a dispatcher with the factory clock, identifiers and
// penalty policy as defaults.
func (f *ServiceFactory) NewDispatcher(deps application.DispatcherDeps) *application.Dispatcher {
	if deps.IDGenerator == nil {
		deps.IDGenerator = f.IDGenerator.NextFunc()
	}
	if deps.Now == nil {
		deps.Now = f.Clock.NowFunc()
	}
	if deps.Penalty.UnitAmount.IsZero() && deps.Penalty.Currency == "" {
		deps.Penalty = f.Penalty
	}
	return application.NewDispatcher(deps)
}

// NewWindowSelector builds a window selector reading the factory clock.
func (f *ServiceFactory) NewWindowSelector(loans application.LoanRepository, logger *slog.Logger) *application.WindowSelector {
	return application.NewWindowSelector(loans, f.Calendar, f.Penalty, f.Clock.NowFunc(), logger)
}

// NewOrchestrator builds an orchestrator with the factory clock and
// identifiers as defaults.
func (f *ServiceFactory) NewOrchestrator(deps application.OrchestratorDeps) *application.Orchestrator {
	if deps.IDGenerator == nil {
		deps.IDGenerator = f.IDGenerator.NextFunc()
	}
	if deps.Now == nil {
		deps.Now = f.Clock.NowFunc()
	}
	return application.NewOrchestrator(deps)
}
