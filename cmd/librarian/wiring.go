package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/example/library-lending/internal/application"
	"github.com/example/library-lending/internal/config"
	httptransport "github.com/example/library-lending/internal/http"
	"github.com/example/library-lending/internal/notification"
	"github.com/example/library-lending/internal/observability"
	"github.com/example/library-lending/internal/persistence/sqlite"
	"github.com/example/library-lending/internal/persistence/sqlite/migration"
	"github.com/example/library-lending/internal/queue"
	"github.com/example/library-lending/internal/scheduler"
	"github.com/example/library-lending/internal/worker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// overrides replaces outward facing collaborators, mainly in tests.
type overrides struct {
	channel   notification.Channel
	queueHTTP *http.Client
	now       func() time.Time
	ids       func() string
}

// services holds the wired application graph of one process.
type services struct {
	cfg      config.Config
	storage  *sqlite.Storage
	pool     *worker.Pool
	registry *prometheus.Registry
	reporter *observability.Reporter
	strategy application.Strategy
	logger   *slog.Logger

	lending      *application.LendingService
	orchestrator *application.Orchestrator
	accounts     *application.AccountNotices
	audit        *application.AuditService
	batches      *application.BatchWorker
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlite.Storage, error) {
	dbConfig := migration.DefaultSQLiteConfig(cfg.Database.Path)
	if cfg.Database.BusyTimeout > 0 {
		dbConfig.BusyTimeout = cfg.Database.BusyTimeout
	}
	if cfg.Database.MaxOpenConns > 0 {
		dbConfig.MaxOpenConns = cfg.Database.MaxOpenConns
		dbConfig.MaxIdleConns = cfg.Database.MaxOpenConns
	}

	storage, err := sqlite.Open(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return storage, nil
}

func buildServices(cfg config.Config, storage *sqlite.Storage, logger *slog.Logger, ov overrides) (*services, error) {
	now := ov.now
	if now == nil {
		now = time.Now
	}
	ids := ov.ids
	if ids == nil {
		ids = uuid.NewString
	}

	loc, err := cfg.Loans.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid library time zone: %w", err)
	}
	calendar := scheduler.NewCalendar(loc)
	penalty, err := scheduler.NewPenaltyPolicy(cfg.Loans.UnitPenalty, cfg.Loans.Currency)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return nil, err
	}
	reporter, err := observability.NewReporter(observability.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     "librarian@" + version,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise sentry: %w", err)
	}

	channel := ov.channel
	if channel == nil && cfg.Delivery.URL != "" {
		shoutrrrChannel, err := notification.NewShoutrrrChannel(deliveryURL(cfg.Delivery), cfg.Delivery.Timeout)
		if err != nil {
			return nil, err
		}
		channel = shoutrrrChannel
	}
	if channel == nil {
		logger.Warn("delivery.url is not set; notifications are logged instead of sent")
	}

	renderer, err := notification.NewRenderer(cfg.Delivery.LibraryName)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.Delivery.RatePerSecond > 0 {
		burst := cfg.Delivery.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Delivery.RatePerSecond), burst)
	}

	loans := newLoanRepositoryAdapter(storage.Loans)
	users := newUserDirectoryAdapter(storage.Users)
	directory := application.NewCachedUserDirectory(users, cfg.Directory.CacheTTL)
	audit := newAuditLogAdapter(storage.NotificationLog)

	dispatcher := application.NewDispatcher(application.DispatcherDeps{
		Channel:  channel,
		Renderer: renderer,
		Audit:    audit,
		Loans:    loans,
		Retry: notification.RetryPolicy{
			MaxAttempts:    cfg.Delivery.Retry.MaxAttempts,
			InitialBackoff: cfg.Delivery.Retry.InitialBackoff,
			MaxBackoff:     cfg.Delivery.Retry.MaxBackoff,
			Multiplier:     cfg.Delivery.Retry.Multiplier,
		},
		SendTimeout: cfg.Delivery.Timeout,
		Limiter:     limiter,
		Penalty:     penalty,
		Metrics:     metrics,
		IDGenerator: ids,
		Now:         now,
		Logger:      logger,
	})

	pool := worker.New(worker.Config{
		Concurrency: cfg.Worker.Concurrency,
		QueueSize:   cfg.Worker.QueueSize,
		MaxRetained: cfg.Worker.MaxRetained,
	}, logger)

	lending := application.NewLendingService(application.LendingDeps{
		Users:       users,
		Store:       newLendingStoreAdapter(storage.Lending),
		Notifier:    application.NewConfirmations(pool, loans, dispatcher, logger),
		Calendar:    calendar,
		PeriodDays:  cfg.Loans.PeriodDays,
		IDGenerator: ids,
		Now:         now,
		Metrics:     metrics,
		Logger:      logger,
	})

	direct := application.NewDirectExecutor(dispatcher)
	strategy, reason := application.ResolveStrategy(cfg.HTTP.BaseURL, cfg.Queue.URL)
	logger.Info("delivery strategy resolved", "strategy", strategy, "reason", reason)

	var signer *queue.Signer
	if cfg.Queue.SigningKey != "" {
		if signer, err = queue.NewSigner([]byte(cfg.Queue.SigningKey)); err != nil {
			return nil, err
		}
	}

	var executor application.BatchExecutor = direct
	if strategy == application.StrategyQueued {
		if signer == nil {
			return nil, &application.ConfigurationError{Key: "queue.signing_key"}
		}
		executor = application.NewQueuedExecutor(application.QueuedExecutorDeps{
			Enqueuer:    queue.NewClient(cfg.Queue.URL, cfg.Queue.Token, ov.queueHTTP, cfg.Queue.Timeout),
			Signer:      signer,
			Endpoint:    cfg.WorkerURL(),
			BatchSize:   cfg.Queue.BatchSize,
			Audit:       audit,
			IDGenerator: ids,
			Now:         now,
			Logger:      logger,
		})
	}

	orchestrator := application.NewOrchestrator(application.OrchestratorDeps{
		Windows:        application.NewWindowSelector(loans, calendar, penalty, now, logger),
		Executor:       executor,
		Dispatcher:     dispatcher,
		Locks:          newRunLockAdapter(storage.RunLocks),
		LockTTL:        cfg.Scheduler.LockTTL,
		Inactive:       users,
		InactivityDays: cfg.Scheduler.InactivityDays,
		Reporter:       reporter,
		Metrics:        metrics,
		IDGenerator:    ids,
		Now:            now,
		Logger:         logger,
	})

	return &services{
		cfg:          cfg,
		storage:      storage,
		pool:         pool,
		registry:     registry,
		reporter:     reporter,
		strategy:     strategy,
		logger:       logger,
		lending:      lending,
		orchestrator: orchestrator,
		accounts:     application.NewAccountNotices(directory, dispatcher, logger),
		audit:        application.NewAuditService(audit, logger),
		batches: application.NewBatchWorker(application.BatchWorkerDeps{
			Signer:   signer,
			Loans:    loans,
			Direct:   direct,
			Calendar: calendar,
			Penalty:  penalty,
			Now:      now,
			Logger:   logger,
		}),
	}, nil
}

func (s *services) router() *echo.Echo {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Loans:         httptransport.NewLoanHandler(s.lending, s.logger),
		Triggers:      httptransport.NewTriggerHandler(s.orchestrator, s.pool, s.logger),
		Notifications: httptransport.NewNotificationHandler(s.accounts, s.audit, s.batches, s.logger),
		Health:        s.storage,
		Metrics:       promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}),
		Strategy:      s.strategy,
		WorkerPath:    s.cfg.Queue.WorkerPath,
		TriggerSecret: s.cfg.HTTP.TriggerSecret,
		Logger:        s.logger,
	})
}

// shutdown drains background jobs and flushes pending error reports.
func (s *services) shutdown(ctx context.Context) error {
	err := s.pool.Shutdown(ctx)
	s.reporter.Flush(2 * time.Second)
	return err
}

// deliveryURL adds the configured sender to SMTP service URLs that do not
// carry one.
func deliveryURL(cfg config.DeliveryConfig) string {
	raw := strings.TrimSpace(cfg.URL)
	if cfg.From == "" || !strings.HasPrefix(raw, "smtp://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	query := u.Query()
	if query.Get("fromaddress") != "" || query.Get("from") != "" {
		return raw
	}
	query.Set("fromaddress", cfg.From)
	u.RawQuery = query.Encode()
	return u.String()
}
