package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/example/library-lending/internal/application"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Loans         *LoanHandler
	Triggers      *TriggerHandler
	Notifications *NotificationHandler
	Health        Pinger
	Metrics       http.Handler
	Strategy      application.Strategy
	WorkerPath    string
	TriggerSecret string
	Logger        *slog.Logger
}

func NewRouter(cfg RouterConfig) *echo.Echo {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.HTTPErrorHandler = responder.handleEchoError
	e.Use(middleware.Recover())
	e.Use(RequestLogger(logger))

	e.GET("/healthz", func(c echo.Context) error {
		status := map[string]string{"status": "ok", "strategy": string(cfg.Strategy)}
		if cfg.Health != nil {
			if err := cfg.Health.Ping(c.Request().Context()); err != nil {
				status["status"] = "unavailable"
				return responder.writeJSON(c, http.StatusServiceUnavailable, status)
			}
		}
		return responder.writeJSON(c, http.StatusOK, status)
	})
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}

	api := e.Group("/api")

	if cfg.Loans != nil {
		api.POST("/loans", cfg.Loans.Borrow)
		api.POST("/loans/:id/return", cfg.Loans.Return)
	}

	if cfg.Triggers != nil {
		triggers := api.Group("/triggers", RequireBearer(cfg.TriggerSecret, logger))
		triggers.POST("/due-today", cfg.Triggers.Run(application.CategoryDueToday))
		triggers.POST("/due-tomorrow", cfg.Triggers.Run(application.CategoryDueTomorrow))
		triggers.POST("/overdue", cfg.Triggers.Run(application.CategoryOverdue))
		triggers.POST("/inactivity", cfg.Triggers.Run(application.CategoryInactivity))
		triggers.POST("/consolidated", cfg.Triggers.Consolidated)
		triggers.GET("/preview", cfg.Triggers.Preview)
		api.GET("/jobs/:id", cfg.Triggers.Job, RequireBearer(cfg.TriggerSecret, logger))
	}

	if cfg.Notifications != nil {
		admin := RequireBearer(cfg.TriggerSecret, logger)
		api.POST("/users/:id/notifications", cfg.Notifications.SendAccountNotice, admin)
		api.GET("/notifications/log", cfg.Notifications.ListLog, admin)

		workerPath := cfg.WorkerPath
		if workerPath == "" {
			workerPath = "/api/notifications/worker"
		}
		e.POST(workerPath, cfg.Notifications.Worker)
	}

	return e
}
