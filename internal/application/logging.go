package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/library-lending/internal/logging"
	"github.com/example/library-lending/internal/notification"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUserNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrAlreadyBorrowed):
		return "already_borrowed"
	case errors.Is(err, ErrOutOfCopies):
		return "out_of_copies"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	}

	var (
		vErr     *ValidationError
		cfgErr   *ConfigurationError
		storeErr *StoreError
		dErr     *DeliveryError
	)
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &storeErr):
		return "store"
	case errors.Is(err, notification.ErrChannelUnavailable):
		return "channel_unavailable"
	case errors.As(err, &dErr):
		return "delivery"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}

	return "unexpected"
}
