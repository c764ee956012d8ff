package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/example/library-lending/internal/logging"
)

// SentryConfig configures error reporting. An empty DSN disables sending.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport sentry.Transport
}

// Reporter forwards failures to Sentry and always logs them.
type Reporter struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

// NewReporter builds a reporter with its own hub so tests do not share the
// global Sentry state.
func NewReporter(cfg SentryConfig, logger *slog.Logger) (*Reporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{logger: logger}
	if cfg.DSN == "" && cfg.Transport == nil {
		return r, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		Transport:        cfg.Transport,
		AttachStacktrace: true,
		SampleRate:       1.0,
	})
	if err != nil {
		return nil, err
	}
	r.hub = sentry.NewHub(client, sentry.NewScope())
	return r, nil
}

// Enabled reports whether events are sent to Sentry.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// Report logs err and captures it with tags.
func (r *Reporter) Report(ctx context.Context, err error, tags map[string]string) {
	if r == nil || err == nil {
		return
	}
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = r.logger
	}
	attrs := make([]any, 0, len(tags)*2+2)
	attrs = append(attrs, "error", err)
	for k, v := range tags {
		attrs = append(attrs, k, v)
	}
	logger.ErrorContext(ctx, "reported failure", attrs...)

	if r.hub == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits for buffered events.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
