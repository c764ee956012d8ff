package notification

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	// ErrChannelUnavailable marks failures where the transport itself could not
	// be reached, as opposed to a problem with one message.
	ErrChannelUnavailable = errors.New("notification: channel unavailable")
	// ErrInvalidRecipient is returned for envelopes without a usable address.
	ErrInvalidRecipient = errors.New("notification: invalid recipient")
)

// SendError wraps a delivery failure with its retry classification.
type SendError struct {
	Err       error
	Retryable bool
}

func (e *SendError) Error() string { return e.Err.Error() }
func (e *SendError) Unwrap() error { return e.Err }

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Retryable
	}
	return errors.Is(err, ErrChannelUnavailable)
}

// Classify turns a raw transport error into a SendError. Network level
// failures are reported as ErrChannelUnavailable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return err
	}
	if errors.Is(err, ErrInvalidRecipient) {
		return &SendError{Err: err, Retryable: false}
	}
	if errors.Is(err, context.Canceled) {
		return &SendError{Err: err, Retryable: false}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &opErr),
		errors.As(err, &dnsErr),
		errors.Is(err, context.DeadlineExceeded),
		containsAny(err.Error(), "connection refused", "no such host", "i/o timeout", "network is unreachable", "connection reset"):
		return &SendError{Err: errors.Join(ErrChannelUnavailable, err), Retryable: true}
	}

	// permanent SMTP rejections
	if containsAny(err.Error(), "550 ", "551 ", "553 ", "501 ", "invalid address") {
		return &SendError{Err: errors.Join(ErrInvalidRecipient, err), Retryable: false}
	}
	return &SendError{Err: err, Retryable: true}
}

func containsAny(s string, substrings ...string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
