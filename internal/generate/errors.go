package generate

import (
	"context"
	"errors"
	"net"
	"strings"
)

// TransientError marks a generation failure worth retrying: timeouts,
// throttling and 5xx-equivalent backend hiccups. Anything else is terminal
// and surfaces to the caller immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// classify tags backend errors as transient when they look like rate limits
// or server-side failures. The ark SDK surfaces these as opaque strings, so
// this is a best-effort match on the documented status markers.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "500", "502", "503", "504", "timeout", "rate limit", "temporarily"} {
		if strings.Contains(msg, marker) {
			return Transient(err)
		}
	}
	return err
}
