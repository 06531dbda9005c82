package anthropic

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// ErrorKind is the closed taxonomy of upstream generation failures. Callers
// match on kinds only; the mapping from raw errors happens here and nowhere
// else.
type ErrorKind string

const (
	ErrTimedOut     ErrorKind = "timed_out"
	ErrRateLimited  ErrorKind = "rate_limited"
	ErrAuthFailed   ErrorKind = "auth_failed"
	ErrNetworkError ErrorKind = "network_error"
	ErrUnknown      ErrorKind = "unknown"
)

// GenerateError tags an upstream failure with its kind.
type GenerateError struct {
	Kind ErrorKind
	Err  error
}

func (e *GenerateError) Error() string {
	return "anthropic: " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *GenerateError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from an error chain. Unclassified errors
// report ErrUnknown.
func KindOf(err error) ErrorKind {
	var ge *GenerateError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ErrUnknown
}

// Qualifying reports whether the error kind counts toward the circuit
// breaker: rate limits, timeouts, and network failures. Auth failures and
// malformed responses do not move the breaker.
func Qualifying(err error) bool {
	switch KindOf(err) {
	case ErrTimedOut, ErrRateLimited, ErrNetworkError:
		return true
	default:
		return false
	}
}

// Classify wraps a raw upstream error as a GenerateError. Context deadline
// expiry and cancellation both classify as timed_out: from the caller's view
// the call did not complete within its budget.
func Classify(err error) *GenerateError {
	if err == nil {
		return nil
	}
	var ge *GenerateError
	if errors.As(err, &ge) {
		return ge
	}
	return &GenerateError{Kind: classifyKind(err), Err: err}
}

func classifyKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTimedOut
	}

	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 401, 403:
			return ErrAuthFailed
		case 408, 504:
			return ErrTimedOut
		case 429:
			return ErrRateLimited
		case 500, 502, 503, 529:
			return ErrNetworkError
		default:
			return ErrUnknown
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimedOut
		}
		return ErrNetworkError
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return ErrNetworkError
	}

	// Heuristics for wrapped errors from HTTP transports.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return ErrTimedOut
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return ErrRateLimited
	case strings.Contains(msg, "connection reset by peer"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection refused"):
		return ErrNetworkError
	default:
		return ErrUnknown
	}
}
