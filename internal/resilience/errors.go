package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned when a call is rejected before being attempted
// because the circuit breaker is open. Surfaced distinctly from a timeout so
// callers can tell "degraded upstream" from "one-off failure".
var ErrCircuitOpen = eris.New("circuit breaker is open")

// TimeoutError marks a call that was aborted by its own deadline. Timeouts
// are never retried: the next source in the fallback chain is tried instead.
type TimeoutError struct {
	Operation string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Operation, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err (or anything in its chain) is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// TransientError wraps an error that is safe to retry (429, 5xx, resets).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// ExhaustedError is the terminal not-found error returned when every source
// in the retrieval fallback chain has failed. It carries troubleshooting
// guidance for the operator and is never retried automatically.
type ExhaustedError struct {
	DocumentID string
	LastErr    error
	Guidance   []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("document %s: all retrieval sources exhausted: %v", e.DocumentID, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// NewExhaustedError builds the terminal error with standard guidance.
func NewExhaustedError(documentID string, lastErr error) *ExhaustedError {
	return &ExhaustedError{
		DocumentID: documentID,
		LastErr:    lastErr,
		Guidance: []string{
			"the signed URL may have expired; refresh document metadata",
			"the file may have been deleted from the upstream registry",
			"upstream credentials may be invalid or revoked",
		},
	}
}

// IsExhausted reports whether err is a terminal all-sources-exhausted failure.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common transient network patterns. Timeouts
// from our own deadlines are explicitly not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if IsTimeout(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
