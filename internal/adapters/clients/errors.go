// Package clients calls downstream services with the caller's request
// context attached.
package clients

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen means the breaker rejected the call without sending it.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last attempt's error once retries run out.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// StatusError reports a downstream 5xx response. Those are retried and
// counted against the circuit breaker.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downstream responded %d", e.StatusCode)
}
