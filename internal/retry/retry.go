// Package retry decides whether a failed mutation gets another attempt.
package retry

import (
	"errors"
	"fmt"

	"github.com/marcus/offsync/internal/models"
)

// ErrExhausted wraps the last delivery error of an abandoned mutation.
var ErrExhausted = errors.New("retries exhausted")

// Decision is the outcome of evaluating a failed attempt.
type Decision int

const (
	// Retry means the record stays queued with an incremented RetryCount.
	Retry Decision = iota
	// Abandon means the record is removed without delivery.
	Abandon
)

func (d Decision) String() string {
	if d == Abandon {
		return "abandon"
	}
	return "retry"
}

// Policy evaluates transient failures against a record's retry ceiling.
// The zero value uses each record's own MaxRetries.
type Policy struct {
	// DefaultMaxRetries applies to records whose MaxRetries is negative.
	DefaultMaxRetries int
}

// Evaluate records a transient failure on rec. If the record has already used
// its retries it returns Abandon and an error wrapping ErrExhausted and cause,
// leaving rec untouched. Otherwise it increments RetryCount, stores the error
// text and returns Retry.
//
// A record that always fails is therefore attempted MaxRetries+1 times.
func (p Policy) Evaluate(rec *models.MutationRecord, cause error) (Decision, error) {
	if rec.RetryCount >= p.ceiling(rec) {
		return Abandon, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, rec.RetryCount+1, cause)
	}
	rec.RetryCount++
	if cause != nil {
		rec.LastError = cause.Error()
	}
	return Retry, nil
}

// Remaining returns how many more failures rec can absorb before abandonment.
func (p Policy) Remaining(rec *models.MutationRecord) int {
	if n := p.ceiling(rec) - rec.RetryCount; n > 0 {
		return n
	}
	return 0
}

func (p Policy) ceiling(rec *models.MutationRecord) int {
	if rec.MaxRetries < 0 {
		if p.DefaultMaxRetries > 0 {
			return p.DefaultMaxRetries
		}
		return models.DefaultMaxRetries
	}
	return rec.MaxRetries
}
