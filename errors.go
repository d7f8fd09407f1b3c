package textclass

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrDailyQuotaExceeded = errors.New("textclass: daily quota exceeded")
	ErrSpendLimitExceeded = errors.New("textclass: daily spending limit exceeded")
	ErrModelNotFound      = errors.New("textclass: model not configured")
)

// BatchError wraps an error with batch context.
type BatchError struct {
	Err      error
	CallerID string
	BatchID  string
	Model    string
	Row      int // index of the failing row, -1 when not row-scoped
}

func (e *BatchError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("textclass: batch=%s model=%s row=%d: %v",
			e.BatchID, e.Model, e.Row, e.Err)
	}
	return fmt.Sprintf("textclass: batch=%s model=%s: %v", e.BatchID, e.Model, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// IsRetryLater returns true if the error is an admission-control
// rejection: nothing ran, and the same request can succeed on a later
// day (or after spend resets).
func IsRetryLater(err error) bool {
	return errors.Is(err, ErrDailyQuotaExceeded) || errors.Is(err, ErrSpendLimitExceeded)
}
