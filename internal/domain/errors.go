package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// Feed failures. Both are transient: the loop retries on the next cycle.
	ErrFeedUnavailable     = errors.New("market feed unavailable")
	ErrRiskDataUnavailable = errors.New("risk data unavailable")

	// Portfolio invariants, rejected before any funds move.
	ErrDuplicatePosition = errors.New("position already open for token")
	ErrCapacityExceeded  = errors.New("position capacity exceeded")
	ErrPositionNotFound  = errors.New("position not found")
	ErrReceiptFailed     = errors.New("execution receipt is not successful")

	ErrInvalidIntent = errors.New("invalid trade intent")

	// Fatal: the process must stop trading.
	ErrSignerUnavailable = errors.New("signer unavailable")
	ErrStorageWrite      = errors.New("durable storage write failed")
)

// IsFatal reports whether err means the process can no longer trade safely.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSignerUnavailable) || errors.Is(err, ErrStorageWrite)
}
