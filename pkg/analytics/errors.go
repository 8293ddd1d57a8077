package analytics

import "errors"

var (
	// ErrUserNotFound is returned when recomputing a snapshot for an unknown user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidInterval rejects a non-positive scheduler interval.
	ErrInvalidInterval = errors.New("interval must be positive")
	// ErrInvalidRetention rejects a non-positive retention window.
	ErrInvalidRetention = errors.New("days to keep must be positive")
)
