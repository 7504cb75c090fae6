package database

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is returned when a unique key (roll number, teacher email) is already taken.
	ErrDuplicate = errors.New("already exists")

	// ErrStorageUnavailable wraps driver and connection failures. Callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Unavailable wraps a driver error so that it matches both ErrStorageUnavailable
// and the original cause.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
