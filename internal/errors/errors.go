package errors

import (
	"errors"
	"fmt"
)

// Common error types for the gateway
var (
	// Configuration errors
	ErrMissingConfig = errors.New("missing required configuration")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
