package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidationFailed  = errors.New("validation failed")
	ErrAggregationFailed = errors.New("price aggregation failed")
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrPriceInvariant    = errors.New("price snapshot invariant violated")
	ErrStaleSelection    = errors.New("selected order is not processing")
)

// ValidationError describes a single invalid field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidationFailed
func (e ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NotFoundf wraps ErrNotFound with a formatted message
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Persistence wraps a store error with ErrPersistenceFailed
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistenceFailed) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistenceFailed, op, err)
}
