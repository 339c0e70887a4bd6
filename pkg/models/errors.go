package models

import (
	"errors"
	"fmt"
)

// ErrInvalidMetric is the base error for samples rejected before
// anything is persisted.
var ErrInvalidMetric = errors.New("invalid metric")

func newValidationError(field string) error {
	return fmt.Errorf("%w: missing or malformed %s", ErrInvalidMetric, field)
}
