package models

import (
	"errors"
	"fmt"
)

// RetentionUnit is the age unit for the retention sweeper.
type RetentionUnit string

const (
	RetentionHours   RetentionUnit = "hours"
	RetentionDays    RetentionUnit = "days"
	RetentionWeeks   RetentionUnit = "weeks"
	RetentionMonths  RetentionUnit = "months"
	RetentionYears   RetentionUnit = "years"
	RetentionForever RetentionUnit = "forever"
)

// ErrInvalidRetention marks a policy the sweeper cannot interpret.
var ErrInvalidRetention = errors.New("invalid retention policy")

// foreverYears: any year count at or above this means "never delete".
const foreverYears = 999

// RetentionPolicy is how long raw samples are kept before the sweeper
// drops them.
type RetentionPolicy struct {
	Value int           `json:"value" mapstructure:"value"`
	Unit  RetentionUnit `json:"unit" mapstructure:"unit"`
}

// DefaultRetention is the safe fallback when configuration is malformed.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{Value: 30, Unit: RetentionDays}
}

// Forever reports whether the policy means "never delete".
func (p RetentionPolicy) Forever() bool {
	return p.Unit == RetentionForever || (p.Unit == RetentionYears && p.Value >= foreverYears)
}

// Seconds converts the policy to an age cutoff in seconds. Forever
// policies have no cutoff; callers must check Forever() first.
func (p RetentionPolicy) Seconds() int64 {
	v := int64(p.Value)
	switch p.Unit {
	case RetentionHours:
		return v * 3600
	case RetentionDays:
		return v * 86400
	case RetentionWeeks:
		return v * 7 * 86400
	case RetentionMonths:
		return v * 30 * 86400
	case RetentionYears:
		return v * 365 * 86400
	default:
		return 0
	}
}

// Validate rejects unknown units and non-positive values; "forever"
// ignores the value entirely.
func (p RetentionPolicy) Validate() error {
	switch p.Unit {
	case RetentionForever:
		return nil
	case RetentionHours, RetentionDays, RetentionWeeks, RetentionMonths, RetentionYears:
		if p.Value <= 0 {
			return fmt.Errorf("%w: value must be positive, got %d", ErrInvalidRetention, p.Value)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidRetention, p.Unit)
	}
}

func (p RetentionPolicy) String() string {
	if p.Forever() {
		return "forever"
	}
	return fmt.Sprintf("%d %s", p.Value, p.Unit)
}
