package validator

import (
	"errors"
	"fmt"

	"fraud_scoring/internal/domain"
)

var (
	ErrInvalidAmount    = errors.New("invalid transaction amount")
	ErrInvalidHour      = errors.New("hour must be between 0 and 23")
	ErrInvalidDayOfWeek = errors.New("day_of_week must be between 0 and 6")
	ErrMissingDirection = errors.New("direction is required")
)

// FeatureValidator checks that the required fields of a transaction record
// are present and inside their declared ranges. Optional behavioral fields
// are never validated here; absence is handled by the feature preparer.
type FeatureValidator struct{}

func NewFeatureValidator() *FeatureValidator {
	return &FeatureValidator{}
}

func (v *FeatureValidator) ValidateFeatures(tx *domain.TransactionFeatures) error {
	var errs []error

	if tx.Amount <= 0 {
		errs = append(errs, ErrInvalidAmount)
	}

	if tx.Hour < 0 || tx.Hour > 23 {
		errs = append(errs, ErrInvalidHour)
	}

	if tx.DayOfWeek < 0 || tx.DayOfWeek > 6 {
		errs = append(errs, ErrInvalidDayOfWeek)
	}

	if tx.Direction == "" {
		errs = append(errs, ErrMissingDirection)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %w", errors.Join(errs...))
	}

	return nil
}
