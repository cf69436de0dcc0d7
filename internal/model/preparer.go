package model

import (
	"errors"
	"fmt"
	"math"

	"fraud_scoring/internal/domain"
	"fraud_scoring/pkg/validator"
)

// ErrValidation reports a missing or out-of-range required field. Optional
// fields never trigger it.
var ErrValidation = errors.New("feature validation failed")

// MissingValueSentinel fills any feature the metadata declares but the input
// cannot produce. Deliberately out of range so it never looks like a real
// observation.
const MissingValueSentinel = -999

const (
	encoderDirection  = "direction"
	encoderPhoneModel = "last_phone_model_categorical"
	encoderOS         = "last_os_categorical"
)

// featureAccessors resolves a declared feature name to its value, built once
// at package init. A name absent from this map gets the sentinel.
type accessor func(tx *domain.TransactionFeatures, bundle *ArtifactBundle) (float64, bool)

var featureAccessors = map[string]accessor{
	"amount": func(tx *domain.TransactionFeatures, _ *ArtifactBundle) (float64, bool) {
		return tx.Amount, true
	},
	"hour": func(tx *domain.TransactionFeatures, _ *ArtifactBundle) (float64, bool) {
		return float64(tx.Hour), true
	},
	"day_of_week": func(tx *domain.TransactionFeatures, _ *ArtifactBundle) (float64, bool) {
		return float64(tx.DayOfWeek), true
	},
	"amount_log": func(tx *domain.TransactionFeatures, _ *ArtifactBundle) (float64, bool) {
		return math.Log1p(tx.Amount), true
	},
	"is_weekend": func(tx *domain.TransactionFeatures, _ *ArtifactBundle) (float64, bool) {
		return boolToFloat(tx.DayOfWeek == 5 || tx.DayOfWeek == 6), true
	},
	"is_night": func(tx *domain.TransactionFeatures, _ *ArtifactBundle) (float64, bool) {
		return boolToFloat(tx.Hour >= 22 || tx.Hour <= 6), true
	},
	"is_business_hours": func(tx *domain.TransactionFeatures, _ *ArtifactBundle) (float64, bool) {
		return boolToFloat(tx.Hour >= 9 && tx.Hour <= 18), true
	},
	"direction_encoded": func(tx *domain.TransactionFeatures, b *ArtifactBundle) (float64, bool) {
		return encodeCategory(b, encoderDirection, tx.Direction)
	},
	"last_phone_model_categorical_encoded": func(tx *domain.TransactionFeatures, b *ArtifactBundle) (float64, bool) {
		if tx.LastPhoneModel == nil {
			return 0, false
		}
		return encodeCategory(b, encoderPhoneModel, *tx.LastPhoneModel)
	},
	"last_os_categorical_encoded": func(tx *domain.TransactionFeatures, b *ArtifactBundle) (float64, bool) {
		if tx.LastOS == nil {
			return 0, false
		}
		return encodeCategory(b, encoderOS, *tx.LastOS)
	},
	"monthly_os_changes":           optionalInt(func(tx *domain.TransactionFeatures) *int { return tx.MonthlyOSChanges }),
	"monthly_phone_model_changes":  optionalInt(func(tx *domain.TransactionFeatures) *int { return tx.MonthlyPhoneModelChanges }),
	"logins_last_7_days":           optionalInt(func(tx *domain.TransactionFeatures) *int { return tx.LoginsLast7Days }),
	"logins_last_30_days":          optionalInt(func(tx *domain.TransactionFeatures) *int { return tx.LoginsLast30Days }),
	"login_frequency_7d":           optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.LoginFrequency7d }),
	"login_frequency_30d":          optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.LoginFrequency30d }),
	"freq_change_7d_vs_mean":       optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.FreqChange7dVsMean }),
	"logins_7d_over_30d_ratio":     optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.Logins7dOver30dRatio }),
	"avg_login_interval_30d":       optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.AvgLoginInterval30d }),
	"std_login_interval_30d":       optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.StdLoginInterval30d }),
	"var_login_interval_30d":       optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.VarLoginInterval30d }),
	"ewm_login_interval_7d":        optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.EwmLoginInterval7d }),
	"burstiness_login_interval":    optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.BurstinessLoginInterval }),
	"fano_factor_login_interval":   optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.FanoFactorLoginInterval }),
	"zscore_avg_login_interval_7d": optionalFloat(func(tx *domain.TransactionFeatures) *float64 { return tx.ZScoreAvgLoginInterval7d }),
}

func optionalInt(get func(tx *domain.TransactionFeatures) *int) accessor {
	return func(tx *domain.TransactionFeatures, _ *ArtifactBundle) (float64, bool) {
		v := get(tx)
		if v == nil {
			return 0, false
		}
		return float64(*v), true
	}
}

func optionalFloat(get func(tx *domain.TransactionFeatures) *float64) accessor {
	return func(tx *domain.TransactionFeatures, _ *ArtifactBundle) (float64, bool) {
		v := get(tx)
		if v == nil {
			return 0, false
		}
		return *v, true
	}
}

func encodeCategory(b *ArtifactBundle, encoderName, value string) (float64, bool) {
	enc, ok := b.Encoders[encoderName]
	if !ok {
		return 0, false
	}
	return float64(enc.Transform(value)), true
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// Preparer converts a raw transaction record into the scaled numeric vector
// the classifiers expect, in the exact column order the metadata declares.
type Preparer struct {
	validator *validator.FeatureValidator
}

func NewPreparer() *Preparer {
	return &Preparer{
		validator: validator.NewFeatureValidator(),
	}
}

func (p *Preparer) Prepare(tx *domain.TransactionFeatures, bundle *ArtifactBundle) ([]float64, error) {
	if err := p.validator.ValidateFeatures(tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	raw := make([]float64, len(bundle.Metadata.FeatureNames))
	for i, name := range bundle.Metadata.FeatureNames {
		get, known := featureAccessors[name]
		if !known {
			raw[i] = MissingValueSentinel
			continue
		}
		value, ok := get(tx, bundle)
		if !ok {
			raw[i] = MissingValueSentinel
			continue
		}
		raw[i] = value
	}

	scaled, err := bundle.Scaler.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("scaling failed: %w", err)
	}

	return scaled, nil
}
