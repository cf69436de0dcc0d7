package domain

import (
	"time"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// TransactionFeatures is the raw input record for scoring. The behavioral
// fields are optional; nil means "never observed" and is encoded with the
// missing-value sentinel, never with zero.
type TransactionFeatures struct {
	Amount    float64 `json:"amount"`
	Hour      int     `json:"hour"`
	DayOfWeek int     `json:"day_of_week"`
	Direction string  `json:"direction"`

	MonthlyOSChanges         *int     `json:"monthly_os_changes,omitempty"`
	MonthlyPhoneModelChanges *int     `json:"monthly_phone_model_changes,omitempty"`
	LastPhoneModel           *string  `json:"last_phone_model,omitempty"`
	LastOS                   *string  `json:"last_os,omitempty"`
	LoginsLast7Days          *int     `json:"logins_last_7_days,omitempty"`
	LoginsLast30Days         *int     `json:"logins_last_30_days,omitempty"`
	LoginFrequency7d         *float64 `json:"login_frequency_7d,omitempty"`
	LoginFrequency30d        *float64 `json:"login_frequency_30d,omitempty"`
	FreqChange7dVsMean       *float64 `json:"freq_change_7d_vs_mean,omitempty"`
	Logins7dOver30dRatio     *float64 `json:"logins_7d_over_30d_ratio,omitempty"`
	AvgLoginInterval30d      *float64 `json:"avg_login_interval_30d,omitempty"`
	StdLoginInterval30d      *float64 `json:"std_login_interval_30d,omitempty"`
	VarLoginInterval30d      *float64 `json:"var_login_interval_30d,omitempty"`
	EwmLoginInterval7d       *float64 `json:"ewm_login_interval_7d,omitempty"`
	BurstinessLoginInterval  *float64 `json:"burstiness_login_interval,omitempty"`
	FanoFactorLoginInterval  *float64 `json:"fano_factor_login_interval,omitempty"`
	ZScoreAvgLoginInterval7d *float64 `json:"zscore_avg_login_interval_7d,omitempty"`
}

// AttributionFactor is one entry of the ranked per-feature explanation.
type AttributionFactor struct {
	Feature   string  `json:"feature"`
	Impact    float64 `json:"impact"`
	Direction string  `json:"direction"`
}

// ScoringResult is the outcome of scoring a single transaction.
type ScoringResult struct {
	FraudProbability float64             `json:"fraud_probability"`
	FraudScore       float64             `json:"fraud_score"`
	RiskLevel        RiskLevel           `json:"risk_level"`
	ShouldBlock      bool                `json:"should_block"`
	ModelVersion     string              `json:"model_version"`
	Attribution      map[string]float64  `json:"shap_values,omitempty"`
	TopRiskFactors   []AttributionFactor `json:"top_risk_factors"`
}

// BaselineStats holds the persisted per-feature statistics used for drift
// detection. Snapshots are replaced wholesale, never merged.
type BaselineStats struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

type FeatureDrift struct {
	Feature       string  `json:"feature"`
	DriftScore    float64 `json:"drift_score"`
	BaselineMean  float64 `json:"baseline_mean"`
	CurrentMean   float64 `json:"current_mean"`
	ChangePercent float64 `json:"change_percent"`
}

type DriftReport struct {
	DriftDetected     bool           `json:"drift_detected"`
	DriftScore        float64        `json:"drift_score"`
	FeaturesWithDrift []FeatureDrift `json:"features_with_drift"`
	Recommendation    string         `json:"recommendation"`
	CheckedAt         time.Time      `json:"checked_at"`
}

// ScoredTransaction correlates an inbound stream message with its scoring
// outcome, for publication on the scored-transactions topic.
type ScoredTransaction struct {
	TransactionID    string              `json:"transaction_id"`
	CustomerID       string              `json:"cst_dim_id"`
	Amount           float64             `json:"amount"`
	FraudProbability float64             `json:"fraud_probability"`
	FraudScore       float64             `json:"fraud_score"`
	RiskLevel        RiskLevel           `json:"risk_level"`
	ShouldBlock      bool                `json:"should_block"`
	TopRiskFactors   []AttributionFactor `json:"top_risk_factors"`
	ProcessedAt      time.Time           `json:"processed_at"`
	ProcessingTimeMs float64             `json:"processing_time_ms"`
}

// FraudAlert is published for HIGH and CRITICAL scored transactions.
type FraudAlert struct {
	AlertID        string              `json:"alert_id"`
	TransactionID  string              `json:"transaction_id"`
	CustomerID     string              `json:"customer_id"`
	Amount         float64             `json:"amount"`
	FraudScore     float64             `json:"fraud_score"`
	RiskLevel      RiskLevel           `json:"risk_level"`
	TopFactors     []AttributionFactor `json:"top_factors"`
	Action         string              `json:"action"`
	Timestamp      time.Time           `json:"timestamp"`
	RequiresReview bool                `json:"requires_review"`
}

// StreamMetrics is the periodic aggregate emitted by the stream processor.
type StreamMetrics struct {
	Timestamp      time.Time `json:"timestamp"`
	ProcessedCount int64     `json:"processed_count"`
	BlockedCount   int64     `json:"blocked_count"`
	ErrorCount     int64     `json:"error_count"`
	BlockRate      float64   `json:"block_rate"`
}
