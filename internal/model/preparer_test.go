package model

import (
	"errors"
	"math"
	"testing"
	"time"

	"fraud_scoring/internal/domain"
)

var testFeatureNames = []string{
	"amount",
	"amount_log",
	"hour",
	"day_of_week",
	"is_weekend",
	"is_night",
	"is_business_hours",
	"direction_encoded",
	"logins_last_7_days",
	"mystery_feature",
}

func newTestBundle(t *testing.T) *ArtifactBundle {
	t.Helper()

	n := len(testFeatureNames)
	primary := &Classifier{Name: "primary", Weights: make([]float64, n)}
	secondary := &Classifier{Name: "secondary", Weights: make([]float64, n)}

	scaler := &StandardScaler{Mean: make([]float64, n), Scale: make([]float64, n)}
	for i := range scaler.Scale {
		scaler.Scale[i] = 1
	}

	direction := &LabelEncoder{Classes: []string{"incoming", "outgoing"}}
	direction.buildIndex()

	explainer, err := NewExplainer(testFeatureNames, primary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return &ArtifactBundle{
		Primary:   primary,
		Secondary: secondary,
		Scaler:    scaler,
		Encoders:  map[string]*LabelEncoder{"direction": direction},
		Explainer: explainer,
		Metadata: &ModelMetadata{
			Version:          "test-1",
			ModelType:        "ensemble",
			OptimalThreshold: 0.5,
			CreatedAt:        time.Now(),
			FeatureNames:     testFeatureNames,
		},
	}
}

func TestPreparer_Prepare_FillsDeclaredOrder(t *testing.T) {
	bundle := newTestBundle(t)
	p := NewPreparer()

	tx := &domain.TransactionFeatures{
		Amount:    1000,
		Hour:      23,
		DayOfWeek: 6,
		Direction: "outgoing",
	}

	vector, err := p.Prepare(tx, bundle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vector) != len(testFeatureNames) {
		t.Fatalf("expected %d features, got %d", len(testFeatureNames), len(vector))
	}

	want := []float64{
		1000,                 // amount
		math.Log1p(1000),     // amount_log
		23,                   // hour
		6,                    // day_of_week
		1,                    // is_weekend: day 6
		1,                    // is_night: hour 23
		0,                    // is_business_hours
		1,                    // direction_encoded: "outgoing"
		MissingValueSentinel, // logins_last_7_days absent
		MissingValueSentinel, // mystery_feature has no accessor
	}
	for i, w := range want {
		if vector[i] != w {
			t.Errorf("feature %s: expected %v, got %v", testFeatureNames[i], w, vector[i])
		}
	}
}

func TestPreparer_Prepare_UnseenCategoryGetsCode(t *testing.T) {
	bundle := newTestBundle(t)
	p := NewPreparer()

	tx := &domain.TransactionFeatures{Amount: 100, Hour: 12, DayOfWeek: 1, Direction: "sideways"}

	vector, err := p.Prepare(tx, bundle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vector[7] != UnseenCategoryCode {
		t.Errorf("expected unseen category code %d, got %v", UnseenCategoryCode, vector[7])
	}
}

func TestPreparer_Prepare_OptionalFieldPresent(t *testing.T) {
	bundle := newTestBundle(t)
	p := NewPreparer()

	logins := 14
	tx := &domain.TransactionFeatures{
		Amount: 100, Hour: 10, DayOfWeek: 2, Direction: "incoming",
		LoginsLast7Days: &logins,
	}

	vector, err := p.Prepare(tx, bundle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vector[8] != 14 {
		t.Errorf("expected 14, got %v", vector[8])
	}
	if vector[6] != 1 {
		t.Errorf("expected is_business_hours=1 at hour 10, got %v", vector[6])
	}
}

func TestPreparer_Prepare_ValidationFailure(t *testing.T) {
	bundle := newTestBundle(t)
	p := NewPreparer()

	tx := &domain.TransactionFeatures{Amount: 100, Hour: 25, DayOfWeek: 2, Direction: "incoming"}

	_, err := p.Prepare(tx, bundle)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestPreparer_Prepare_AppliesScaling(t *testing.T) {
	bundle := newTestBundle(t)
	bundle.Scaler.Mean[0] = 500
	bundle.Scaler.Scale[0] = 250

	p := NewPreparer()
	tx := &domain.TransactionFeatures{Amount: 1000, Hour: 12, DayOfWeek: 3, Direction: "incoming"}

	vector, err := p.Prepare(tx, bundle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vector[0] != 2 {
		t.Errorf("expected scaled amount (1000-500)/250=2, got %v", vector[0])
	}
}

func TestLabelEncoder_Transform(t *testing.T) {
	enc := &LabelEncoder{Classes: []string{"android", "ios"}}
	enc.buildIndex()

	if got := enc.Transform("ios"); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := enc.Transform("harmony"); got != UnseenCategoryCode {
		t.Errorf("expected %d for unseen class, got %d", UnseenCategoryCode, got)
	}
}

func TestClassifier_PredictProba(t *testing.T) {
	c := &Classifier{Name: "primary", Bias: 0, Weights: []float64{0, 0}}

	p, err := c.PredictProba([]float64{1, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 0.5 {
		t.Errorf("expected 0.5 at zero logit, got %v", p)
	}

	if _, err := c.PredictProba([]float64{1}); err == nil {
		t.Error("expected error on vector length mismatch")
	}
}

func TestExplainer_Explain(t *testing.T) {
	primary := &Classifier{Name: "primary", Weights: []float64{0.5, -2}}
	e, err := NewExplainer([]string{"a", "b"}, primary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	attribution, err := e.Explain([]float64{4, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attribution["a"] != 2 {
		t.Errorf("expected a=2, got %v", attribution["a"])
	}
	if attribution["b"] != -2 {
		t.Errorf("expected b=-2, got %v", attribution["b"])
	}
}
