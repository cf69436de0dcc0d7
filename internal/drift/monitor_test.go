package drift

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"fraud_scoring/internal/domain"
	"fraud_scoring/internal/repository"
)

type fakeBaselineStore struct {
	saved   map[string]domain.BaselineStats
	loadErr error
	saveErr error
}

func (s *fakeBaselineStore) SaveBaseline(ctx context.Context, stats map[string]domain.BaselineStats) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = stats
	return nil
}

func (s *fakeBaselineStore) LoadBaseline(ctx context.Context) (map[string]domain.BaselineStats, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.saved == nil {
		return nil, fmt.Errorf("%w: baseline", repository.ErrNotFound)
	}
	return s.saved, nil
}

var _ repository.BaselineStore = (*fakeBaselineStore)(nil)

func sampleTransactions(n int, amount float64) []domain.TransactionFeatures {
	transactions := make([]domain.TransactionFeatures, n)
	for i := range transactions {
		transactions[i] = domain.TransactionFeatures{
			Amount:    amount,
			Hour:      12,
			DayOfWeek: 3,
			Direction: "outgoing",
		}
	}
	return transactions
}

func TestMonitor_SetBaseline_RequiresMinimumSamples(t *testing.T) {
	m := NewMonitor(&fakeBaselineStore{}, nil)

	_, err := m.SetBaseline(context.Background(), sampleTransactions(9, 100))
	if !errors.Is(err, ErrInsufficientBaselineSamples) {
		t.Errorf("expected ErrInsufficientBaselineSamples, got %v", err)
	}
}

func TestMonitor_SetBaseline_PersistsAndTracks(t *testing.T) {
	store := &fakeBaselineStore{}
	m := NewMonitor(store, nil)

	tracked, err := m.SetBaseline(context.Background(), sampleTransactions(10, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only the always-present features: optional fields were all nil.
	want := []string{"amount", "day_of_week", "hour"}
	if len(tracked) != len(want) {
		t.Fatalf("expected %v, got %v", want, tracked)
	}
	for i := range want {
		if tracked[i] != want[i] {
			t.Errorf("expected %v, got %v", want, tracked)
			break
		}
	}

	stats, ok := store.saved["amount"]
	if !ok {
		t.Fatal("expected amount baseline persisted")
	}
	if stats.Mean != 100 || stats.Count != 10 {
		t.Errorf("expected mean=100 count=10, got %+v", stats)
	}
}

func TestMonitor_SetBaseline_PersistFailure(t *testing.T) {
	m := NewMonitor(&fakeBaselineStore{saveErr: errors.New("redis down")}, nil)

	if _, err := m.SetBaseline(context.Background(), sampleTransactions(10, 100)); err == nil {
		t.Fatal("expected error, got nil")
	}

	// The failed snapshot must not be resident either.
	_, err := m.CheckDrift(context.Background(), sampleTransactions(5, 100))
	if !errors.Is(err, ErrNoBaseline) {
		t.Errorf("expected ErrNoBaseline after failed persist, got %v", err)
	}
}

func TestMonitor_CheckDrift_NoBaseline(t *testing.T) {
	m := NewMonitor(&fakeBaselineStore{}, nil)

	_, err := m.CheckDrift(context.Background(), sampleTransactions(5, 100))
	if !errors.Is(err, ErrNoBaseline) {
		t.Errorf("expected ErrNoBaseline, got %v", err)
	}
}

func TestMonitor_CheckDrift_RequiresMinimumSamples(t *testing.T) {
	m := NewMonitor(&fakeBaselineStore{}, nil)
	if _, err := m.SetBaseline(context.Background(), sampleTransactions(10, 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := m.CheckDrift(context.Background(), sampleTransactions(4, 100))
	if !errors.Is(err, ErrInsufficientDriftSamples) {
		t.Errorf("expected ErrInsufficientDriftSamples, got %v", err)
	}
}

func TestMonitor_CheckDrift_SmallShiftNotFlagged(t *testing.T) {
	store := &fakeBaselineStore{
		saved: map[string]domain.BaselineStats{
			"amount": {Mean: 50000, Std: 5000, Min: 30000, Max: 70000, Count: 100},
		},
	}
	m := NewMonitor(store, nil)

	report, err := m.CheckDrift(context.Background(), sampleTransactions(5, 52000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// |52000-50000|/5000 = 0.4, capped score 0.4/5 = 0.08.
	if math.Abs(report.DriftScore-0.08) > 1e-9 {
		t.Errorf("expected drift score 0.08, got %v", report.DriftScore)
	}
	if report.DriftDetected {
		t.Error("expected no drift detected")
	}
	if len(report.FeaturesWithDrift) != 0 {
		t.Errorf("expected no drifting features, got %v", report.FeaturesWithDrift)
	}
	if !strings.HasPrefix(report.Recommendation, "OK:") {
		t.Errorf("expected OK recommendation, got %q", report.Recommendation)
	}
}

func TestMonitor_CheckDrift_LargeShiftDetected(t *testing.T) {
	store := &fakeBaselineStore{
		saved: map[string]domain.BaselineStats{
			"amount": {Mean: 1000, Std: 100, Min: 500, Max: 1500, Count: 100},
		},
	}
	m := NewMonitor(store, nil)

	// |9000-1000|/100 = 80, capped at 5 → score 1.0.
	report, err := m.CheckDrift(context.Background(), sampleTransactions(5, 9000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.DriftDetected {
		t.Fatal("expected drift detected")
	}
	if report.DriftScore != 1.0 {
		t.Errorf("expected drift score 1.0, got %v", report.DriftScore)
	}
	if len(report.FeaturesWithDrift) != 1 || report.FeaturesWithDrift[0].Feature != "amount" {
		t.Errorf("expected amount drifting, got %v", report.FeaturesWithDrift)
	}
	if !strings.HasPrefix(report.Recommendation, "CRITICAL:") {
		t.Errorf("expected CRITICAL recommendation, got %q", report.Recommendation)
	}
}

func TestMonitor_CheckDrift_ZeroStdFallsBackToMean(t *testing.T) {
	store := &fakeBaselineStore{
		saved: map[string]domain.BaselineStats{
			"amount": {Mean: 100, Std: 0, Min: 100, Max: 100, Count: 10},
		},
	}
	m := NewMonitor(store, nil)

	// |150-100|/(100+eps) = 0.5, score 0.5/5 = 0.1.
	report, err := m.CheckDrift(context.Background(), sampleTransactions(5, 150))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(report.DriftScore-0.1) > 1e-6 {
		t.Errorf("expected drift score 0.1, got %v", report.DriftScore)
	}
}

func TestMonitor_CheckDrift_TwoDriftingFeaturesDetect(t *testing.T) {
	store := &fakeBaselineStore{
		saved: map[string]domain.BaselineStats{
			"amount": {Mean: 100, Std: 10, Count: 50},
			"hour":   {Mean: 2, Std: 1, Count: 50},
		},
	}
	m := NewMonitor(store, nil)

	// amount: |300-100|/10 = 20 → score 1.0; hour: |12-2|/1 = 10 → score 1.0.
	report, err := m.CheckDrift(context.Background(), sampleTransactions(5, 300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.DriftDetected {
		t.Fatal("expected drift detected")
	}
	if len(report.FeaturesWithDrift) != 2 {
		t.Errorf("expected 2 drifting features, got %d", len(report.FeaturesWithDrift))
	}
}

func TestMonitor_CheckDrift_LoadsPersistedBaseline(t *testing.T) {
	store := &fakeBaselineStore{}
	first := NewMonitor(store, nil)
	if _, err := first.SetBaseline(context.Background(), sampleTransactions(10, 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A fresh monitor sharing the store picks the snapshot up lazily.
	second := NewMonitor(store, nil)
	report, err := second.CheckDrift(context.Background(), sampleTransactions(5, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.DriftDetected {
		t.Error("expected no drift against identical distribution")
	}
	if report.DriftScore != 0 {
		t.Errorf("expected zero drift score, got %v", report.DriftScore)
	}
}

func TestRecommendation_Tiers(t *testing.T) {
	if got := recommendation(false, 0.9); !strings.HasPrefix(got, "OK:") {
		t.Errorf("expected OK, got %q", got)
	}
	if got := recommendation(true, 0.4); !strings.HasPrefix(got, "WARNING:") {
		t.Errorf("expected WARNING, got %q", got)
	}
	if got := recommendation(true, 0.7); !strings.HasPrefix(got, "CRITICAL:") {
		t.Errorf("expected CRITICAL, got %q", got)
	}
}
