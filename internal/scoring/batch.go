package scoring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fraud_scoring/internal/domain"
)

// BatchItem is one scored entry of a batch, carrying the original input
// index so results always line up with the request order.
type BatchItem struct {
	Index            int                        `json:"index"`
	FraudProbability float64                    `json:"fraud_probability"`
	FraudScore       float64                    `json:"fraud_score"`
	RiskLevel        domain.RiskLevel           `json:"risk_level"`
	ShouldBlock      bool                       `json:"should_block"`
	TopRiskFactors   []domain.AttributionFactor `json:"top_risk_factors"`
}

type BatchResult struct {
	Total               int         `json:"total"`
	Processed           int         `json:"processed"`
	AvgFraudProbability float64     `json:"avg_fraud_probability"`
	BlockedCount        int         `json:"blocked_count"`
	ProcessingTimeMs    float64     `json:"processing_time_ms"`
	Predictions         []BatchItem `json:"predictions"`
}

// BatchCoordinator scores many transactions, isolating per-item failure: a
// failing item becomes the worst-case CRITICAL/blocked result and the batch
// continues. Items run in parallel but share no mutable state; each result
// lands at its input index.
type BatchCoordinator struct {
	engine     *Engine
	thresholds *ThresholdManager
	maxWorkers int
	logger     *slog.Logger
}

func NewBatchCoordinator(engine *Engine, thresholds *ThresholdManager, maxWorkers int, logger *slog.Logger) *BatchCoordinator {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchCoordinator{
		engine:     engine,
		thresholds: thresholds,
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

func (c *BatchCoordinator) ScoreBatch(ctx context.Context, transactions []domain.TransactionFeatures) *BatchResult {
	start := time.Now()
	threshold := c.thresholds.Get()

	items := make([]BatchItem, len(transactions))
	pool := make(chan struct{}, c.maxWorkers)
	var wg sync.WaitGroup

	for i := range transactions {
		wg.Add(1)
		pool <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-pool }()
			items[idx] = c.scoreItem(ctx, &transactions[idx], idx, threshold)
		}(i)
	}
	wg.Wait()

	var totalProbability float64
	blocked := 0
	for _, item := range items {
		totalProbability += item.FraudProbability
		if item.ShouldBlock {
			blocked++
		}
	}

	avg := 0.0
	if len(items) > 0 {
		avg = totalProbability / float64(len(items))
	}

	return &BatchResult{
		Total:               len(transactions),
		Processed:           len(items),
		AvgFraudProbability: avg,
		BlockedCount:        blocked,
		ProcessingTimeMs:    float64(time.Since(start).Microseconds()) / 1000.0,
		Predictions:         items,
	}
}

func (c *BatchCoordinator) scoreItem(ctx context.Context, tx *domain.TransactionFeatures, idx int, threshold float64) BatchItem {
	prediction, err := c.engine.Predict(ctx, tx)
	if err != nil {
		c.logger.Error("Batch item scoring failed, substituting worst case",
			slog.Int("index", idx),
			slog.String("error", err.Error()))
		return WorstCaseItem(idx)
	}

	level, shouldBlock := Classify(prediction.FraudProbability, threshold)

	return BatchItem{
		Index:            idx,
		FraudProbability: prediction.FraudProbability,
		FraudScore:       prediction.FraudProbability * 100,
		RiskLevel:        level,
		ShouldBlock:      shouldBlock,
		TopRiskFactors:   TopFactors(prediction.Attribution, prediction.FeatureNames, TopFactorsBatch),
	}
}

// WorstCaseItem is the fail-closed substitute for an item that could not be
// scored: certain fraud, CRITICAL, blocked.
func WorstCaseItem(idx int) BatchItem {
	return BatchItem{
		Index:            idx,
		FraudProbability: 1.0,
		FraudScore:       100.0,
		RiskLevel:        domain.RiskCritical,
		ShouldBlock:      true,
		TopRiskFactors: []domain.AttributionFactor{
			{Feature: "error", Impact: 1.0, Direction: "increases"},
		},
	}
}
