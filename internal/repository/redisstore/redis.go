package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"fraud_scoring/internal/domain"
	"fraud_scoring/internal/repository"
)

var (
	_ repository.ThresholdStore = (*Store)(nil)
	_ repository.BaselineStore  = (*Store)(nil)
)

const (
	thresholdKey = "fraud:threshold"
	baselineKey  = "fraud:baseline_stats"
)

// Store keeps threshold and baseline snapshots in Redis, for deployments
// where several scorer replicas share one persisted state. A single SET
// per document gives the required write-or-unchanged semantics.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) SaveThreshold(ctx context.Context, threshold float64) error {
	value := strconv.FormatFloat(threshold, 'f', -1, 64)
	if err := s.client.Set(ctx, thresholdKey, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", thresholdKey, err)
	}
	return nil
}

func (s *Store) LoadThreshold(ctx context.Context) (float64, error) {
	value, err := s.client.Get(ctx, thresholdKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %s", repository.ErrNotFound, thresholdKey)
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s failed: %w", thresholdKey, err)
	}

	threshold, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt threshold value %q: %w", value, err)
	}
	return threshold, nil
}

func (s *Store) SaveBaseline(ctx context.Context, stats map[string]domain.BaselineStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}
	if err := s.client.Set(ctx, baselineKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", baselineKey, err)
	}
	return nil
}

func (s *Store) LoadBaseline(ctx context.Context) (map[string]domain.BaselineStats, error) {
	data, err := s.client.Get(ctx, baselineKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, baselineKey)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s failed: %w", baselineKey, err)
	}

	stats := make(map[string]domain.BaselineStats)
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("corrupt baseline document: %w", err)
	}
	return stats, nil
}
