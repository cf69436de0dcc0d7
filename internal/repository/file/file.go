package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fraud_scoring/internal/domain"
	"fraud_scoring/internal/repository"
)

var (
	_ repository.ThresholdStore = (*Store)(nil)
	_ repository.BaselineStore  = (*Store)(nil)
)

const (
	thresholdFile = "threshold.json"
	baselineFile  = "baseline_stats.json"
)

type thresholdDocument struct {
	Threshold float64 `json:"threshold"`
}

// Store persists threshold and baseline snapshots as JSON documents in the
// model directory. Writes go through a temp file plus rename, so a crash
// mid-write leaves the previous document intact.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) SaveThreshold(ctx context.Context, threshold float64) error {
	return s.write(thresholdFile, thresholdDocument{Threshold: threshold})
}

func (s *Store) LoadThreshold(ctx context.Context) (float64, error) {
	var doc thresholdDocument
	if err := s.read(thresholdFile, &doc); err != nil {
		return 0, err
	}
	return doc.Threshold, nil
}

func (s *Store) SaveBaseline(ctx context.Context, stats map[string]domain.BaselineStats) error {
	return s.write(baselineFile, stats)
}

func (s *Store) LoadBaseline(ctx context.Context) (map[string]domain.BaselineStats, error) {
	stats := make(map[string]domain.BaselineStats)
	if err := s.read(baselineFile, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) write(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (s *Store) read(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", repository.ErrNotFound, name)
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}
