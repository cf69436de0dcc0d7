package model

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Registry holds the active artifact bundle. Scoring reads the bundle
// through an atomic pointer, so in-flight calls keep the bundle they
// started with while Reload swaps in a validated replacement. Reloads are
// mutually exclusive with each other but never block readers.
type Registry struct {
	dir      string
	bundle   atomic.Pointer[ArtifactBundle]
	reloadMu sync.Mutex
	logger   *slog.Logger
}

func NewRegistry(dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dir:    dir,
		logger: logger,
	}
}

// Bundle returns the active bundle, or ErrModelUnavailable when no bundle
// has been loaded yet.
func (r *Registry) Bundle() (*ArtifactBundle, error) {
	b := r.bundle.Load()
	if b == nil {
		return nil, ErrModelUnavailable
	}
	return b, nil
}

func (r *Registry) Loaded() bool {
	return r.bundle.Load() != nil
}

// Reload reads the bundle from the model directory and swaps it in. The old
// bundle stays active until the new one has fully validated.
func (r *Registry) Reload() error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	bundle, err := LoadBundle(r.dir)
	if err != nil {
		return err
	}

	r.bundle.Store(bundle)
	r.logger.Info("Model bundle loaded",
		slog.String("version", bundle.Metadata.Version),
		slog.Int("features", len(bundle.Metadata.FeatureNames)))
	return nil
}

// Dir returns the model directory the registry loads from.
func (r *Registry) Dir() string {
	return r.dir
}
