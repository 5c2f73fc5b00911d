package device

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the grill catalogue in discovery order, backed by a
// Repository. The repository is optional; without one the registry is
// memory only.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	grills  []Grill
	bySN    map[string]int
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates an empty registry. repo may be nil.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		bySN:   make(map[string]int),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Replace validates grills, stores them and makes them the catalogue.
// Invalid grills are skipped with a warning. Persistence failures are
// returned after the in-memory catalogue has been updated.
func (r *Registry) Replace(ctx context.Context, grills []Grill) error {
	valid := make([]Grill, 0, len(grills))
	seen := make(map[string]bool, len(grills))
	for _, g := range grills {
		if err := g.Validate(); err != nil {
			r.logger.Warn("skipping grill", "serial", g.Serial, "error", err)
			continue
		}
		if seen[g.Serial] {
			continue
		}
		seen[g.Serial] = true
		valid = append(valid, g)
	}

	r.set(valid)
	r.logger.Info("grill catalogue updated", "count", len(valid))

	if r.repo == nil {
		return nil
	}
	if err := r.repo.ReplaceAll(ctx, valid); err != nil {
		return fmt.Errorf("persisting grills: %w", err)
	}
	return nil
}

// Load replaces the catalogue with the grills stored in the repository.
// Used when discovery is unavailable.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	grills, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading grills: %w", err)
	}
	r.set(grills)
	r.logger.Info("grill catalogue loaded from store", "count", len(grills))
	return nil
}

// Get returns the grill with the given serial.
func (r *Registry) Get(serial string) (Grill, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	i, ok := r.bySN[serial]
	if !ok {
		return Grill{}, fmt.Errorf("%w: %s", ErrGrillNotFound, serial)
	}
	return r.grills[i], nil
}

// List returns a copy of the catalogue in discovery order.
func (r *Registry) List() []Grill {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	out := make([]Grill, len(r.grills))
	copy(out, r.grills)
	return out
}

// Count returns the number of grills.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.grills)
}

func (r *Registry) set(grills []Grill) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.grills = make([]Grill, len(grills))
	copy(r.grills, grills)
	r.bySN = make(map[string]int, len(grills))
	for i, g := range r.grills {
		r.bySN[g.Serial] = i
	}
}
