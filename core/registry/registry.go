// Package registry holds the liquids known to the doser. A single Registry is
// built at startup and handed to the controller and the panel.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/doser/core/model"
)

// ErrNotFound is returned for an index outside the registry.
var ErrNotFound = errors.New("liquid not found")

// Registry is an append-only, indexed collection of liquids.
type Registry struct {
	mu      sync.RWMutex
	liquids []model.Liquid
}

// New returns an empty registry.
func New() *Registry { return &Registry{} }

// Add validates and appends a liquid, returning its index.
func (r *Registry) Add(l model.Liquid) (int, error) {
	if err := l.Validate(); err != nil {
		return -1, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.liquids {
		if existing.Name == l.Name {
			return -1, fmt.Errorf("liquid %s already registered", l.Name)
		}
	}
	l.Samples = nil
	r.liquids = append(r.liquids, l)
	return len(r.liquids) - 1, nil
}

// Count returns the number of registered liquids.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.liquids)
}

// Get returns a copy of the liquid at index. The sample slice is copied too.
func (r *Registry) Get(index int) (model.Liquid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.liquids) {
		return model.Liquid{}, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	l := r.liquids[index]
	l.Samples = append([]model.DataPoint(nil), l.Samples...)
	return l, nil
}

// Index looks a liquid up by name.
func (r *Registry) Index(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, l := range r.liquids {
		if l.Name == name {
			return i, true
		}
	}
	return -1, false
}

// List returns copies of all liquids in registration order.
func (r *Registry) List() []model.Liquid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Liquid, len(r.liquids))
	for i, l := range r.liquids {
		l.Samples = append([]model.DataPoint(nil), l.Samples...)
		out[i] = l
	}
	return out
}

// UpdateTarget sets the target amount in place. Negative amounts are clamped to 0.
func (r *Registry) UpdateTarget(index int, grams float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.liquids) {
		return fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	if grams < 0 {
		grams = 0
	}
	r.liquids[index].TargetAmount = grams
	return nil
}

// ResetSamples replaces the trace of a liquid with a single starting point.
func (r *Registry) ResetSamples(index int, first model.DataPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.liquids) {
		return fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	r.liquids[index].Samples = []model.DataPoint{first}
	return nil
}

// AppendSample adds a point to the trace of a liquid. A point older than the
// last one is stamped with the last timestamp so the trace stays ordered.
func (r *Registry) AppendSample(index int, dp model.DataPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.liquids) {
		return fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	s := r.liquids[index].Samples
	if n := len(s); n > 0 && dp.Timestamp.Before(s[n-1].Timestamp) {
		dp.Timestamp = s[n-1].Timestamp
	}
	r.liquids[index].Samples = append(s, dp)
	return nil
}
