package kpi

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Registry holds the KPI definitions known to the service. Definitions are
// immutable once registered and may be shared between loaders.
type Registry struct {
	mu    sync.RWMutex
	kpis  map[string]*KPI
	order []string
}

func NewRegistry() *Registry {
	return &Registry{kpis: make(map[string]*KPI)}
}

// LoadRegistryFile reads a JSON array of KPI definitions.
func LoadRegistryFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open KPI definitions: %w", err)
	}
	defer f.Close()
	return LoadRegistry(f)
}

func LoadRegistry(r io.Reader) (*Registry, error) {
	var defs []*KPI
	if err := json.NewDecoder(r).Decode(&defs); err != nil {
		return nil, fmt.Errorf("failed to decode KPI definitions: %w", err)
	}

	reg := NewRegistry()
	for _, k := range defs {
		if err := reg.Register(k); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) Register(k *KPI) error {
	if err := k.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kpis[k.ID]; exists {
		return &ConfigurationError{KPIID: k.ID, Reason: "duplicate KPI id"}
	}
	r.kpis[k.ID] = k
	r.order = append(r.order, k.ID)
	return nil
}

func (r *Registry) Get(id string) (*KPI, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kpis[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKPINotFound, id)
	}
	return k, nil
}

// List returns the definitions in registration order.
func (r *Registry) List() []*KPI {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*KPI, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.kpis[id])
	}
	return out
}
