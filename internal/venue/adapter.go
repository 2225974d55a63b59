package venue

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"quoteflow/internal/model"
)

// Adapter is the minimal contract a venue connector must satisfy. All
// methods honour context cancellation and wrap failures in one of the
// package error kinds. Callers must check the relevant capability flag
// before invoking an operation the venue may not support.
type Adapter interface {
	Name() string
	GetBestBidAsk(ctx context.Context, pair model.Pair) (model.Quote, error)
	GetOrderBook(ctx context.Context, pair model.Pair, depth int) (model.OrderBook, error)
	GetFundingSnapshot(ctx context.Context, pair model.Pair) (model.FundingSnapshot, error)
}

// Registry maps venue ids to adapter instances. Adapters are registered
// explicitly during startup wiring; the registry is read-only afterwards.
type Registry struct {
	caps     CapabilitySet
	adapters map[string]Adapter
}

// NewRegistry creates a registry backed by the given capability table.
func NewRegistry(caps CapabilitySet) *Registry {
	return &Registry{
		caps:     caps,
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter under its name. Registering a venue without a
// capability record is a wiring error.
func (r *Registry) Register(a Adapter) error {
	name := strings.ToLower(a.Name())
	if _, ok := r.caps[name]; !ok {
		return fmt.Errorf("no capability record for venue %q", name)
	}
	if _, ok := r.adapters[name]; ok {
		return fmt.Errorf("venue %q already registered", name)
	}
	r.adapters[name] = a
	return nil
}

// Get returns the adapter for a venue id.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown venue %q, known: %s", name, strings.Join(r.Venues(), ", "))
	}
	return a, nil
}

// Capabilities exposes the registry's capability table.
func (r *Registry) Capabilities() CapabilitySet {
	return r.caps
}

// Venues returns the sorted ids of all registered adapters.
func (r *Registry) Venues() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
