package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownAddress is returned for addresses that were never opened.
var ErrUnknownAddress = errors.New("unknown index address")

// Opener creates the engine serving an address.
type Opener func(ctx context.Context, address string) (Engine, error)

// Registry holds one engine per index address. It is built once at startup
// and shared by every indexing run.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// OpenAll opens every distinct address with open. Engines opened before a
// failure are closed again.
func OpenAll(ctx context.Context, addresses []string, open Opener) (*Registry, error) {
	r := NewRegistry()
	for _, addr := range addresses {
		if _, err := r.Get(addr); err == nil {
			continue
		}
		e, err := open(ctx, addr)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("open index %s: %w", addr, err)
		}
		r.Register(addr, e)
	}
	return r, nil
}

// Register adds or replaces the engine for address.
func (r *Registry) Register(address string, e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[address] = e
}

// Get returns the engine for address.
func (r *Registry) Get(address string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, address)
	}
	return e, nil
}

// Addresses returns the registered addresses in sorted order.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for addr := range r.engines {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Ping checks every registered engine.
func (r *Registry) Ping(ctx context.Context) error {
	var errs []error
	for _, addr := range r.Addresses() {
		e, err := r.Get(addr)
		if err != nil {
			continue
		}
		if err := e.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every engine and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for addr, e := range r.engines {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		}
	}
	r.engines = make(map[string]Engine)
	return errors.Join(errs...)
}
