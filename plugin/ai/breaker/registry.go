package breaker

import (
	"sort"
	"sync"
)

// Registry hands out one breaker per dependency name.
type Registry struct {
	defaults Config
	opts     []Option

	mu        sync.Mutex
	breakers  map[string]*CircuitBreaker
	listeners []Listener
}

// NewRegistry creates a registry whose breakers use defaults unless Get is given a config.
func NewRegistry(defaults Config, opts ...Option) *Registry {
	return &Registry{
		defaults: defaults,
		opts:     opts,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use.
// A config passed for an existing name is ignored.
func (r *Registry) Get(name string, config ...Config) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg := r.defaults
	if len(config) > 0 {
		cfg = config[0]
	}
	cb := New(name, cfg, r.opts...)
	for _, l := range r.listeners {
		cb.OnStateChange(l)
	}
	r.breakers[name] = cb
	return cb
}

// OnStateChange registers l on every current and future breaker.
func (r *Registry) OnStateChange(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = append(r.listeners, l)
	for _, cb := range r.breakers {
		cb.OnStateChange(l)
	}
}

// ResetAll closes every breaker.
func (r *Registry) ResetAll() {
	for _, cb := range r.snapshot() {
		cb.Reset()
	}
}

// Statuses returns the status of every breaker ordered by name.
func (r *Registry) Statuses() []Status {
	breakers := r.snapshot()
	statuses := make([]Status, 0, len(breakers))
	for _, cb := range breakers {
		statuses = append(statuses, cb.Status())
	}
	return statuses
}

func (r *Registry) snapshot() []*CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	sort.Slice(breakers, func(i, j int) bool { return breakers[i].name < breakers[j].name })
	return breakers
}
