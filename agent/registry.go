package agent

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/secboard/core"
)

var (
	// ErrAgentNotFound is returned when resolving an unregistered agent name.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrDuplicateAgent is returned when registering a name twice.
	ErrDuplicateAgent = errors.New("agent already registered")
)

// Registry holds the agents available to pipelines. It is populated once at
// startup and is safe for concurrent reads afterwards.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]core.Agent
}

// NewRegistry creates a registry pre-populated with agents.
func NewRegistry(agents ...core.Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]core.Agent, len(agents))}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an agent under its Name.
func (r *Registry) Register(a core.Agent) error {
	if a == nil {
		return errors.New("agent must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.Name())
	}
	r.agents[a.Name()] = a

	return nil
}

// Get resolves an agent by name.
func (r *Registry) Get(name string) (core.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}

	return a, nil
}

// Names returns the sorted names of all registered agents.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
