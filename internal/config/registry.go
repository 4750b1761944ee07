package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voicebridge/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by [AgentRegistry.Create] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// AgentRegistry maps agent back-end provider names (e.g. "openai") to
// constructor functions. It is safe for concurrent use.
type AgentRegistry struct {
	mu       sync.RWMutex
	backends map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewAgentRegistry returns an empty, ready-to-use [AgentRegistry].
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{backends: make(map[string]func(ProviderEntry) (llm.Provider, error))}
}

// Register registers a back-end factory under name. Subsequent calls with
// the same name overwrite the previous registration.
func (r *AgentRegistry) Register(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// Create instantiates an agent back-end using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory was registered
// for that name.
func (r *AgentRegistry) Create(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.backends[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
