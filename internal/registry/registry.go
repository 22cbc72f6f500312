// Package registry holds the agents and chains of one deployment and resolves
// which chain drives a given intent.
package registry

import (
	"slices"
	"sync"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Registry is an ordered, concurrency-safe set of agents and chains.
// Registration order is preserved and drives chain resolution.
type Registry struct {
	mu     sync.RWMutex
	agents []domain.Agent
	chains []domain.Chain
}

// New creates a registry seeded with agents and chains.
func New(agents []domain.Agent, chains []domain.Chain) *Registry {
	r := &Registry{}
	r.Replace(agents, chains)
	return r
}

// Replace swaps the registry contents in one step.
func (r *Registry) Replace(agents []domain.Agent, chains []domain.Chain) {
	a := slices.Clone(agents)
	c := slices.Clone(chains)
	r.mu.Lock()
	r.agents, r.chains = a, c
	r.mu.Unlock()
}

// RegisterAgent adds an agent, replacing any agent with the same intent in place.
func (r *Registry) RegisterAgent(agent domain.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.agents {
		if r.agents[i].Intent == agent.Intent {
			r.agents[i] = agent
			return
		}
	}
	r.agents = append(r.agents, agent)
}

// RegisterChain adds a chain, replacing any chain with the same id in place.
func (r *Registry) RegisterChain(chain domain.Chain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.chains {
		if chain.ChainID != "" && r.chains[i].ChainID == chain.ChainID {
			r.chains[i] = chain
			return
		}
	}
	r.chains = append(r.chains, chain)
}

// Agent returns the agent registered for intent.
func (r *Registry) Agent(intent string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.Intent == intent {
			return a, true
		}
	}
	return domain.Agent{}, false
}

// ResolveChain returns the first-registered chain whose sequence contains intent.
func (r *Registry) ResolveChain(intent string) (domain.Chain, bool) {
	if intent == "" {
		return domain.Chain{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.chains {
		if c.Contains(intent) {
			return c, true
		}
	}
	return domain.Chain{}, false
}

// Agents returns a copy of the registered agents in registration order.
func (r *Registry) Agents() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.agents)
}

// Chains returns a copy of the registered chains in registration order.
func (r *Registry) Chains() []domain.Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.chains)
}
