package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Seed is the on-disk description of a deployment's agents and chains.
type Seed struct {
	WebsiteID string         `yaml:"websiteId"`
	Agents    []domain.Agent `yaml:"agents"`
	Chains    []domain.Chain `yaml:"chains"`
}

// LoadFile reads a YAML seed and stamps the website id onto every entry.
func LoadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	for i := range s.Agents {
		if s.Agents[i].WebsiteID == "" {
			s.Agents[i].WebsiteID = s.WebsiteID
		}
	}
	for i := range s.Chains {
		if s.Chains[i].WebsiteID == "" {
			s.Chains[i].WebsiteID = s.WebsiteID
		}
	}
	return &s, nil
}

// Validate checks intent uniqueness and that chains reference known intents.
func (s *Seed) Validate() error {
	if s.WebsiteID == "" {
		return errors.New("websiteId is required")
	}
	seen := make(map[string]bool, len(s.Agents))
	for _, a := range s.Agents {
		if a.Intent == "" {
			return errors.New("agent without intent")
		}
		if seen[a.Intent] {
			return fmt.Errorf("duplicate agent intent %q", a.Intent)
		}
		seen[a.Intent] = true
	}
	for _, c := range s.Chains {
		if c.ChainID == "" {
			return fmt.Errorf("chain %q has no chainId", c.Name)
		}
		if len(c.AgentSequence) == 0 {
			return fmt.Errorf("chain %q has an empty agentSequence", c.ChainID)
		}
	}
	return nil
}

// Registry builds an in-memory registry from the seed.
func (s *Seed) Registry() *Registry {
	return New(s.Agents, s.Chains)
}
