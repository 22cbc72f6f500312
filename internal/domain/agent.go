// Package domain contains core domain types for the agent desk.
package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Feature is one invokable HTTP operation exposed by an Agent.
type Feature struct {
	Route       string     `json:"route" yaml:"route"`
	Method      string     `json:"method" yaml:"method"`
	Parameters  Parameters `json:"parameters" yaml:"parameters"`
	Description string     `json:"description" yaml:"description"`
}

// HTTPMethod returns the upper-cased method, defaulting to GET.
func (f Feature) HTTPMethod() string {
	m := strings.ToUpper(strings.TrimSpace(f.Method))
	if m == "" {
		return "GET"
	}
	return m
}

// Parameters is the list of parameter names a Feature accepts.
// The dashboard stores it either as a JSON array or as a comma-separated string.
type Parameters []string

// UnmarshalJSON accepts both ["a","b"] and "a, b".
func (p *Parameters) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = list
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parameters must be a list or a string: %w", err)
	}
	*p = splitParameters(raw)
	return nil
}

func splitParameters(raw string) Parameters {
	var out Parameters
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Agent is a registered capability provider identified by its intent.
type Agent struct {
	WebsiteID string    `json:"websiteId,omitempty" yaml:"websiteId,omitempty"`
	Intent    string    `json:"intent" yaml:"intent"`
	Features  []Feature `json:"features" yaml:"features"`
}

// Chain is an ordered sequence of intents forming a multi-agent workflow.
type Chain struct {
	WebsiteID     string   `json:"websiteId,omitempty" yaml:"websiteId,omitempty"`
	ChainID       string   `json:"chainId" yaml:"chainId"`
	Name          string   `json:"name" yaml:"name"`
	AgentSequence []string `json:"agentSequence" yaml:"agentSequence"`
}

// Contains reports whether intent is one of the chain's steps.
func (c Chain) Contains(intent string) bool {
	return slices.Contains(c.AgentSequence, intent)
}

// Intents the orchestrator treats specially.
const (
	IntentSearchProduct    = "search_product"
	IntentRecommendProduct = "recommend_product"
	IntentTrackOrder       = "track_order"
	IntentPlaceOrder       = "place_order"
	IntentAddToCart        = "add_to_cart"
	IntentHumanAssistance  = "human_assistance"
)
