package executor

import (
	"context"
	"maps"

	"github.com/ashureev/agentdesk/internal/domain"
)

// AgentLookup resolves the agent registered for an intent.
type AgentLookup interface {
	Agent(intent string) (domain.Agent, bool)
}

// Step is one executed chain step.
type Step struct {
	Intent  string
	Outcome Outcome
}

// ChainResult describes how a chain run ended.
type ChainResult struct {
	// Steps holds every executed step in order. A failed step is last.
	Steps []Step
	// MissingAgent names the intent that aborted the chain for lack of an agent.
	MissingAgent string
	// Order is set when the chain reached place_order; slot filling takes over.
	Order *domain.PendingOrder
}

// Failed returns true if the chain stopped on a step error.
func (r ChainResult) Failed() bool {
	return len(r.Steps) > 0 && r.Steps[len(r.Steps)-1].Outcome.Failed()
}

// ChainRunner executes a chain's agent sequence in order.
type ChainRunner struct {
	invoker Invoker
	agents  AgentLookup
}

// NewChainRunner creates a runner that resolves agents with agents and calls them with invoker.
func NewChainRunner(invoker Invoker, agents AgentLookup) *ChainRunner {
	return &ChainRunner{invoker: invoker, agents: agents}
}

// Run walks the sequence, feeding each step's output params into the next
// through MapParams. Steps whose intent detected rejects are skipped; a nil
// detected runs every step. It stops at the first error, at a missing agent,
// or when place_order is reached.
func (r *ChainRunner) Run(ctx context.Context, chain domain.Chain, params map[string]any, detected func(intent string) bool) ChainResult {
	var res ChainResult
	current := maps.Clone(params)
	if current == nil {
		current = map[string]any{}
	}

	for _, intent := range chain.AgentSequence {
		if detected != nil && !detected(intent) {
			continue
		}
		if ctx.Err() != nil {
			res.Steps = append(res.Steps, Step{Intent: intent, Outcome: Outcome{Error: MsgGenericFailure}})
			return res
		}

		agent, ok := r.agents.Agent(intent)
		if !ok {
			res.MissingAgent = intent
			return res
		}

		if intent == domain.IntentPlaceOrder {
			res.Order = &domain.PendingOrder{ProductID: PriorID(current)}
			return res
		}

		out := r.invoker.Execute(ctx, agent, intent, MapParams(intent, current))
		res.Steps = append(res.Steps, Step{Intent: intent, Outcome: out})
		if out.Failed() {
			return res
		}
		current = out.Params
		if current == nil {
			current = map[string]any{}
		}
	}
	return res
}

// MapParams derives a step's input from the previous step's output.
func MapParams(intent string, prior map[string]any) map[string]any {
	switch intent {
	case domain.IntentRecommendProduct:
		return map[string]any{"product": PriorID(prior)}
	case domain.IntentTrackOrder:
		id := domain.StringParam(prior, "order_id")
		if id == "" {
			id = "unknown"
		}
		return map[string]any{"order_id": id}
	default:
		return maps.Clone(prior)
	}
}

// PriorID picks the product a follow-up step refers to: an explicit id,
// else the first product's id, else the category.
func PriorID(prior map[string]any) string {
	if id := domain.StringParam(prior, "id"); id != "" {
		return id
	}
	if products := productsOf(prior["products"]); len(products) > 0 {
		if id := products[0].ID(); id != "" {
			return id
		}
	}
	return domain.StringParam(prior, "category")
}
