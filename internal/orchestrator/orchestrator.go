package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/classifier"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/executor"
)

// Registry resolves agents and chains.
type Registry interface {
	Agent(intent string) (domain.Agent, bool)
	ResolveChain(intent string) (domain.Chain, bool)
}

// Config wires an Orchestrator. A nil Classifier disables automated
// processing; live chat stays available.
type Config struct {
	Classifier      classifier.Classifier
	Registry        Registry
	Invoker         executor.Invoker
	ConfirmationURL string
	// Availability reports whether specialists can be requested at a time.
	// Nil means always available.
	Availability func(time.Time) bool
	Now          func() time.Time
	Logger       *slog.Logger
}

// Orchestrator turns one inbound event into transcript messages. It holds no
// per-conversation state; everything lives in ConversationState.
type Orchestrator struct {
	classifier      classifier.Classifier
	registry        Registry
	invoker         executor.Invoker
	chains          *executor.ChainRunner
	confirmationURL string
	available       func(time.Time) bool
	now             func() time.Time
	logger          *slog.Logger
}

// Reply holds the messages appended while handling one event and an optional
// navigation target for the caller.
type Reply struct {
	Messages   []domain.Message
	RedirectTo string
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		classifier:      cfg.Classifier,
		registry:        cfg.Registry,
		invoker:         cfg.Invoker,
		confirmationURL: cfg.ConfirmationURL,
		available:       cfg.Availability,
		now:             cfg.Now,
		logger:          cfg.Logger,
	}
	if o.available == nil {
		o.available = func(time.Time) bool { return true }
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.chains = executor.NewChainRunner(o.invoker, o.registry)
	return o
}

// Automated reports whether a classifier is configured.
func (o *Orchestrator) Automated() bool {
	return o.classifier != nil
}

// NewState creates a conversation state carrying the disabled-automation
// notice when no classifier is configured.
func (o *Orchestrator) NewState(userID string) *ConversationState {
	st := NewConversationState(userID)
	if !o.Automated() {
		st.setNotice(MsgAutomationDisabled)
	}
	return st
}

func (o *Orchestrator) emit(st *ConversationState, reply *Reply, msgs ...domain.Message) {
	if len(msgs) == 0 {
		return
	}
	st.append(msgs...)
	reply.Messages = append(reply.Messages, msgs...)
}

// Handle processes one user message. The user message is always appended
// first; every failure becomes a bot message.
func (o *Orchestrator) Handle(ctx context.Context, st *ConversationState, text string) (reply Reply) {
	user := []domain.Message{domain.NewText(domain.SenderUser, text)}
	o.emit(st, &reply, user...)

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestrator panic", "panic", r, "user_id", st.UserID(), "stack", string(debug.Stack()))
			o.emit(st, &reply, domain.BotText(MsgApology))
		}
	}()

	trimmed := strings.TrimSpace(text)
	switch {
	case st.IsLiveChat():
		if trimmed == "" {
			o.emit(st, &reply, domain.BotText(MsgEmptyQuery))
			return reply
		}
		o.emit(st, &reply, o.relay(ctx, st, user[0])...)

	case st.PendingOrder() != nil:
		msgs, redirect := o.continueOrder(ctx, st, text)
		o.emit(st, &reply, msgs...)
		reply.RedirectTo = redirect

	case trimmed == "":
		o.emit(st, &reply, domain.BotText(MsgEmptyQuery))

	default:
		o.emit(st, &reply, o.automated(ctx, st, trimmed)...)
	}
	return reply
}

// Specialist handles an explicit request for a human specialist.
func (o *Orchestrator) Specialist(ctx context.Context, st *ConversationState) (reply Reply) {
	o.emit(st, &reply, o.RequestSpecialist(ctx, st)...)
	return reply
}

// Frame applies an inbound transport frame.
func (o *Orchestrator) Frame(st *ConversationState, frame domain.Frame) Reply {
	return Reply{Messages: o.HandleFrame(st, frame)}
}

func (o *Orchestrator) automated(ctx context.Context, st *ConversationState, text string) []domain.Message {
	if !o.Automated() {
		st.setNotice(MsgAutomationDisabled)
		o.logger.Debug("automation disabled", "kind", KindFatal, "user_id", st.UserID())
		return []domain.Message{domain.BotText(MsgAutomationDisabled)}
	}

	res, err := o.classifier.Classify(ctx, text, classifier.Context{
		SessionID: st.SessionID(),
		UserID:    st.UserID(),
		History:   st.history(6),
	})
	if err != nil || len(res.Intents) == 0 {
		o.logger.Warn("classification failed, using fallback", "kind", KindClassification, "error", err)
		res = classifier.DefaultFallback()
	}
	intent := res.Primary()
	o.logger.Info("classified", "user_id", st.UserID(), "intent", intent, "fallback", res.Fallback)

	if intent == domain.IntentHumanAssistance {
		return o.RequestSpecialist(ctx, st)
	}
	if chain, ok := o.registry.ResolveChain(intent); ok {
		return o.runChain(ctx, st, chain, res)
	}
	return o.dispatch(ctx, st, intent, res.Params)
}

// runChain runs chain for the intents res detected.
func (o *Orchestrator) runChain(ctx context.Context, st *ConversationState, chain domain.Chain, res classifier.Result) []domain.Message {
	o.logger.Info("running chain", "chain_id", chain.ChainID, "steps", len(chain.AgentSequence))
	result := o.chains.Run(ctx, chain, res.Params, res.Has)

	var msgs []domain.Message
	for _, step := range result.Steps {
		msgs = append(msgs, shape(step.Outcome))
		if step.Outcome.Failed() {
			o.logger.Warn("chain step failed", "kind", KindAgentExecution, "chain_id", chain.ChainID, "intent", step.Intent, "error", step.Outcome.Error)
		}
	}
	if result.MissingAgent != "" {
		o.logger.Warn("chain aborted", "kind", KindNoAgent, "chain_id", chain.ChainID, "intent", result.MissingAgent)
		msgs = append(msgs, domain.BotText(fmt.Sprintf(MsgNoAgentForIntentFmt, result.MissingAgent)))
	}
	if result.Order != nil {
		msgs = append(msgs, o.startOrder(st, result.Order.ProductID)...)
	}
	return msgs
}

// agentFor resolves the agent for intent. It returns ErrNoAgent when none is
// registered and ErrNoRoute, with the agent, when it exposes no features.
func (o *Orchestrator) agentFor(intent string) (domain.Agent, error) {
	agent, ok := o.registry.Agent(intent)
	if !ok {
		return domain.Agent{}, fmt.Errorf("%w: %s", ErrNoAgent, intent)
	}
	if len(agent.Features) == 0 {
		return agent, fmt.Errorf("%w: %s", ErrNoRoute, intent)
	}
	return agent, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, st *ConversationState, intent string, params map[string]any) []domain.Message {
	agent, err := o.agentFor(intent)
	if errors.Is(err, ErrNoAgent) {
		o.logger.Warn("no agent", "kind", KindNoAgent, "intent", intent, "error", err)
		return []domain.Message{domain.BotText(MsgNoAgentForQuery)}
	}
	if intent == domain.IntentPlaceOrder {
		return o.startOrder(st, executor.PriorID(params))
	}
	if err != nil {
		o.logger.Warn("agent has no route", "kind", KindNoRoute, "intent", intent, "error", err)
		return []domain.Message{shape(executor.Outcome{Error: executor.MsgNoRoute})}
	}

	out := o.invoker.Execute(ctx, agent, intent, params)
	if out.Failed() {
		o.logger.Warn("agent failed", "kind", KindAgentExecution, "intent", intent, "error", out.Error)
	}
	return []domain.Message{shape(out)}
}

// shape converts an outcome into a transcript message.
func shape(out executor.Outcome) domain.Message {
	msg := domain.Message{Sender: domain.SenderBot, Timestamp: time.Now().UTC()}
	switch {
	case out.Failed():
		msg.Text = out.Error
	case len(out.Products()) > 0:
		msg.Result = out.Result
		msg.Products = out.Products()
	case domain.StringParam(out.Params, "order_id") != "":
		msg.OrderDetails = out.Params
	case domain.StringParam(out.Params, "estimated_delivery") != "":
		msg.OrderConfirmation = out.Params
	default:
		msg.Text = out.Result
	}
	return msg
}

// AddToCart adds product with quantity 1 through the add_to_cart agent.
func (o *Orchestrator) AddToCart(ctx context.Context, st *ConversationState, product domain.Product) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("add to cart panic", "panic", r)
			o.emit(st, &reply, domain.BotText(MsgApology))
		}
	}()

	agent, err := o.agentFor(domain.IntentAddToCart)
	if errors.Is(err, ErrNoAgent) {
		o.logger.Warn("no agent for add_to_cart", "kind", KindNoAgent, "user_id", st.UserID(), "error", err)
		o.emit(st, &reply, domain.BotText(MsgNoAgentForCart))
		return reply
	}
	out := o.invoker.Execute(ctx, agent, domain.IntentAddToCart, map[string]any{
		"product_id": product.ID(),
		"quantity":   1,
	})
	if out.Failed() {
		o.emit(st, &reply, domain.BotText(out.Error))
		return reply
	}
	name := product.Name()
	if name == "" {
		name = product.ID()
	}
	o.emit(st, &reply, domain.BotText(fmt.Sprintf(MsgAddedToCartFmt, name)))
	return reply
}

// Clear wipes the transcript, the profile and any pending order.
func (o *Orchestrator) Clear(st *ConversationState) Reply {
	st.reset()
	o.logger.Info("conversation cleared", "user_id", st.UserID())
	return Reply{}
}
