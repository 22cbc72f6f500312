package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ashureev/agentdesk/internal/domain"
)

// startOrder enters slot filling for productID. Slots already known from the
// profile are prefilled and skipped.
func (o *Orchestrator) startOrder(st *ConversationState, productID string) []domain.Message {
	profile := st.Profile()
	order := &domain.PendingOrder{
		ProductID:    productID,
		CustomerName: profile.CustomerName,
		Address:      profile.Address,
	}

	stage, prompt := nextSlot(order)
	st.setOrder(order, stage)
	o.logger.Info("order started", "user_id", st.UserID(), "product_id", productID, "stage", stage.String())
	return []domain.Message{domain.BotText(prompt)}
}

// nextSlot returns the first unfilled slot and its prompt.
func nextSlot(order *domain.PendingOrder) (OrderStage, string) {
	switch {
	case order.CustomerName == "":
		return StageAwaitingName, MsgPromptName
	case order.Address == "":
		return StageAwaitingAddress, MsgPromptAddress
	default:
		return StageAwaitingQuantity, MsgPromptQuantity
	}
}

// continueOrder feeds one user input into the slot-filling machine.
func (o *Orchestrator) continueOrder(ctx context.Context, st *ConversationState, input string) ([]domain.Message, string) {
	order := st.PendingOrder()
	if order == nil {
		return nil, ""
	}
	stage := st.OrderStage()

	if strings.EqualFold(input, "cancel") {
		st.clearOrder(StageIdle)
		o.logger.Info("order cancelled", "user_id", st.UserID(), "stage", stage.String())
		return []domain.Message{domain.BotText(MsgOrderCancelled)}, ""
	}

	value := strings.TrimSpace(input)
	switch stage {
	case StageAwaitingName:
		if value == "" {
			o.logSlot(st, stage)
			return []domain.Message{domain.BotText(MsgInvalidName)}, ""
		}
		order.CustomerName = value
		profile := st.Profile()
		profile.CustomerName = value
		st.setProfile(profile)

	case StageAwaitingAddress:
		if value == "" {
			o.logSlot(st, stage)
			return []domain.Message{domain.BotText(MsgInvalidAddress)}, ""
		}
		order.Address = value
		profile := st.Profile()
		profile.Address = value
		st.setProfile(profile)

	case StageAwaitingQuantity:
		qty, err := strconv.Atoi(value)
		if err != nil || qty <= 0 {
			o.logSlot(st, stage)
			return []domain.Message{domain.BotText(MsgInvalidQuantity)}, ""
		}
		order.Quantity = qty
		profile := st.Profile()
		if order.CustomerName == "" {
			order.CustomerName = profile.CustomerName
		}
		if order.Address == "" {
			order.Address = profile.Address
		}
		st.setOrder(order, StageSubmitting)
		return o.submitOrder(ctx, st, *order)

	default:
		return nil, ""
	}

	next, prompt := nextSlot(order)
	st.setOrder(order, next)
	return []domain.Message{domain.BotText(prompt)}, ""
}

// submitOrder executes place_order with the completed order. Either way the
// pending order is cleared.
func (o *Orchestrator) submitOrder(ctx context.Context, st *ConversationState, order domain.PendingOrder) ([]domain.Message, string) {
	agent, err := o.agentFor(domain.IntentPlaceOrder)
	if errors.Is(err, ErrNoAgent) {
		st.clearOrder(StageCancelled)
		o.logger.Warn("no agent for place_order", "kind", KindNoAgent, "user_id", st.UserID(), "error", err)
		return []domain.Message{domain.BotText(MsgNoAgentForOrder)}, ""
	}

	out := o.invoker.Execute(ctx, agent, domain.IntentPlaceOrder, order.Params())
	if out.Failed() {
		st.clearOrder(StageCancelled)
		o.logger.Warn("order submission failed", "kind", KindAgentExecution, "user_id", st.UserID(), "error", out.Error)
		return []domain.Message{domain.BotText(out.Error)}, ""
	}

	st.clearOrder(StageDone)
	o.logger.Info("order placed", "user_id", st.UserID(), "product_id", order.ProductID, "quantity", order.Quantity)
	return []domain.Message{domain.BotText(out.Result)}, o.confirmationURL
}

func (o *Orchestrator) logSlot(st *ConversationState, stage OrderStage) {
	o.logger.Debug("invalid slot input", "kind", KindSlotValidation, "user_id", st.UserID(), "stage", stage.String())
}
