package domain

import (
	"time"
)

// Sender identifies who authored a Message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderBot   Sender = "bot"
	SenderAgent Sender = "agent"
)

// MessageKind names the populated payload variant of a Message.
type MessageKind string

const (
	KindText              MessageKind = "text"
	KindProducts          MessageKind = "products"
	KindOrderDetails      MessageKind = "order_details"
	KindOrderConfirmation MessageKind = "order_confirmation"
)

// Message is one transcript entry. Exactly one payload variant is populated:
// Text, Products (with Result as its caption), OrderDetails or OrderConfirmation.
type Message struct {
	ID                string         `json:"id,omitempty"`
	Sender            Sender         `json:"sender"`
	Timestamp         time.Time      `json:"timestamp"`
	Text              string         `json:"text,omitempty"`
	Result            string         `json:"result,omitempty"`
	Products          []Product      `json:"products,omitempty"`
	OrderDetails      map[string]any `json:"order_details,omitempty"`
	OrderConfirmation map[string]any `json:"order_confirmation,omitempty"`
}

// Product is a marketplace item as returned by a search agent.
type Product map[string]any

// ID returns the product identifier, if any.
func (p Product) ID() string {
	return stringField(p, "id")
}

// Name returns the product display name, if any.
func (p Product) Name() string {
	return stringField(p, "name")
}

// Kind reports which payload variant the message carries.
func (m Message) Kind() MessageKind {
	switch {
	case len(m.Products) > 0:
		return KindProducts
	case m.OrderDetails != nil:
		return KindOrderDetails
	case m.OrderConfirmation != nil:
		return KindOrderConfirmation
	default:
		return KindText
	}
}

// NewText builds a text message stamped with the current time.
func NewText(sender Sender, text string) Message {
	return Message{Sender: sender, Timestamp: time.Now().UTC(), Text: text}
}

// BotText builds a bot text message.
func BotText(text string) Message {
	return NewText(SenderBot, text)
}

// EndOfChatMarker is the text of the message that terminates a live chat.
const EndOfChatMarker = "Live chat ended."

// HumanAssistanceText is the sentinel a customer sends to request a specialist.
const HumanAssistanceText = "human_assistance"

// Frame is the JSON envelope exchanged over the live-chat sockets. Customer
// frames carry SessionID and Message; server frames carry Message, Error or
// AgentAssigned, possibly together.
type Frame struct {
	SessionID     string   `json:"sessionId,omitempty"`
	Message       *Message `json:"message,omitempty"`
	Error         string   `json:"error,omitempty"`
	AgentAssigned bool     `json:"agentAssigned,omitempty"`
}
