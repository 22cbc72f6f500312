package orchestrator

import "errors"

// Kind classifies a recoverable failure for logging. Every kind is turned
// into a bot message; none escapes Handle.
type Kind string

const (
	KindClassification Kind = "classification"
	KindNoAgent        Kind = "no_agent"
	KindNoRoute        Kind = "no_route"
	KindAgentExecution Kind = "agent_execution"
	KindSlotValidation Kind = "slot_validation"
	KindTransport      Kind = "transport"
	KindFatal          Kind = "fatal"
)

var (
	// ErrNoAgent is returned when no agent is registered for an intent.
	ErrNoAgent = errors.New("no agent for intent")
	// ErrNoRoute is returned when an agent exposes no features.
	ErrNoRoute = errors.New("agent has no route")
	// ErrSessionNotFound is returned when the backend does not know a session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTransportClosed is returned when sending on a closed live-chat channel.
	ErrTransportClosed = errors.New("transport closed")
	// ErrSessionClosed is returned when an event is submitted to a closed Session.
	ErrSessionClosed = errors.New("session closed")
)

// User-visible texts.
const (
	MsgEmptyQuery          = "Please enter a query."
	MsgApology             = "Sorry, something went wrong. Please try again."
	MsgNoAgentForQuery     = "No agent found for this query."
	MsgNoAgentForIntentFmt = "No agent found for intent: %s"
	MsgNoAgentForOrder     = "No agent found for placing order."
	MsgNoAgentForCart      = "No agent found for adding to cart."
	MsgAddedToCartFmt      = "Added %s to cart."
	MsgOrderCancelled      = "Order cancelled."
	MsgPromptName          = "Please enter your name."
	MsgPromptAddress       = "Please enter your address."
	MsgPromptQuantity      = "Please enter the quantity."
	MsgInvalidName         = "Please enter a valid name."
	MsgInvalidAddress      = "Please enter a valid address."
	MsgInvalidQuantity     = "Please enter a valid quantity."
	MsgConnecting          = "Connecting you to a specialist..."
	MsgConnected           = "You are now connected to a specialist."
	MsgConnectError        = "Error connecting to specialist."
	MsgAlreadyLive         = "You are already connected to a specialist."
	MsgLiveUnavailable     = "Live chat is not available right now. Please try again during support hours."
	MsgNotConnected        = "Not connected to a specialist."
	MsgRelayError          = "Error sending message to specialist."
	MsgAutomationDisabled  = "Automated assistance is unavailable right now. You can still ask for a specialist."
)
