// Package orchestrator coordinates classification, chain resolution, agent
// execution, order slot filling and live-chat handoff for one conversation.
package orchestrator

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/agentdesk/internal/domain"
)

// OrderStage is the position of the order slot-filling machine.
type OrderStage int

const (
	StageIdle OrderStage = iota
	StageAwaitingName
	StageAwaitingAddress
	StageAwaitingQuantity
	StageSubmitting
	StageDone
	StageCancelled
)

func (s OrderStage) String() string {
	switch s {
	case StageAwaitingName:
		return "awaiting_name"
	case StageAwaitingAddress:
		return "awaiting_address"
	case StageAwaitingQuantity:
		return "awaiting_quantity"
	case StageSubmitting:
		return "submitting"
	case StageDone:
		return "done"
	case StageCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// LiveStage is the live-chat handoff mode of a conversation.
type LiveStage int

const (
	LiveAutomated LiveStage = iota
	LiveConnecting
	LiveRelay
)

func (s LiveStage) String() string {
	switch s {
	case LiveConnecting:
		return "connecting"
	case LiveRelay:
		return "live"
	default:
		return "automated"
	}
}

// Transport is the duplex live-chat channel owned by a Session.
type Transport interface {
	Send(ctx context.Context, frame domain.Frame) error
}

// ConversationState is the single mutable aggregate of one chat. Mutations go
// through the Orchestrator; reads are safe from any goroutine.
type ConversationState struct {
	mu sync.RWMutex

	userID    string
	sessionID string
	messages  []domain.Message
	profile   domain.UserProfile

	pendingOrder *domain.PendingOrder
	stage        OrderStage

	live      LiveStage
	announced bool
	transport Transport

	notice    string
	observers map[int]func(domain.Message)
	nextObs   int
}

// NewConversationState creates an empty state for userID.
func NewConversationState(userID string) *ConversationState {
	return &ConversationState{
		userID:    userID,
		messages:  []domain.Message{},
		observers: make(map[int]func(domain.Message)),
	}
}

// Restore replaces the transcript and profile, typically from a store.
func (s *ConversationState) Restore(messages []domain.Message, profile domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = slices.Clone(messages)
	if s.messages == nil {
		s.messages = []domain.Message{}
	}
	s.profile = profile
}

// Subscribe registers fn to be called for every appended message. The
// returned function removes the subscription.
func (s *ConversationState) Subscribe(fn func(domain.Message)) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *ConversationState) append(msgs ...domain.Message) {
	for i := range msgs {
		if msgs[i].ID == "" {
			msgs[i].ID = uuid.NewString()
		}
		if msgs[i].Timestamp.IsZero() {
			msgs[i].Timestamp = time.Now().UTC()
		}
	}
	s.mu.Lock()
	s.messages = append(s.messages, msgs...)
	observers := make([]func(domain.Message), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, m := range msgs {
		for _, fn := range observers {
			fn(m)
		}
	}
}

// UserID returns the owner of the conversation.
func (s *ConversationState) UserID() string {
	return s.userID
}

// Messages returns a copy of the transcript.
func (s *ConversationState) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// SessionID returns the current session id, or "" once it has been invalidated.
func (s *ConversationState) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// SetSessionID binds the conversation to a backend session.
func (s *ConversationState) SetSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

// SetTransport attaches the live-chat channel.
func (s *ConversationState) SetTransport(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

func (s *ConversationState) currentTransport() Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

// Profile returns the remembered order fields.
func (s *ConversationState) Profile() domain.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// PendingOrder returns a copy of the order in progress, or nil.
func (s *ConversationState) PendingOrder() *domain.PendingOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pendingOrder == nil {
		return nil
	}
	o := *s.pendingOrder
	return &o
}

// OrderStage returns the slot-filling stage.
func (s *ConversationState) OrderStage() OrderStage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// IsLiveChat reports whether messages are relayed to a human specialist.
func (s *ConversationState) IsLiveChat() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live == LiveRelay
}

// LiveStage returns the handoff mode.
func (s *ConversationState) LiveStage() LiveStage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Notice returns the persistent notice shown when automation is disabled.
func (s *ConversationState) Notice() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notice
}

func (s *ConversationState) setNotice(n string) {
	s.mu.Lock()
	s.notice = n
	s.mu.Unlock()
}

func (s *ConversationState) setOrder(o *domain.PendingOrder, stage OrderStage) {
	s.mu.Lock()
	s.pendingOrder = o
	s.stage = stage
	s.mu.Unlock()
}

func (s *ConversationState) clearOrder(final OrderStage) {
	s.mu.Lock()
	s.pendingOrder = nil
	s.stage = final
	s.mu.Unlock()
}

func (s *ConversationState) setProfile(p domain.UserProfile) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
}

func (s *ConversationState) setLive(stage LiveStage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = stage
	if stage == LiveRelay && s.pendingOrder != nil {
		// A live channel and slot filling never coexist.
		s.pendingOrder = nil
		s.stage = StageCancelled
	}
}

// abandonConnecting returns a pending specialist request to automated mode
// and reports whether one was pending.
func (s *ConversationState) abandonConnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live != LiveConnecting {
		return false
	}
	s.live = LiveAutomated
	return true
}

// markAnnounced sets the connected flag and reports whether it was unset.
func (s *ConversationState) markAnnounced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.announced {
		return false
	}
	s.announced = true
	return true
}

// endLive returns to automated mode and invalidates the session id.
func (s *ConversationState) endLive() {
	s.mu.Lock()
	s.live = LiveAutomated
	s.announced = false
	s.sessionID = ""
	s.mu.Unlock()
}

func (s *ConversationState) reset() {
	s.mu.Lock()
	s.messages = []domain.Message{}
	s.profile = domain.UserProfile{}
	s.pendingOrder = nil
	s.stage = StageIdle
	s.mu.Unlock()
}

func (s *ConversationState) history(n int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for i := len(s.messages) - 1; i >= 0 && len(out) < n; i-- {
		m := s.messages[i]
		text := m.Text
		if text == "" {
			text = m.Result
		}
		if text == "" {
			continue
		}
		out = append(out, string(m.Sender)+": "+text)
	}
	slices.Reverse(out)
	return out
}
