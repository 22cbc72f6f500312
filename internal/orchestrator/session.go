package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/agentdesk/internal/convstore"
	"github.com/ashureev/agentdesk/internal/domain"
)

// SessionAPI is the backend's session lifecycle endpoint.
type SessionAPI interface {
	CreateSession(ctx context.Context, session domain.ChatSession) (string, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// Conn is an open live-chat channel.
type Conn interface {
	Transport
	Receive(ctx context.Context) (domain.Frame, error)
	Close() error
}

// Dialer opens the customer live-chat channel.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// SessionConfig wires a Session. Store, API and Dialer are optional.
type SessionConfig struct {
	Orchestrator *Orchestrator
	UserID       string
	ClientID     string
	Store        convstore.Store
	API          SessionAPI
	Dialer       Dialer
	Logger       *slog.Logger
}

type event struct {
	name  string
	run   func(ctx context.Context) Reply
	reply chan Reply
}

// Session owns one conversation, its transport and a single-consumer event
// queue. User actions and transport frames are applied strictly one at a
// time in arrival order.
type Session struct {
	cfg    SessionConfig
	o      *Orchestrator
	st     *ConversationState
	logger *slog.Logger

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	conn       Conn
	pumpCancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
}

// NewSession creates a Session. Call Start before submitting events.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:    cfg,
		o:      cfg.Orchestrator,
		st:     cfg.Orchestrator.NewState(cfg.UserID),
		logger: logger.With("user_id", cfg.UserID),
		events: make(chan event, 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// State returns the conversation state for reading and subscribing.
func (s *Session) State() *ConversationState {
	return s.st
}

// Start restores the transcript, opens a backend session with its transport
// and begins consuming events.
func (s *Session) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		if s.cfg.Store != nil {
			snap, loadErr := s.cfg.Store.Load(ctx, s.cfg.UserID)
			if loadErr != nil {
				err = loadErr
				return
			}
			s.st.Restore(snap.Messages, snap.Profile)
		}
		s.ensureSession(ctx)
		go s.loop()
	})
	return err
}

// Send submits user text and waits for its reply.
func (s *Session) Send(ctx context.Context, text string) (Reply, error) {
	return s.submit(ctx, "send", func(ctx context.Context) Reply {
		s.ensureSession(ctx)
		return s.o.Handle(ctx, s.st, text)
	})
}

// RequestSpecialist asks for a human specialist.
func (s *Session) RequestSpecialist(ctx context.Context) (Reply, error) {
	return s.submit(ctx, "specialist", func(ctx context.Context) Reply {
		s.ensureSession(ctx)
		return s.o.Specialist(ctx, s.st)
	})
}

// AddToCart adds a product from a product card.
func (s *Session) AddToCart(ctx context.Context, product domain.Product) (Reply, error) {
	return s.submit(ctx, "add_to_cart", func(ctx context.Context) Reply {
		return s.o.AddToCart(ctx, s.st, product)
	})
}

// Clear wipes the conversation.
func (s *Session) Clear(ctx context.Context) (Reply, error) {
	return s.submit(ctx, "clear", func(context.Context) Reply {
		return s.o.Clear(s.st)
	})
}

func (s *Session) submit(ctx context.Context, name string, run func(context.Context) Reply) (Reply, error) {
	ev := event{name: name, run: run, reply: make(chan Reply, 1)}
	select {
	case s.events <- ev:
	case <-s.done:
		return Reply{}, ErrSessionClosed
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}

	select {
	case r := <-ev.reply:
		return r, nil
	case <-s.done:
		return Reply{}, ErrSessionClosed
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			reply := ev.run(s.ctx)
			s.persist()
			if ev.reply != nil {
				ev.reply <- reply
			}
		}
	}
}

func (s *Session) persist() {
	if s.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap := convstore.Snapshot{
		UserID:    s.cfg.UserID,
		Messages:  s.st.Messages(),
		Profile:   s.st.Profile(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.cfg.Store.Save(ctx, snap); err != nil {
		s.logger.Warn("failed to persist conversation", "error", err)
	}
}

// ensureSession creates a backend session and dials the transport when the
// state has no valid session id. It runs on the consumer goroutine or
// before it starts.
func (s *Session) ensureSession(ctx context.Context) {
	if s.st.SessionID() != "" || s.cfg.API == nil {
		return
	}

	now := time.Now().UTC()
	id, err := s.cfg.API.CreateSession(ctx, domain.ChatSession{
		SessionID: "session_" + uuid.NewString(),
		ClientID:  s.cfg.ClientID,
		UserID:    s.cfg.UserID,
		Status:    domain.SessionPending,
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.logger.Warn("failed to create chat session", "kind", KindTransport, "error", err)
		return
	}
	s.st.SetSessionID(id)
	s.logger.Info("chat session created", "session_id", id)

	s.closeConn()
	if s.cfg.Dialer == nil {
		return
	}
	conn, err := s.cfg.Dialer.Dial(ctx)
	if err != nil {
		s.logger.Warn("failed to open live-chat channel", "kind", KindTransport, "session_id", id, "error", err)
		return
	}
	pumpCtx, cancel := context.WithCancel(s.ctx)
	s.conn, s.pumpCancel = conn, cancel
	s.st.SetTransport(conn)
	go s.pump(pumpCtx, conn)
}

// pump turns inbound frames into queued events.
func (s *Session) pump(ctx context.Context, conn Conn) {
	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, ErrTransportClosed) {
				s.logger.Warn("live-chat channel closed", "kind", KindTransport, "error", err)
			}
			s.enqueue(ctx, event{name: "transport_lost", run: func(context.Context) Reply {
				return s.o.TransportLost(s.st)
			}})
			return
		}
		if !s.enqueue(ctx, event{name: "frame", run: func(context.Context) Reply {
			return s.o.Frame(s.st, frame)
		}}) {
			return
		}
	}
}

func (s *Session) enqueue(ctx context.Context, ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) closeConn() {
	if s.pumpCancel != nil {
		s.pumpCancel()
		s.pumpCancel = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("failed to close live-chat channel", "error", err)
		}
		s.conn = nil
	}
	s.st.SetTransport(nil)
	s.st.abandonConnecting()
}

// Close stops the consumer, closes the transport and tells the backend the
// session is over. The backend call is best effort.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.startOnce.Do(func() { close(s.done) })
		<-s.done
		s.closeConn()

		if id := s.st.SessionID(); id != "" && s.cfg.API != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.cfg.API.CloseSession(ctx, id); err != nil {
				s.logger.Debug("failed to close chat session", "session_id", id, "error", err)
			}
		}
	})
	return nil
}
