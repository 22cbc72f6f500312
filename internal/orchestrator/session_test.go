package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agentdesk/internal/convstore"
	"github.com/ashureev/agentdesk/internal/domain"
)

type memStore struct {
	mu    sync.Mutex
	snaps map[string]convstore.Snapshot
	saves int
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]convstore.Snapshot)}
}

func (m *memStore) Load(_ context.Context, userID string) (convstore.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.snaps[userID]; ok {
		return s, nil
	}
	return convstore.Snapshot{UserID: userID}, nil
}

func (m *memStore) Save(_ context.Context, snap convstore.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.UserID] = snap
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) get(userID string) convstore.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[userID]
}

type fakeAPI struct {
	mu      sync.Mutex
	created []domain.ChatSession
	closed  []string
}

func (f *fakeAPI) CreateSession(_ context.Context, s domain.ChatSession) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, s)
	return fmt.Sprintf("s%d", len(f.created)), nil
}

func (f *fakeAPI) CloseSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeAPI) counts() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created), append([]string(nil), f.closed...)
}

type fakeConn struct {
	fakeTransport
	inbound   chan domain.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan domain.Frame, 8), closed: make(chan struct{})}
}

func (c *fakeConn) Receive(ctx context.Context) (domain.Frame, error) {
	select {
	case f := <-c.inbound:
		return f, nil
	case <-c.closed:
		return domain.Frame{}, ErrTransportClosed
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestSession(t *testing.T, store convstore.Store, api SessionAPI, dialer Dialer) *Session {
	t.Helper()
	o := newTestOrchestrator(&fakeClassifier{}, &fakeInvoker{})
	cfg := SessionConfig{Orchestrator: o, UserID: "u1", ClientID: "c1"}
	if store != nil {
		cfg.Store = store
	}
	if api != nil {
		cfg.API = api
	}
	if dialer != nil {
		cfg.Dialer = dialer
	}
	s := NewSession(cfg)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionRestoresAndPersists(t *testing.T) {
	store := newMemStore()
	store.snaps["u1"] = convstore.Snapshot{
		UserID:   "u1",
		Messages: []domain.Message{domain.NewText(domain.SenderUser, "earlier")},
		Profile:  domain.UserProfile{CustomerName: "Jane"},
	}
	s := newTestSession(t, store, nil, nil)

	if got := s.State().Messages(); len(got) != 1 || got[0].Text != "earlier" {
		t.Fatalf("transcript not restored: %+v", got)
	}
	if _, err := s.Send(context.Background(), ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	snap := store.get("u1")
	if len(snap.Messages) != 3 || snap.Profile.CustomerName != "Jane" {
		t.Fatalf("snapshot not persisted: %+v", snap)
	}
}

func TestSessionCreatesSessionAndDials(t *testing.T) {
	api := &fakeAPI{}
	dialer := &fakeDialer{}
	s := newTestSession(t, nil, api, dialer)

	created, _ := api.counts()
	if created != 1 || s.State().SessionID() != "s1" || dialer.conn(0) == nil {
		t.Fatalf("expected one session and one connection, created=%d", created)
	}
	if api.created[0].ClientID != "c1" || api.created[0].UserID != "u1" || api.created[0].Status != domain.SessionPending {
		t.Fatalf("unexpected session payload %+v", api.created[0])
	}

	reply, err := s.RequestSpecialist(context.Background())
	if err != nil || lastText(reply.Messages) != MsgConnecting {
		t.Fatalf("unexpected specialist reply %+v err=%v", reply, err)
	}
	if frames := dialer.conn(0).sent(); len(frames) != 1 || frames[0].SessionID != "s1" {
		t.Fatalf("request not sent over the channel: %+v", frames)
	}
}

func TestSessionChannelDropWhileConnecting(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, nil, &fakeAPI{}, dialer)

	if _, err := s.RequestSpecialist(context.Background()); err != nil {
		t.Fatalf("RequestSpecialist: %v", err)
	}
	if s.State().LiveStage() != LiveConnecting {
		t.Fatalf("expected connecting, got %v", s.State().LiveStage())
	}
	dialer.conn(0).Close()

	waitFor(t, func() bool {
		msgs := s.State().Messages()
		return s.State().LiveStage() == LiveAutomated && lastText(msgs) == MsgConnectError
	})
}

func TestSessionAppliesInboundFrames(t *testing.T) {
	dialer := &fakeDialer{}
	s := newTestSession(t, nil, &fakeAPI{}, dialer)

	dialer.conn(0).inbound <- domain.Frame{AgentAssigned: true}
	waitFor(t, s.State().IsLiveChat)

	reply, err := s.Send(context.Background(), "my headphones broke")
	if err != nil || len(reply.Messages) != 1 {
		t.Fatalf("relay should only append the user message: %+v err=%v", reply, err)
	}
	frames := dialer.conn(0).sent()
	if len(frames) != 1 || frames[0].Message.Text != "my headphones broke" {
		t.Fatalf("message not relayed: %+v", frames)
	}
}

func TestSessionRecreatedAfterLiveChatEnds(t *testing.T) {
	api := &fakeAPI{}
	dialer := &fakeDialer{}
	s := newTestSession(t, nil, api, dialer)

	first := dialer.conn(0)
	first.inbound <- domain.Frame{AgentAssigned: true}
	waitFor(t, s.State().IsLiveChat)

	end := domain.NewText(domain.SenderBot, domain.EndOfChatMarker)
	first.inbound <- domain.Frame{Message: &end}
	waitFor(t, func() bool { return !s.State().IsLiveChat() })

	if _, err := s.Send(context.Background(), ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	created, _ := api.counts()
	if created != 2 || s.State().SessionID() != "s2" {
		t.Fatalf("expected a fresh session, created=%d id=%q", created, s.State().SessionID())
	}
	if dialer.conn(1) == nil {
		t.Fatal("expected a new connection")
	}
	select {
	case <-first.closed:
	default:
		t.Fatal("old connection should be closed")
	}
}

func TestSessionSerializesConcurrentSends(t *testing.T) {
	s := newTestSession(t, nil, nil, nil)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := s.Send(context.Background(), "")
			if err == nil && len(reply.Messages) != 2 {
				err = fmt.Errorf("unexpected reply %+v", reply.Messages)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	msgs := s.State().Messages()
	if len(msgs) != 2*n {
		t.Fatalf("expected %d messages, got %d", 2*n, len(msgs))
	}
	for i := 0; i < len(msgs); i += 2 {
		if msgs[i].Sender != domain.SenderUser || msgs[i+1].Text != MsgEmptyQuery {
			t.Fatalf("events interleaved at %d: %+v %+v", i, msgs[i], msgs[i+1])
		}
	}
}

func TestSessionCloseEndsBackendSession(t *testing.T) {
	api := &fakeAPI{}
	dialer := &fakeDialer{}
	s := newTestSession(t, nil, api, dialer)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, closed := api.counts(); len(closed) != 1 || closed[0] != "s1" {
		t.Fatalf("expected s1 closed, got %v", closed)
	}
	if _, err := s.Send(context.Background(), "hi"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	select {
	case <-dialer.conn(0).closed:
	default:
		t.Fatal("connection should be closed")
	}
}

func TestSessionCloseWithoutStart(t *testing.T) {
	o := newTestOrchestrator(&fakeClassifier{}, &fakeInvoker{})
	s := NewSession(SessionConfig{Orchestrator: o, UserID: "u1"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.Clear(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
