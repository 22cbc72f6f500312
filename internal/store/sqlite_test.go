package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "agentdesk.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAgentsKeepRegistrationOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, intent := range []string{"search_product", "track_order", "place_order"} {
		a := domain.Agent{WebsiteID: "w1", Intent: intent, Features: []domain.Feature{{Route: "/api/" + intent + "/"}}}
		if err := s.UpsertAgent(ctx, a); err != nil {
			t.Fatalf("UpsertAgent failed: %v", err)
		}
	}
	updated := domain.Agent{WebsiteID: "w1", Intent: "search_product", Features: []domain.Feature{
		{Route: "/api/search/", Method: "GET", Parameters: domain.Parameters{"brand", "category"}},
	}}
	if err := s.UpsertAgent(ctx, updated); err != nil {
		t.Fatalf("UpsertAgent failed: %v", err)
	}
	if err := s.UpsertAgent(ctx, domain.Agent{WebsiteID: "w2", Intent: "search_product"}); err != nil {
		t.Fatalf("UpsertAgent failed: %v", err)
	}

	agents, err := s.ListAgents(ctx, "w1", "")
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 3 || agents[0].Intent != "search_product" || agents[2].Intent != "place_order" {
		t.Fatalf("unexpected order %+v", agents)
	}
	if agents[0].Features[0].Route != "/api/search/" || len(agents[0].Features[0].Parameters) != 2 {
		t.Fatalf("update not applied: %+v", agents[0])
	}

	filtered, err := s.ListAgents(ctx, "w1", "track_order")
	if err != nil || len(filtered) != 1 {
		t.Fatalf("filter by intent: %+v err=%v", filtered, err)
	}
}

func TestChainsUpsert(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	chains := []domain.Chain{
		{WebsiteID: "w1", ChainID: "c1", Name: "buy", AgentSequence: []string{"search_product", "place_order"}},
		{WebsiteID: "w1", ChainID: "c2", Name: "track", AgentSequence: []string{"track_order"}},
	}
	for _, c := range chains {
		if err := s.UpsertChain(ctx, c); err != nil {
			t.Fatalf("UpsertChain failed: %v", err)
		}
	}
	chains[0].Name = "purchase"
	if err := s.UpsertChain(ctx, chains[0]); err != nil {
		t.Fatalf("UpsertChain failed: %v", err)
	}

	got, err := s.ListChains(ctx, "w1")
	if err != nil {
		t.Fatalf("ListChains failed: %v", err)
	}
	if len(got) != 2 || got[0].ChainID != "c1" || got[0].Name != "purchase" || len(got[0].AgentSequence) != 2 {
		t.Fatalf("unexpected chains %+v", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	sess := &domain.ChatSession{SessionID: "session_1", ClientID: "c1", UserID: "u1"}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sess.Status != domain.SessionPending || sess.CreatedAt.IsZero() {
		t.Fatalf("defaults not applied: %+v", sess)
	}

	for _, text := range []string{"hello", "human_assistance"} {
		if err := s.AppendMessage(ctx, "session_1", domain.NewText(domain.SenderUser, text)); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}
	if err := s.AssignSession(ctx, "session_1", "a1"); err != nil {
		t.Fatalf("AssignSession failed: %v", err)
	}

	got, err := s.GetSession(ctx, "session_1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != domain.SessionActive || got.AgentID != "a1" || len(got.Messages) != 2 || got.Messages[1].Text != "human_assistance" {
		t.Fatalf("unexpected session %+v", got)
	}

	listed, err := s.ListSessions(ctx, "a1", "c1")
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListSessions: %+v err=%v", listed, err)
	}

	if err := s.CloseSession(ctx, "session_1"); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	got, _ = s.GetSession(ctx, "session_1")
	if got.Status != domain.SessionClosed || got.AgentID != "" {
		t.Fatalf("session not closed: %+v", got)
	}
}

func TestSessionNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSession: expected ErrNotFound, got %v", err)
	}
	if err := s.CloseSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("CloseSession: expected ErrNotFound, got %v", err)
	}
	if err := s.AppendMessage(ctx, "missing", domain.BotText("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AppendMessage: expected ErrNotFound, got %v", err)
	}
}

func TestIdleSessionsSkipsClosed(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"open", "closed"} {
		if err := s.CreateSession(ctx, &domain.ChatSession{SessionID: id, ClientID: "c1", UserID: id}); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}
	if err := s.CloseSession(ctx, "closed"); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	idle, err := s.IdleSessions(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("IdleSessions failed: %v", err)
	}
	if len(idle) != 1 || idle[0].SessionID != "open" {
		t.Fatalf("unexpected idle sessions %+v", idle)
	}

	idle, err = s.IdleSessions(ctx, time.Now().Add(-time.Minute))
	if err != nil || len(idle) != 0 {
		t.Fatalf("fresh sessions should not be idle: %+v err=%v", idle, err)
	}
}

func TestHumanAgents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, a := range []domain.HumanAgent{
		{WebsiteID: "w1", AgentID: "a1", Name: "Ann", Email: "ann@example.com"},
		{WebsiteID: "w1", AgentID: "a2", Name: "Bob", Email: "bob@example.com", Status: domain.AgentOnline},
		{WebsiteID: "w2", AgentID: "a3", Name: "Cy", Email: "cy@example.com", Status: domain.AgentOnline},
	} {
		if err := s.UpsertHumanAgent(ctx, a); err != nil {
			t.Fatalf("UpsertHumanAgent failed: %v", err)
		}
	}

	available, err := s.AvailableHumanAgents(ctx, "w1")
	if err != nil || len(available) != 1 || available[0].AgentID != "a2" {
		t.Fatalf("AvailableHumanAgents: %+v err=%v", available, err)
	}

	at := time.Now()
	if err := s.SetHumanAgentStatus(ctx, "a1", domain.AgentOnline, at); err != nil {
		t.Fatalf("SetHumanAgentStatus failed: %v", err)
	}
	available, _ = s.AvailableHumanAgents(ctx, "w1")
	if len(available) != 2 || available[0].AgentID != "a1" {
		t.Fatalf("first registered online agent should come first: %+v", available)
	}

	one, err := s.ListHumanAgents(ctx, "w1", "a1")
	if err != nil || len(one) != 1 || one[0].LastActive == nil || one[0].LastActive.UnixMilli() != at.UnixMilli() {
		t.Fatalf("ListHumanAgents: %+v err=%v", one, err)
	}
	if all, _ := s.ListHumanAgents(ctx, "w1", ""); len(all) != 2 {
		t.Fatalf("expected 2 agents for w1, got %d", len(all))
	}
}

func TestWidgetDocuments(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetWidget(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	settings := domain.DefaultWidgetSettings()
	settings.Title = "Helper"
	if err := s.PutWidget(ctx, domain.WidgetDocument{ClientID: "c1", WidgetSettings: settings}); err != nil {
		t.Fatalf("PutWidget failed: %v", err)
	}
	doc, err := s.GetWidget(ctx, "c1")
	if err != nil || doc.WidgetSettings.Title != "Helper" || len(doc.WidgetSettings.ReadyQuestions) != 2 {
		t.Fatalf("GetWidget: %+v err=%v", doc, err)
	}
}
