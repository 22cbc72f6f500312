package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/orchestrator"
	"github.com/ashureev/agentdesk/internal/transport"
)

const sessionPollInterval = 10 * time.Second

var specialistFlags struct {
	backend string
	website string
	agentID string
	name    string
	email   string
}

var specialistCmd = &cobra.Command{
	Use:   "specialist",
	Short: "Answer live chats as a human agent",
	Long: `Go online as a human agent and answer customers.

Commands:
  /sessions          list sessions assigned to you
  /reply ID TEXT     reply in a session (plain text goes to the last active one)
  /close ID          close a session
  /quit              go offline and leave`,
}

func init() {
	// Set here rather than in the literal: runSpecialist reads specialistCmd.Long, which would
	// otherwise form an initialization cycle.
	specialistCmd.RunE = runSpecialist
	f := specialistCmd.Flags()
	f.StringVar(&specialistFlags.backend, "backend", "", "backend URL (BACKEND_URL)")
	f.StringVar(&specialistFlags.website, "website", "", "website id (WEBSITE_ID)")
	f.StringVar(&specialistFlags.agentID, "agent-id", "", "human agent id")
	f.StringVar(&specialistFlags.name, "name", "", "display name")
	f.StringVar(&specialistFlags.email, "email", "", "contact email")
	_ = specialistCmd.MarkFlagRequired("agent-id")
	rootCmd.AddCommand(specialistCmd)
}

func runSpecialist(cmd *cobra.Command, _ []string) error {
	flags := specialistFlags
	flags.backend = orEnv(flags.backend, "BACKEND_URL", "http://localhost:8080")
	flags.website = orEnv(flags.website, "WEBSITE_ID", "")
	if flags.website == "" {
		return errors.New("--website or WEBSITE_ID is required")
	}
	if flags.name == "" {
		flags.name = flags.agentID
	}
	if flags.email == "" {
		flags.email = flags.agentID + "@" + flags.website
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := transport.NewClient(flags.backend, nil)
	err := client.RegisterHumanAgent(ctx, domain.HumanAgent{
		WebsiteID: flags.website,
		AgentID:   flags.agentID,
		Name:      flags.name,
		Email:     flags.email,
	})
	if err != nil {
		return fmt.Errorf("register agent: %w", err)
	}
	if err := client.SetHumanAgentStatus(ctx, flags.agentID, domain.AgentOnline); err != nil {
		return fmt.Errorf("go online: %w", err)
	}
	defer func() {
		offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.SetHumanAgentStatus(offCtx, flags.agentID, domain.AgentOffline); err != nil {
			logger.Warn("failed to go offline", "error", err)
		}
	}()

	conn, err := (&transport.SpecialistDialer{BaseURL: flags.backend, AgentID: flags.agentID, Logger: logger}).Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	con, err := newConsole(flags.agentID + "> ")
	if err != nil {
		return err
	}
	defer con.Close()

	desk := &specialistDesk{
		client:   client,
		conn:     conn,
		con:      con,
		agentID:  flags.agentID,
		clientID: flags.website,
		seen:     make(map[string]bool),
	}
	con.Println(fmt.Sprintf("%s is online for %s. Type /help for commands.", flags.name, flags.website))

	go desk.receive(ctx)
	go desk.poll(ctx, sessionPollInterval)
	return desk.run(ctx)
}

// specialistDesk tracks the sessions a human agent is handling.
type specialistDesk struct {
	client   *transport.Client
	conn     *transport.Conn
	con      console
	agentID  string
	clientID string

	mu   sync.Mutex
	seen map[string]bool
	last string
}

func (d *specialistDesk) setLast(sessionID string) {
	d.mu.Lock()
	d.last = sessionID
	d.mu.Unlock()
}

func (d *specialistDesk) lastSession() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *specialistDesk) receive(ctx context.Context) {
	for {
		frame, err := d.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, orchestrator.ErrTransportClosed) {
				logger.Warn("live chat receive failed", "error", err)
			}
			if ctx.Err() == nil {
				d.con.Println("! disconnected from live chat")
			}
			return
		}
		d.con.Println(d.renderFrame(frame))
	}
}

func (d *specialistDesk) renderFrame(frame domain.Frame) string {
	if frame.Error != "" {
		return "! " + frame.Error
	}
	if frame.SessionID != "" {
		d.markSeen(frame.SessionID)
		d.setLast(frame.SessionID)
	}
	if frame.Message == nil {
		return fmt.Sprintf("[%s] (event)", frame.SessionID)
	}
	return fmt.Sprintf("[%s] %s", frame.SessionID, renderMessage(*frame.Message))
}

// markSeen reports whether the session was new.
func (d *specialistDesk) markSeen(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[sessionID] {
		return false
	}
	d.seen[sessionID] = true
	return true
}

func (d *specialistDesk) poll(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		d.announceNew(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *specialistDesk) announceNew(ctx context.Context) {
	sessions, err := d.client.ListSessions(ctx, d.agentID, d.clientID)
	if err != nil {
		if ctx.Err() == nil {
			logger.Debug("list sessions failed", "error", err)
		}
		return
	}
	for _, s := range sessions {
		if s.IsOpen() && d.markSeen(s.SessionID) {
			d.con.Println(fmt.Sprintf("* new session %s from %s", s.SessionID, s.UserID))
		}
	}
}

func (d *specialistDesk) run(ctx context.Context) error {
	for {
		line, err := d.con.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		cmd := parseCommand(line)
		switch cmd.Name {
		case "":
			if cmd.Text == "" {
				continue
			}
			d.reply(ctx, d.lastSession(), cmd.Text)
		case "reply":
			id, text, _ := strings.Cut(cmd.Arg, " ")
			if id == "" || strings.TrimSpace(text) == "" {
				d.con.Println("usage: /reply <session id> <text>")
				continue
			}
			d.reply(ctx, id, strings.TrimSpace(text))
		case "sessions":
			d.listSessions(ctx)
		case "close":
			d.closeSession(ctx, cmd.Arg)
		case "help":
			d.con.Println(strings.TrimSpace(specialistCmd.Long))
		case "quit", "exit":
			return nil
		default:
			d.con.Println("unknown command /" + cmd.Name + ", try /help")
		}
	}
}

func (d *specialistDesk) reply(ctx context.Context, sessionID, text string) {
	if sessionID == "" {
		d.con.Println("no active session, use /reply <session id> <text>")
		return
	}
	msg := domain.NewText(domain.SenderAgent, text)
	if err := d.conn.Send(ctx, domain.Frame{SessionID: sessionID, Message: &msg}); err != nil {
		d.con.Println("! send failed: " + err.Error())
		return
	}
	d.setLast(sessionID)
}

func (d *specialistDesk) listSessions(ctx context.Context) {
	sessions, err := d.client.ListSessions(ctx, d.agentID, d.clientID)
	if err != nil {
		d.con.Println("! " + err.Error())
		return
	}
	if len(sessions) == 0 {
		d.con.Println("no sessions")
		return
	}
	for _, s := range sessions {
		d.markSeen(s.SessionID)
		d.con.Println(fmt.Sprintf("  %s  user=%s  status=%s  messages=%d", s.SessionID, s.UserID, s.Status, len(s.Messages)))
	}
}

func (d *specialistDesk) closeSession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		sessionID = d.lastSession()
	}
	if sessionID == "" {
		d.con.Println("usage: /close <session id>")
		return
	}
	if err := d.client.CloseSession(ctx, sessionID); err != nil {
		d.con.Println("! " + err.Error())
		return
	}
	d.con.Println("closed " + sessionID)
	if d.lastSession() == sessionID {
		d.setLast("")
	}
}
