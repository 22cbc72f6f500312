package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/agentdesk/internal/chatlog"
	"github.com/ashureev/agentdesk/internal/classifier"
	"github.com/ashureev/agentdesk/internal/config"
	"github.com/ashureev/agentdesk/internal/convstore"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/executor"
	"github.com/ashureev/agentdesk/internal/identity"
	"github.com/ashureev/agentdesk/internal/orchestrator"
	"github.com/ashureev/agentdesk/internal/registry"
	"github.com/ashureev/agentdesk/internal/transport"
)

var widgetFlags struct {
	website     string
	client      string
	backend     string
	marketplace string
	store       string
	classifier  string
}

var widgetCmd = &cobra.Command{
	Use:   "widget",
	Short: "Chat with the storefront assistant",
	Long: `Run the chat widget in the terminal.

Commands:
  /specialist   talk to a human specialist
  /cart N       add product N of the last list to the cart
  /ask N        send ready question N
  /clear        wipe the conversation
  /quit         leave`,
}

func init() {
	// Set here rather than in the literal: runWidget reads widgetCmd.Long, which would
	// otherwise form an initialization cycle.
	widgetCmd.RunE = runWidget
	f := widgetCmd.Flags()
	f.StringVar(&widgetFlags.website, "website", "", "website id (WEBSITE_ID)")
	f.StringVar(&widgetFlags.client, "client", "", "client id (CLIENT_ID)")
	f.StringVar(&widgetFlags.backend, "backend", "", "backend URL (BACKEND_URL)")
	f.StringVar(&widgetFlags.marketplace, "marketplace", "", "marketplace URL (MARKETPLACE_URL)")
	f.StringVar(&widgetFlags.store, "store", "", "conversation store: sqlite or redis (CONVERSATION_STORE)")
	f.StringVar(&widgetFlags.classifier, "classifier", "", "classifier backend (CLASSIFIER_BACKEND)")
	rootCmd.AddCommand(widgetCmd)
}

func widgetConfig() (*config.WidgetConfig, error) {
	cfg := config.LoadWidget()
	override(&cfg.WebsiteID, widgetFlags.website)
	override(&cfg.ClientID, widgetFlags.client)
	override(&cfg.BackendURL, widgetFlags.backend)
	override(&cfg.MarketplaceURL, widgetFlags.marketplace)
	override(&cfg.ConversationStore, widgetFlags.store)
	override(&cfg.Classifier.Backend, widgetFlags.classifier)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func override(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}

func runWidget(cmd *cobra.Command, _ []string) error {
	cfg, err := widgetConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	userID, err := identity.LoadOrCreate(cfg.IdentityPath)
	if err != nil {
		return err
	}

	store, err := openConversationStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	client := transport.NewClient(cfg.BackendURL, nil)
	settings, err := client.WidgetSettings(ctx, cfg.ClientID)
	if err != nil {
		logger.Warn("widget settings unavailable, using defaults", "error", err)
		settings = domain.DefaultWidgetSettings()
	}

	loader := registry.NewLoader(cfg.BackendURL, nil, cfg.RegistryCacheTTL, logger)
	reg, err := loader.Load(ctx, cfg.WebsiteID)
	if err != nil {
		logger.Warn("agent registry unavailable", "error", err)
		reg = registry.New(nil, nil)
	}
	go refreshRegistry(ctx, loader, reg, cfg.WebsiteID, cfg.RegistryCacheTTL)

	// A nil classifier disables automation but keeps live chat.
	var cls classifier.Classifier
	if c, err := classifier.New(cfg.Classifier.Options(), logger); err != nil {
		logger.Error("classifier unavailable", "backend", cfg.Classifier.Backend, "error", err)
	} else {
		cls = c
	}

	opts := []executor.Option{executor.WithLogger(logger)}
	if cfg.CSRFToken != "" {
		opts = append(opts, executor.WithCSRFToken(cfg.CSRFToken))
	}

	orch := orchestrator.New(orchestrator.Config{
		Classifier:      cls,
		Registry:        reg,
		Invoker:         executor.New(cfg.MarketplaceURL, opts...),
		ConfirmationURL: cfg.ConfirmationURL,
		Availability: func(t time.Time) bool {
			return cfg.LiveChat && settings.LiveChatAvailable(t)
		},
		Logger: logger,
	})

	sessCfg := orchestrator.SessionConfig{
		Orchestrator: orch,
		UserID:       userID,
		ClientID:     cfg.ClientID,
		Store:        store,
		API:          client,
		Logger:       logger,
	}
	if cfg.LiveChat {
		sessCfg.Dialer = &transport.ChatDialer{BaseURL: cfg.WSURL, ClientID: cfg.ClientID, UserID: userID, Logger: logger}
	}
	sess := orchestrator.NewSession(sessCfg)
	defer sess.Close()

	convLog, err := chatlog.NewConversationLogger(chatlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return err
	}
	defer convLog.Close()

	con, err := newConsole("> ")
	if err != nil {
		return err
	}
	defer con.Close()

	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	w := &widgetREPL{sess: sess, con: con, settings: settings, log: convLog}
	for _, msg := range sess.State().Messages() {
		w.shelf.observe(msg)
		con.Println(renderMessage(msg))
	}
	unsubscribe := sess.State().Subscribe(w.onMessage)
	defer unsubscribe()

	w.greet()
	return w.run(ctx)
}

func openConversationStore(cfg *config.WidgetConfig) (convstore.Store, error) {
	var codec convstore.Codec = convstore.PlainCodec{}
	if cfg.Secret != "" {
		salt, err := convstore.GetOrCreateSalt(cfg.IdentityPath + ".salt")
		if err != nil {
			return nil, fmt.Errorf("conversation salt: %w", err)
		}
		sealed, err := convstore.NewSealedCodec(cfg.Secret, salt)
		if err != nil {
			return nil, err
		}
		codec = sealed
	}

	if cfg.ConversationStore == "redis" {
		return convstore.NewRedis(convstore.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.ConversationTTL,
		}, codec, logger)
	}
	return convstore.NewSQLite(cfg.ConversationDB, codec, logger)
}

func refreshRegistry(ctx context.Context, loader *registry.Loader, reg *registry.Registry, websiteID string, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := loader.Refresh(ctx, reg, websiteID); err != nil {
				logger.Debug("registry refresh failed", "error", err)
			}
		}
	}
}

type widgetREPL struct {
	sess     *orchestrator.Session
	con      console
	settings domain.WidgetSettings
	log      chatlog.Logger
	shelf    productShelf
	notice   string
}

// onMessage prints every appended message except the user's own echo.
func (w *widgetREPL) onMessage(msg domain.Message) {
	st := w.sess.State()
	direction := chatlog.DirectionOutbound
	if msg.Sender == domain.SenderUser {
		direction = chatlog.DirectionInbound
	}
	w.log.Log(chatlog.MessageEvent(chatlog.ChannelWidget, direction, string(msg.Sender)+"_message", st.UserID(), st.SessionID(), msg))

	if msg.Sender == domain.SenderUser {
		return
	}
	w.shelf.observe(msg)
	w.con.Println(renderMessage(msg))
}

func (w *widgetREPL) greet() {
	title := w.settings.Title
	if title == "" {
		title = "Chat"
	}
	w.con.Println("== " + title + " ==")
	if w.settings.WelcomeMessage != "" {
		w.con.Println(w.settings.WelcomeMessage)
	}
	for i, q := range w.settings.ReadyQuestions {
		w.con.Println(fmt.Sprintf("  /ask %d  %s", i+1, q.Label))
	}
	w.showNotice()
}

func (w *widgetREPL) showNotice() {
	if n := w.sess.State().Notice(); n != "" && n != w.notice {
		w.notice = n
		w.con.Println("! " + n)
	}
}

func (w *widgetREPL) run(ctx context.Context) error {
	for {
		line, err := w.con.ReadLine()
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
		var reply orchestrator.Reply
		switch cmd.Name {
		case "":
			reply, err = w.sess.Send(ctx, cmd.Text)
		case "quit", "exit":
			return nil
		case "specialist":
			reply, err = w.sess.RequestSpecialist(ctx)
		case "clear":
			reply, err = w.sess.Clear(ctx)
			if err == nil {
				w.con.Println("(conversation cleared)")
			}
		case "cart":
			product, pickErr := w.shelf.pick(cmd.Arg)
			if pickErr != nil {
				w.con.Println(pickErr.Error())
				continue
			}
			reply, err = w.sess.AddToCart(ctx, product)
		case "ask":
			q, askErr := w.readyQuestion(cmd.Arg)
			if askErr != nil {
				w.con.Println(askErr.Error())
				continue
			}
			reply, err = w.sess.Send(ctx, q)
		case "help":
			w.con.Println(strings.TrimSpace(widgetCmd.Long))
			continue
		default:
			w.con.Println("unknown command /" + cmd.Name + ", try /help")
			continue
		}

		if err != nil {
			if errors.Is(err, orchestrator.ErrSessionClosed) || ctx.Err() != nil {
				return nil
			}
			logger.Warn("widget action failed", "command", cmd.Name, "error", err)
			continue
		}
		if reply.RedirectTo != "" {
			w.con.Println("-> redirecting to " + reply.RedirectTo)
		}
		w.showNotice()
	}
}

func (w *widgetREPL) readyQuestion(arg string) (string, error) {
	var n int
	if _, err := fmt.Sscanf(arg, "%d", &n); err != nil || n < 1 || n > len(w.settings.ReadyQuestions) {
		return "", fmt.Errorf("choose a question between 1 and %d", len(w.settings.ReadyQuestions))
	}
	return w.settings.ReadyQuestions[n-1].Query, nil
}
