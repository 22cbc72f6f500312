package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LiveChatHours is the daily window during which specialists are reachable.
type LiveChatHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// Contains reports whether t falls within the window. A window whose end is
// before its start wraps past midnight.
func (h LiveChatHours) Contains(t time.Time) (bool, error) {
	if h.Start == "" || h.End == "" {
		return true, nil
	}
	loc := time.UTC
	if h.Timezone != "" {
		l, err := time.LoadLocation(h.Timezone)
		if err != nil {
			return false, fmt.Errorf("load timezone %q: %w", h.Timezone, err)
		}
		loc = l
	}
	start, err := minuteOfDay(h.Start)
	if err != nil {
		return false, err
	}
	end, err := minuteOfDay(h.End)
	if err != nil {
		return false, err
	}
	local := t.In(loc)
	now := local.Hour()*60 + local.Minute()
	if start <= end {
		return now >= start && now < end, nil
	}
	return now >= start || now < end, nil
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ReadyQuestion is a canned prompt shown as a button.
type ReadyQuestion struct {
	Label string `json:"label"`
	Query string `json:"query"`
}

// WidgetSettings is the per-client widget customization document.
type WidgetSettings struct {
	PrimaryColor    string          `json:"primaryColor"`
	BackgroundColor string          `json:"backgroundColor"`
	TextColor       string          `json:"textColor"`
	LogoURL         string          `json:"logoUrl"`
	Font            string          `json:"font"`
	FontSize        string          `json:"fontSize"`
	Position        string          `json:"position"`
	IsCollapsed     bool            `json:"isCollapsed"`
	WelcomeMessage  string          `json:"welcomeMessage"`
	ReadyQuestions  []ReadyQuestion `json:"readyQuestions"`
	ShowClearChat   bool            `json:"showClearChat"`
	ShowAddToCart   bool            `json:"showAddToCart"`
	DefaultWidth    int             `json:"defaultWidth"`
	DefaultHeight   int             `json:"defaultHeight"`
	Title           string          `json:"title"`
	EnableLiveChat  bool            `json:"enableLiveChat"`
	LiveChatHours   LiveChatHours   `json:"liveChatHours"`
}

// WidgetDocument is the stored settings document of one client.
type WidgetDocument struct {
	ClientID       string         `json:"clientId"`
	WidgetSettings WidgetSettings `json:"widgetSettings"`
}

// DefaultWidgetSettings returns the settings a new client starts with.
func DefaultWidgetSettings() WidgetSettings {
	return WidgetSettings{
		PrimaryColor:    "#3b82f6",
		BackgroundColor: "#ffffff",
		TextColor:       "#000000",
		LogoURL:         "/img/logo/logo.jpg",
		Font:            "Arial",
		FontSize:        "16px",
		Position:        "bottom-right",
		IsCollapsed:     true,
		WelcomeMessage:  "Welcome to our support chat!",
		ReadyQuestions: []ReadyQuestion{
			{Label: "Cheapest headphones", Query: "cheapest headphones"},
			{Label: "Order status", Query: "order status"},
		},
		ShowClearChat:  true,
		ShowAddToCart:  true,
		DefaultWidth:   400,
		DefaultHeight:  500,
		Title:          "Zipper Bot",
		EnableLiveChat: true,
		LiveChatHours:  LiveChatHours{Start: "09:00", End: "17:00", Timezone: "UTC"},
	}
}

var (
	// ErrInvalidLogoURL is returned when the logo is neither absolute nor site-relative.
	ErrInvalidLogoURL = errors.New("logo URL must start with http://, https:// or /")
	// ErrInvalidReadyQuestions is returned when a ready question lacks a label or query.
	ErrInvalidReadyQuestions = errors.New("invalid ready questions format")
)

// Validate checks the settings before they are stored.
func (w WidgetSettings) Validate() error {
	if w.LogoURL != "" &&
		!strings.HasPrefix(w.LogoURL, "http://") &&
		!strings.HasPrefix(w.LogoURL, "https://") &&
		!strings.HasPrefix(w.LogoURL, "/") {
		return ErrInvalidLogoURL
	}
	for _, q := range w.ReadyQuestions {
		if strings.TrimSpace(q.Label) == "" || strings.TrimSpace(q.Query) == "" {
			return ErrInvalidReadyQuestions
		}
	}
	if w.DefaultWidth < 0 || w.DefaultHeight < 0 {
		return errors.New("widget dimensions must not be negative")
	}
	return nil
}

// LiveChatAvailable reports whether a specialist may be requested at t.
func (w WidgetSettings) LiveChatAvailable(t time.Time) bool {
	if !w.EnableLiveChat {
		return false
	}
	ok, err := w.LiveChatHours.Contains(t)
	return err == nil && ok
}
