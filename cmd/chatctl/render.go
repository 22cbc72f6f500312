package main

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/ashureev/agentdesk/internal/domain"
)

var senderLabels = map[domain.Sender]string{
	domain.SenderUser:  "You",
	domain.SenderBot:   "Bot",
	domain.SenderAgent: "Agent",
}

// renderMessage formats one transcript entry for the terminal.
func renderMessage(msg domain.Message) string {
	label := senderLabels[msg.Sender]
	if label == "" {
		label = string(msg.Sender)
	}

	switch msg.Kind() {
	case domain.KindProducts:
		var b strings.Builder
		caption := msg.Result
		if caption == "" {
			caption = fmt.Sprintf("%d products", len(msg.Products))
		}
		fmt.Fprintf(&b, "%s: %s", label, caption)
		for i, p := range msg.Products {
			fmt.Fprintf(&b, "\n  [%d] %s", i+1, productLine(p))
		}
		return b.String()
	case domain.KindOrderDetails:
		return fmt.Sprintf("%s: Order details\n%s", label, renderFields(msg.OrderDetails))
	case domain.KindOrderConfirmation:
		return fmt.Sprintf("%s: Order confirmed\n%s", label, renderFields(msg.OrderConfirmation))
	}
	return fmt.Sprintf("%s: %s", label, msg.Text)
}

func productLine(p domain.Product) string {
	name := p.Name()
	if name == "" {
		name = p.ID()
	}
	parts := []string{name}
	if brand, ok := p["brand"].(string); ok && brand != "" {
		parts = append(parts, brand)
	}
	if price, ok := p["price"]; ok {
		parts = append(parts, fmt.Sprint(price))
	}
	return strings.Join(parts, " | ")
}

func renderFields(fields map[string]any) string {
	keys := slices.Sorted(maps.Keys(fields))
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %v", k, fields[k]))
	}
	return strings.Join(lines, "\n")
}

// productShelf remembers the most recently shown product list so that
// "/cart N" can refer to it.
type productShelf struct {
	mu       sync.Mutex
	products []domain.Product
}

func (s *productShelf) observe(msg domain.Message) {
	if len(msg.Products) == 0 {
		return
	}
	s.mu.Lock()
	s.products = slices.Clone(msg.Products)
	s.mu.Unlock()
}

func (s *productShelf) pick(arg string) (domain.Product, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return nil, errors.New("usage: /cart <number>")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.products) == 0 {
		return nil, errors.New("no products shown yet")
	}
	if n < 1 || n > len(s.products) {
		return nil, fmt.Errorf("choose a product between 1 and %d", len(s.products))
	}
	return s.products[n-1], nil
}

// command is a parsed REPL line. Name is empty for plain chat text.
type command struct {
	Name string
	Arg  string
	Text string
}

func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{Text: line}
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return command{Name: strings.ToLower(name), Arg: strings.TrimSpace(arg)}
}
