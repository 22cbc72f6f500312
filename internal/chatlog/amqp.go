package chatlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultAMQPQueue = "agentdesk.conversations"

// AMQPConfig describes the RabbitMQ connection for event publication.
type AMQPConfig struct {
	URL       string
	Queue     string
	QueueSize int
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPLogger publishes events as persistent JSON messages to a durable queue.
type AMQPLogger struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	pub    publisher
	queue  string
	logger *slog.Logger

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewAMQPLogger connects to RabbitMQ and declares the queue.
func NewAMQPLogger(cfg AMQPConfig, logger *slog.Logger) (*AMQPLogger, error) {
	if cfg.URL == "" {
		return nil, errors.New("AMQP URL is required")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = defaultAMQPQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open RabbitMQ channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare RabbitMQ queue: %w", err)
	}

	l := newAMQPLogger(ch, queue, cfg.QueueSize, logger)
	l.conn, l.ch = conn, ch
	return l, nil
}

func newAMQPLogger(pub publisher, queue string, size int, logger *slog.Logger) *AMQPLogger {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = defaultQueueSize
	}
	l := &AMQPLogger{
		pub:    pub,
		queue:  queue,
		logger: logger,
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Log enqueues an event for publication.
func (l *AMQPLogger) Log(event Event) {
	if event.Content == "" && event.ContentRaw != "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}
	select {
	case l.events <- event:
	default:
		l.logger.Warn("AMQP conversation queue full, dropping event", "event_type", event.EventType)
	}
}

// Close drains pending events and closes the connection.
func (l *AMQPLogger) Close() error {
	l.once.Do(func() { close(l.events) })
	<-l.done
	var errs []error
	if l.ch != nil {
		errs = append(errs, l.ch.Close())
	}
	if l.conn != nil {
		errs = append(errs, l.conn.Close())
	}
	return errors.Join(errs...)
}

func (l *AMQPLogger) run() {
	defer close(l.done)
	for event := range l.events {
		if err := l.publish(event); err != nil {
			l.logger.Warn("failed to publish conversation event", "error", err, "session_id", event.SessionID)
		}
	}
}

func (l *AMQPLogger) publish(event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.pub.PublishWithContext(ctx, "", l.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		Type:         event.EventType,
		Body:         body,
	})
}
