package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"voicebot/internal/metrics"
)

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a durable topic
// exchange, routing by event type.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

func NewAMQPPublisher(url, exchange string, log *slog.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		return nil, errors.New("events: exchange is required")
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, log: log}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, env Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, p.exchange, env.Meta.Type, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		AppId:         Producer,
		Timestamp:     env.Meta.Time,
		Body:          body,
	})
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// Noop discards every event; used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Envelope) error { return nil }
func (Noop) Close() error                            { return nil }

// Memory keeps published envelopes for tests.
type Memory struct {
	mu        sync.Mutex
	envelopes []Envelope
	Err       error
}

func (m *Memory) Publish(_ context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.envelopes = append(m.envelopes, env)
	return nil
}

func (m *Memory) Close() error { return nil }

// OfType returns the published envelopes with the given type.
func (m *Memory) OfType(eventType string) []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Envelope
	for _, e := range m.envelopes {
		if e.Meta.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Emitter wraps a Publisher for the engines: bounded, logged, never failing.
type Emitter struct {
	pub     Publisher
	log     *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewEmitter(pub Publisher, log *slog.Logger, m *metrics.Metrics) *Emitter {
	if pub == nil {
		pub = Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{pub: pub, log: log, metrics: m, timeout: 3 * time.Second}
}

// Emit publishes one event. Failures are logged and counted only.
func (e *Emitter) Emit(ctx context.Context, eventType, correlationID string, data any) {
	if e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	err := e.pub.Publish(ctx, NewEnvelope(eventType, correlationID, data))
	e.metrics.EventPublished(eventType, err)
	if err != nil {
		e.log.Warn("event publish failed", "type", eventType, "correlation_id", correlationID, "err", err)
	}
}
