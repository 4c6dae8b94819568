// Package events publishes delivery audit events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

type Kind string

const (
	KindDeadLettered Kind = "message.dead_lettered"
	KindFailed       Kind = "message.failed"
	KindStateChanged Kind = "instance.state_changed"
)

// Event is one audit record.
type Event struct {
	Kind        Kind      `json:"kind"`
	InstanceID  string    `json:"instance_id"`
	MessageID   int64     `json:"message_id,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// Publisher delivers events to an audit sink. Publishing is best effort;
// callers log the error and carry on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher writes events to the application log.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("Audit event",
		zap.String("kind", string(e.Kind)),
		zap.String("instanceID", e.InstanceID),
		zap.Int64("messageID", e.MessageID),
		zap.String("reason", e.Reason),
		zap.Time("at", e.At))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// session is one broker connection with its publishing channel.
type session interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpSession struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed chan *amqp.Error
}

func dialAMQP(url, exchange string) (session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// The channel closes with its connection, so one listener covers both.
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	return &amqpSession{conn: conn, ch: ch, closed: closed}, nil
}

func (s *amqpSession) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	select {
	case <-s.closed:
		return amqp.ErrClosed
	default:
	}
	return s.ch.Publish(exchange, key, mandatory, immediate, msg)
}

func (s *amqpSession) Close() error {
	_ = s.ch.Close()
	return s.conn.Close()
}

// AMQPPublisher publishes events to a durable topic exchange, routed by kind.
// A session closed by the broker is replaced on the next publish.
type AMQPPublisher struct {
	exchange string
	logger   *zap.Logger
	dial     func() (session, error)

	mu   sync.Mutex
	sess session
}

func NewAMQPPublisher(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		exchange: exchange,
		logger:   logger,
		dial:     func() (session, error) { return dialAMQP(url, exchange) },
	}

	sess, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.sess = sess

	logger.Info("Audit events go to broker", zap.String("exchange", exchange))
	return p, nil
}

func (p *AMQPPublisher) Publish(_ context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sess != nil {
		err = p.sess.Publish(p.exchange, string(e.Kind), false, false, msg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("failed to publish event: %w", err)
		}
		p.logger.Warn("Broker session closed, reconnecting", zap.Error(err))
		_ = p.sess.Close()
		p.sess = nil
	}

	sess, err := p.dial()
	if err != nil {
		return fmt.Errorf("failed to reconnect to broker: %w", err)
	}
	p.sess = sess

	if err := p.sess.Publish(p.exchange, string(e.Kind), false, false, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sess == nil {
		return nil
	}
	err := p.sess.Close()
	p.sess = nil
	return err
}

// Recorder keeps published events in memory. Tests use it to assert on the
// audit trail.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
