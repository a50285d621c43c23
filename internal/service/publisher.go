package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/webshop-accounts/internal/metrics"
	"github.com/iliyamo/webshop-accounts/internal/queue"
)

// Publisher delivers account events.  Failures are returned so callers can
// log them; they never abort the request that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev queue.AccountEvent) error
}

// NopPublisher drops every event.  It is used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.AccountEvent) error { return nil }

var (
	// ErrPublisherBusy means the event buffer is full and the event was dropped.
	ErrPublisherBusy = errors.New("event buffer full")
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("publisher closed")
)

const (
	eventBuffer       = 256
	brokerDialTimeout = 3 * time.Second
	brokerBackoff     = 5 * time.Second
)

// AMQPPublisher publishes events to the account.events queue.  Publish only
// enqueues; a single goroutine owns the broker connection, dials it on
// first use and re-dials after the broker drops it.  While the broker is
// unreachable events are dropped rather than held, so request latency
// never depends on RabbitMQ.
type AMQPPublisher struct {
	url         string
	dialTimeout time.Duration
	metrics     *metrics.Metrics
	log         *slog.Logger

	mu     sync.RWMutex // guards closed against sends on events
	closed bool
	events chan queue.AccountEvent
	done   chan struct{}

	// owned by run
	conn      *amqp.Connection
	ch        *amqp.Channel
	downUntil time.Time
}

// NewAMQPPublisher starts the delivery goroutine.  Close stops it.
func NewAMQPPublisher(url string, m *metrics.Metrics, log *slog.Logger) *AMQPPublisher {
	return newAMQPPublisher(url, eventBuffer, brokerDialTimeout, m, log)
}

func newAMQPPublisher(url string, buffer int, dialTimeout time.Duration, m *metrics.Metrics, log *slog.Logger) *AMQPPublisher {
	p := &AMQPPublisher{
		url:         url,
		dialTimeout: dialTimeout,
		metrics:     m,
		log:         log,
		events:      make(chan queue.AccountEvent, buffer),
		done:        make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish hands ev to the delivery goroutine without waiting for the broker.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.AccountEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.events <- ev:
		return nil
	default:
		p.metrics.PublishResult(metrics.EventDropped)
		return ErrPublisherBusy
	}
}

// Close stops accepting events, drains the buffer and releases the broker
// connection.  Draining is bounded by one dial timeout since events are
// dropped while the broker is down.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()
	<-p.done
	return nil
}

func (p *AMQPPublisher) run() {
	defer close(p.done)
	for ev := range p.events {
		p.deliver(ev)
	}
	p.reset()
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *AMQPPublisher) deliver(ev queue.AccountEvent) {
	if time.Now().Before(p.downUntil) {
		p.metrics.PublishResult(metrics.EventDropped)
		p.log.Debug("broker down, event dropped", "type", ev.Type, "event_id", ev.ID)
		return
	}
	ch, err := p.channel()
	if err != nil {
		p.downUntil = time.Now().Add(brokerBackoff)
		p.metrics.PublishResult(metrics.EventFailed)
		p.log.Warn("account event not published", "type", ev.Type, "event_id", ev.ID, "err", err)
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		p.metrics.PublishResult(metrics.EventFailed)
		p.log.Error("marshal account event", "type", ev.Type, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx, "", queue.AccountEventsQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		// force a fresh channel next time
		p.reset()
		p.metrics.PublishResult(metrics.EventFailed)
		p.log.Warn("account event not published", "type", ev.Type, "event_id", ev.ID, "err", err)
		return
	}
	p.metrics.PublishResult(metrics.EventPublished)
}

// channel returns an open channel, dialing when needed.  The dial and the
// AMQP handshake share one deadline.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.DialConfig(p.url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial:      amqp.DefaultDial(p.dialTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		p.conn = conn
		p.log.Info("rabbitmq publisher connected", "queue", queue.AccountEventsQueue)
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	// durable so events survive broker restarts
	if _, err := ch.QueueDeclare(queue.AccountEventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}
