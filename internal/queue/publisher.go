package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// dialTimeout bounds connection setup when ctx has no deadline of its own.
const dialTimeout = 5 * time.Second

// errBrokerDown is returned while the publisher waits out the backoff
// after a failed dial.
var errBrokerDown = errors.New("broker unavailable, not redialing yet")

// dial opens an AMQP connection whose TCP connect and handshake both end
// at ctx's deadline.  amqp.Dial would wait up to its own 30s default.
func dial(ctx context.Context, url string) (*amqp.Connection, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(dialTimeout)
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			d := net.Dialer{Deadline: deadline}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// cleared by amqp once the handshake completes
			if err := conn.SetDeadline(deadline); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return conn, nil
		},
	})
}

// Publisher sends session events to a durable queue.  The AMQP connection
// and channel are opened lazily and reopened after the broker drops them.
// A failed dial is not retried until an exponential backoff has elapsed,
// so publishes during an outage fail fast instead of each waiting on the
// network.  It is safe for concurrent use.
type Publisher struct {
	url   string
	queue string
	log   *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	redial   *backoff.ExponentialBackOff
	nextDial time.Time
}

// NewPublisher returns a Publisher for url and queue.  No connection is
// made until the first Publish.
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0
	return &Publisher{url: url, queue: queue, log: log.Named("publisher"), redial: bo}
}

// channel returns an open channel, dialing and declaring the queue when
// needed.  Callers must hold p.mu.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		if time.Now().Before(p.nextDial) {
			return nil, errBrokerDown
		}
		conn, err := dial(ctx, p.url)
		if err != nil {
			p.nextDial = time.Now().Add(p.redial.NextBackOff())
			return nil, fmt.Errorf("dial: %w", err)
		}
		p.redial.Reset()
		p.nextDial = time.Time{}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.ch = ch
	return ch, nil
}

// Publish sends ev as a persistent JSON message whose MessageId is the
// event id.  Errors are logged and returned so the caller can choose to
// ignore them.
func (p *Publisher) Publish(ctx context.Context, ev SessionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		p.log.Warn("rabbitmq unavailable", zap.Error(err))
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.log.Warn("publish failed", zap.String("event_id", ev.EventID), zap.Error(err))
		_ = ch.Close()
		p.ch = nil
		return err
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// NopPublisher discards every event.  It is used when events are
// disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, SessionEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
