package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	connectTimeout   = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// RabbitMQ owns one connection and one confirm-mode channel. It only
// publishes; escalation events are consumed by other systems.
type RabbitMQ struct {
	url  string
	dial func(url string) (*amqp.Connection, error)

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url, dial: amqp.Dial}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := r.Ping(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// Ping reports whether a publishing channel is open, reconnecting if needed.
func (r *RabbitMQ) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.channelLocked(ctx)
	return err
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closeLocked()
}

// publish sends msg to the default exchange and waits for the broker ack.
// Publishes are serialized on the single channel.
func (r *RabbitMQ) publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, err := r.channelLocked(ctx)
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		_ = r.closeLocked()
		return fmt.Errorf("failed to publish to %q: %w", queue, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm publish to %q: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked publish to %q", queue)
	}

	return nil
}

func (r *RabbitMQ) channelLocked(ctx context.Context) (*amqp.Channel, error) {
	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}

	if r.conn == nil || r.conn.IsClosed() {
		conn, err := r.dialWithBackoff(ctx)
		if err != nil {
			return nil, err
		}
		r.conn = conn
	}

	ch, err := r.conn.Channel()
	if err != nil {
		_ = r.closeLocked()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	if err := declareQueues(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	r.ch = ch
	return ch, nil
}

func (r *RabbitMQ) dialWithBackoff(ctx context.Context) (*amqp.Connection, error) {
	wait := reconnectBackoff
	for {
		conn, err := r.dial(r.url)
		if err == nil {
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w (last error: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}

		wait = nextBackoff(wait)
	}
}

func (r *RabbitMQ) closeLocked() error {
	ch, conn := r.ch, r.conn
	r.ch, r.conn = nil, nil

	if ch != nil && !ch.IsClosed() {
		_ = ch.Close()
	}
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

func nextBackoff(wait time.Duration) time.Duration {
	wait *= 2
	if wait > maxBackoff {
		return maxBackoff
	}
	return wait
}

func declareQueues(ch *amqp.Channel) error {
	for _, name := range QueueNames() {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", name, err)
		}
	}
	return nil
}
