package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/mail-failover/internal/domain"
	"github.com/kursadbilgin/mail-failover/internal/queue"
)

const defaultPublishTimeout = 10 * time.Second

// QueueSink publishes escalation events to the broker.
type QueueSink struct {
	publisher queue.Publisher
	queue     string
	timeout   time.Duration
}

func NewQueueSink(publisher queue.Publisher, queueName string) (*QueueSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if queueName == "" {
		queueName = queue.EscalationsQueue
	}

	return &QueueSink{
		publisher: publisher,
		queue:     queueName,
		timeout:   defaultPublishTimeout,
	}, nil
}

func (s *QueueSink) Write(ctx context.Context, event *domain.EscalationEvent) error {
	if event == nil {
		return fmt.Errorf("escalation event is required")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.publisher.Publish(ctx, s.queue, queue.NewEscalationMessage(event))
}

func (s *QueueSink) Close() error {
	return s.publisher.Close()
}

func (s *QueueSink) Name() string {
	return "rabbitmq"
}
