package queue

import "context"

// Publisher publishes escalation messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg EscalationMessage) error
	Close() error
}

// EscalationsQueue carries one message per backup escalation.
const EscalationsQueue = "mail.escalations"

// QueueNames returns the durable queues declared on connect.
func QueueNames() []string {
	return []string{EscalationsQueue}
}
