package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/mail-failover/internal/domain"
	"github.com/kursadbilgin/mail-failover/internal/observability"
	"go.uber.org/zap"
)

// LineTimeLayout renders UTC instants as ISO-8601 with millisecond precision.
const LineTimeLayout = "2006-01-02T15:04:05.000Z"

// Sink defines the interface for escalation audit destinations.
type Sink interface {
	// Write records one escalation event.
	Write(ctx context.Context, event *domain.EscalationEvent) error

	// Close releases any resources held by the sink.
	Close() error

	// Name returns the sink's identifier.
	Name() string
}

// FormatLine renders the human readable audit line for an escalation.
func FormatLine(event *domain.EscalationEvent) string {
	return fmt.Sprintf("[%s] Backup email used. Email sent to %s via %s.",
		event.OccurredAt.UTC().Format(LineTimeLayout),
		event.Recipient,
		event.Identity,
	)
}

// MultiSink writes to every configured sink in order.
type MultiSink struct {
	sinks   []Sink
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewMultiSink(sinks []Sink, logger *zap.Logger, metrics *observability.Metrics) *MultiSink {
	if logger == nil {
		logger = zap.NewNop()
	}

	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}

	return &MultiSink{
		sinks:   filtered,
		logger:  logger,
		metrics: metrics,
	}
}

// Write sends the event to all sinks. A failing sink does not stop the others.
func (s *MultiSink) Write(ctx context.Context, event *domain.EscalationEvent) error {
	if event == nil {
		return fmt.Errorf("escalation event is required")
	}

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, event); err != nil {
			s.logger.Warn("audit sink write failed",
				zap.String("sink", sink.Name()),
				zap.String("eventId", event.ID),
				zap.Error(err),
			)
			s.metrics.IncAuditSinkFailure(sink.Name())
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}

	return errors.Join(errs...)
}

func (s *MultiSink) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *MultiSink) Name() string {
	return "multi"
}

// Names lists the wrapped sinks.
func (s *MultiSink) Names() []string {
	names := make([]string, 0, len(s.sinks))
	for _, sink := range s.sinks {
		names = append(names, sink.Name())
	}
	return names
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
