package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/mail-failover/internal/counter"
	"github.com/kursadbilgin/mail-failover/internal/domain"
	"github.com/kursadbilgin/mail-failover/internal/observability"
	"github.com/kursadbilgin/mail-failover/internal/provider"
	"github.com/kursadbilgin/mail-failover/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultRetryDelay          = time.Second
	DefaultEscalationThreshold = 4
)

// EscalationNotifier is told about every successful backup delivery. It is
// called on a detached goroutine and must not block the request path.
type EscalationNotifier interface {
	NotifyBackupUsed(ctx context.Context, event *domain.EscalationEvent)
}

type ControllerConfig struct {
	Primary    domain.Identity
	Backup     domain.Identity
	RetryDelay time.Duration
	// Threshold is the post-increment counter value at which the backup
	// identity takes over.
	Threshold int
}

type state int

const (
	stateAttemptPrimary state = iota
	stateRetryWait
	stateAttemptBackup
)

// delivery carries one request through the escalation states.
type delivery struct {
	correlationID string
	msg           domain.Message
	logger        *zap.Logger
	attempt       int
}

type EscalationController struct {
	primary    domain.Identity
	backup     domain.Identity
	provider   provider.Provider
	counter    *counter.Counter
	notifier   EscalationNotifier
	attempts   repository.AttemptRepository
	logger     *zap.Logger
	metrics    *observability.Metrics
	retryDelay time.Duration
	threshold  int
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	newID      func() string

	inflight sync.WaitGroup
}

func NewEscalationController(
	cfg ControllerConfig,
	p provider.Provider,
	c *counter.Counter,
	notifier EscalationNotifier,
	logger *zap.Logger,
) (*EscalationController, error) {
	if err := cfg.Primary.Validate(); err != nil {
		return nil, fmt.Errorf("invalid primary identity: %w", err)
	}
	if cfg.Primary.Role != domain.RolePrimary {
		return nil, fmt.Errorf("%w: primary identity has role %s", domain.ErrValidation, cfg.Primary.Role)
	}
	if err := cfg.Backup.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backup identity: %w", err)
	}
	if cfg.Backup.Role != domain.RoleBackup {
		return nil, fmt.Errorf("%w: backup identity has role %s", domain.ErrValidation, cfg.Backup.Role)
	}
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if c == nil {
		return nil, fmt.Errorf("attempt counter is required")
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("%w: retry delay must not be negative", domain.ErrValidation)
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultEscalationThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EscalationController{
		primary:    cfg.Primary,
		backup:     cfg.Backup,
		provider:   p,
		counter:    c,
		notifier:   notifier,
		logger:     logger,
		retryDelay: cfg.RetryDelay,
		threshold:  cfg.Threshold,
		now:        time.Now,
		sleep:      sleepWithContext,
		newID:      uuid.NewString,
	}, nil
}

func (c *EscalationController) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
	c.metrics.SetAttemptCounter(c.counter.Value())
}

// SetAttemptRepository enables per-attempt history. Recording is best effort.
func (c *EscalationController) SetAttemptRepository(attempts repository.AttemptRepository) {
	if c == nil {
		return
	}
	c.attempts = attempts
}

// Deliver sends the self-test message through the escalation chain. It
// returns as soon as any identity succeeds; the error wraps
// domain.ErrDeliveryFailed only when the backup identity failed as well.
func (c *EscalationController) Deliver(ctx context.Context, subject, body string) (*provider.ProviderResponse, error) {
	correlationID, ok := observability.CorrelationIDFromContext(ctx)
	if !ok {
		correlationID = c.newID()
		ctx = observability.WithCorrelationID(ctx, correlationID)
	}

	msg := domain.NewSelfTestMessage(c.primary, subject, body)
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	d := &delivery{
		correlationID: correlationID,
		msg:           msg,
		logger:        observability.WithContextLogger(c.logger, ctx),
	}

	st := stateAttemptPrimary
	for {
		switch st {
		case stateAttemptPrimary:
			d.attempt++
			resp, err := c.send(ctx, d, c.primary, d.msg)
			if err == nil {
				c.reset(ctx, d)
				return resp, nil
			}

			count := c.increment(ctx, d)
			if count < c.threshold {
				d.logger.Info("retry scheduled",
					zap.Int("attemptCount", count),
					zap.Int("retryBudget", c.threshold-1),
					zap.Duration("retryDelay", c.retryDelay),
				)
				st = stateRetryWait
				continue
			}

			d.logger.Warn("switching to backup identity",
				zap.Int("attemptCount", count),
				zap.Int("retryBudget", c.threshold-1),
				zap.String("identity", c.backup.String()),
			)
			st = stateAttemptBackup

		case stateRetryWait:
			c.metrics.IncRetryScheduled()
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				d.logger.Warn("retry wait interrupted", zap.Error(err))
				return nil, fmt.Errorf("%w: retry interrupted: %w", domain.ErrDeliveryFailed, err)
			}
			st = stateAttemptPrimary

		case stateAttemptBackup:
			d.attempt++
			backupMsg := d.msg.ViaBackup(c.backup, c.primary.Address)
			resp, err := c.send(ctx, d, c.backup, backupMsg)
			if err != nil {
				c.metrics.IncEscalation("failed")
				d.logger.Error("backup delivery failed",
					zap.Int("attemptCount", c.counter.Value()),
					zap.Error(err),
				)
				return nil, fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
			}

			attempts := c.counter.Value()
			c.reset(ctx, d)
			c.metrics.IncEscalation("delivered")

			event := &domain.EscalationEvent{
				ID:            c.newID(),
				CorrelationID: d.correlationID,
				Identity:      c.backup.Address,
				Recipient:     backupMsg.To,
				Outcome:       domain.EscalationDelivered,
				Attempts:      attempts,
				OccurredAt:    c.now().UTC(),
			}
			c.notifyDetached(ctx, d, event)

			return resp, nil

		default:
			return nil, fmt.Errorf("unknown escalation state %d", st)
		}
	}
}

// Wait blocks until detached admin notifications have finished or ctx ends.
func (c *EscalationController) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttemptCount returns the current consecutive failure count.
func (c *EscalationController) AttemptCount() int {
	return c.counter.Value()
}

func (c *EscalationController) send(
	ctx context.Context,
	d *delivery,
	identity domain.Identity,
	msg domain.Message,
) (*provider.ProviderResponse, error) {
	role := strings.ToLower(identity.Role.String())

	sendStart := c.now()
	resp, err := c.provider.Send(ctx, identity, msg)
	c.metrics.ObserveDeliverySendDuration(role, c.now().Sub(sendStart))

	if err != nil {
		c.metrics.IncDeliveryAttempt(role, "failed")
		d.logger.Warn("delivery attempt failed",
			zap.String("role", role),
			zap.Int("attempt", d.attempt),
			zap.String("from", msg.From),
			zap.String("to", msg.To),
			zap.Bool("transient", provider.IsTransient(err)),
			zap.Error(err),
		)
	} else {
		c.metrics.IncDeliveryAttempt(role, "delivered")
		fields := []zap.Field{
			zap.String("role", role),
			zap.Int("attempt", d.attempt),
			zap.String("from", msg.From),
			zap.String("to", msg.To),
		}
		if resp != nil {
			fields = append(fields,
				zap.String("providerMessageId", resp.MessageID),
				zap.String("response", resp.Body),
			)
		}
		d.logger.Info("email sent", fields...)
	}

	c.recordAttempt(ctx, d, identity, msg, resp, err)

	return resp, err
}

func (c *EscalationController) increment(ctx context.Context, d *delivery) int {
	count, err := c.counter.Increment(ctx)
	if err != nil {
		d.logger.Error("failed to persist attempt counter", zap.Int("attemptCount", count), zap.Error(err))
	}
	c.metrics.SetAttemptCounter(count)
	return count
}

func (c *EscalationController) reset(ctx context.Context, d *delivery) {
	if err := c.counter.Reset(ctx); err != nil {
		d.logger.Error("failed to persist attempt counter", zap.Int("attemptCount", 0), zap.Error(err))
	}
	c.metrics.SetAttemptCounter(0)
}

func (c *EscalationController) notifyDetached(ctx context.Context, d *delivery, event *domain.EscalationEvent) {
	if c.notifier == nil {
		return
	}

	detached := context.WithoutCancel(ctx)
	logger := d.logger

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("admin notification panicked",
					zap.String("eventId", event.ID),
					zap.Any("panic", r),
				)
			}
		}()

		c.notifier.NotifyBackupUsed(detached, event)
	}()
}

func (c *EscalationController) recordAttempt(
	ctx context.Context,
	d *delivery,
	identity domain.Identity,
	msg domain.Message,
	resp *provider.ProviderResponse,
	sendErr error,
) {
	if c.attempts == nil {
		return
	}

	attempt := &domain.DeliveryAttempt{
		ID:            c.newID(),
		CorrelationID: d.correlationID,
		Role:          identity.Role,
		Identity:      identity.Address,
		Recipient:     msg.To,
		AttemptNumber: d.attempt,
		Outcome:       domain.AttemptDelivered,
		CreatedAt:     c.now().UTC(),
	}

	if resp != nil {
		if body := strings.TrimSpace(resp.Body); body != "" {
			attempt.ProviderResult = &body
		}
	}
	if sendErr != nil {
		attempt.Outcome = domain.AttemptFailed
		value := sendErr.Error()
		attempt.Error = &value

		var providerErr *provider.ProviderError
		if errors.As(sendErr, &providerErr) && providerErr.StatusCode > 0 && attempt.ProviderResult == nil {
			code := fmt.Sprintf("%d", providerErr.StatusCode)
			attempt.ProviderResult = &code
		}
	}

	if err := c.attempts.Create(ctx, attempt); err != nil {
		d.logger.Warn("failed to record delivery attempt",
			zap.Int("attempt", d.attempt),
			zap.Error(err),
		)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
