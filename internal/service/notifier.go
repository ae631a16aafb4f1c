package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/mail-failover/internal/audit"
	"github.com/kursadbilgin/mail-failover/internal/domain"
	"github.com/kursadbilgin/mail-failover/internal/observability"
	"github.com/kursadbilgin/mail-failover/internal/provider"
	"go.uber.org/zap"
)

const (
	AdminNotificationSubject = "Backup Email Account Used"
	AdminNotificationBody    = "Backup account was used to send an email to Primary account."
)

// Notifier alerts the admin after a backup escalation and records the
// escalation in the audit sinks. Every failure is logged and swallowed.
type Notifier struct {
	provider     provider.Provider
	backup       domain.Identity
	adminAddress string
	sink         audit.Sink
	logger       *zap.Logger
	metrics      *observability.Metrics
}

func NewNotifier(
	p provider.Provider,
	backup domain.Identity,
	adminAddress string,
	sink audit.Sink,
	logger *zap.Logger,
) (*Notifier, error) {
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if err := backup.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backup identity: %w", err)
	}
	adminAddress = strings.TrimSpace(adminAddress)
	admin := domain.Message{From: backup.Address, To: adminAddress, Subject: AdminNotificationSubject}
	if err := admin.Validate(); err != nil {
		return nil, fmt.Errorf("invalid admin address: %w", err)
	}
	if sink == nil {
		return nil, fmt.Errorf("audit sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Notifier{
		provider:     p,
		backup:       backup,
		adminAddress: adminAddress,
		sink:         sink,
		logger:       logger,
	}, nil
}

func (n *Notifier) SetMetrics(metrics *observability.Metrics) {
	if n == nil {
		return
	}
	n.metrics = metrics
}

func (n *Notifier) NotifyBackupUsed(ctx context.Context, event *domain.EscalationEvent) {
	if event == nil {
		return
	}

	logger := observability.WithContextLogger(n.logger, ctx).With(zap.String("eventId", event.ID))

	msg := domain.Message{
		From:    n.backup.Address,
		To:      n.adminAddress,
		Subject: AdminNotificationSubject,
		Body:    AdminNotificationBody,
	}

	resp, err := n.provider.Send(ctx, n.backup, msg)
	if err != nil {
		n.metrics.IncAdminNotification("failed")
		logger.Error("failed to send admin notification",
			zap.String("to", n.adminAddress),
			zap.Error(err),
		)
	} else {
		n.metrics.IncAdminNotification("sent")
		fields := []zap.Field{zap.String("to", n.adminAddress)}
		if resp != nil {
			fields = append(fields, zap.String("response", resp.Body))
		}
		logger.Info("admin notification sent", fields...)
	}

	if err := n.sink.Write(ctx, event); err != nil {
		logger.Error("failed to record escalation event",
			zap.String("sink", n.sink.Name()),
			zap.Error(err),
		)
		return
	}

	logger.Info("escalation event recorded",
		zap.String("identity", event.Identity),
		zap.String("recipient", event.Recipient),
	)
}
