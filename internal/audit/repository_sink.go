package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/mail-failover/internal/domain"
	"github.com/kursadbilgin/mail-failover/internal/repository"
)

const defaultRepositoryTimeout = 5 * time.Second

// RepositorySink stores escalation events in the database.
type RepositorySink struct {
	repo    repository.EscalationRepository
	timeout time.Duration
}

func NewRepositorySink(repo repository.EscalationRepository) (*RepositorySink, error) {
	if repo == nil {
		return nil, fmt.Errorf("escalation repository is required")
	}
	return &RepositorySink{repo: repo, timeout: defaultRepositoryTimeout}, nil
}

func (s *RepositorySink) Write(ctx context.Context, event *domain.EscalationEvent) error {
	if event == nil {
		return fmt.Errorf("escalation event is required")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	record := *event
	if err := s.repo.Create(ctx, &record); err != nil {
		return fmt.Errorf("failed to store escalation event: %w", err)
	}
	return nil
}

func (s *RepositorySink) Close() error {
	return nil
}

func (s *RepositorySink) Name() string {
	return "postgres"
}
