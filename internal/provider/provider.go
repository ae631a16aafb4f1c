package provider

import (
	"context"

	"github.com/kursadbilgin/mail-failover/internal/domain"
)

// Provider is the outbound delivery port. One call is one network attempt;
// implementations must not retry internally.
type Provider interface {
	Send(ctx context.Context, identity domain.Identity, msg domain.Message) (*ProviderResponse, error)
}

// ProviderResponse describes an accepted delivery.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
