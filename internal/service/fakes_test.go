package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kursadbilgin/mail-failover/internal/domain"
	"github.com/kursadbilgin/mail-failover/internal/provider"
)

type sentMessage struct {
	identity domain.Identity
	msg      domain.Message
}

type fakeProvider struct {
	mu     sync.Mutex
	calls  []sentMessage
	sendFn func(ctx context.Context, identity domain.Identity, msg domain.Message) (*provider.ProviderResponse, error)
}

func (f *fakeProvider) Send(ctx context.Context, identity domain.Identity, msg domain.Message) (*provider.ProviderResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sentMessage{identity: identity, msg: msg})
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, identity, msg)
	}
	return &provider.ProviderResponse{StatusCode: 250, Body: "250 OK", MessageID: "<id@example.com>"}, nil
}

func (f *fakeProvider) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeProvider) countRole(role domain.Role) int {
	n := 0
	for _, call := range f.sent() {
		if call.identity.Role == role {
			n++
		}
	}
	return n
}

// failingPrimary fails the first n primary sends, then succeeds. Backup
// sends fail when backupErr is set.
func failingPrimary(n int, backupErr error) func(context.Context, domain.Identity, domain.Message) (*provider.ProviderResponse, error) {
	var mu sync.Mutex
	failures := 0

	return func(_ context.Context, identity domain.Identity, _ domain.Message) (*provider.ProviderResponse, error) {
		if identity.Role == domain.RoleBackup {
			if backupErr != nil {
				return nil, backupErr
			}
			return &provider.ProviderResponse{StatusCode: 250, Body: "250 backup OK"}, nil
		}

		mu.Lock()
		defer mu.Unlock()
		if failures < n {
			failures++
			return nil, &provider.ProviderError{StatusCode: 451, Message: "temporary failure", Transient: true}
		}
		return &provider.ProviderResponse{StatusCode: 250, Body: "250 OK"}, nil
	}
}

type fakeNotifier struct {
	mu       sync.Mutex
	events   []*domain.EscalationEvent
	notifyFn func(ctx context.Context, event *domain.EscalationEvent)
}

func (f *fakeNotifier) NotifyBackupUsed(ctx context.Context, event *domain.EscalationEvent) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()

	if f.notifyFn != nil {
		f.notifyFn(ctx, event)
	}
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []domain.DeliveryAttempt
	createFn func(ctx context.Context, a *domain.DeliveryAttempt) error
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, a); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.attempts = append(f.attempts, *a)
	f.mu.Unlock()
	return nil
}

func (f *fakeAttemptRepo) ListByCorrelationID(_ context.Context, correlationID string) ([]domain.DeliveryAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.DeliveryAttempt
	for _, a := range f.attempts {
		if a.CorrelationID == correlationID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeSink struct {
	mu       sync.Mutex
	events   []*domain.EscalationEvent
	writeErr error
}

func (f *fakeSink) Write(_ context.Context, event *domain.EscalationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.writeErr
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) Name() string { return "fake" }

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return r.err
}

func (r *recordingSleep) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delays)
}

var errSMTPDown = errors.New("smtp: connection refused")
