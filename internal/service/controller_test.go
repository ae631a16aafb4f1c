package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/mail-failover/internal/audit"
	"github.com/kursadbilgin/mail-failover/internal/counter"
	"github.com/kursadbilgin/mail-failover/internal/domain"
	"github.com/kursadbilgin/mail-failover/internal/observability"
	"github.com/kursadbilgin/mail-failover/internal/provider"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	testPrimary = domain.Identity{Role: domain.RolePrimary, Address: "primary@example.com", Secret: "primary-secret"}
	testBackup  = domain.Identity{Role: domain.RoleBackup, Address: "backup@example.com", Secret: "backup-secret"}
)

type controllerFixture struct {
	controller *EscalationController
	counter    *counter.Counter
	store      *counter.FileStore
	sleeper    *recordingSleep
}

func newControllerFixture(t *testing.T, p *fakeProvider, notifier EscalationNotifier, logger *zap.Logger) *controllerFixture {
	t.Helper()

	store, err := counter.NewFileStore(filepath.Join(t.TempDir(), "attempt_count.txt"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return newControllerFixtureWithStore(t, p, notifier, logger, store)
}

func newControllerFixtureWithStore(
	t *testing.T,
	p *fakeProvider,
	notifier EscalationNotifier,
	logger *zap.Logger,
	store *counter.FileStore,
) *controllerFixture {
	t.Helper()

	c, err := counter.New(store)
	if err != nil {
		t.Fatalf("counter.New() error = %v", err)
	}
	_, _ = c.Load(context.Background())

	controller, err := NewEscalationController(ControllerConfig{
		Primary:    testPrimary,
		Backup:     testBackup,
		RetryDelay: time.Second,
		Threshold:  DefaultEscalationThreshold,
	}, p, c, notifier, logger)
	if err != nil {
		t.Fatalf("NewEscalationController() error = %v", err)
	}

	sleeper := &recordingSleep{}
	controller.sleep = sleeper.sleep

	return &controllerFixture{
		controller: controller,
		counter:    c,
		store:      store,
		sleeper:    sleeper,
	}
}

func readCounterFile(t *testing.T, store *counter.FileStore) string {
	t.Helper()

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return string(data)
}

func TestNewEscalationController_Validation(t *testing.T) {
	t.Parallel()

	c, err := counter.New(&counter.FileStore{})
	if err != nil {
		t.Fatalf("counter.New() error = %v", err)
	}

	tests := []struct {
		name    string
		cfg     ControllerConfig
		nilProv bool
		nilCtr  bool
	}{
		{name: "invalid primary", cfg: ControllerConfig{Primary: domain.Identity{Role: domain.RolePrimary}, Backup: testBackup}},
		{name: "primary with backup role", cfg: ControllerConfig{Primary: testBackup, Backup: testBackup}},
		{name: "backup with primary role", cfg: ControllerConfig{Primary: testPrimary, Backup: testPrimary}},
		{name: "negative delay", cfg: ControllerConfig{Primary: testPrimary, Backup: testBackup, RetryDelay: -time.Second}},
		{name: "nil provider", cfg: ControllerConfig{Primary: testPrimary, Backup: testBackup}, nilProv: true},
		{name: "nil counter", cfg: ControllerConfig{Primary: testPrimary, Backup: testBackup}, nilCtr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var p *fakeProvider
			if !tt.nilProv {
				p = &fakeProvider{}
			}
			ctr := c
			if tt.nilCtr {
				ctr = nil
			}

			var err error
			if p == nil {
				_, err = NewEscalationController(tt.cfg, nil, ctr, nil, nil)
			} else {
				_, err = NewEscalationController(tt.cfg, p, ctr, nil, nil)
			}
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDeliver_FirstTrySuccess(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	notifier := &fakeNotifier{}
	f := newControllerFixture(t, p, notifier, nil)

	resp, err := f.controller.Deliver(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if resp == nil || resp.StatusCode != 250 {
		t.Fatalf("Deliver() response = %+v", resp)
	}

	sent := p.sent()
	if len(sent) != 1 {
		t.Fatalf("sends = %d, want 1", len(sent))
	}
	if sent[0].identity.Role != domain.RolePrimary {
		t.Fatalf("identity = %s, want primary", sent[0].identity)
	}
	if sent[0].msg.From != testPrimary.Address || sent[0].msg.To != testPrimary.Address {
		t.Fatalf("message = %+v, want self-addressed primary", sent[0].msg)
	}
	if sent[0].msg.Subject != domain.DefaultSubject {
		t.Fatalf("subject = %q, want %q", sent[0].msg.Subject, domain.DefaultSubject)
	}
	if f.sleeper.count() != 0 {
		t.Fatalf("sleeps = %d, want 0", f.sleeper.count())
	}
	if got := f.counter.Value(); got != 0 {
		t.Fatalf("counter = %d, want 0", got)
	}
	if got := readCounterFile(t, f.store); got != "0" {
		t.Fatalf("counter file = %q, want 0", got)
	}
	if notifier.count() != 0 {
		t.Fatalf("notifications = %d, want 0", notifier.count())
	}
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	for k := 1; k <= 3; k++ {
		t.Run(strings.Repeat("f", k), func(t *testing.T) {
			t.Parallel()

			p := &fakeProvider{sendFn: failingPrimary(k, nil)}
			notifier := &fakeNotifier{}
			f := newControllerFixture(t, p, notifier, nil)

			if _, err := f.controller.Deliver(context.Background(), "", ""); err != nil {
				t.Fatalf("Deliver() error = %v", err)
			}

			if got := p.countRole(domain.RolePrimary); got != k+1 {
				t.Fatalf("primary sends = %d, want %d", got, k+1)
			}
			if got := p.countRole(domain.RoleBackup); got != 0 {
				t.Fatalf("backup sends = %d, want 0", got)
			}
			if got := f.sleeper.count(); got != k {
				t.Fatalf("retry waits = %d, want %d", got, k)
			}
			for _, d := range f.sleeper.delays {
				if d != time.Second {
					t.Fatalf("retry delay = %v, want 1s", d)
				}
			}
			if got := readCounterFile(t, f.store); got != "0" {
				t.Fatalf("counter file = %q, want 0", got)
			}
			if notifier.count() != 0 {
				t.Fatalf("notifications = %d, want 0", notifier.count())
			}
		})
	}
}

func TestDeliver_EscalatesToBackupAfterFourFailures(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{sendFn: failingPrimary(100, nil)}
	notifier := &fakeNotifier{}
	f := newControllerFixture(t, p, notifier, nil)

	resp, err := f.controller.Deliver(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if resp == nil || resp.Body != "250 backup OK" {
		t.Fatalf("Deliver() response = %+v, want backup response", resp)
	}

	sent := p.sent()
	if len(sent) != 5 {
		t.Fatalf("sends = %d, want 5", len(sent))
	}
	for i := 0; i < 4; i++ {
		if sent[i].identity.Role != domain.RolePrimary {
			t.Fatalf("send %d identity = %s, want primary", i+1, sent[i].identity)
		}
	}

	backupSend := sent[4]
	if backupSend.identity != testBackup {
		t.Fatalf("send 5 identity = %s, want backup", backupSend.identity)
	}
	if backupSend.msg.From != testBackup.Address {
		t.Fatalf("backup from = %q, want %q", backupSend.msg.From, testBackup.Address)
	}
	if backupSend.msg.To != testPrimary.Address {
		t.Fatalf("backup to = %q, want %q", backupSend.msg.To, testPrimary.Address)
	}
	if f.sleeper.count() != 3 {
		t.Fatalf("retry waits = %d, want 3", f.sleeper.count())
	}
	if got := readCounterFile(t, f.store); got != "0" {
		t.Fatalf("counter file = %q, want 0", got)
	}

	if err := f.controller.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifier.count())
	}

	event := notifier.events[0]
	if event.Identity != testBackup.Address || event.Recipient != testPrimary.Address {
		t.Fatalf("event = %+v", event)
	}
	if event.Attempts != 4 {
		t.Fatalf("event attempts = %d, want 4", event.Attempts)
	}
	if event.Outcome != domain.EscalationDelivered {
		t.Fatalf("event outcome = %s, want DELIVERED", event.Outcome)
	}
	if event.ID == "" || event.CorrelationID == "" {
		t.Fatalf("event ids not set: %+v", event)
	}
}

func TestDeliver_BackupSuccessWritesOneAuditLineWhenAdminMailFails(t *testing.T) {
	t.Parallel()

	primaryFailures := failingPrimary(100, nil)
	p := &fakeProvider{
		sendFn: func(ctx context.Context, identity domain.Identity, msg domain.Message) (*provider.ProviderResponse, error) {
			if msg.To == "admin@example.com" {
				return nil, &provider.ProviderError{StatusCode: 550, Message: "mailbox unavailable"}
			}
			return primaryFailures(ctx, identity, msg)
		},
	}

	auditPath := filepath.Join(t.TempDir(), "notifications.log")
	fileSink, err := audit.NewFileSink(auditPath)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	notifier, err := NewNotifier(p, testBackup, "admin@example.com", audit.NewMultiSink([]audit.Sink{fileSink}, logger, nil), logger)
	if err != nil {
		t.Fatalf("NewNotifier() error = %v", err)
	}

	f := newControllerFixture(t, p, notifier, logger)

	resp, err := f.controller.Deliver(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if resp == nil {
		t.Fatal("Deliver() returned nil response")
	}

	if err := f.controller.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	adminSends := 0
	for _, call := range p.sent() {
		if call.msg.To == "admin@example.com" {
			adminSends++
			if call.identity != testBackup {
				t.Fatalf("admin notification identity = %s, want backup", call.identity)
			}
			if call.msg.Subject != AdminNotificationSubject {
				t.Fatalf("admin subject = %q", call.msg.Subject)
			}
		}
	}
	if adminSends != 1 {
		t.Fatalf("admin notifications = %d, want 1", adminSends)
	}

	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("audit lines = %d, want 1: %q", len(lines), data)
	}
	if !strings.Contains(lines[0], "Email sent to primary@example.com via backup@example.com.") {
		t.Fatalf("audit line = %q", lines[0])
	}

	if got := logs.FilterMessage("failed to send admin notification").Len(); got != 1 {
		t.Fatalf("notification failure logs = %d, want 1", got)
	}
}

func TestDeliver_BackupFailureLeavesCounter(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{sendFn: failingPrimary(100, errSMTPDown)}
	notifier := &fakeNotifier{}
	f := newControllerFixture(t, p, notifier, nil)

	resp, err := f.controller.Deliver(context.Background(), "", "")
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	if resp != nil {
		t.Fatalf("Deliver() response = %+v, want nil", resp)
	}
	if !errors.Is(err, domain.ErrDeliveryFailed) {
		t.Fatalf("Deliver() error = %v, want ErrDeliveryFailed", err)
	}
	if !errors.Is(err, errSMTPDown) {
		t.Fatalf("Deliver() error = %v, want wrapped backup cause", err)
	}

	if got := p.countRole(domain.RoleBackup); got != 1 {
		t.Fatalf("backup sends = %d, want 1", got)
	}
	if got := f.counter.Value(); got != 4 {
		t.Fatalf("counter = %d, want 4", got)
	}
	if got := readCounterFile(t, f.store); got != "4" {
		t.Fatalf("counter file = %q, want 4", got)
	}

	if err := f.controller.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if notifier.count() != 0 {
		t.Fatalf("notifications = %d, want 0", notifier.count())
	}
}

func TestDeliver_CounterSurvivesRestart(t *testing.T) {
	t.Parallel()

	store, err := counter.NewFileStore(filepath.Join(t.TempDir(), "attempt_count.txt"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	first := newControllerFixtureWithStore(t, &fakeProvider{sendFn: failingPrimary(100, errSMTPDown)}, nil, nil, store)
	if _, err := first.controller.Deliver(context.Background(), "", ""); err == nil {
		t.Fatal("expected terminal failure before restart")
	}

	p := &fakeProvider{sendFn: failingPrimary(100, nil)}
	restarted := newControllerFixtureWithStore(t, p, nil, nil, store)
	if got := restarted.counter.Value(); got != 4 {
		t.Fatalf("counter after restart = %d, want 4", got)
	}

	if _, err := restarted.controller.Deliver(context.Background(), "", ""); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	sent := p.sent()
	if len(sent) != 2 {
		t.Fatalf("sends after restart = %d, want 2", len(sent))
	}
	if sent[0].identity.Role != domain.RolePrimary || sent[1].identity.Role != domain.RoleBackup {
		t.Fatalf("send order = [%s %s], want [primary backup]", sent[0].identity, sent[1].identity)
	}
	if restarted.sleeper.count() != 0 {
		t.Fatalf("retry waits = %d, want 0", restarted.sleeper.count())
	}
	if got := readCounterFile(t, store); got != "0" {
		t.Fatalf("counter file = %q, want 0", got)
	}
}

func TestDeliver_ConcurrentFailuresDoNotLoseUpdates(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{sendFn: failingPrimary(1_000_000, errSMTPDown)}
	f := newControllerFixture(t, p, nil, nil)

	const requests = 25
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.controller.Deliver(context.Background(), "", ""); !errors.Is(err, domain.ErrDeliveryFailed) {
				t.Errorf("Deliver() error = %v, want ErrDeliveryFailed", err)
			}
		}()
	}
	wg.Wait()

	primarySends := p.countRole(domain.RolePrimary)
	if primarySends < requests {
		t.Fatalf("primary sends = %d, want at least %d", primarySends, requests)
	}
	if got := f.counter.Value(); got != primarySends {
		t.Fatalf("counter = %d, want %d (one per failed primary attempt)", got, primarySends)
	}
	if got := readCounterFile(t, f.store); got != strconv.Itoa(primarySends) {
		t.Fatalf("counter file = %q, want %d", got, primarySends)
	}
	if got := p.countRole(domain.RoleBackup); got != requests {
		t.Fatalf("backup sends = %d, want %d", got, requests)
	}
}

func TestDeliver_LogSequenceForEscalation(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	p := &fakeProvider{sendFn: failingPrimary(4, nil)}
	f := newControllerFixture(t, p, &fakeNotifier{}, zap.New(core))

	ctx := observability.WithCorrelationID(context.Background(), "req-1")
	if _, err := f.controller.Deliver(ctx, "", ""); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	want := []string{
		"delivery attempt failed", "retry scheduled",
		"delivery attempt failed", "retry scheduled",
		"delivery attempt failed", "retry scheduled",
		"delivery attempt failed", "switching to backup identity",
		"email sent",
	}

	entries := logs.All()
	if len(entries) != len(want) {
		got := make([]string, 0, len(entries))
		for _, e := range entries {
			got = append(got, e.Message)
		}
		t.Fatalf("log messages = %v, want %v", got, want)
	}
	for i, entry := range entries {
		if entry.Message != want[i] {
			t.Fatalf("log[%d] = %q, want %q", i, entry.Message, want[i])
		}
		if got := entry.ContextMap()["correlationId"]; got != "req-1" {
			t.Fatalf("log[%d] correlationId = %v, want req-1", i, got)
		}
	}

	if got := entries[7].ContextMap()["attemptCount"]; got != int64(4) {
		t.Fatalf("switch attemptCount = %v, want 4", got)
	}
	if got := entries[8].ContextMap()["role"]; got != "backup" {
		t.Fatalf("final send role = %v, want backup", got)
	}
}

func TestDeliver_RetryWaitCanceled(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{sendFn: failingPrimary(100, nil)}
	f := newControllerFixture(t, p, nil, nil)
	f.sleeper.err = context.Canceled

	_, err := f.controller.Deliver(context.Background(), "", "")
	if !errors.Is(err, domain.ErrDeliveryFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Deliver() error = %v, want ErrDeliveryFailed wrapping context.Canceled", err)
	}
	if got := p.countRole(domain.RolePrimary); got != 1 {
		t.Fatalf("primary sends = %d, want 1", got)
	}
	if got := f.counter.Value(); got != 1 {
		t.Fatalf("counter = %d, want 1", got)
	}
}

func TestDeliver_CounterPersistFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := counter.NewFileStore(filepath.Join(dir, "missing", "attempt_count.txt"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	p := &fakeProvider{sendFn: failingPrimary(1, nil)}
	f := newControllerFixtureWithStore(t, p, nil, zap.New(core), store)

	if _, err := f.controller.Deliver(context.Background(), "", ""); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got := logs.FilterMessage("failed to persist attempt counter").Len(); got != 2 {
		t.Fatalf("persistence failure logs = %d, want 2", got)
	}
	if got := f.counter.Value(); got != 0 {
		t.Fatalf("counter = %d, want 0", got)
	}
}

func TestDeliver_CustomContentAndValidation(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	f := newControllerFixture(t, p, nil, nil)

	if _, err := f.controller.Deliver(context.Background(), "Weekly report", "All green"); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	sent := p.sent()
	if sent[0].msg.Subject != "Weekly report" || sent[0].msg.Body != "All green" {
		t.Fatalf("message = %+v", sent[0].msg)
	}

	_, err := f.controller.Deliver(context.Background(), "bad\r\nBcc: x@example.com", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Deliver() error = %v, want ErrValidation", err)
	}
	if len(p.sent()) != 1 {
		t.Fatalf("sends = %d, want 1 (invalid message must not be sent)", len(p.sent()))
	}
	if got := f.counter.Value(); got != 0 {
		t.Fatalf("counter = %d, want 0", got)
	}
}

func TestDeliver_RecordsAttemptHistory(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{sendFn: failingPrimary(4, nil)}
	repo := &fakeAttemptRepo{}
	f := newControllerFixture(t, p, nil, nil)
	f.controller.SetAttemptRepository(repo)

	ctx := observability.WithCorrelationID(context.Background(), "req-7")
	if _, err := f.controller.Deliver(ctx, "", ""); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	attempts, err := repo.ListByCorrelationID(context.Background(), "req-7")
	if err != nil {
		t.Fatalf("ListByCorrelationID() error = %v", err)
	}
	if len(attempts) != 5 {
		t.Fatalf("attempts = %d, want 5", len(attempts))
	}
	for i := 0; i < 4; i++ {
		a := attempts[i]
		if a.Role != domain.RolePrimary || a.Outcome != domain.AttemptFailed || a.AttemptNumber != i+1 {
			t.Fatalf("attempt[%d] = %+v", i, a)
		}
		if a.Error == nil || a.ProviderResult == nil || *a.ProviderResult != "451" {
			t.Fatalf("attempt[%d] missing failure details: %+v", i, a)
		}
	}
	last := attempts[4]
	if last.Role != domain.RoleBackup || last.Outcome != domain.AttemptDelivered || last.Recipient != testPrimary.Address {
		t.Fatalf("backup attempt = %+v", last)
	}
}

func TestDeliver_AttemptHistoryFailureIsIgnored(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	repo := &fakeAttemptRepo{
		createFn: func(context.Context, *domain.DeliveryAttempt) error { return errors.New("db down") },
	}
	f := newControllerFixture(t, p, nil, nil)
	f.controller.SetAttemptRepository(repo)

	if _, err := f.controller.Deliver(context.Background(), "", ""); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
}

func TestWait_RespectsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	notifier := &fakeNotifier{
		notifyFn: func(context.Context, *domain.EscalationEvent) { <-release },
	}
	p := &fakeProvider{sendFn: failingPrimary(100, nil)}
	f := newControllerFixture(t, p, notifier, nil)

	if _, err := f.controller.Deliver(context.Background(), "", ""); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.controller.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want deadline exceeded", err)
	}

	close(release)
	if err := f.controller.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}
