package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/mail-failover/internal/domain"
	"gopkg.in/gomail.v2"
)

const (
	defaultSMTPTimeout = 30 * time.Second
	smtpStatusOK       = 250
)

// SMTPProvider sends messages through an SMTP server, authenticating as the
// identity passed to Send.
type SMTPProvider struct {
	host         string
	port         int
	timeout      time.Duration
	send         func(d *gomail.Dialer, from string, to []string, m *gomail.Message) error
	newMessageID func() string
}

func NewSMTPProvider(host string, port int, timeout time.Duration) (*SMTPProvider, error) {
	trimmedHost := strings.TrimSpace(host)
	if trimmedHost == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid smtp port %d", port)
	}
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}

	return &SMTPProvider{
		host:         trimmedHost,
		port:         port,
		timeout:      timeout,
		send:         dialAndSend,
		newMessageID: uuid.NewString,
	}, nil
}

// Send performs one SMTP transaction. gomail has no context support, so a
// transaction that outlives the timeout is abandoned rather than interrupted.
func (p *SMTPProvider) Send(ctx context.Context, identity domain.Identity, msg domain.Message) (*ProviderResponse, error) {
	if p == nil || p.send == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return nil, &ProviderError{Message: "invalid message", Cause: err}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	dialer := gomail.NewDialer(p.host, p.port, identity.Address, identity.Secret)

	messageID := fmt.Sprintf("<%s@%s>", p.newMessageID(), addressDomain(identity.Address))
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- p.send(dialer, msg.From, []string{msg.To}, m)
	}()

	select {
	case <-ctx.Done():
		return nil, &ProviderError{
			Message:   "smtp send aborted",
			Transient: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Cause:     ctx.Err(),
		}
	case err := <-done:
		if err != nil {
			return nil, classifySMTPError(err)
		}
	}

	return &ProviderResponse{
		StatusCode: smtpStatusOK,
		Body:       fmt.Sprintf("accepted by %s:%d", p.host, p.port),
		MessageID:  messageID,
	}, nil
}

func addressDomain(address string) string {
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}

// dialAndSend runs a single transaction on a fresh connection. The sender is
// called directly so SMTP replies keep their *textproto.Error; gomail.Send
// flattens them into text.
func dialAndSend(d *gomail.Dialer, from string, to []string, m *gomail.Message) error {
	s, err := d.Dial()
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Send(from, to, m)
}
