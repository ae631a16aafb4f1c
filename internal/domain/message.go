package domain

import (
	"fmt"
	"strings"
)

const (
	DefaultSubject = "Test Email from Go"
	DefaultBody    = "This is a test email sent from the mail failover service"

	MaxSubjectLength = 998
	MaxBodyLength    = 100000
)

// Message is the content of a single delivery request.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// NewSelfTestMessage builds the message sent on every trigger: the primary
// address is both sender and recipient.
func NewSelfTestMessage(primary Identity, subject, body string) Message {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	if strings.TrimSpace(body) == "" {
		body = DefaultBody
	}

	return Message{
		From:    primary.Address,
		To:      primary.Address,
		Subject: subject,
		Body:    body,
	}
}

// ViaBackup returns a copy of m rewritten for the backup identity. The
// recipient becomes the original primary address.
func (m Message) ViaBackup(backup Identity, primaryAddress string) Message {
	rewritten := m
	rewritten.From = backup.Address
	rewritten.To = primaryAddress
	return rewritten
}

func (m *Message) Validate() error {
	if !isAddress(m.From) {
		return fmt.Errorf("%w: sender %q is invalid", ErrValidation, m.From)
	}
	if !isAddress(m.To) {
		return fmt.Errorf("%w: recipient %q is invalid", ErrValidation, m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.ContainsAny(m.Subject, "\r\n") {
		return fmt.Errorf("%w: subject must be a single line", ErrValidation)
	}
	if n := len([]rune(m.Subject)); n > MaxSubjectLength {
		return fmt.Errorf("%w: subject exceeds %d characters (got %d)", ErrValidation, MaxSubjectLength, n)
	}
	if n := len([]rune(m.Body)); n > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLength, n)
	}
	return nil
}
