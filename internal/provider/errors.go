package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
)

// ProviderError is the uniform failure reported by a Provider. Transient is
// informational; every failure follows the same retry and escalation path.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether an error looks retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return isTransientSMTPCode(protoErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}

	return false
}

// SMTP 4yz replies are transient negative completions.
func isTransientSMTPCode(code int) bool {
	return code >= 400 && code < 500
}

// smtpReplyCode matches a reply code left in flattened error text, such as
// "gomail: could not send email 1: 451 4.3.0 try again".
var smtpReplyCode = regexp.MustCompile(`(?:^|: )([2-5][0-9]{2})[ -]`)

func replyCodeFromText(msg string) (int, bool) {
	match := smtpReplyCode.FindStringSubmatch(msg)
	if match == nil {
		return 0, false
	}
	code, err := strconv.Atoi(match[1])
	if err != nil || code < 400 {
		return 0, false
	}
	return code, true
}

func classifySMTPError(err error) *ProviderError {
	providerErr := &ProviderError{
		Message: "smtp send failed",
		Cause:   err,
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		providerErr.StatusCode = protoErr.Code
		providerErr.Transient = isTransientSMTPCode(protoErr.Code)
		return providerErr
	}

	// Dial and connection failures are worth another attempt.
	var netErr net.Error
	if errors.As(err, &netErr) {
		providerErr.Transient = true
		return providerErr
	}

	if code, ok := replyCodeFromText(err.Error()); ok {
		providerErr.StatusCode = code
		providerErr.Transient = isTransientSMTPCode(code)
		return providerErr
	}

	providerErr.Transient = IsTransient(err)
	return providerErr
}
