package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kursadbilgin/mail-failover/internal/domain"
)

// FileSink appends one line per escalation to a local log file.
type FileSink struct {
	mu   sync.Mutex
	path string
}

func NewFileSink(path string) (*FileSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if dir := filepath.Dir(trimmed); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	return &FileSink{path: trimmed}, nil
}

func (s *FileSink) Path() string {
	return s.path
}

// Write appends the formatted line with a single write call.
func (s *FileSink) Write(_ context.Context, event *domain.EscalationEvent) error {
	if event == nil {
		return fmt.Errorf("escalation event is required")
	}

	line := FormatLine(event) + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append audit line: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}

	return nil
}

func (s *FileSink) Close() error {
	return nil
}

func (s *FileSink) Name() string {
	return "file"
}
