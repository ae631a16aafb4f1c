package counter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
)

const counterFileMode = 0o644

// FileStore keeps the counter as a decimal integer in a plain text file.
// Writes go through a synced temporary file renamed into place, so a reader
// never observes a partially written value.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("counter file path is required")
	}
	return &FileStore{path: trimmed}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to read counter file %q: %w", s.path, err)
	}

	value, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter file %q: %w", s.path, err)
	}
	return value, nil
}

func (s *FileStore) Save(_ context.Context, value int) error {
	if err := renameio.WriteFile(s.path, []byte(strconv.Itoa(value)), counterFileMode); err != nil {
		return fmt.Errorf("failed to write counter file %q: %w", s.path, err)
	}
	return nil
}
