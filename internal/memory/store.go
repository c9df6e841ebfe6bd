// Package memory implements the long-term Memory Store: a rewritable
// MEMORY.md document and an append-only, grep-friendly HISTORY.md log.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	memoryFilename  = "MEMORY.md"
	historyFilename = "HISTORY.md"
)

// Store reads and writes the two on-disk memory files under
// <workspace>/memory/. Every method holds the Store's mutex, so reads and
// writes through one Store are serialized; nothing coordinates separate
// Store values or other processes touching the same files.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore roots a Store at dir (typically <workspace>/memory), creating it
// if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) memoryPath() string  { return filepath.Join(s.dir, memoryFilename) }
func (s *Store) historyPath() string { return filepath.Join(s.dir, historyFilename) }

// ReadLongTerm returns the current MEMORY document, or "" if none exists yet.
func (s *Store) ReadLongTerm() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.memoryPath())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read memory: %w", err)
	}
	return string(data), nil
}

// WriteLongTerm overwrites MEMORY.md with text, atomically (write-temp then
// rename, matching the Session Store's persistence discipline).
func (s *Store) WriteLongTerm(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(s.dir, "memory-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp memory file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp memory file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp memory file: %w", err)
	}
	if err := os.Rename(tmpPath, s.memoryPath()); err != nil {
		return fmt.Errorf("rename temp memory file: %w", err)
	}
	tmpPath = ""
	return nil
}

// AppendHistory appends a timestamped paragraph entry followed by a blank
// line, so HISTORY.md stays grep-friendly (`grep -A2 "2026-07-31"`).
func (s *Store) AppendHistory(entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.historyPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	stamp := time.Now().Format("[2006-01-02 15:04]")
	line := stamp + " " + strings.TrimRight(entry, "\n") + "\n\n"
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return f.Sync()
}

// GetMemoryContext returns the concatenation the Context Builder embeds in
// the system prompt: the long-term memory document, or "" if empty.
func (s *Store) GetMemoryContext() (string, error) {
	text, err := s.ReadLongTerm()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return text, nil
}
