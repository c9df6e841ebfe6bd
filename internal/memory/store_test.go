package memory

import (
	"os"
	"strings"
	"testing"
)

func TestReadLongTermEmptyWhenMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	text, err := s.ReadLongTerm()
	if err != nil {
		t.Fatalf("ReadLongTerm: %v", err)
	}
	if text != "" {
		t.Errorf("expected empty memory before any write, got %q", text)
	}
}

func TestWriteThenReadLongTermRoundTrip(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	if err := s.WriteLongTerm("the user prefers dark mode"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}
	got, err := s.ReadLongTerm()
	if err != nil {
		t.Fatalf("ReadLongTerm: %v", err)
	}
	if got != "the user prefers dark mode" {
		t.Errorf("ReadLongTerm() = %q, want %q", got, "the user prefers dark mode")
	}
}

func TestWriteLongTermOverwrites(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	s.WriteLongTerm("first version")
	s.WriteLongTerm("second version")
	got, _ := s.ReadLongTerm()
	if got != "second version" {
		t.Errorf("WriteLongTerm should overwrite, got %q", got)
	}
}

func TestAppendHistoryGrowsByOneEntryPerCall(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	if err := s.AppendHistory("session started"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if err := s.AppendHistory("user asked about billing"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	data, err := readHistoryFile(t, s)
	if err != nil {
		t.Fatalf("read history file: %v", err)
	}
	if !strings.Contains(data, "session started") || !strings.Contains(data, "user asked about billing") {
		t.Errorf("history file missing an appended entry: %q", data)
	}
	// Each entry is followed by a blank line, per spec.
	if strings.Count(data, "\n\n") < 2 {
		t.Errorf("expected each history entry to be followed by a blank line, got: %q", data)
	}
}

func TestGetMemoryContextEmptyWhenBlank(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	ctx, err := s.GetMemoryContext()
	if err != nil {
		t.Fatalf("GetMemoryContext: %v", err)
	}
	if ctx != "" {
		t.Errorf("expected empty context with no memory written, got %q", ctx)
	}

	s.WriteLongTerm("   \n  ")
	ctx, err = s.GetMemoryContext()
	if err != nil {
		t.Fatalf("GetMemoryContext: %v", err)
	}
	if ctx != "" {
		t.Errorf("expected whitespace-only memory to yield empty context, got %q", ctx)
	}
}

func readHistoryFile(t *testing.T, s *Store) (string, error) {
	t.Helper()
	data, err := os.ReadFile(s.historyPath())
	return string(data), err
}
