package sessions

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManagerGetOrCreatePersists(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.GetOrCreate("cli:u1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cli_u1.json")); err != nil {
		t.Fatalf("expected session file to exist: %v", err)
	}
}

func TestManagerAddMessageAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	key := "cli:u1"
	if _, err := m.GetOrCreate(key); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := m.AddMessage(key, Message{Role: "user", Content: TextContent("hello")}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := m.AddMessage(key, Message{Role: "assistant", Content: TextContent("hi")}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := m.Save(key); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Reload from disk in a fresh Manager and confirm an exact round trip.
	m2, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager (reload): %v", err)
	}
	s, ok := m2.Get(key)
	if !ok {
		t.Fatalf("expected session %q to be loaded from disk", key)
	}
	if len(s.Messages) != 2 {
		t.Fatalf("expected 2 messages after reload, got %d", len(s.Messages))
	}
	if s.Messages[0].Content.String() != "hello" || s.Messages[1].Content.String() != "hi" {
		t.Errorf("unexpected reloaded messages: %+v", s.Messages)
	}
}

func TestManagerClearResetsInvariants(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)
	key := "cli:u1"
	m.GetOrCreate(key)
	for i := 0; i < 5; i++ {
		m.AddMessage(key, Message{Role: "user", Content: TextContent("x")})
	}
	m.SetConsolidationCursor(key, 3)

	if err := m.Clear(key); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	s, ok := m.Get(key)
	if !ok {
		t.Fatal("session should still exist after Clear")
	}
	if len(s.Messages) != 0 {
		t.Errorf("expected 0 messages after /new-style Clear, got %d", len(s.Messages))
	}
	if s.LastConsolidatedIndex != 0 {
		t.Errorf("expected LastConsolidatedIndex=0 after Clear, got %d", s.LastConsolidatedIndex)
	}
}

func TestManagerConsolidationCursorNeverExceedsMessageCount(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)
	key := "cli:u1"
	m.GetOrCreate(key)
	m.AddMessage(key, Message{Role: "user", Content: TextContent("x")})

	if err := m.SetConsolidationCursor(key, 999); err != nil {
		t.Fatalf("SetConsolidationCursor: %v", err)
	}
	s, _ := m.Get(key)
	if s.LastConsolidatedIndex > len(s.Messages) {
		t.Errorf("invariant violated: LastConsolidatedIndex=%d > len(Messages)=%d", s.LastConsolidatedIndex, len(s.Messages))
	}
}

func TestManagerInvalidateDropsInMemoryCopy(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)
	key := "cli:u1"
	m.GetOrCreate(key)
	m.Invalidate(key)
	if _, ok := m.Get(key); ok {
		t.Error("expected Invalidate to drop the in-memory cached session")
	}
}

func TestManagerListOmitsBodies(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)
	m.GetOrCreate("cli:u1")
	m.AddMessage("cli:u1", Message{Role: "user", Content: TextContent("hi")})
	m.GetOrCreate("discord:42")

	infos := m.List()
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	// List is sorted by key.
	if infos[0].Key != "cli:u1" || infos[1].Key != "discord:42" {
		t.Errorf("unexpected key order: %+v", infos)
	}
	if infos[0].MessageCount != 1 {
		t.Errorf("expected message_count=1 for cli:u1, got %d", infos[0].MessageCount)
	}
}

func TestManagerSnapshotIsIndependentOfLiveSession(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)
	key := "cli:u1"
	m.GetOrCreate(key)
	m.AddMessage(key, Message{Role: "user", Content: TextContent("first")})

	snap, ok := m.Snapshot(key)
	if !ok {
		t.Fatal("expected snapshot to exist")
	}
	m.AddMessage(key, Message{Role: "assistant", Content: TextContent("second")})

	if len(snap.Messages) != 1 {
		t.Errorf("snapshot should not observe messages appended after it was taken, got %d messages", len(snap.Messages))
	}
}

func TestManagerDeleteRemovesFileAndMemory(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)
	key := "cli:u1"
	m.GetOrCreate(key)
	if err := m.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := m.Get(key); ok {
		t.Error("expected session to be gone from memory after Delete")
	}
	if _, err := os.Stat(filepath.Join(dir, "cli_u1.json")); err == nil {
		t.Error("expected session file to be removed from disk")
	}
}
