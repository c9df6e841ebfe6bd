package channels

import (
	"context"
	"testing"
	"time"

	"github.com/coreclaw/agentcore/internal/bus"
)

func TestIsInternalChannel(t *testing.T) {
	if !IsInternalChannel("cli") || !IsInternalChannel("system") {
		t.Error("cli and system must be internal channels")
	}
	if IsInternalChannel("discord") {
		t.Error("discord must not be an internal channel")
	}
}

func TestIsAllowedEmptyListAllowsEveryone(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(4), nil)
	if !c.IsAllowed("anyone") {
		t.Error("an empty allowlist should allow every sender")
	}
	if c.HasAllowList() {
		t.Error("HasAllowList should be false for an empty list")
	}
}

func TestIsAllowedExactMatch(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(4), []string{"123456"})
	if !c.IsAllowed("123456") {
		t.Error("expected exact ID match to be allowed")
	}
	if c.IsAllowed("999999") {
		t.Error("expected a non-matching ID to be rejected")
	}
}

func TestIsAllowedCompoundSenderID(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(4), []string{"123456|alice"})
	tests := []string{"123456", "123456|alice", "123456|bob", "alice"}
	for _, sender := range tests {
		if !c.IsAllowed(sender) {
			t.Errorf("IsAllowed(%q) = false, want true (allowlist entry 123456|alice)", sender)
		}
	}
	if c.IsAllowed("999999|bob") {
		t.Error("expected an unrelated compound ID to be rejected")
	}
}

func TestIsAllowedAtPrefixStripped(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(4), []string{"@alice"})
	if !c.IsAllowed("alice") {
		t.Error("expected @-prefixed allowlist entries to match the bare username")
	}
}

func TestCheckPolicyDM(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(4), []string{"123"})
	if c.CheckPolicy(PeerDirect, DMPolicyDisabled, GroupPolicyOpen, "123") {
		t.Error("disabled DM policy must reject even an allowlisted sender")
	}
	if !c.CheckPolicy(PeerDirect, DMPolicyOpen, GroupPolicyDisabled, "999") {
		t.Error("open DM policy must accept any sender")
	}
	if !c.CheckPolicy(PeerDirect, DMPolicyAllowlist, GroupPolicyDisabled, "123") {
		t.Error("allowlist DM policy must accept an allowlisted sender")
	}
	if c.CheckPolicy(PeerDirect, DMPolicyAllowlist, GroupPolicyDisabled, "999") {
		t.Error("allowlist DM policy must reject a non-allowlisted sender")
	}
}

func TestCheckPolicyGroup(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(4), []string{"123"})
	if c.CheckPolicy(PeerGroup, DMPolicyOpen, GroupPolicyDisabled, "123") {
		t.Error("disabled group policy must reject even an allowlisted sender")
	}
	if !c.CheckPolicy(PeerGroup, DMPolicyDisabled, GroupPolicyOpen, "999") {
		t.Error("open group policy must accept any sender")
	}
	if !c.CheckPolicy(PeerGroup, DMPolicyDisabled, GroupPolicyAllowlist, "123") {
		t.Error("allowlist group policy must accept an allowlisted sender")
	}
}

func TestCheckPolicyEmptyDefaultsToOpen(t *testing.T) {
	c := NewBaseChannel("test", bus.NewMessageBus(4), nil)
	if !c.CheckPolicy(PeerDirect, DMPolicy(""), GroupPolicy(""), "anyone") {
		t.Error("an unset policy should default to open")
	}
}

func TestHandleMessagePublishesInboundWithPeerKind(t *testing.T) {
	b := bus.NewMessageBus(4)
	c := NewBaseChannel("test", b, nil)
	c.HandleMessage("user1", "chat1", "hello", nil, nil, PeerGroup)

	msg, ok := b.ConsumeInbound(context.Background(), 10*time.Millisecond)
	if !ok {
		t.Fatal("expected an inbound message to have been published")
	}
	if msg.SenderID != "user1" || msg.ChatID != "chat1" || msg.Content != "hello" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Metadata["peer_kind"] != PeerGroup {
		t.Errorf("metadata[peer_kind] = %q, want %q", msg.Metadata["peer_kind"], PeerGroup)
	}
}

func TestHandleMessageRejectsDisallowedSender(t *testing.T) {
	b := bus.NewMessageBus(4)
	c := NewBaseChannel("test", b, []string{"allowed"})
	c.HandleMessage("blocked", "chat1", "hello", nil, nil, PeerDirect)

	_, ok := b.ConsumeInbound(context.Background(), 10*time.Millisecond)
	if ok {
		t.Error("expected no message to be published for a disallowed sender")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate(short) = %q", got)
	}
	if got := Truncate("this is a long string", 7); got != "this is..." {
		t.Errorf("Truncate(long) = %q, want %q", got, "this is...")
	}
}
