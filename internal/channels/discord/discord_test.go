package discord

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestSplitAtUnderLimitReturnsWhole(t *testing.T) {
	head, rest := splitAt("short message", 2000)
	if head != "short message" || rest != "" {
		t.Errorf("expected no split for a short message, got head=%q rest=%q", head, rest)
	}
}

func TestSplitAtPrefersLastNewline(t *testing.T) {
	content := strings.Repeat("a", 10) + "\n" + strings.Repeat("b", 10)
	head, rest := splitAt(content, 15)
	if head != strings.Repeat("a", 10)+"\n" {
		t.Errorf("expected split right after the newline, got head=%q", head)
	}
	if rest != strings.Repeat("b", 10) {
		t.Errorf("rest = %q", rest)
	}
}

func TestSplitAtFallsBackToLastSpace(t *testing.T) {
	content := strings.Repeat("a", 10) + " " + strings.Repeat("b", 10)
	head, rest := splitAt(content, 15)
	if head != strings.Repeat("a", 10)+" " {
		t.Errorf("expected split right after the last space, got head=%q", head)
	}
	if rest != strings.Repeat("b", 10) {
		t.Errorf("rest = %q", rest)
	}
}

func TestSplitAtHardCutsWhenNoBoundary(t *testing.T) {
	content := strings.Repeat("a", 30)
	head, rest := splitAt(content, 15)
	if len(head) != 15 {
		t.Errorf("expected a hard cut at maxLen=15, got head len %d", len(head))
	}
	if head+rest != content {
		t.Error("head+rest must reconstruct the original content")
	}
}

func TestSplitAtIgnoresBoundaryTooFarBack(t *testing.T) {
	// A newline in the first few characters is before maxLen/2, so it should
	// not be used as the cut point -- a hard cut is preferred over losing
	// most of the chunk.
	content := "a\n" + strings.Repeat("b", 28)
	head, _ := splitAt(content, 15)
	if len(head) != 15 {
		t.Errorf("expected hard cut at 15 when the only newline is too early, got head=%q (len %d)", head, len(head))
	}
}

func TestResolveDisplayNamePrefersNick(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "user1", GlobalName: "Global One"},
		Member: &discordgo.Member{Nick: "Nicky"},
	}}
	if got := resolveDisplayName(m); got != "Nicky" {
		t.Errorf("resolveDisplayName() = %q, want %q", got, "Nicky")
	}
}

func TestResolveDisplayNameFallsBackToGlobalName(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "user1", GlobalName: "Global One"},
		Member: &discordgo.Member{},
	}}
	if got := resolveDisplayName(m); got != "Global One" {
		t.Errorf("resolveDisplayName() = %q, want %q", got, "Global One")
	}
}

func TestResolveDisplayNameFallsBackToUsername(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "user1"},
	}}
	if got := resolveDisplayName(m); got != "user1" {
		t.Errorf("resolveDisplayName() = %q, want %q", got, "user1")
	}
}
