// Package contextbuilder assembles the per-turn message list the Agent Loop
// hands to a provider (spec §4.5): a system prompt built from the agent's
// identity, its bootstrap documents, long-term memory, and skills, followed
// by the session's bounded message history and the current turn.
package contextbuilder

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/coreclaw/agentcore/internal/bootstrap"
	"github.com/coreclaw/agentcore/internal/memory"
	"github.com/coreclaw/agentcore/internal/providers"
	"github.com/coreclaw/agentcore/internal/sessions"
)

// Config holds the fixed, rarely-changing inputs to Builder: things that
// come from the workspace and agent identity rather than from a single
// turn.
type Config struct {
	Workspace string
	AgentName string
	Images    ImageConfig
}

// Builder assembles messages for one turn. It is safe for concurrent use:
// all per-turn state is local to Build.
type Builder struct {
	cfg       Config
	memory    *memory.Store
	captioner providers.Provider // optional; nil disables image captioning
}

func New(cfg Config, mem *memory.Store, captioner providers.Provider) *Builder {
	if cfg.Images == (ImageConfig{}) {
		cfg.Images = DefaultImageConfig()
	}
	return &Builder{cfg: cfg, memory: mem, captioner: captioner}
}

// Build returns the full message list for one Agent Loop iteration start:
// system prompt, bounded history since the session's last consolidation,
// and the current user turn (polymorphic: caption + inline images + text).
func (b *Builder) Build(ctx context.Context, sess *sessions.Session, channel, chatID, content string, media []string) ([]providers.Message, error) {
	system := b.buildSystemPrompt(sess, channel, chatID)
	msgs := []providers.Message{providers.TextMessage("system", system)}
	msgs = append(msgs, historyToProvider(b.boundedHistory(sess))...)
	msgs = append(msgs, b.buildUserMessage(ctx, content, media))
	return msgs, nil
}

// boundedHistory returns every message the session has accumulated since
// its last consolidation cursor — the Memory Consolidator is what keeps
// this bounded, not a fixed lookback count here.
func (b *Builder) boundedHistory(sess *sessions.Session) []sessions.Message {
	if sess == nil {
		return nil
	}
	idx := sess.LastConsolidatedIndex
	if idx < 0 || idx > len(sess.Messages) {
		idx = 0
	}
	return sess.Messages[idx:]
}

func (b *Builder) buildSystemPrompt(sess *sessions.Session, channel, chatID string) string {
	var sections []string

	sections = append(sections, b.identityPreamble())

	if docs := bootstrap.ReadWorkspaceFiles(b.cfg.Workspace); len(docs) > 0 {
		var parts []string
		for _, d := range docs {
			parts = append(parts, strings.TrimSpace(d.Content))
		}
		sections = append(sections, strings.Join(parts, "\n\n"))
	}

	if b.memory != nil {
		if mem, err := b.memory.GetMemoryContext(); err == nil && mem != "" {
			sections = append(sections, "# Memory\n\n"+mem)
		}
	}

	skills := LoadSkills(b.cfg.Workspace)
	if always := alwaysOnSkillText(skills); always != "" {
		sections = append(sections, always)
	}
	if table := skillSummaryTable(skills); table != "" {
		sections = append(sections, table)
	}

	if banner := sessionBanner(sess, channel, chatID); banner != "" {
		sections = append(sections, banner)
	}

	return strings.Join(sections, "\n\n---\n\n")
}

func (b *Builder) identityPreamble() string {
	name := b.cfg.AgentName
	if name == "" {
		name = "the agent"
	}
	host, _ := os.Hostname()
	now := time.Now()
	return fmt.Sprintf(
		"You are %s.\nCurrent time: %s (%s).\nRunning on %s/%s, host %s.\nWorkspace: %s",
		name, now.Format("2006-01-02 15:04:05"), now.Location().String(),
		runtime.GOOS, runtime.GOARCH, host, b.cfg.Workspace,
	)
}

func alwaysOnSkillText(skills []Skill) string {
	var parts []string
	for _, s := range skills {
		if s.AlwaysOn && s.Content != "" {
			parts = append(parts, fmt.Sprintf("## Skill: %s\n\n%s", s.Name, s.Content))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n")
}

func skillSummaryTable(skills []Skill) string {
	if len(skills) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Available Skills\n\n| Skill | Summary |\n|---|---|\n")
	for _, s := range skills {
		fmt.Fprintf(&b, "| %s | %s |\n", s.Name, s.Summary)
	}
	return b.String()
}

func sessionBanner(sess *sessions.Session, channel, chatID string) string {
	if channel == "" {
		return ""
	}
	consolidated := 0
	if sess != nil {
		consolidated = sess.LastConsolidatedIndex
	}
	return fmt.Sprintf("Session: channel=%s chat_id=%s (consolidated through message %d)", channel, chatID, consolidated)
}

// historyToProvider converts the session's stored messages into the
// provider wire shape, carrying tool calls and tool results through
// unchanged.
func historyToProvider(msgs []sessions.Message) []providers.Message {
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		pm := providers.Message{
			Role:       m.Role,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		if m.Content.IsSet && !m.Content.IsParts() {
			text := m.Content.Text
			pm.Content = &text
		} else if m.Content.IsParts() {
			text := m.Content.String()
			pm.Content = &text
			for _, part := range m.Content.Parts {
				if part.Kind == "image_url" {
					pm.Images = append(pm.Images, imageFromDataURL(part.ImageURL))
				}
			}
		}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, providers.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: parseArgs(tc.Arguments)})
		}
		out = append(out, pm)
	}
	return out
}

// buildUserMessage renders the current turn: an optional leading caption
// block (one per captioned image), inline image parts for every processed
// attachment, and the user's text last.
func (b *Builder) buildUserMessage(ctx context.Context, content string, media []string) providers.Message {
	processed := prepareImages(ctx, media, b.cfg.Images, b.captioner)

	var text strings.Builder
	var images []providers.ImageContent
	for i, p := range processed {
		if p.Caption != "" {
			fmt.Fprintf(&text, "[image %d description: %s]\n", i+1, p.Caption)
		}
		images = append(images, p.Content)
	}
	text.WriteString(content)

	final := text.String()
	return providers.Message{Role: "user", Content: &final, Images: images}
}

// ProcessMedia renders inbound media the same way buildUserMessage does, but
// returns session-storage ContentParts (text + data-URL images) so the
// Agent Loop can persist exactly what was sent to the provider, rather than
// re-deriving it from the raw file paths on every later read.
func (b *Builder) ProcessMedia(ctx context.Context, media []string) []sessions.ContentPart {
	processed := prepareImages(ctx, media, b.cfg.Images, b.captioner)
	parts := make([]sessions.ContentPart, 0, len(processed))
	for i, p := range processed {
		if p.Caption != "" {
			parts = append(parts, sessions.ContentPart{Kind: "text", Text: fmt.Sprintf("[image %d description: %s]", i+1, p.Caption)})
		}
		parts = append(parts, sessions.ContentPart{Kind: "image_url", ImageURL: dataURL(p.Content)})
	}
	return parts
}
