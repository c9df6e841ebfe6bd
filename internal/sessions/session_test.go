package sessions

import (
	"encoding/json"
	"testing"
)

func TestContentMarshalPlainText(t *testing.T) {
	c := TextContent("hello")
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"hello"` {
		t.Errorf("plain-text content should marshal as a bare JSON string, got %s", data)
	}
}

func TestContentMarshalParts(t *testing.T) {
	c := PartsContent([]ContentPart{
		{Kind: "text", Text: "look at this"},
		{Kind: "image_url", ImageURL: "data:image/jpeg;base64,AAAA"},
	})
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		t.Fatalf("parts content should marshal as a JSON array: %v", err)
	}
	if len(parts) != 2 || parts[0].Text != "look at this" {
		t.Errorf("unexpected round-tripped parts: %+v", parts)
	}
}

func TestContentRoundTrip(t *testing.T) {
	cases := []Content{
		TextContent("plain"),
		TextContent(""),
		PartsContent([]ContentPart{{Kind: "text", Text: "a"}, {Kind: "image_url", ImageURL: "u"}}),
	}
	for i, c := range cases {
		data, err := json.Marshal(c)
		if err != nil {
			t.Fatalf("case %d: marshal: %v", i, err)
		}
		var got Content
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("case %d: unmarshal: %v", i, err)
		}
		if got.String() != c.String() || got.IsParts() != c.IsParts() {
			t.Errorf("case %d: round trip mismatch: got %+v, want %+v", i, got, c)
		}
	}
}

func TestContentStringConcatenatesTextParts(t *testing.T) {
	c := PartsContent([]ContentPart{
		{Kind: "text", Text: "hello "},
		{Kind: "image_url", ImageURL: "ignored"},
		{Kind: "text", Text: "world"},
	})
	if got := c.String(); got != "hello world" {
		t.Errorf("String() = %q, want %q", got, "hello world")
	}
}

func TestSessionMarshalRoundTrip(t *testing.T) {
	s := NewSession("cli:u1")
	s.Messages = append(s.Messages, Message{Role: "user", Content: TextContent("hi")})
	s.Messages = append(s.Messages, Message{
		Role:    "assistant",
		Content: TextContent(""),
		ToolCalls: []ToolCallSpec{
			{ID: "call_1", Name: "list_dir", Arguments: `{"path":"/tmp"}`},
		},
	})
	s.Messages = append(s.Messages, Message{Role: "tool", Content: TextContent("a\nb"), ToolCallID: "call_1", Name: "list_dir"})
	s.LastConsolidatedIndex = 1

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Session
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Key != s.Key || len(got.Messages) != len(s.Messages) || got.LastConsolidatedIndex != s.LastConsolidatedIndex {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, s)
	}
	for i := range s.Messages {
		if got.Messages[i].Role != s.Messages[i].Role || got.Messages[i].Content.String() != s.Messages[i].Content.String() {
			t.Errorf("message %d mismatch: got %+v, want %+v", i, got.Messages[i], s.Messages[i])
		}
	}
}

func TestSessionClone(t *testing.T) {
	s := NewSession("cli:u1")
	s.Messages = append(s.Messages, Message{Role: "user", Content: TextContent("hi")})

	clone := s.Clone()
	clone.Messages[0].Content = TextContent("mutated")
	clone.Messages = append(clone.Messages, Message{Role: "assistant", Content: TextContent("more")})

	if s.Messages[0].Content.String() != "hi" {
		t.Error("mutating a clone's message slice must not affect the original")
	}
	if len(s.Messages) != 1 {
		t.Error("appending to a clone's message slice must not affect the original's length")
	}
}
