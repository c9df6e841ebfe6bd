package tools

import (
	"context"
	"testing"
)

type stubTool struct {
	name   string
	result string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return NewResult(s.result)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "a", result: "ra"})
	tool, ok := r.Get("a")
	if !ok || tool.Name() != "a" {
		t.Fatalf("expected to find tool a, got %v %v", tool, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected Get to report false for an unregistered tool")
	}
}

func TestRegistryListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "b"})
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "c"})
	got := r.List()
	want := []string{"b", "a", "c"}
	for i, n := range want {
		if got[i] != n {
			t.Errorf("List()[%d] = %q, want %q (order = %v)", i, got[i], n, got)
		}
	}
}

func TestRegistryRegisterReplaceDoesNotDuplicateOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "a", result: "first"})
	r.Register(&stubTool{name: "a", result: "second"})
	if len(r.List()) != 1 {
		t.Fatalf("expected re-registering the same name to not grow the order list, got %v", r.List())
	}
	tool, _ := r.Get("a")
	if tool.(*stubTool).result != "second" {
		t.Error("expected re-registration to replace the tool implementation")
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})
	r.Unregister("a")
	if _, ok := r.Get("a"); ok {
		t.Error("expected tool a to be gone after Unregister")
	}
	if len(r.List()) != 1 || r.List()[0] != "b" {
		t.Errorf("expected only b to remain in order, got %v", r.List())
	}
	// Unregistering a name that was never registered is a no-op.
	r.Unregister("never-existed")
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nope", nil)
	if !res.IsError {
		t.Error("expected an error result for an unknown tool")
	}
	if res.Err == nil {
		t.Error("expected Err to be populated with an UnknownToolError")
	}
	if _, ok := res.Err.(*UnknownToolError); !ok {
		t.Errorf("expected *UnknownToolError, got %T", res.Err)
	}
}

func TestRegistryExecuteDispatchesToTool(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "echo", result: "hello"})
	res := r.Execute(context.Background(), "echo", map[string]interface{}{"x": 1})
	if res.ForLLM != "hello" {
		t.Errorf("ForLLM = %q, want %q", res.ForLLM, "hello")
	}
}

func TestRegistryDefinitionsMatchToolShape(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "echo"})
	defs := r.Definitions()
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Function.Name != "echo" {
		t.Errorf("definition name = %q, want echo", defs[0].Function.Name)
	}
}
