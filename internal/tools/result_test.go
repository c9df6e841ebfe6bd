package tools

import "testing"

func TestErrorResultAddsFailedPrefix(t *testing.T) {
	r := ErrorResult("disk full")
	if r.ForLLM != "[FAILED] disk full" {
		t.Errorf("ForLLM = %q, want [FAILED]-prefixed", r.ForLLM)
	}
	if !r.IsError {
		t.Error("expected IsError to be true")
	}
}

func TestErrorResultDoesNotDoublePrefix(t *testing.T) {
	r := ErrorResult("[FAILED] already tagged")
	if r.ForLLM != "[FAILED] already tagged" {
		t.Errorf("ForLLM = %q, expected no double prefix", r.ForLLM)
	}
	r2 := ErrorResult("[ERROR] also tagged")
	if r2.ForLLM != "[ERROR] also tagged" {
		t.Errorf("ForLLM = %q, expected no double prefix", r2.ForLLM)
	}
}

func TestVerifiedResultAddsPrefix(t *testing.T) {
	r := VerifiedResult("clicked the button")
	if r.ForLLM != "[VERIFIED] clicked the button" {
		t.Errorf("ForLLM = %q", r.ForLLM)
	}
	r2 := VerifiedResult("[VERIFIED] already tagged")
	if r2.ForLLM != "[VERIFIED] already tagged" {
		t.Errorf("ForLLM = %q, expected no double prefix", r2.ForLLM)
	}
}

func TestSilentResultSuppressesUserMessage(t *testing.T) {
	r := SilentResult("background update")
	if !r.Silent {
		t.Error("expected Silent to be true")
	}
	if r.ForLLM != "background update" {
		t.Errorf("ForLLM = %q", r.ForLLM)
	}
}

func TestUserResultSetsBothFields(t *testing.T) {
	r := UserResult("done")
	if r.ForLLM != "done" || r.ForUser != "done" {
		t.Errorf("expected both ForLLM and ForUser set, got %+v", r)
	}
}

func TestWithErrorAttachesInternalError(t *testing.T) {
	base := NewResult("ok")
	wrapped := base.WithError(&UnknownToolError{Name: "x"})
	if wrapped.Err == nil {
		t.Error("expected Err to be set")
	}
	if wrapped != base {
		t.Error("WithError should mutate and return the same *Result")
	}
}
