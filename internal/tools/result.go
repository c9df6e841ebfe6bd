package tools

import (
	"strings"

	"github.com/coreclaw/agentcore/internal/providers"
)

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`            // content sent to the LLM
	ForUser string `json:"for_user,omitempty"`  // content shown to the user
	Silent  bool   `json:"silent"`              // suppress user message
	IsError bool   `json:"is_error"`            // marks error
	Async   bool   `json:"async"`               // running asynchronously
	Err     error  `json:"-"`                   // internal error (not serialized)

	// Usage holds token usage from tools that make internal LLM calls (e.g. read_image).
	// The tool span (cmd/tracing.go) does not record it, nor Provider or Model.
	Usage    *providers.Usage `json:"-"`
	Provider string           `json:"-"` // provider name (for tool span metadata)
	Model    string           `json:"-"` // model used (for tool span metadata)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

// ErrorResult builds a failure result. message is prefixed with "[FAILED] "
// unless it already begins with one of the convention's failure tags
// ([FAILED], [ERROR]). The Agent Loop's result-verification heuristic
// matches the words "failed" and "error" these tags contain.
func ErrorResult(message string) *Result {
	if !strings.HasPrefix(message, "[FAILED]") && !strings.HasPrefix(message, "[ERROR]") {
		message = "[FAILED] " + message
	}
	return &Result{ForLLM: message, IsError: true}
}

// VerifiedResult builds a success result tagged with the "[VERIFIED]"
// convention used by the Browser Controller (spec §4.8).
func VerifiedResult(message string) *Result {
	if !strings.HasPrefix(message, "[VERIFIED]") {
		message = "[VERIFIED] " + message
	}
	return &Result{ForLLM: message}
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

func AsyncResult(message string) *Result {
	return &Result{ForLLM: message, Async: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
