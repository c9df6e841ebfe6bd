package cmd

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/coreclaw/agentcore/internal/providers"
	"github.com/coreclaw/agentcore/internal/tools"
)

// tracingTool wraps a Tool with an OTel span per execution, so tool latency
// and failure rate show up in whatever collector telemetry.endpoint points
// at, without internal/tools needing to know about tracing at all.
type tracingTool struct {
	tools.Tool
}

func traced(t tools.Tool) tools.Tool { return tracingTool{Tool: t} }

func (t tracingTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	ctx, span := tracer().Start(ctx, "tool."+t.Tool.Name())
	defer span.End()

	result := t.Tool.Execute(ctx, args)
	if result != nil && result.IsError {
		span.SetStatus(codes.Error, result.ForLLM)
	}
	return result
}

// tracingProvider wraps a Provider with an OTel span per Chat call,
// recording the model name and token usage once the call returns. Other
// Provider methods pass through to the wrapped Provider untraced.
type tracingProvider struct {
	providers.Provider
}

func tracedProvider(p providers.Provider) providers.Provider { return tracingProvider{Provider: p} }

func (p tracingProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	ctx, span := tracer().Start(ctx, "llm.chat")
	defer span.End()

	span.SetAttributes(attribute.String("llm.provider", p.Provider.Name()), attribute.String("llm.model", req.Model))
	resp, err := p.Provider.Chat(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	if resp != nil && resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.usage.prompt_tokens", resp.Usage.PromptTokens),
			attribute.Int("llm.usage.completion_tokens", resp.Usage.CompletionTokens),
		)
	}
	return resp, nil
}
