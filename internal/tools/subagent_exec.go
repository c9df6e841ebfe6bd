package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreclaw/agentcore/internal/bus"
	"github.com/coreclaw/agentcore/internal/providers"
)

// runTask executes the subagent to completion, then announces the result
// back to the parent's origin channel on the "system" pseudo-channel
// (spec §4.9) and invokes the async callback, if any.
func (sm *SubagentManager) runTask(ctx context.Context, task *SubagentTask, callback AsyncCallback) {
	iterations := sm.executeTask(ctx, task)

	if sm.msgBus != nil && task.OriginChannel != "" {
		sm.mu.RLock()
		remaining := 0
		for _, t := range sm.tasks {
			if t.ParentID == task.ParentID && t.Status == TaskStatusRunning {
				remaining++
			}
		}
		sm.mu.RUnlock()

		content := fmt.Sprintf("Subagent %q (%s) finished in %d iteration(s):\n\n%s",
			task.Label, task.Status, iterations, task.Result)
		if remaining > 0 {
			content += fmt.Sprintf("\n\n(%d other subagent(s) still running)", remaining)
		}

		sm.msgBus.PublishInbound(bus.InboundMessage{
			Channel:  "system",
			SenderID: "subagent:" + task.ID,
			ChatID:   task.OriginChannel + ":" + task.OriginChatID,
			Content:  content,
			Metadata: map[string]string{
				"origin_channel": task.OriginChannel,
				"parent_agent":   task.ParentID,
				"subagent_id":    task.ID,
				"subagent_label": task.Label,
			},
		})
	}

	if callback != nil {
		callback(ctx, NewResult(fmt.Sprintf("Subagent %q completed in %d iteration(s).\n\nResult:\n%s",
			task.Label, iterations, task.Result)))
	}
}

// executeTask runs the bounded LLM/tool loop for a subagent and returns the
// iteration count. It mirrors the Agent Loop's shape (spec §4.6) but skips
// loop-detection, plan mode and tool-forcing: a subagent's task prompt is
// already narrow and single-purpose.
func (sm *SubagentManager) executeTask(ctx context.Context, task *SubagentTask) int {
	const maxIterations = 20

	defer func() {
		sm.mu.Lock()
		task.CompletedAt = time.Now().UnixMilli()
		sm.mu.Unlock()
	}()

	if ctx.Err() != nil {
		sm.mu.Lock()
		task.Status = TaskStatusCancelled
		task.Result = "cancelled before execution"
		sm.mu.Unlock()
		return 0
	}

	toolsReg := sm.createTools()
	sm.applyDenyList(toolsReg, task.Depth)
	ctx = WithSubagentDepth(ctx, task.Depth)

	model := sm.model
	if sm.config.Model != "" {
		model = sm.config.Model
	}
	if task.Model != "" {
		model = task.Model
	}

	systemPrompt := sm.buildSubagentSystemPrompt(task)
	messages := []providers.Message{
		providers.TextMessage("system", systemPrompt),
		providers.TextMessage("user", task.Task),
	}

	var finalContent string
	iteration := 0

	for iteration < maxIterations {
		iteration++
		if ctx.Err() != nil {
			sm.mu.Lock()
			task.Status = TaskStatusCancelled
			task.Result = "cancelled during execution"
			sm.mu.Unlock()
			return iteration
		}

		resp, err := sm.provider.Chat(ctx, providers.ChatRequest{
			Messages:    messages,
			Tools:       toolsReg.ProviderDefs(),
			Model:       model,
			Temperature: 0.5,
			MaxTokens:   4096,
		})
		if err != nil {
			sm.mu.Lock()
			task.Status = TaskStatusFailed
			task.Result = fmt.Sprintf("LLM error at iteration %d: %v", iteration, err)
			sm.mu.Unlock()
			slog.Warn("subagent LLM error", "id", task.ID, "iteration", iteration, "error", err)
			return iteration
		}

		if !resp.HasToolCalls() {
			finalContent = resp.Content
			break
		}

		content := resp.Content
		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   &content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			result := toolsReg.Execute(ctx, tc.Name, tc.Arguments)
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    &result.ForLLM,
				ToolCallID: tc.ID,
			})
		}
	}

	sm.mu.Lock()
	if finalContent == "" {
		finalContent = "Task completed but no final response was generated."
	}
	task.Status = TaskStatusCompleted
	task.Result = finalContent
	sm.mu.Unlock()

	slog.Info("subagent completed", "id", task.ID, "iterations", iteration)
	return iteration
}
