package tools

import (
	"context"
	"fmt"
)

// SpawnTool is the registration-contract side of the Subagent Manager (spec
// §4.9): a model calls it to hand off a narrow, single-purpose task to a
// fresh subagent running its own bounded tool loop in the background.
type SpawnTool struct {
	manager *SubagentManager
}

func NewSpawnTool(manager *SubagentManager) *SpawnTool {
	return &SpawnTool{manager: manager}
}

func (t *SpawnTool) Name() string { return "spawn" }

func (t *SpawnTool) Description() string {
	return "Delegate a self-contained task to a subagent that runs independently and reports its result back into this conversation when done. Use for research, multi-step file work, or anything that would otherwise burn many iterations of this conversation's own budget."
}

func (t *SpawnTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{
				"type":        "string",
				"description": "The task for the subagent to complete, written as a standalone instruction.",
			},
			"label": map[string]interface{}{
				"type":        "string",
				"description": "A short human-readable label for this subagent (defaults to a truncation of task).",
			},
			"model": map[string]interface{}{
				"type":        "string",
				"description": "Optional model override for this subagent.",
			},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	task, _ := args["task"].(string)
	if task == "" {
		return ErrorResult("spawn requires task")
	}
	label, _ := args["label"].(string)
	model, _ := args["model"].(string)

	channel := ToolChannelFromCtx(ctx)
	chatID := ToolChatIDFromCtx(ctx)
	depth := SubagentDepthFromCtx(ctx)
	parentID := channel + ":" + chatID

	msg, err := t.manager.Spawn(ctx, parentID, depth, task, label, model, channel, chatID, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("could not spawn subagent: %v", err))
	}
	return NewResult(msg)
}
