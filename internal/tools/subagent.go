// Subagent spawning and lifecycle tracking (spec §4.9, depth guard per
// SPEC_FULL §12). A subagent runs its own bounded tool loop in a background
// goroutine against a trimmed copy of the parent's tool registry, and
// reports back to the parent by publishing an inbound message on the
// "system" pseudo-channel once it finishes.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coreclaw/agentcore/internal/bus"
	"github.com/coreclaw/agentcore/internal/providers"
)

// AsyncCallback is invoked when an asynchronously-started tool (currently
// only subagent spawning) finishes, letting the Agent Loop fold the result
// back into the conversation that triggered it without blocking on it.
type AsyncCallback func(ctx context.Context, result *Result)

// SubagentConfig configures the subagent system.
type SubagentConfig struct {
	MaxConcurrent       int    // max concurrent subagents (default 8)
	MaxSpawnDepth       int    // max nesting depth (default 1)
	MaxChildrenPerAgent int    // max children per parent (default 5)
	ArchiveAfterMinutes int    // auto-archive completed tasks (default 60)
	Model               string // model override for subagents (empty = inherit)
}

const (
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusCancelled = "cancelled"
)

// SubagentTask tracks a running or completed subagent.
type SubagentTask struct {
	ID            string `json:"id"`
	ParentID      string `json:"parent_id"`
	Task          string `json:"task"`
	Label         string `json:"label"`
	Status        string `json:"status"`
	Result        string `json:"result,omitempty"`
	Depth         int    `json:"depth"`
	Model         string `json:"model,omitempty"`
	OriginChannel string `json:"origin_channel,omitempty"`
	OriginChatID  string `json:"origin_chat_id,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	CompletedAt   int64  `json:"completed_at,omitempty"`
}

// SubagentManager manages the lifecycle of spawned subagents.
type SubagentManager struct {
	mu       sync.RWMutex
	tasks    map[string]*SubagentTask
	config   SubagentConfig
	provider providers.Provider
	model    string
	msgBus   *bus.MessageBus

	// createTools builds a fresh tool registry for a subagent (a copy of the
	// parent's, before deny-list trimming).
	createTools func() *Registry
}

func NewSubagentManager(
	provider providers.Provider,
	model string,
	msgBus *bus.MessageBus,
	createTools func() *Registry,
	cfg SubagentConfig,
) *SubagentManager {
	return &SubagentManager{
		tasks:       make(map[string]*SubagentTask),
		config:      cfg,
		provider:    provider,
		model:       model,
		msgBus:      msgBus,
		createTools: createTools,
	}
}

func (sm *SubagentManager) CountRunningForParent(parentID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	count := 0
	for _, t := range sm.tasks {
		if t.ParentID == parentID && t.Status == TaskStatusRunning {
			count++
		}
	}
	return count
}

// SubagentDenyAlways are tools a spawned subagent may never use: it should
// not manage sessions or schedule, and it must not itself be reachable as a
// spawn target for a grandchild once MaxSpawnDepth is hit (handled in
// applyDenyList, not here).
var SubagentDenyAlways = []string{"cron", "memory_search", "memory_get", "sessions_send"}

// SubagentDenyLeaf applies once a subagent is at the spawn depth limit, so it
// cannot list or inspect sibling sessions either.
var SubagentDenyLeaf = []string{"sessions_list", "sessions_history", "sessions_spawn", "spawn"}

// Spawn starts a subagent task asynchronously and returns a status message
// immediately; the task itself runs in a goroutine.
func (sm *SubagentManager) Spawn(
	ctx context.Context,
	parentID string,
	depth int,
	task, label, modelOverride string,
	channel, chatID string,
	callback AsyncCallback,
) (string, error) {
	sm.mu.Lock()

	if depth >= sm.config.MaxSpawnDepth {
		sm.mu.Unlock()
		return "", fmt.Errorf("spawn depth limit reached (%d/%d)", depth, sm.config.MaxSpawnDepth)
	}

	running := 0
	childCount := 0
	for _, t := range sm.tasks {
		if t.Status == TaskStatusRunning {
			running++
		}
		if t.ParentID == parentID {
			childCount++
		}
	}
	if running >= sm.config.MaxConcurrent {
		sm.mu.Unlock()
		return "", fmt.Errorf("max concurrent subagents reached (%d/%d)", running, sm.config.MaxConcurrent)
	}
	if childCount >= sm.config.MaxChildrenPerAgent {
		sm.mu.Unlock()
		return "", fmt.Errorf("max children per agent reached (%d/%d)", childCount, sm.config.MaxChildrenPerAgent)
	}

	id := generateSubagentID()
	if label == "" {
		label = truncate(task, 50)
	}

	subTask := &SubagentTask{
		ID:            id,
		ParentID:      parentID,
		Task:          task,
		Label:         label,
		Status:        TaskStatusRunning,
		Depth:         depth + 1,
		Model:         modelOverride,
		OriginChannel: channel,
		OriginChatID:  chatID,
		CreatedAt:     time.Now().UnixMilli(),
	}
	sm.tasks[id] = subTask
	sm.mu.Unlock()

	slog.Info("subagent spawned", "id", id, "parent", parentID, "depth", subTask.Depth, "label", label)

	// No per-task cancellation: a subagent runs to completion or process
	// exit, matching the "cancellation on shutdown simply drops the task"
	// policy applied to background work throughout the loop.
	go sm.runTask(context.Background(), subTask, callback)

	return fmt.Sprintf("Spawned subagent %q (id=%s, depth=%d) for task: %s",
		label, id, subTask.Depth, truncate(task, 100)), nil
}

func generateSubagentID() string {
	return "sub_" + uuid.NewString()
}
