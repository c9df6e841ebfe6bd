// Cron tool: the registration-contract side of the cron scheduling service
// collaborator (spec §1 — "cron scheduling service" is an out-of-scope
// external collaborator; only its registration contract is in-scope here).
// This tool lets a model register a recurring job (cron expression +
// message to replay into a session) and validates/computes the next run
// with gronx rather than hand-rolling a cron parser.
package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/coreclaw/agentcore/internal/bus"
)

// CronJob is one registered recurring job.
type CronJob struct {
	ID         string    `json:"id"`
	Expr       string    `json:"expr"`
	Channel    string    `json:"channel"`
	ChatID     string    `json:"chat_id"`
	Message    string    `json:"message"`
	NextRun    time.Time `json:"next_run"`
	LastRun    time.Time `json:"last_run,omitempty"`
	RunCount   int       `json:"run_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// CronTool exposes list/add/remove actions over an in-process set of jobs.
// The actual "fire the job" scheduling loop lives in Run, started once by
// the CLI entrypoint; it publishes an InboundMessage on the "system"
// pseudo-channel the same way the Subagent Manager reports results, so a
// fired job's reply flows through the normal Agent Loop turn.
type CronTool struct {
	mu     sync.Mutex
	jobs   map[string]*CronJob
	gron   gronx.Gronx
	msgBus *bus.MessageBus
	nextID int
}

func NewCronTool(msgBus *bus.MessageBus) *CronTool {
	return &CronTool{
		jobs:   make(map[string]*CronJob),
		gron:   gronx.New(),
		msgBus: msgBus,
	}
}

func (t *CronTool) Name() string { return "cron" }

func (t *CronTool) Description() string {
	return "Manage recurring scheduled messages: add, list, or remove a cron job. " +
		"Cron expressions use standard 5-field syntax (minute hour day-of-month month day-of-week)."
}

func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"add", "list", "remove"},
				"description": "Which cron operation to perform.",
			},
			"expr": map[string]interface{}{
				"type":        "string",
				"description": "5-field cron expression (required for add).",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Message to replay into this conversation when the job fires (required for add).",
			},
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job id to remove (required for remove).",
			},
		},
		"required": []string{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)
	switch action {
	case "add":
		return t.add(ctx, args)
	case "list":
		return t.list()
	case "remove":
		return t.remove(args)
	default:
		return ErrorResult(fmt.Sprintf("unknown cron action %q", action))
	}
}

func (t *CronTool) add(ctx context.Context, args map[string]interface{}) *Result {
	expr, _ := args["expr"].(string)
	message, _ := args["message"].(string)
	if expr == "" || message == "" {
		return ErrorResult("cron add requires both expr and message")
	}
	if !t.gron.IsValid(expr) {
		return ErrorResult(fmt.Sprintf("invalid cron expression %q", expr))
	}
	next, err := gronx.NextTick(expr, false)
	if err != nil {
		return ErrorResult(fmt.Sprintf("could not compute next run: %v", err))
	}

	channel := ToolChannelFromCtx(ctx)
	chatID := ToolChatIDFromCtx(ctx)

	t.mu.Lock()
	t.nextID++
	job := &CronJob{
		ID:        fmt.Sprintf("cron-%d", t.nextID),
		Expr:      expr,
		Channel:   channel,
		ChatID:    chatID,
		Message:   message,
		NextRun:   next,
		CreatedAt: time.Now(),
	}
	t.jobs[job.ID] = job
	t.mu.Unlock()

	return NewResult(fmt.Sprintf("[VERIFIED] scheduled %s, next run %s", job.ID, next.Format(time.RFC3339)))
}

func (t *CronTool) list() *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.jobs) == 0 {
		return NewResult("no cron jobs registered")
	}
	out := "registered jobs:\n"
	for _, j := range t.jobs {
		out += fmt.Sprintf("  %s: %q -> %q (next %s)\n", j.ID, j.Expr, j.Message, j.NextRun.Format(time.RFC3339))
	}
	return NewResult(out)
}

func (t *CronTool) remove(args map[string]interface{}) *Result {
	id, _ := args["job_id"].(string)
	if id == "" {
		return ErrorResult("cron remove requires job_id")
	}
	t.mu.Lock()
	_, ok := t.jobs[id]
	delete(t.jobs, id)
	t.mu.Unlock()
	if !ok {
		return ErrorResult(fmt.Sprintf("job %q not found", id))
	}
	return NewResult(fmt.Sprintf("[VERIFIED] removed %s", id))
}

// Run polls due jobs once per tick until ctx is cancelled, publishing a
// system-channel InboundMessage for each job whose NextRun has passed so it
// replays through the ordinary Agent Loop turn for its original
// channel/chat_id. Fire-and-forget: a missed tick (process down) is simply
// skipped, matching spec §5's "cancellation on shutdown simply drops the
// task" policy for background scheduling.
func (t *CronTool) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = time.Minute
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.fireDue(now)
		}
	}
}

func (t *CronTool) fireDue(now time.Time) {
	t.mu.Lock()
	var due []*CronJob
	for _, j := range t.jobs {
		if !j.NextRun.After(now) {
			due = append(due, j)
		}
	}
	for _, j := range due {
		j.LastRun = now
		j.RunCount++
		if next, err := gronx.NextTick(j.Expr, false); err == nil {
			j.NextRun = next
		}
	}
	t.mu.Unlock()

	if t.msgBus == nil {
		return
	}
	for _, j := range due {
		t.msgBus.PublishInbound(bus.InboundMessage{
			Channel: "system",
			ChatID:  j.Channel + ":" + j.ChatID,
			Content: j.Message,
		})
	}
}
