package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coreclaw/agentcore/internal/browser"
)

// BrowserToolConfig mirrors the agent's browser configuration (profile
// selection, headless/headed, debug port).
type BrowserToolConfig struct {
	Enabled    bool
	Headless   bool
	Port       int
	Profile    string
	Workspace  string
	MaxNodes   int
}

// BrowserTool exposes the Browser Controller as a single tool with a
// discriminated "action" parameter (spec §4.8).
type BrowserTool struct {
	cfg        BrowserToolConfig
	controller *browser.Controller
}

func NewBrowserTool(cfg BrowserToolConfig) *BrowserTool {
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = 50
	}
	return &BrowserTool{cfg: cfg, controller: browser.New()}
}

func (t *BrowserTool) Name() string { return "browser" }

func (t *BrowserTool) Description() string {
	return "Control a real browser: navigate, snapshot the page into clickable refs, click/type by ref, search, and inspect console/network state. Call 'snapshot' after navigating before clicking or typing."
}

func (t *BrowserTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{
					"start", "stop", "status",
					"open", "navigate", "search",
					"snapshot", "click", "type", "act", "hover", "find",
					"scroll", "resize", "press",
					"new_tab", "switch_tab", "close_tab", "tabs",
					"evaluate", "cookies", "storage", "wait",
					"console", "errors",
					"download", "upload", "trace", "screenshot", "get_text",
				},
				"description": "Which browser operation to perform.",
			},
			"url":        map[string]interface{}{"type": "string", "description": "Target URL for open/navigate/new_tab."},
			"query":      map[string]interface{}{"type": "string", "description": "Search text for the search action."},
			"ref":        map[string]interface{}{"type": "string", "description": "Element ref from the last snapshot (e.g. 'e3'), for click/type/act."},
			"value":      map[string]interface{}{"type": "string", "description": "Text to type, storage value, or act() fill value."},
			"key":        map[string]interface{}{"type": "string", "description": "storage: localStorage key to read or write. press: key name (Enter, Tab, Escape, ...)."},
			"kind":       map[string]interface{}{"type": "string", "description": "act() operation kind: click|fill."},
			"selector":   map[string]interface{}{"type": "string", "description": "Raw CSS selector for hover/wait/get_text/download/upload."},
			"role":       map[string]interface{}{"type": "string", "description": "ARIA role for find."},
			"text":       map[string]interface{}{"type": "string", "description": "Visible text to match for find."},
			"label":      map[string]interface{}{"type": "string", "description": "Label text to match for find."},
			"first":      map[string]interface{}{"type": "boolean", "description": "find: take the first match."},
			"nth":        map[string]interface{}{"type": "integer", "description": "find/act: which occurrence to target (0-based)."},
			"find_action": map[string]interface{}{"type": "string", "description": "find: one-shot action to run on the match: click|fill|hover|text."},
			"script":     map[string]interface{}{"type": "string", "description": "JavaScript for the evaluate action."},
			"dx":         map[string]interface{}{"type": "number", "description": "scroll: horizontal pixels."},
			"dy":         map[string]interface{}{"type": "number", "description": "scroll: vertical pixels."},
			"width":      map[string]interface{}{"type": "integer", "description": "resize: viewport width."},
			"height":     map[string]interface{}{"type": "integer", "description": "resize: viewport height."},
			"index":      map[string]interface{}{"type": "integer", "description": "switch_tab/close_tab: tab index from tabs."},
			"paths":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "upload: local file paths."},
			"full_page":  map[string]interface{}{"type": "boolean", "description": "screenshot: capture the full scrollable page."},
			"start":      map[string]interface{}{"type": "boolean", "description": "trace: true to start, false to stop and save."},
			"timeout_seconds": map[string]interface{}{"type": "integer", "description": "wait: how long to wait, in seconds."},
		},
		"required": []string{"action"},
	}
}

func (t *BrowserTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if !t.cfg.Enabled {
		return ErrorResult("browser tool is disabled")
	}
	action, _ := args["action"].(string)
	if action == "" {
		return ErrorResult("action is required")
	}

	workspace := t.cfg.Workspace
	if ws := ToolWorkspaceFromCtx(ctx); ws != "" {
		workspace = ws
	}

	switch action {
	case "start":
		cfg := browser.DefaultConfig(workspace, t.cfg.Profile)
		cfg.Headless = t.cfg.Headless
		if t.cfg.Port != 0 {
			cfg.Port = t.cfg.Port
		}
		if err := t.controller.Start(ctx, cfg); err != nil {
			return ErrorResult(fmt.Sprintf("start: %v", err))
		}
		return VerifiedResult("browser started")

	case "stop":
		if err := t.controller.Stop(); err != nil {
			return ErrorResult(fmt.Sprintf("stop: %v", err))
		}
		return VerifiedResult("browser stopped")

	case "status":
		return VerifiedResult(t.controller.Status())

	case "open", "navigate":
		target, _ := args["url"].(string)
		if target == "" {
			return ErrorResult("url is required")
		}
		if err := t.ensureStarted(ctx, workspace); err != nil {
			return ErrorResult(err.Error())
		}
		if err := t.controller.Navigate(target); err != nil {
			return ErrorResult(fmt.Sprintf("navigate: %v", err))
		}
		return VerifiedResult(fmt.Sprintf("navigated to %s", target))

	case "search":
		query, _ := args["query"].(string)
		if query == "" {
			return ErrorResult("query is required")
		}
		text, err := t.controller.Search(query)
		if err != nil {
			return ErrorResult(fmt.Sprintf("search: %v", err))
		}
		return VerifiedResult(text)

	case "snapshot":
		refs, err := t.controller.BuildSnapshot(t.cfg.MaxNodes)
		if err != nil {
			return ErrorResult(fmt.Sprintf("snapshot: %v", err))
		}
		return VerifiedResult(formatRefs(refs))

	case "click":
		ref, _ := args["ref"].(string)
		if ref == "" {
			return ErrorResult("ref is required")
		}
		strategy, err := t.controller.ClickWithRetry(ref, 3)
		if err != nil {
			return ErrorResult(fmt.Sprintf("click %s: %v", ref, err))
		}
		return VerifiedResult(fmt.Sprintf("Clicked %s (%s)", ref, strategy))

	case "type":
		ref, _ := args["ref"].(string)
		value, _ := args["value"].(string)
		if ref == "" {
			return ErrorResult("ref is required")
		}
		strategy, err := t.controller.TypeByRef(ref, value)
		if err != nil {
			return ErrorResult(fmt.Sprintf("type %s: %v", ref, err))
		}
		return VerifiedResult(fmt.Sprintf("Typed into %s (%s)", ref, strategy))

	case "act":
		kind, _ := args["kind"].(string)
		ref, _ := args["ref"].(string)
		value, _ := args["value"].(string)
		result, err := t.controller.Act(kind, ref, value)
		if err != nil {
			return ErrorResult(fmt.Sprintf("act %s %s: %v", kind, ref, err))
		}
		return VerifiedResult(result)

	case "hover":
		selector, _ := args["selector"].(string)
		if selector == "" {
			return ErrorResult("selector is required")
		}
		if err := t.controller.Hover(selector); err != nil {
			return ErrorResult(fmt.Sprintf("hover: %v", err))
		}
		return VerifiedResult(fmt.Sprintf("hovered %s", selector))

	case "find":
		opts := browser.FindOpts{
			Role:   stringArg(args, "role"),
			Text:   stringArg(args, "text"),
			Label:  stringArg(args, "label"),
			First:  boolArg(args, "first"),
			Nth:    intArg(args, "nth"),
			Action: stringArg(args, "find_action"),
			Value:  stringArg(args, "value"),
		}
		result, err := t.controller.Find(opts)
		if err != nil {
			return ErrorResult(fmt.Sprintf("find: %v", err))
		}
		return VerifiedResult(result)

	case "scroll":
		dx := floatArg(args, "dx")
		dy := floatArg(args, "dy")
		if err := t.controller.Scroll(dx, dy); err != nil {
			return ErrorResult(fmt.Sprintf("scroll: %v", err))
		}
		return VerifiedResult("scrolled")

	case "resize":
		width := intArg(args, "width")
		height := intArg(args, "height")
		if width <= 0 || height <= 0 {
			return ErrorResult("width and height are required")
		}
		if err := t.controller.Resize(width, height); err != nil {
			return ErrorResult(fmt.Sprintf("resize: %v", err))
		}
		return VerifiedResult(fmt.Sprintf("resized to %dx%d", width, height))

	case "press":
		key := stringArg(args, "key")
		if key == "" {
			return ErrorResult("key is required")
		}
		if err := t.controller.Press(key); err != nil {
			return ErrorResult(fmt.Sprintf("press: %v", err))
		}
		return VerifiedResult(fmt.Sprintf("pressed %s", key))

	case "new_tab":
		target, _ := args["url"].(string)
		if err := t.controller.NewTab(target); err != nil {
			return ErrorResult(fmt.Sprintf("new_tab: %v", err))
		}
		return VerifiedResult("opened new tab")

	case "switch_tab":
		if err := t.controller.SwitchTab(intArg(args, "index")); err != nil {
			return ErrorResult(fmt.Sprintf("switch_tab: %v", err))
		}
		return VerifiedResult("switched tab")

	case "close_tab":
		idx := -1
		if _, ok := args["index"]; ok {
			idx = intArg(args, "index")
		}
		if err := t.controller.CloseTab(idx); err != nil {
			return ErrorResult(fmt.Sprintf("close_tab: %v", err))
		}
		return VerifiedResult("closed tab")

	case "tabs":
		text, err := t.controller.Tabs()
		if err != nil {
			return ErrorResult(fmt.Sprintf("tabs: %v", err))
		}
		return VerifiedResult(text)

	case "evaluate":
		script := stringArg(args, "script")
		if script == "" {
			return ErrorResult("script is required")
		}
		text, err := t.controller.Evaluate(script)
		if err != nil {
			return ErrorResult(fmt.Sprintf("evaluate: %v", err))
		}
		return VerifiedResult(text)

	case "cookies":
		cookies, err := t.controller.Cookies()
		if err != nil {
			return ErrorResult(fmt.Sprintf("cookies: %v", err))
		}
		names := make([]string, 0, len(cookies))
		for _, c := range cookies {
			names = append(names, fmt.Sprintf("%s=%s", c.Name, c.Value))
		}
		return VerifiedResult(strings.Join(names, "; "))

	case "storage":
		key := stringArg(args, "key")
		if key == "" {
			key = stringArg(args, "ref")
		}
		var valuePtr *string
		if raw, ok := args["value"]; ok {
			v, _ := raw.(string)
			valuePtr = &v
		}
		text, err := t.controller.Storage(key, valuePtr)
		if err != nil {
			return ErrorResult(fmt.Sprintf("storage: %v", err))
		}
		return VerifiedResult(text)

	case "wait":
		selector := stringArg(args, "selector")
		timeout := time.Duration(intArg(args, "timeout_seconds")) * time.Second
		if err := t.controller.Wait(selector, timeout); err != nil {
			return ErrorResult(fmt.Sprintf("wait: %v", err))
		}
		return VerifiedResult("wait satisfied")

	case "console":
		return VerifiedResult(strings.Join(t.controller.Console(), "\n"))

	case "errors":
		return VerifiedResult(strings.Join(t.controller.Errors(), "\n"))

	case "download":
		selector := stringArg(args, "selector")
		if selector == "" {
			return ErrorResult("selector is required")
		}
		dir := filepath.Join(workspace, "downloads")
		path, err := t.controller.Download(dir, selector, 0)
		if err != nil {
			return ErrorResult(fmt.Sprintf("download: %v", err))
		}
		return VerifiedResult(fmt.Sprintf("Saved to: %s", path))

	case "upload":
		selector := stringArg(args, "selector")
		if selector == "" {
			return ErrorResult("selector is required")
		}
		rawPaths, _ := args["paths"].([]interface{})
		paths := make([]string, 0, len(rawPaths))
		for _, p := range rawPaths {
			if s, ok := p.(string); ok {
				paths = append(paths, s)
			}
		}
		if len(paths) == 0 {
			return ErrorResult("paths is required")
		}
		if err := t.controller.Upload(selector, paths); err != nil {
			return ErrorResult(fmt.Sprintf("upload: %v", err))
		}
		return VerifiedResult(fmt.Sprintf("uploaded %d file(s)", len(paths)))

	case "trace":
		start := boolArg(args, "start")
		dir := filepath.Join(workspace, "screenshots")
		path, err := t.controller.Trace(start, dir, "")
		if err != nil {
			return ErrorResult(fmt.Sprintf("trace: %v", err))
		}
		return VerifiedResult(path)

	case "screenshot":
		dir := filepath.Join(workspace, "screenshots")
		path, err := t.controller.Screenshot(dir, "", boolArg(args, "full_page"))
		if err != nil {
			return ErrorResult(fmt.Sprintf("screenshot: %v", err))
		}
		return VerifiedResult(fmt.Sprintf("Saved to: %s", path))

	case "get_text":
		selector := stringArg(args, "selector")
		text, err := t.controller.GetText(selector)
		if err != nil {
			return ErrorResult(fmt.Sprintf("get_text: %v", err))
		}
		return VerifiedResult(text)

	default:
		return ErrorResult(fmt.Sprintf("unknown browser action %q", action))
	}
}

// ensureStarted lazily starts the browser on first navigation so a turn
// that never touches the browser never pays process-spawn cost.
func (t *BrowserTool) ensureStarted(ctx context.Context, workspace string) error {
	if t.controller.Running() {
		return nil
	}
	cfg := browser.DefaultConfig(workspace, t.cfg.Profile)
	cfg.Headless = t.cfg.Headless
	if t.cfg.Port != 0 {
		cfg.Port = t.cfg.Port
	}
	return t.controller.Start(ctx, cfg)
}

func formatRefs(refs []browser.Ref) string {
	var sb strings.Builder
	for _, r := range refs {
		fmt.Fprintf(&sb, "%s: %s \"%s\"", r.ID, r.Role, r.Name)
		if r.Href != "" {
			fmt.Fprintf(&sb, " [href=%s]", r.Href)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func floatArg(args map[string]interface{}, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
