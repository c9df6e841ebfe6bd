// Package browser implements the Browser Controller (spec §4.8): process
// lifecycle over a Chromium-family browser via the Chrome DevTools Protocol,
// accessibility-tree and DOM-fallback snapshotting with stable e<N> refs,
// and the click/type locator ladders tool calls drive against those refs.
//
// One Controller owns exactly one browser connection and one active page;
// every tool invocation that touches the browser is expected to be
// serialized by the caller (the Agent Loop executes tool calls for a turn
// strictly in order), so Controller itself only guards its own state
// transitions (start/stop/tab-switch) with a mutex rather than queuing
// actions.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config configures one browser session. ProfileDir and Port get sensible
// defaults from DefaultConfig; BrowserPath is resolved from the host PATH
// when empty.
type Config struct {
	BrowserPath string
	Port        int
	ProfileDir  string
	Headless    bool
}

func DefaultConfig(workspace, profile string) Config {
	if profile == "" {
		profile = "default"
	}
	return Config{
		Port:       9222,
		ProfileDir: filepath.Join(workspace, "browser", "profile_"+profile),
		Headless:   true,
	}
}

// consoleEntry is one captured console.* call or thrown exception.
type consoleEntry struct {
	level string
	text  string
	at    time.Time
}

// Controller owns the browser process/connection and the single active
// page's ref map. Not safe for concurrent action calls; safe for
// concurrent Status() reads.
type Controller struct {
	mu sync.Mutex

	cfg     Config
	browser *rod.Browser
	launch  *launcher.Launcher
	page    *rod.Page
	refMap  *RefMap

	console    []consoleEntry
	errors     []consoleEntry
	stopEvents func()

	tracing    bool
	traceChunk []byte
}

func New() *Controller {
	return &Controller{}
}

// Running reports whether a browser connection is currently held.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browser != nil
}

// Status returns a short human-readable description for the "status" action.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return "browser not started"
	}
	url := "about:blank"
	if c.page != nil {
		if info, err := c.page.Info(); err == nil {
			url = info.URL
		}
	}
	mode := "headed"
	if c.cfg.Headless {
		mode = "headless"
	}
	return fmt.Sprintf("running (%s, port %d), current page: %s", mode, c.cfg.Port, url)
}

// Start locates the host browser executable, checks whether a
// remote-debugging endpoint is already live on the configured port, and
// either attaches to it or spawns a fresh process. Idempotent: calling
// Start while already running is a no-op.
func (c *Controller) Start(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		return nil
	}
	if cfg.Port == 0 {
		cfg.Port = 9222
	}
	c.cfg = cfg

	if wsURL, ok := probeDebugEndpoint(ctx, cfg.Port); ok {
		b := rod.New().ControlURL(wsURL)
		if err := b.Connect(); err != nil {
			return fmt.Errorf("connect to running browser: %w", err)
		}
		c.browser = b
		return c.openInitialPage()
	}

	execPath := cfg.BrowserPath
	if execPath == "" {
		if p, has := launcher.LookPath(); has {
			execPath = p
		}
	}
	if cfg.ProfileDir != "" {
		if err := os.MkdirAll(cfg.ProfileDir, 0o755); err != nil {
			return fmt.Errorf("create profile dir: %w", err)
		}
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("remote-debugging-port", fmt.Sprintf("%d", cfg.Port))
	if execPath != "" {
		l = l.Bin(execPath)
	}
	if cfg.ProfileDir != "" {
		l = l.UserDataDir(cfg.ProfileDir)
	}

	launchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	wsURL, err := l.Context(launchCtx).Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	c.launch = l

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to launched browser: %w", err)
	}
	c.browser = b
	return c.openInitialPage()
}

func (c *Controller) openInitialPage() error {
	page, err := c.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("open initial page: %w", err)
	}
	c.page = page
	c.refMap = NewRefMap()
	c.attachEventCapture()
	return nil
}

// probeDebugEndpoint checks http://127.0.0.1:<port>/json/version and, if it
// answers, returns the WebSocket debugger URL it advertises.
func probeDebugEndpoint(ctx context.Context, port int) (string, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet,
		fmt.Sprintf("http://127.0.0.1:%d/json/version", port), nil)
	if err != nil {
		return "", false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}
	wsURL := extractWebSocketURL(body)
	if wsURL == "" {
		return "", false
	}
	if !verifyDebuggerSocket(ctx, wsURL) {
		return "", false
	}
	return wsURL, true
}

// verifyDebuggerSocket dials the advertised CDP websocket directly (bypassing
// rod) and round-trips a Browser.getVersion call, so a port that answers
// /json/version but whose socket has since gone stale is rejected before rod
// ever tries to attach to it.
func verifyDebuggerSocket(ctx context.Context, wsURL string) bool {
	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		return false
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	req, _ := json.Marshal(map[string]interface{}{"id": 1, "method": "Browser.getVersion"})
	if err := conn.Write(dialCtx, websocket.MessageText, req); err != nil {
		return false
	}
	_, data, err := conn.Read(dialCtx)
	if err != nil || len(data) == 0 {
		return false
	}
	var resp struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false
	}
	return resp.ID == 1
}

// Stop attempts a CDP-level close, then ensures the spawned process (if any)
// is killed at the OS level.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return nil
	}
	if c.stopEvents != nil {
		c.stopEvents()
		c.stopEvents = nil
	}
	closeErr := c.browser.Close()
	if c.launch != nil {
		c.launch.Kill()
		c.launch.Cleanup()
		c.launch = nil
	}
	c.browser = nil
	c.page = nil
	c.refMap = nil
	return closeErr
}

// currentPage returns the active page, erroring if the browser has not been
// started.
func (c *Controller) currentPage() (*rod.Page, error) {
	if c.page == nil {
		return nil, fmt.Errorf("browser not started")
	}
	return c.page, nil
}
