package browser

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// Navigate loads url in the active page and waits for load to settle.
func (c *Controller) Navigate(target string) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	if err := page.Timeout(15 * time.Second).Navigate(target); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := page.Timeout(15 * time.Second).WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

// CurrentURL returns the active page's URL, or "" if unavailable.
func (c *Controller) CurrentURL() string {
	page, err := c.currentPage()
	if err != nil {
		return ""
	}
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// searchURLBuilders constructs deterministic search URLs for domains whose
// query-string format is stable and well known (spec §4.8).
var searchURLBuilders = map[string]func(q string) string{
	"amazon.": func(q string) string {
		return "https://www.amazon.com/s?k=" + url.QueryEscape(q)
	},
	"youtube.": func(q string) string {
		return "https://www.youtube.com/results?search_query=" + url.QueryEscape(q)
	},
	"xiaohongshu.": func(q string) string {
		return "https://www.xiaohongshu.com/search_result?keyword=" + url.QueryEscape(q)
	},
	"xhs.": func(q string) string {
		return "https://www.xiaohongshu.com/search_result?keyword=" + url.QueryEscape(q)
	},
	"ebay.": func(q string) string {
		return "https://www.ebay.com/sch/i.html?_nkw=" + url.QueryEscape(q)
	},
}

// Search detects the current domain and either navigates to a deterministic
// search URL (Amazon/YouTube/XHS/eBay) or falls back to filling a search
// input and pressing Enter twice, returning the first 800 characters of
// resulting page text.
func (c *Controller) Search(query string) (string, error) {
	current := c.CurrentURL()
	for domainHint, build := range searchURLBuilders {
		if strings.Contains(current, domainHint) {
			if err := c.Navigate(build(query)); err != nil {
				return "", err
			}
			return c.pageTextExcerpt(800)
		}
	}

	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	tp := page.Timeout(clickTimeout)
	el, err := tp.Element(`input[type="search"], input[name="q"], [role="searchbox"]`)
	if err != nil {
		return "", fmt.Errorf("no search input on page: %w", err)
	}
	if err := el.Input(query); err != nil {
		return "", fmt.Errorf("fill search input: %w", err)
	}
	// Two Enter presses with a short wait between defeats SPA handlers that
	// attach their keydown listener slightly after the input is focused.
	if err := c.pressKey("enter"); err != nil {
		return "", err
	}
	time.Sleep(400 * time.Millisecond)
	_ = c.pressKey("enter")
	_ = page.Timeout(10 * time.Second).WaitStable(500 * time.Millisecond)

	return c.pageTextExcerpt(800)
}

func (c *Controller) pageTextExcerpt(maxChars int) (string, error) {
	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	res, err := page.Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return "", err
	}
	text := res.Value.Str()
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	return text, nil
}

// GetText returns the innerText of the active page, or of one element when
// a CSS selector is given.
func (c *Controller) GetText(selector string) (string, error) {
	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	if selector == "" {
		return c.pageTextExcerpt(20000)
	}
	el, err := page.Timeout(clickTimeout).Element(selector)
	if err != nil {
		return "", fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el.Text()
}

// Evaluate runs arbitrary JS in the page and returns its string value.
func (c *Controller) Evaluate(js string) (string, error) {
	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	res, err := page.Eval(js)
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return res.Value.Str(), nil
}

// Scroll scrolls the active page by (dx, dy) pixels.
func (c *Controller) Scroll(dx, dy float64) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	return page.Mouse.Scroll(dx, dy, 1)
}

// Resize sets the active page's viewport.
func (c *Controller) Resize(width, height int) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: width, Height: height, DeviceScaleFactor: 1,
	})
}

// Press sends a named key to the active page.
func (c *Controller) Press(key string) error {
	return c.pressKey(key)
}

// Hover moves the mouse over the element matching selector.
func (c *Controller) Hover(selector string) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	el, err := page.Timeout(clickTimeout).Element(selector)
	if err != nil {
		return err
	}
	return el.Hover()
}

// Wait blocks until selector appears (empty selector waits the given
// duration unconditionally).
func (c *Controller) Wait(selector string, timeout time.Duration) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if selector == "" {
		time.Sleep(timeout)
		return nil
	}
	_, err = page.Timeout(timeout).Element(selector)
	return err
}

// NewTab opens target (or about:blank) in a new tab and switches to it.
func (c *Controller) NewTab(target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return fmt.Errorf("browser not started")
	}
	if target == "" {
		target = "about:blank"
	}
	page, err := c.browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	c.page = page
	c.refMap = NewRefMap()
	return nil
}

// Tabs lists open page targets as "index: title (url)" lines.
func (c *Controller) Tabs() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return "", fmt.Errorf("browser not started")
	}
	pages, err := c.browser.Pages()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "%d: %s (%s)\n", i, info.Title, info.URL)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// SwitchTab makes the tab at index the active page.
func (c *Controller) SwitchTab(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return fmt.Errorf("browser not started")
	}
	pages, err := c.browser.Pages()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(pages) {
		return fmt.Errorf("tab index %d out of range (have %d)", index, len(pages))
	}
	c.page = pages[index]
	c.refMap = NewRefMap()
	return nil
}

// CloseTab closes the tab at index, or the active tab if index < 0.
func (c *Controller) CloseTab(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return fmt.Errorf("browser not started")
	}
	if index < 0 {
		if c.page == nil {
			return fmt.Errorf("no active tab")
		}
		return c.page.Close()
	}
	pages, err := c.browser.Pages()
	if err != nil {
		return err
	}
	if index >= len(pages) {
		return fmt.Errorf("tab index %d out of range (have %d)", index, len(pages))
	}
	return pages[index].Close()
}

// Cookies returns the active page's cookies for its own URL.
func (c *Controller) Cookies() ([]*proto.NetworkCookie, error) {
	page, err := c.currentPage()
	if err != nil {
		return nil, err
	}
	return page.Cookies(nil)
}

// Storage reads or writes window.localStorage[key] in the active page.
// value == nil means "read"; otherwise the key is set to *value.
func (c *Controller) Storage(key string, value *string) (string, error) {
	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	if value == nil {
		res, err := page.Eval(`(k) => window.localStorage.getItem(k) || ''`, key)
		if err != nil {
			return "", err
		}
		return res.Value.Str(), nil
	}
	_, err = page.Eval(`(k, v) => { window.localStorage.setItem(k, v); }`, key, *value)
	return "", err
}

// Console returns captured console.* lines since the last call (or since
// start) and clears the buffer.
func (c *Controller) Console() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := make([]string, 0, len(c.console))
	for _, e := range c.console {
		lines = append(lines, fmt.Sprintf("[%s] %s", e.level, e.text))
	}
	c.console = nil
	return lines
}

// Errors returns captured uncaught exceptions since the last call and
// clears the buffer.
func (c *Controller) Errors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := make([]string, 0, len(c.errors))
	for _, e := range c.errors {
		lines = append(lines, e.text)
	}
	c.errors = nil
	return lines
}

// Screenshot captures the active page to dir/name.png and returns the path.
func (c *Controller) Screenshot(dir, name string, fullPage bool) (string, error) {
	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	if name == "" {
		name = fmt.Sprintf("screenshot_%d.png", time.Now().UnixNano())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	data, err := page.Screenshot(fullPage, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// Download clicks the link/button at selector, waits for a new file to
// appear in dir, and returns its path.
func (c *Controller) Download(dir, selector string, wait time.Duration) (string, error) {
	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	if wait <= 0 {
		wait = 15 * time.Second
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	if _, err := proto.PageSetDownloadBehavior{Behavior: proto.PageSetDownloadBehaviorBehaviorAllow, DownloadPath: dir}.Call(page); err != nil {
		return "", fmt.Errorf("set download behavior: %w", err)
	}

	before := map[string]bool{}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		before[e.Name()] = true
	}

	el, err := page.Timeout(clickTimeout).Element(selector)
	if err != nil {
		return "", fmt.Errorf("download trigger %q not found: %w", selector, err)
	}
	if err := forceClick(el); err != nil {
		return "", fmt.Errorf("click download trigger: %w", err)
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if !before[e.Name()] && !strings.HasSuffix(e.Name(), ".crdownload") {
				return filepath.Join(dir, e.Name()), nil
			}
		}
		time.Sleep(300 * time.Millisecond)
	}
	return "", fmt.Errorf("no new file appeared in %s within %s", dir, wait)
}

// Upload sets selector's file input to the given local file paths.
func (c *Controller) Upload(selector string, paths []string) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	el, err := page.Timeout(clickTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("upload target %q not found: %w", selector, err)
	}
	return el.SetFiles(paths)
}

// Trace starts or stops CDP performance tracing, writing the captured
// events to dir/name.json on stop.
func (c *Controller) Trace(start bool, dir, name string) (string, error) {
	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if start {
		if c.tracing {
			return "", fmt.Errorf("trace already running")
		}
		if err := proto.TracingStart{Categories: "devtools.timeline,v8"}.Call(page); err != nil {
			return "", fmt.Errorf("start trace: %w", err)
		}
		c.tracing = true
		return "tracing started", nil
	}

	if !c.tracing {
		return "", fmt.Errorf("no trace is running")
	}
	if err := proto.TracingEnd{}.Call(page); err != nil {
		return "", fmt.Errorf("stop trace: %w", err)
	}
	c.tracing = false

	if name == "" {
		name = fmt.Sprintf("trace_%d.json", time.Now().UnixNano())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create trace dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, c.traceChunk, 0o644); err != nil {
		return "", fmt.Errorf("write trace: %w", err)
	}
	return path, nil
}
