package browser

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// attachEventCapture subscribes to the page's runtime console/exception
// events so the "console"/"errors" actions have something to return without
// re-querying the page (spec §4.8 observability). The subscription runs on
// a cancellable derived page context so Stop can tear it down cleanly.
func (c *Controller) attachEventCapture() {
	if c.page == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := c.page.Context(ctx)
	_, _ = proto.RuntimeEnable{}.Call(p)

	wait := p.EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			c.mu.Lock()
			defer c.mu.Unlock()
			var parts []string
			for _, arg := range e.Args {
				if arg.Description != "" {
					parts = append(parts, arg.Description)
				} else {
					parts = append(parts, arg.Value.String())
				}
			}
			c.console = append(c.console, consoleEntry{
				level: string(e.Type),
				text:  strings.Join(parts, " "),
				at:    time.Now(),
			})
			if len(c.console) > 200 {
				c.console = c.console[len(c.console)-200:]
			}
		},
		func(e *proto.RuntimeExceptionThrown) {
			c.mu.Lock()
			defer c.mu.Unlock()
			text := e.ExceptionDetails.Text
			if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
				text = e.ExceptionDetails.Exception.Description
			}
			c.errors = append(c.errors, consoleEntry{level: "exception", text: text, at: time.Now()})
			if len(c.errors) > 200 {
				c.errors = c.errors[len(c.errors)-200:]
			}
		},
	)
	go wait()
	c.stopEvents = cancel
}

var wsURLRE = regexp.MustCompile(`"webSocketDebuggerUrl"\s*:\s*"([^"]+)"`)

// extractWebSocketURL pulls webSocketDebuggerUrl out of a /json/version
// response body without a full JSON decode (the field is all Start needs).
func extractWebSocketURL(body []byte) string {
	m := wsURLRE.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return string(m[1])
}
