package browser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

const clickTimeout = 5 * time.Second

// ClickByRef runs the seven-strategy ladder (spec §4.8) against a resolved
// ref, returning which strategy succeeded or an error describing the last
// failure once every strategy is exhausted.
func (c *Controller) ClickByRef(ref string) (string, error) {
	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	r, ok := c.refMap.Get(ref)
	if !ok {
		return "", fmt.Errorf("unknown ref %q; re-run snapshot", ref)
	}
	tp := page.Timeout(clickTimeout)

	// 1. href substring match.
	if r.Href != "" {
		prefix := r.Href
		if len(prefix) > 30 {
			prefix = prefix[:30]
		}
		if el, err := tp.Element(fmt.Sprintf(`a[href*=%q]`, prefix)); err == nil {
			if clickErr := forceClick(el); clickErr == nil {
				return "href-match", nil
			}
		}
	}

	// 2. role + exact name, nth-th match.
	if els, err := tp.Elements(roleSelector(r.Role)); err == nil {
		if el := pickByName(els, r.Name, r.Nth, true); el != nil {
			if clickErr := forceClick(el); clickErr == nil {
				return "role-exact-name", nil
			}
		}
	}

	// 3. role + inexact (substring) name.
	if els, err := tp.Elements(roleSelector(r.Role)); err == nil {
		if el := pickByName(els, r.Name, 0, false); el != nil {
			if clickErr := forceClick(el); clickErr == nil {
				return "role-inexact-name", nil
			}
		}
	}

	// 4. section.note-item nth, for section-tagged refs.
	if r.Tag == "section" {
		if els, err := tp.Elements("section.note-item"); err == nil && len(els) > r.Nth {
			if clickErr := forceClick(els[r.Nth]); clickErr == nil {
				return "section-note-item", nil
			}
		}
	}

	// 5. text locator, non-exact, first match.
	if r.Name != "" {
		if el, err := tp.ElementR("*", "(?i)"+regexp.QuoteMeta(r.Name)); err == nil {
			if clickErr := forceClick(el); clickErr == nil {
				return "text-locator", nil
			}
		}
	}

	// 6. role-only, nth-th match regardless of name.
	if els, err := tp.Elements(roleSelector(r.Role)); err == nil && len(els) > r.Nth {
		if clickErr := forceClick(els[r.Nth]); clickErr == nil {
			return "role-only-nth", nil
		}
	}

	// 7. text-to-ancestor: find the text node in-page, walk up to the
	// nearest section.note-item or [class*=note], click it directly.
	if r.Name != "" {
		script := `(text) => {
  const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
  let node;
  while ((node = walker.nextNode())) {
    if (node.textContent && node.textContent.includes(text)) {
      let el = node.parentElement;
      while (el && el !== document.body) {
        if (el.matches && (el.matches('section.note-item') || el.matches('[class*=note]'))) {
          el.click();
          return true;
        }
        el = el.parentElement;
      }
    }
  }
  return false;
}`
		res, err := page.Eval(script, r.Name)
		if err == nil && res.Value.Bool() {
			return "text-to-ancestor", nil
		}
	}

	return "", fmt.Errorf("all click strategies exhausted for %s (%s %q)", ref, r.Role, r.Name)
}

// ClickWithRetry wraps ClickByRef with a page-scroll nudge and a short pause
// between attempts, and highlights the element once a click succeeds.
func (c *Controller) ClickWithRetry(ref string, maxRetries int) (string, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		strategy, err := c.ClickByRef(ref)
		if err == nil {
			c.highlightRef(ref)
			return strategy, nil
		}
		lastErr = err
		if page, perr := c.currentPage(); perr == nil {
			_ = page.Mouse.Scroll(0, 300, 1)
		}
		time.Sleep(150 * time.Millisecond)
	}
	return "", lastErr
}

func (c *Controller) highlightRef(ref string) {
	page, err := c.currentPage()
	if err != nil {
		return
	}
	r, ok := c.refMap.Get(ref)
	if !ok {
		return
	}
	els, err := page.Elements(roleSelector(r.Role))
	if err != nil || len(els) <= r.Nth {
		return
	}
	_, _ = els[r.Nth].Eval(`() => {
  const prev = this.style.outline;
  this.style.outline = '3px solid #ff5a5f';
  setTimeout(() => { this.style.outline = prev; }, 600);
}`)
}

// TypeByRef runs the three-strategy type ladder (spec §4.8).
func (c *Controller) TypeByRef(ref, value string) (string, error) {
	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	r, ok := c.refMap.Get(ref)
	if !ok {
		return "", fmt.Errorf("unknown ref %q; re-run snapshot", ref)
	}
	tp := page.Timeout(clickTimeout)

	typeableRoles := []string{"textbox", "searchbox", "combobox"}
	roleOK := r.Role == ""
	for _, tr := range typeableRoles {
		if r.Role == tr {
			roleOK = true
		}
	}

	if roleOK {
		for _, tr := range typeableRoles {
			if els, err := tp.Elements(roleSelector(tr)); err == nil {
				if el := pickByName(els, r.Name, r.Nth, true); el != nil {
					if err := el.Input(value); err == nil {
						return "role-exact-name", nil
					}
				}
			}
		}
	}

	if r.Name != "" {
		if lbl, err := tp.ElementR("label", "(?i)"+regexp.QuoteMeta(r.Name)); err == nil {
			if el, ferr := resolveLabelTarget(page, lbl); ferr == nil {
				if err := el.Input(value); err == nil {
					return "label-locator", nil
				}
			}
		}
	}

	if r.Name != "" {
		if el, err := tp.Element(fmt.Sprintf(`[placeholder*=%q]`, r.Name)); err == nil {
			if err := el.Input(value); err == nil {
				return "placeholder-locator", nil
			}
		}
	}

	return "", fmt.Errorf("all type strategies exhausted for %s (%s %q)", ref, r.Role, r.Name)
}

// resolveLabelTarget finds the input a <label> refers to, via its "for"
// attribute or a nested input.
func resolveLabelTarget(page *rod.Page, label *rod.Element) (*rod.Element, error) {
	if forID, err := label.Attribute("for"); err == nil && forID != nil && *forID != "" {
		if el, err := page.Element(fmt.Sprintf(`#%s`, *forID)); err == nil {
			return el, nil
		}
	}
	return label.Element("input, textarea, select")
}

// pickByName filters el by accessible-name match (exact or substring) and
// returns the nth-th (0-based) surviving match, or nil.
func pickByName(els rod.Elements, name string, nth int, exact bool) *rod.Element {
	count := 0
	lowerName := strings.ToLower(name)
	for _, el := range els {
		text := elementAccessibleName(el)
		match := false
		if exact {
			match = strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(name))
		} else {
			match = strings.Contains(strings.ToLower(text), lowerName)
		}
		if !match {
			continue
		}
		if count == nth {
			return el
		}
		count++
	}
	return nil
}

// elementAccessibleName mirrors the in-page name() computation from the
// snapshot script for a single already-resolved element.
func elementAccessibleName(el *rod.Element) string {
	res, err := el.Eval(`() => {
  const aria = this.getAttribute('aria-label');
  if (aria) return aria.trim();
  const text = (this.innerText || this.textContent || '').trim();
  if (text) return text.replace(/\s+/g, ' ').slice(0, 80);
  if (this.placeholder) return this.placeholder.trim();
  if (this.getAttribute('alt')) return this.getAttribute('alt').trim();
  if (this.getAttribute('title')) return this.getAttribute('title').trim();
  if (this.value) return String(this.value).trim().slice(0, 80);
  return '';
}`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// forceClick scrolls the element into view and clicks with the mouse,
// bypassing overlay interception the way a human drag-to-click would.
func forceClick(el *rod.Element) error {
	if err := el.ScrollIntoView(); err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Act implements the compact OpenClaw-style act({kind, ref, value?}) form.
func (c *Controller) Act(kind, ref, value string) (string, error) {
	switch kind {
	case "click":
		return c.ClickWithRetry(ref, 3)
	case "fill":
		return c.TypeByRef(ref, value)
	default:
		return "", fmt.Errorf("unknown act kind %q", kind)
	}
}

// FindOpts describes a semantic locator for the "find" action.
type FindOpts struct {
	Role   string
	Text   string
	Label  string
	First  bool
	Nth    int
	Action string // optional: click|fill|hover|text
	Value  string // for Action == "fill"
}

// Find resolves a semantic locator and optionally performs a one-shot action
// against the result (spec §4.8).
func (c *Controller) Find(opts FindOpts) (string, error) {
	page, err := c.currentPage()
	if err != nil {
		return "", err
	}
	tp := page.Timeout(clickTimeout)

	var el *rod.Element
	switch {
	case opts.Label != "":
		lbl, lerr := tp.ElementR("label", "(?i)"+regexp.QuoteMeta(opts.Label))
		if lerr != nil {
			return "", fmt.Errorf("no label matching %q", opts.Label)
		}
		el, err = resolveLabelTarget(page, lbl)
		if err != nil {
			return "", err
		}
	case opts.Role != "" && opts.Text != "":
		els, eerr := tp.Elements(roleSelector(opts.Role))
		if eerr != nil {
			return "", eerr
		}
		idx := opts.Nth
		if opts.First {
			idx = 0
		}
		el = pickByName(els, opts.Text, idx, false)
		if el == nil {
			return "", fmt.Errorf("no %s matching %q", opts.Role, opts.Text)
		}
	case opts.Role != "":
		els, eerr := tp.Elements(roleSelector(opts.Role))
		if eerr != nil {
			return "", eerr
		}
		idx := opts.Nth
		if opts.First {
			idx = 0
		}
		if len(els) <= idx {
			return "", fmt.Errorf("no %s at index %d", opts.Role, idx)
		}
		el = els[idx]
	case opts.Text != "":
		el, err = tp.ElementR("*", "(?i)"+regexp.QuoteMeta(opts.Text))
		if err != nil {
			return "", fmt.Errorf("no element matching text %q", opts.Text)
		}
	default:
		return "", fmt.Errorf("find requires role, text, or label")
	}

	switch opts.Action {
	case "", "text":
		text, _ := el.Text()
		return text, nil
	case "click":
		return "clicked", forceClick(el)
	case "fill":
		return "filled", el.Input(opts.Value)
	case "hover":
		return "hovered", el.Hover()
	default:
		return "", fmt.Errorf("unknown find action %q", opts.Action)
	}
}

// pressKey sends a single named key to the active page (used by the
// "press" action, e.g. Enter, Tab, Escape).
func (c *Controller) pressKey(name string) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	key, ok := keyByName(name)
	if !ok {
		return fmt.Errorf("unknown key %q", name)
	}
	return page.Keyboard.Type(key)
}

func keyByName(name string) (input.Key, bool) {
	switch strings.ToLower(name) {
	case "enter", "return":
		return input.Enter, true
	case "tab":
		return input.Tab, true
	case "escape", "esc":
		return input.Escape, true
	case "space":
		return input.Space, true
	case "backspace":
		return input.Backspace, true
	case "arrowdown", "down":
		return input.ArrowDown, true
	case "arrowup", "up":
		return input.ArrowUp, true
	case "arrowleft", "left":
		return input.ArrowLeft, true
	case "arrowright", "right":
		return input.ArrowRight, true
	default:
		return 0, false
	}
}
