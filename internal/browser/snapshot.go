package browser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-rod/rod"
)

// Ref is the resolved identity behind an opaque "e<N>" token (spec §3
// BrowserRef): enough locator metadata to re-resolve the element through
// several independent strategies, since the ref itself is only a traversal
// index and is not guaranteed stable past the next snapshot.
type Ref struct {
	ID   string
	Role string
	Name string
	Tag  string
	Href string
	Nth  int // occurrence index among elements sharing (Role, Name)
}

// RefMap is the per-page, per-snapshot table of ref -> Ref. Replaced wholesale
// on every snapshot; refs from a prior snapshot are not carried forward.
type RefMap struct {
	mu   sync.Mutex
	refs map[string]Ref
}

func NewRefMap() *RefMap {
	return &RefMap{refs: make(map[string]Ref)}
}

func (m *RefMap) set(id string, r Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[id] = r
}

func (m *RefMap) Get(id string) (Ref, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refs[id]
	return r, ok
}

// interactiveRoles restricts the accessibility-tree strategy to elements a
// user could actually act on (spec §4.8).
var interactiveRoles = map[string]bool{
	"button": true, "link": true, "textbox": true, "checkbox": true,
	"radio": true, "combobox": true, "listbox": true, "menuitem": true,
	"option": true, "searchbox": true, "slider": true, "spinbutton": true,
	"switch": true, "tab": true, "treeitem": true,
}

// roleSelector maps an ARIA role to the CSS selector set used to locate
// elements with that role without relying on the CDP accessibility domain.
func roleSelector(role string) string {
	switch role {
	case "button":
		return `button, [role="button"], input[type="submit"], input[type="button"]`
	case "link":
		return `a[href], [role="link"]`
	case "textbox":
		return `input[type="text"], input[type="email"], input[type="tel"], input[type="url"], input:not([type]), textarea, [role="textbox"]`
	case "checkbox":
		return `input[type="checkbox"], [role="checkbox"]`
	case "radio":
		return `input[type="radio"], [role="radio"]`
	case "combobox":
		return `select, [role="combobox"]`
	case "listbox":
		return `[role="listbox"]`
	case "menuitem":
		return `[role="menuitem"]`
	case "option":
		return `option, [role="option"]`
	case "searchbox":
		return `input[type="search"], [role="searchbox"]`
	case "slider":
		return `input[type="range"], [role="slider"]`
	case "spinbutton":
		return `input[type="number"], [role="spinbutton"]`
	case "switch":
		return `[role="switch"]`
	case "tab":
		return `[role="tab"]`
	case "treeitem":
		return `[role="treeitem"]`
	default:
		return fmt.Sprintf(`[role=%q]`, role)
	}
}

// ariaSnapshotScript walks the DOM computing an approximate accessible
// role/name for every element and emits one line per interactive element in
// the literal form the spec describes for the accessibility-tree strategy:
// `- role "name" [href=...] [tag=...]`. Evaluated in-page so the name
// computation (aria-label, associated <label>, innerText, placeholder, alt,
// title, value — in that priority order) runs with full DOM access.
const ariaSnapshotScript = `() => {
  function role(el) {
    const explicit = el.getAttribute('role');
    if (explicit) return explicit;
    const tag = el.tagName.toLowerCase();
    if (tag === 'a' && el.hasAttribute('href')) return 'link';
    if (tag === 'button') return 'button';
    if (tag === 'select') return 'combobox';
    if (tag === 'textarea') return 'textbox';
    if (tag === 'option') return 'option';
    if (tag === 'input') {
      const t = (el.getAttribute('type') || 'text').toLowerCase();
      if (t === 'checkbox') return 'checkbox';
      if (t === 'radio') return 'radio';
      if (t === 'range') return 'slider';
      if (t === 'number') return 'spinbutton';
      if (t === 'search') return 'searchbox';
      if (t === 'submit' || t === 'button') return 'button';
      return 'textbox';
    }
    return '';
  }
  function name(el) {
    const aria = el.getAttribute('aria-label');
    if (aria) return aria.trim();
    const labelledBy = el.getAttribute('aria-labelledby');
    if (labelledBy) {
      const ref = document.getElementById(labelledBy);
      if (ref && ref.textContent.trim()) return ref.textContent.trim().slice(0, 80);
    }
    if (el.id) {
      const lbl = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
      if (lbl && lbl.textContent.trim()) return lbl.textContent.trim().slice(0, 80);
    }
    const text = (el.innerText || el.textContent || '').trim();
    if (text) return text.replace(/\s+/g, ' ').slice(0, 80);
    if (el.placeholder) return el.placeholder.trim();
    if (el.getAttribute('alt')) return el.getAttribute('alt').trim();
    if (el.getAttribute('title')) return el.getAttribute('title').trim();
    if (el.value) return String(el.value).trim().slice(0, 80);
    return '';
  }
  function visible(el) {
    const r = el.getBoundingClientRect();
    if (r.width <= 0 || r.height <= 0) return false;
    const style = getComputedStyle(el);
    return style.visibility !== 'hidden' && style.display !== 'none';
  }
  const out = [];
  const all = document.querySelectorAll('a, button, input, select, textarea, option, [role]');
  for (const el of all) {
    if (!visible(el)) continue;
    const r = role(el);
    if (!r) continue;
    const n = name(el).replace(/"/g, "'");
    const href = el.tagName.toLowerCase() === 'a' ? (el.getAttribute('href') || '') : '';
    out.push('- ' + r + ' "' + n + '"' + (href ? ' [href=' + href + ']' : '') + ' [tag=' + el.tagName.toLowerCase() + ']');
  }
  return out.join('\n');
}`

// domFallbackScript is used when the accessibility-tree strategy yields
// fewer than 10 link/button refs: a curated selector walk including
// site-specific helpers (section.note-item), deduplicated by
// (tag, first-30-chars-of-text), capped at maxNodes.
func domFallbackScript(maxNodes int) string {
	return fmt.Sprintf(`() => {
  const selectors = 'a, button, [role=button], [role=link], [onclick], [data-clickable=true], section.note-item';
  const seen = new Set();
  const out = [];
  for (const el of document.querySelectorAll(selectors)) {
    const r = el.getBoundingClientRect();
    if (r.width <= 0 || r.height <= 0) continue;
    const tag = el.tagName.toLowerCase();
    const text = (el.innerText || el.textContent || '').trim().replace(/\s+/g, ' ').slice(0, 30);
    const key = tag + '|' + text;
    if (seen.has(key)) continue;
    seen.add(key);
    const href = tag === 'a' ? (el.getAttribute('href') || '') : '';
    const role = el.getAttribute('role') || (tag === 'a' ? 'link' : tag === 'button' ? 'button' : 'generic');
    out.push('- ' + role + ' "' + text.replace(/"/g, "'") + '"' + (href ? ' [href=' + href + ']' : '') + ' [tag=' + tag + ']');
    if (out.length >= %d) break;
  }
  return out.join('\n');
}`, maxNodes)
}

var snapshotLineRE = regexp.MustCompile(`^- (\S+) "([^"]*)"(?: \[href=([^\]]*)\])?(?: \[tag=([^\]]*)\])?$`)

// parseSnapshotLines turns the `- role "name" [href=...] [tag=...]` text
// produced by either in-page script into Refs, assigning e<N> in order and
// tracking an occurrence count per (role, name) for the ladder's nth lookups.
func parseSnapshotLines(text string) []Ref {
	var refs []Ref
	counts := make(map[string]int)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := snapshotLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		role, name, href, tag := m[1], m[2], m[3], m[4]
		key := role + "|" + name
		nth := counts[key]
		counts[key] = nth + 1
		refs = append(refs, Ref{Role: role, Name: name, Href: href, Tag: tag, Nth: nth})
	}
	return refs
}

// BuildSnapshot runs the accessibility-tree strategy, also runs the DOM
// strategy when fewer than 10 link/button refs result (keeping whichever
// list is longer), and returns the
// ordered ref list while replacing the Controller's RefMap.
func (c *Controller) BuildSnapshot(maxNodes int) ([]Ref, error) {
	if maxNodes <= 0 {
		maxNodes = 50
	}
	page, err := c.currentPage()
	if err != nil {
		return nil, err
	}

	scrollY := c.saveScroll(page)
	defer c.restoreScroll(page, scrollY)

	res, err := page.Eval(ariaSnapshotScript)
	if err != nil {
		return nil, fmt.Errorf("accessibility snapshot: %w", err)
	}
	refs := parseSnapshotLines(res.Value.Str())

	linkButton := 0
	for _, r := range refs {
		if r.Role == "link" || r.Role == "button" {
			linkButton++
		}
	}

	if linkButton < 10 {
		domRes, err := page.Eval(domFallbackScript(maxNodes))
		if err == nil {
			domRefs := parseSnapshotLines(domRes.Value.Str())
			if len(domRefs) > len(refs) {
				refs = domRefs
			}
		}
	}

	if len(refs) > maxNodes {
		refs = refs[:maxNodes]
	}

	c.refMap = NewRefMap()
	for i, r := range refs {
		r.ID = "e" + strconv.Itoa(i+1)
		refs[i] = r
		c.refMap.set(r.ID, r)
	}
	return refs, nil
}

// saveScroll/restoreScroll bracket a snapshot so reading the accessibility
// tree does not leave the page scrolled somewhere the caller did not expect
// (spec §4.8: "scroll position is optionally saved and restored around
// snapshot").
func (c *Controller) saveScroll(page *rod.Page) float64 {
	res, err := page.Eval(`() => window.scrollY`)
	if err != nil {
		return 0
	}
	return res.Value.Num()
}

func (c *Controller) restoreScroll(page *rod.Page, y float64) {
	_, _ = page.Eval(`(y) => window.scrollTo(0, y)`, y)
}
