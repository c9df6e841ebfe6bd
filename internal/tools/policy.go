package tools

import (
	"log/slog"
	"strings"

	"github.com/coreclaw/agentcore/internal/providers"
)

// toolGroups maps group names to concrete tool names, so a policy spec can
// say "group:fs" instead of listing every filesystem tool.
var toolGroups = map[string][]string{
	"memory":     {"memory_search", "memory_get"},
	"web":        {"web_search", "web_fetch"},
	"fs":         {"read_file", "write_file", "list_files", "edit_file", "search", "glob"},
	"runtime":    {"exec"},
	"sessions":   {"sessions_list", "sessions_history", "sessions_send", "sessions_spawn"},
	"ui":         {"browser"},
	"automation": {"cron"},
	"messaging":  {"message"},
}

// RegisterToolGroup adds or replaces a dynamic tool group, used by the MCP
// connector registry to expose a "mcp" / "mcp:{serverName}" group.
func RegisterToolGroup(name string, members []string) { toolGroups[name] = members }

// UnregisterToolGroup removes a dynamic tool group.
func UnregisterToolGroup(name string) { delete(toolGroups, name) }

// toolProfiles define named preset allow sets. "full" (or empty) means no
// restriction.
var toolProfiles = map[string][]string{
	"minimal":   {"session_status"},
	"coding":    {"group:fs", "group:runtime", "group:sessions", "group:memory", "read_image", "create_image"},
	"messaging": {"group:messaging", "sessions_list", "sessions_history", "sessions_send"},
	"full":      {},
}

var toolAliases = map[string]string{
	"bash": "exec",
}

// subagentDenyList are tools a spawned subagent may never use (spec §4.9 /
// SPEC_FULL §12 depth guard): it should not shell out, send into other
// sessions, or schedule cron jobs. The spawn tool is not in this list.
var subagentDenyList = []string{"exec", "sessions_send", "sessions_spawn", "cron"}

// leafSubagentDenyList applies additional restrictions once the subagent
// depth counter reaches its cap, so a leaf subagent cannot list or read
// other sessions.
var leafSubagentDenyList = []string{"sessions_list", "sessions_history"}

// Policy describes one layer of tool access control: a named profile plus
// explicit allow/deny/also-allow lists, each of which may reference groups
// via "group:name".
type Policy struct {
	Profile   string
	Allow     []string
	Deny      []string
	AlsoAllow []string
}

// PolicyEngine evaluates tool access for a registry against a global policy
// and, optionally, subagent restrictions.
type PolicyEngine struct {
	global Policy
}

func NewPolicyEngine(global Policy) *PolicyEngine {
	return &PolicyEngine{global: global}
}

// FilterTools returns the tool definitions the model may currently see.
// isSubagent/isLeafSubagent apply the deny lists from SPEC_FULL §12.
func (pe *PolicyEngine) FilterTools(registry *Registry, isSubagent, isLeafSubagent bool) []providers.ToolDefinition {
	allTools := registry.List()
	allowed := pe.evaluate(allTools)

	if isSubagent {
		allowed = subtractSet(allowed, subagentDenyList)
	}
	if isLeafSubagent {
		allowed = subtractSet(allowed, leafSubagentDenyList)
	}

	defs := make([]providers.ToolDefinition, 0, len(allowed))
	for _, name := range allowed {
		canonical := resolveAlias(name)
		if tool, ok := registry.Get(canonical); ok {
			defs = append(defs, ToProviderDef(tool))
		}
	}

	slog.Debug("tool policy applied", "total_tools", len(allTools), "allowed", len(defs),
		"is_subagent", isSubagent, "is_leaf_subagent", isLeafSubagent)
	return defs
}

func (pe *PolicyEngine) evaluate(allTools []string) []string {
	g := pe.global
	allowed := pe.applyProfile(allTools, g.Profile)
	if len(g.Allow) > 0 {
		allowed = intersectWithSpec(allowed, g.Allow)
	}
	if len(g.Deny) > 0 {
		allowed = subtractSpec(allowed, g.Deny)
	}
	if len(g.AlsoAllow) > 0 {
		allowed = unionWithSpec(allowed, allTools, g.AlsoAllow)
	}
	return allowed
}

func (pe *PolicyEngine) applyProfile(allTools []string, profile string) []string {
	if profile == "" || profile == "full" {
		return copySlice(allTools)
	}
	spec, ok := toolProfiles[profile]
	if !ok {
		slog.Warn("unknown tool profile, using full", "profile", profile)
		return copySlice(allTools)
	}
	return expandSpec(allTools, spec)
}

func expandMembers(spec []string) map[string]bool {
	expanded := make(map[string]bool)
	for _, s := range spec {
		if strings.HasPrefix(s, "group:") {
			if members, ok := toolGroups[strings.TrimPrefix(s, "group:")]; ok {
				for _, m := range members {
					expanded[m] = true
				}
			}
		} else {
			expanded[s] = true
		}
	}
	return expanded
}

func expandSpec(available []string, spec []string) []string {
	expanded := expandMembers(spec)
	var result []string
	for _, t := range available {
		if expanded[t] {
			result = append(result, t)
		}
	}
	return result
}

func intersectWithSpec(current []string, spec []string) []string {
	expanded := expandMembers(spec)
	var result []string
	for _, t := range current {
		if expanded[t] {
			result = append(result, t)
		}
	}
	return result
}

func subtractSpec(current []string, spec []string) []string {
	denied := expandMembers(spec)
	var result []string
	for _, t := range current {
		if !denied[t] {
			result = append(result, t)
		}
	}
	return result
}

func subtractSet(current []string, deny []string) []string {
	denied := make(map[string]bool, len(deny))
	for _, d := range deny {
		denied[d] = true
	}
	var result []string
	for _, t := range current {
		if !denied[t] {
			result = append(result, t)
		}
	}
	return result
}

func unionWithSpec(current []string, allTools []string, spec []string) []string {
	existing := make(map[string]bool, len(current))
	for _, t := range current {
		existing[t] = true
	}
	for _, t := range expandSpec(allTools, spec) {
		if !existing[t] {
			current = append(current, t)
			existing[t] = true
		}
	}
	return current
}

func resolveAlias(name string) string {
	if canonical, ok := toolAliases[name]; ok {
		return canonical
	}
	return name
}

func copySlice(s []string) []string {
	c := make([]string, len(s))
	copy(c, s)
	return c
}
