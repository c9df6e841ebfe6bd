package contextbuilder

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Skill is one entry under <workspace>/skills/*.md: a short capability
// description the agent can draw on. A skill marked always_on is inlined
// into every system prompt in full; the rest only appear as a name/summary
// row in the skill table, available to the model on request (spec §4.5).
type Skill struct {
	Name     string
	Summary  string
	Content  string
	AlwaysOn bool
}

// LoadSkills reads every *.md file under <workspace>/skills/, parsing a
// leading "---" frontmatter block for "always_on:" and "summary:" keys. A
// missing skills directory yields an empty set, not an error.
func LoadSkills(workspaceDir string) []Skill {
	dir := filepath.Join(workspaceDir, "skills")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var skills []Skill
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		skills = append(skills, parseSkill(name, string(data)))
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

func parseSkill(name, raw string) Skill {
	s := Skill{Name: name, Content: raw}
	body := raw
	if strings.HasPrefix(raw, "---\n") {
		if end := strings.Index(raw[4:], "\n---"); end >= 0 {
			fm := raw[4 : 4+end]
			rest := raw[4+end+4:]
			body = strings.TrimPrefix(rest, "\n")
			for _, line := range strings.Split(fm, "\n") {
				key, val, ok := strings.Cut(line, ":")
				if !ok {
					continue
				}
				key = strings.TrimSpace(key)
				val = strings.TrimSpace(val)
				switch key {
				case "always_on":
					s.AlwaysOn = val == "true"
				case "summary":
					s.Summary = val
				}
			}
		}
	}
	s.Content = strings.TrimSpace(body)
	if s.Summary == "" {
		s.Summary = firstLine(s.Content)
	}
	return s
}

func firstLine(s string) string {
	s = strings.TrimPrefix(s, "# ")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}
