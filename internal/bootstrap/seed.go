// Package bootstrap seeds and reads the workspace's bootstrap documents
// (spec §4.5): AGENTS.md, SOUL.md, USER.md, TOOLS.md, IDENTITY.md. These are
// plain Markdown files living at the workspace root; the Context Builder
// reads whichever of them exist into the system prompt, in that order,
// skipping any that are missing.
package bootstrap

import (
	"embed"
	"os"
	"path/filepath"
)

const (
	AgentsFile   = "AGENTS.md"
	SoulFile     = "SOUL.md"
	UserFile     = "USER.md"
	ToolsFile    = "TOOLS.md"
	IdentityFile = "IDENTITY.md"
)

// ContextFile is one bootstrap document resolved from the workspace: its
// canonical name and its content.
type ContextFile struct {
	Name    string
	Content string
}

// OrderedFiles is the fixed read order the Context Builder assembles the
// system prompt in.
var OrderedFiles = []string{AgentsFile, SoulFile, UserFile, ToolsFile, IdentityFile}

//go:embed templates/*.md
var templateFS embed.FS

// ReadTemplate returns the content of an embedded template file.
func ReadTemplate(name string) (string, error) {
	content, err := templateFS.ReadFile(filepath.Join("templates", name))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// EnsureWorkspaceFiles seeds every bootstrap document that has an embedded
// template (SOUL.md, USER.md, TOOLS.md, IDENTITY.md; there is no AGENTS.md
// template, so AGENTS.md is never seeded) into a workspace directory, using
// O_EXCL so an existing file is never overwritten. Returns
// the list of files that were actually created (empty on a workspace that
// already has all of them).
func EnsureWorkspaceFiles(workspaceDir string) ([]string, error) {
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return nil, err
	}

	var created []string
	for _, name := range OrderedFiles {
		ok, err := seedTemplate(workspaceDir, name)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, name)
		}
	}
	return created, nil
}

// seedTemplate writes a template file to the workspace if it doesn't exist.
// Returns true if the file was created, false if it already exists or has no
// embedded template.
func seedTemplate(workspaceDir, name string) (bool, error) {
	dstPath := filepath.Join(workspaceDir, name)

	f, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	content, err := templateFS.ReadFile(filepath.Join("templates", name))
	if err != nil {
		os.Remove(dstPath)
		return false, nil
	}

	if _, err := f.Write(content); err != nil {
		return false, err
	}
	return true, nil
}

// ReadWorkspaceFiles reads whatever bootstrap documents currently exist in
// workspaceDir, in OrderedFiles order, skipping any that are missing.
func ReadWorkspaceFiles(workspaceDir string) []ContextFile {
	var files []ContextFile
	for _, name := range OrderedFiles {
		data, err := os.ReadFile(filepath.Join(workspaceDir, name))
		if err != nil {
			continue
		}
		files = append(files, ContextFile{Name: name, Content: string(data)})
	}
	return files
}
