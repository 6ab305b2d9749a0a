package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	maxReadBytes    = 256 * 1024
	maxSearchHits   = 100
	maxGrepFileSize = 1 << 20
)

// workspacePath resolves a caller-supplied path against the workspace root and
// rejects escapes when restriction is on.
func workspacePath(root, p string, restrict bool) (string, error) {
	if p == "" {
		p = "."
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if restrict {
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q is outside the workspace", p)
		}
	}
	return p, nil
}

// ReadFileTool reads a single file from the workspace.
type ReadFileTool struct {
	Root     string
	Restrict bool
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file. Provide 'filename' relative to the workspace."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filename": map[string]any{"type": "string", "description": "Path of the file to read"},
		},
		"required": []string{"filename"},
	}
}

func (t *ReadFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	name := String(args, "filename")
	if name == "" {
		return "", fmt.Errorf("missing 'filename' argument")
	}
	path, err := workspacePath(t.Root, name, t.Restrict)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
	}
	return string(data), nil
}

// ListDirTool lists directory entries.
type ListDirTool struct {
	Root     string
	Restrict bool
}

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List the entries of a directory. Provide 'path' relative to the workspace; defaults to the workspace root."
}

func (t *ListDirTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Directory to list"},
		},
	}
}

func (t *ListDirTool) Execute(_ context.Context, args map[string]any) (string, error) {
	path, err := workspacePath(t.Root, String(args, "path"), t.Restrict)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", path, err)
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		lines = append(lines, name)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

// SearchFilesTool matches files by doublestar glob pattern or greps file
// contents for a literal string.
type SearchFilesTool struct {
	Root     string
	Restrict bool
}

func (t *SearchFilesTool) Name() string { return "search_files" }

func (t *SearchFilesTool) Description() string {
	return "Search the workspace. Provide 'pattern' for a glob match (e.g. '**/*.go') or 'grep' to search file contents."
}

func (t *SearchFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Glob pattern, ** supported"},
			"grep":    map[string]any{"type": "string", "description": "Literal text to find in file contents"},
			"path":    map[string]any{"type": "string", "description": "Directory to search in"},
		},
	}
}

func (t *SearchFilesTool) Execute(_ context.Context, args map[string]any) (string, error) {
	root, err := workspacePath(t.Root, String(args, "path"), t.Restrict)
	if err != nil {
		return "", err
	}

	if pattern := String(args, "pattern"); pattern != "" {
		matches, err := doublestar.Glob(os.DirFS(root), pattern)
		if err != nil {
			return "", fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) > maxSearchHits {
			matches = matches[:maxSearchHits]
		}
		return strings.Join(matches, "\n"), nil
	}

	if needle := String(args, "grep"); needle != "" {
		var hits []string
		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if info, err := d.Info(); err != nil || info.Size() > maxGrepFileSize {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			rel, _ := filepath.Rel(root, path)
			for i, line := range strings.Split(string(data), "\n") {
				if strings.Contains(line, needle) {
					hits = append(hits, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
					if len(hits) >= maxSearchHits {
						return filepath.SkipAll
					}
				}
			}
			return nil
		})
		return strings.Join(hits, "\n"), nil
	}

	return "", fmt.Errorf("provide either 'pattern' or 'grep'")
}

// WriteFileTool writes a file. It is registered for the primary agent only and
// is never part of the sub-agent default safe set.
type WriteFileTool struct {
	Root     string
	Restrict bool
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating parent directories as needed. Provide 'filename' and 'content'."
}

func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filename": map[string]any{"type": "string"},
			"content":  map[string]any{"type": "string"},
		},
		"required": []string{"filename", "content"},
	}
}

func (t *WriteFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	name := String(args, "filename")
	if name == "" {
		return "", fmt.Errorf("missing 'filename' argument")
	}
	path, err := workspacePath(t.Root, name, t.Restrict)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}
	content := String(args, "content")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), name), nil
}
