package memory

import (
	"context"
	"fmt"
	"strings"
)

// SaveTool exposes Store.Save as the memory_save tool. Mutating, so the
// primary agent only.
type SaveTool struct {
	Store *Store
}

func (t *SaveTool) Name() string { return "memory_save" }

func (t *SaveTool) Description() string {
	return "Save a fact to long-term memory. Provide 'content'."
}

func (t *SaveTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "description": "The fact to remember"},
		},
		"required": []string{"content"},
	}
}

func (t *SaveTool) Execute(_ context.Context, args map[string]any) (string, error) {
	content, _ := args["content"].(string)
	id, err := t.Store.Save(content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("saved note %d", id), nil
}

// RecallTool exposes Store.Recall as the memory_recall tool. Read-only.
type RecallTool struct {
	Store *Store
}

func (t *RecallTool) Name() string { return "memory_recall" }

func (t *RecallTool) Description() string {
	return "Recall saved facts from long-term memory. Provide 'query' to filter; empty returns the most recent notes."
}

func (t *RecallTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "Text to match against stored notes"},
		},
	}
}

func (t *RecallTool) Execute(_ context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	notes, err := t.Store.Recall(query, 10)
	if err != nil {
		return "", err
	}
	if len(notes) == 0 {
		return "no matching notes", nil
	}
	var sb strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&sb, "[%d] %s\n", n.ID, n.Content)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
