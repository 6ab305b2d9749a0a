package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/stellarlinkco/tinyclaw/internal/provider"
	"github.com/stellarlinkco/tinyclaw/internal/tool"
)

// executor resolves and runs tools against a fixed granted set. Every failure
// mode collapses into a text result so the loop can hand it back to the model
// and keep going.
type executor struct {
	registry *tool.Registry
	granted  map[string]bool
	log      *slog.Logger
}

func newExecutor(registry *tool.Registry, granted []string, log *slog.Logger) *executor {
	set := make(map[string]bool, len(granted))
	for _, name := range granted {
		set[name] = true
	}
	return &executor{registry: registry, granted: set, log: log}
}

// grantedDefs returns tool definitions for the granted names that exist in
// the registry, in stable order.
func (e *executor) grantedDefs() []provider.ToolDef {
	names := make([]string, 0, len(e.granted))
	for name := range e.granted {
		names = append(names, name)
	}
	sort.Strings(names)
	return e.registry.DefsFor(names)
}

// execute runs one tool call and always returns a text result.
func (e *executor) execute(ctx context.Context, name string, args map[string]any) (result string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tool panicked", "tool", name, "panic", r)
			result = fmt.Sprintf("Error executing tool %q: %v", name, r)
		}
	}()

	if !e.granted[name] {
		return fmt.Sprintf("Error: tool %q not found", name)
	}
	t, ok := e.registry.Get(name)
	if !ok {
		return fmt.Sprintf("Error: tool %q not found", name)
	}

	out, err := t.Execute(ctx, args)
	if err != nil {
		e.log.Warn("tool failed", "tool", name, "error", err)
		return fmt.Sprintf("Error executing tool %q: %v", name, err)
	}
	return out
}
