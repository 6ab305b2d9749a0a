package tool

import (
	"context"
	"sort"
	"sync"

	"github.com/stellarlinkco/tinyclaw/internal/provider"
)

// Tool is a single named capability exposed to the model. Execute may block on
// I/O and may fail; callers that feed results back into a model loop are
// expected to catch the error rather than propagate it.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry is the catalog of tools known to the agent. Reads are safe for
// concurrent use; registration happens at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defs returns provider tool definitions for every registered tool.
func (r *Registry) Defs() []provider.ToolDef {
	return r.defsFor(r.Names())
}

// DefsFor returns definitions for the named subset, skipping unknown names.
func (r *Registry) DefsFor(names []string) []provider.ToolDef {
	return r.defsFor(names)
}

func (r *Registry) defsFor(names []string) []provider.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]provider.ToolDef, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, provider.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// String extracts a string argument, tolerating absent keys.
func String(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
