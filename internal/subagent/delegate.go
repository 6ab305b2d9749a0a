package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/stellarlinkco/tinyclaw/internal/config"
	"github.com/stellarlinkco/tinyclaw/internal/router"
	"github.com/stellarlinkco/tinyclaw/internal/tool"
)

// defaultSafeTools is the read-only baseline every sub-agent receives.
var defaultSafeTools = []string{"read_file", "list_dir", "search_files", "memory_recall"}

// GrantedTools is the capability filter: the safe baseline plus any caller
// extras, with the delegation trigger removed unconditionally. The result is
// deduplicated and sorted.
func GrantedTools(extra []string) []string {
	set := make(map[string]bool, len(defaultSafeTools)+len(extra))
	for _, name := range defaultSafeTools {
		set[name] = true
	}
	for _, name := range extra {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = true
		}
	}
	delete(set, DelegateToolName)

	granted := make([]string, 0, len(set))
	for name := range set {
		granted = append(granted, name)
	}
	sort.Strings(granted)
	return granted
}

// Delegator spawns sub-agent runs. It holds the shared tool registry and the
// backend router; each run gets its own executor and message history.
type Delegator struct {
	registry *tool.Registry
	router   *router.Router
	maxTurns int
	timeout  time.Duration
	extras   []string
	log      *slog.Logger
}

func NewDelegator(registry *tool.Registry, r *router.Router, cfg config.SubAgentConfig, log *slog.Logger) *Delegator {
	if log == nil {
		log = slog.Default()
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Delegator{
		registry: registry,
		router:   r,
		maxTurns: maxTurns,
		timeout:  timeout,
		extras:   cfg.ExtraTools,
		log:      log.With("component", "subagent"),
	}
}

// Run executes one sub-agent request to completion. It never panics out; any
// failure is reported in the outcome.
func (d *Delegator) Run(ctx context.Context, req Request) Outcome {
	if req.Timeout <= 0 {
		req.Timeout = d.timeout
	}
	exec := newExecutor(d.registry, req.Tools, d.log)

	d.log.Info("sub-agent starting",
		"role", req.Role,
		"backend", req.Backend.Name(),
		"tools", len(req.Tools))
	start := time.Now()
	out := d.runGuarded(ctx, req, exec)
	d.log.Info("sub-agent finished",
		"role", req.Role,
		"success", out.Success,
		"iterations", out.Iterations,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return out
}

// DelegateTool exposes delegation to the primary agent as a regular tool.
// Execute never returns a Go error: validation failures, routing failures,
// and failed runs all come back as text carrying an "Error" marker so the
// primary model can read and react to them.
type DelegateTool struct {
	delegator *Delegator
}

func NewDelegateTool(d *Delegator) *DelegateTool {
	return &DelegateTool{delegator: d}
}

func (t *DelegateTool) Name() string { return DelegateToolName }

func (t *DelegateTool) Description() string {
	return "Delegate a self-contained task to an ephemeral sub-agent. The sub-agent runs with " +
		"a restricted read-only tool set, has no memory of previous delegations, and returns " +
		"a single text result. Use 'tier' to pick model strength (simple, moderate, complex, " +
		"reasoning); omit it to let the router decide."
}

func (t *DelegateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": "Complete, self-contained task description",
			},
			"role": map[string]any{
				"type":        "string",
				"description": "Short role label for the sub-agent, e.g. 'researcher'",
			},
			"tier": map[string]any{
				"type":        "string",
				"enum":        []string{config.TierSimple, config.TierModerate, config.TierComplex, config.TierReasoning},
				"description": "Optional model tier; omitted means auto-classified",
			},
			"tools": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Optional extra tool names to grant beyond the safe baseline",
			},
		},
		"required": []string{"task", "role"},
	}
}

func (t *DelegateTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	task := strings.TrimSpace(tool.String(args, "task"))
	role := strings.TrimSpace(tool.String(args, "role"))
	if task == "" {
		return "Error: delegation requires a non-empty task", nil
	}
	if role == "" {
		return "Error: delegation requires a non-empty role", nil
	}

	d := t.delegator
	tier := strings.TrimSpace(tool.String(args, "tier"))
	var (
		res router.Resolution
		err error
	)
	if tier != "" {
		res, err = d.router.Resolve(tier)
	} else {
		res, err = d.router.Classify(ctx, task)
	}
	if err != nil {
		return fmt.Sprintf("Error: could not select a backend: %v", err), nil
	}

	extras := append(stringList(args, "tools"), d.extras...)
	out := d.Run(ctx, Request{
		Task:    task,
		Role:    role,
		Tools:   GrantedTools(extras),
		Backend: res.Backend,
	})
	return formatOutcome(role, out), nil
}

// formatOutcome renders a run for the primary agent's transcript. Failures
// always carry the "Error" marker.
func formatOutcome(role string, out Outcome) string {
	if out.Success {
		return fmt.Sprintf("Sub-agent %q completed in %d iteration(s) via %s:\n\n%s",
			role, out.Iterations, out.Backend, out.Response)
	}
	response := out.Response
	if !strings.Contains(response, "Error") {
		response = "Error: " + response
	}
	return fmt.Sprintf("Sub-agent %q failed after %d iteration(s) via %s: %s",
		role, out.Iterations, out.Backend, response)
}

func stringList(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
