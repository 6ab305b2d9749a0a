// Package subagent runs short-lived, memory-less reasoning loops on behalf of
// the primary agent. A sub-agent gets one bounded task, a restricted tool set,
// and a wall-clock deadline; its message history is private to the run and
// discarded when the run ends. Sub-agents can not delegate further.
package subagent

import (
	"time"

	"github.com/stellarlinkco/tinyclaw/internal/provider"
)

const (
	// DelegateToolName is the delegation trigger. It is stripped from every
	// granted tool set so delegation depth is exactly one.
	DelegateToolName = "delegate_task"

	// DefaultMaxTurns caps the execution loop.
	DefaultMaxTurns = 10

	// DefaultTimeout bounds a run in wall-clock time.
	DefaultTimeout = 60 * time.Second
)

// Request describes one bounded sub-agent run. Immutable once constructed.
type Request struct {
	Task    string
	Role    string
	Tools   []string // granted capability set, already filtered
	Backend provider.Provider
	Timeout time.Duration
}

// Outcome is the result of a run. Iterations never exceeds the turn cap.
type Outcome struct {
	Success    bool
	Response   string
	Iterations int
	Backend    string
}

// buildSeedMessages frames the sub-agent's role and task into the two-message
// initial history.
func buildSeedMessages(role, task string) []provider.Message {
	system := "You are a " + role + " sub-agent. Complete the task you are given using the " +
		"available tools, then reply with your final answer. Work autonomously; you cannot " +
		"ask follow-up questions."
	return []provider.Message{
		{Role: provider.RoleSystem, Content: system},
		{Role: provider.RoleUser, Content: task},
	}
}
