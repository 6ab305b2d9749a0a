// Package agent is the primary conversation loop. It keeps per-session
// history, exposes the full tool catalog to the model, and drives tool
// execution until the model produces a text answer.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stellarlinkco/tinyclaw/internal/provider"
	"github.com/stellarlinkco/tinyclaw/internal/tool"
)

// maxHistoryMessages bounds per-session history growth; older messages are
// dropped from the front, keeping the system prompt intact.
const maxHistoryMessages = 60

type Agent struct {
	backend       provider.Provider
	registry      *tool.Registry
	systemPrompt  string
	maxIterations int
	log           *slog.Logger

	mu       sync.Mutex
	sessions map[string][]provider.Message
}

func New(backend provider.Provider, registry *tool.Registry, systemPrompt string, maxIterations int, log *slog.Logger) *Agent {
	if log == nil {
		log = slog.Default()
	}
	if maxIterations <= 0 {
		maxIterations = 1
	}
	return &Agent{
		backend:       backend,
		registry:      registry,
		systemPrompt:  systemPrompt,
		maxIterations: maxIterations,
		log:           log.With("component", "agent"),
		sessions:      make(map[string][]provider.Message),
	}
}

// Process handles one user message within a session and returns the final
// text reply. Tool failures are fed back to the model as results; only
// backend failures surface as errors.
func (a *Agent) Process(ctx context.Context, sessionID, content string) (string, error) {
	a.mu.Lock()
	history := append([]provider.Message(nil), a.sessions[sessionID]...)
	a.mu.Unlock()

	history = append(history, provider.Message{Role: provider.RoleUser, Content: content})
	defs := a.registry.Defs()

	for i := 0; i < a.maxIterations; i++ {
		msgs := make([]provider.Message, 0, len(history)+1)
		if a.systemPrompt != "" {
			msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: a.systemPrompt})
		}
		msgs = append(msgs, history...)

		reply, err := a.backend.Chat(ctx, msgs, defs)
		if err != nil {
			return "", fmt.Errorf("chat: %w", err)
		}

		if reply.Kind != provider.ReplyToolCalls {
			history = append(history, provider.Message{Role: provider.RoleAssistant, Content: reply.Content})
			a.storeHistory(sessionID, history)
			return reply.Content, nil
		}

		for idx, call := range reply.Calls {
			assistant := provider.Message{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{call}}
			if idx == 0 {
				assistant.Content = reply.Content
			}
			history = append(history, assistant)

			result := a.executeTool(ctx, call)
			call.Result = result
			history = append(history, provider.Message{
				Role:      provider.RoleTool,
				Content:   result,
				ToolCalls: []provider.ToolCall{call},
			})
		}
	}

	a.storeHistory(sessionID, history)
	return "", fmt.Errorf("no final answer after %d tool iterations", a.maxIterations)
}

func (a *Agent) executeTool(ctx context.Context, call provider.ToolCall) string {
	t, ok := a.registry.Get(call.Name)
	if !ok {
		return fmt.Sprintf("Error: tool %q not found", call.Name)
	}
	a.log.Info("tool call", "tool", call.Name)
	out, err := t.Execute(ctx, call.Arguments)
	if err != nil {
		a.log.Warn("tool failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("Error executing tool %q: %v", call.Name, err)
	}
	return out
}

func (a *Agent) storeHistory(sessionID string, history []provider.Message) {
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	a.mu.Lock()
	a.sessions[sessionID] = history
	a.mu.Unlock()
}

// ResetSession discards the history for one session.
func (a *Agent) ResetSession(sessionID string) {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()
}
