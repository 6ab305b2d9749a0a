package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/stellarlinkco/tinyclaw/internal/provider"
)

// exhaustedMessage is returned when the loop spends every turn on tool calls
// without producing a final answer.
const exhaustedMessage = "exhausted maximum iterations"

// runLoop drives the sub-agent conversation for at most maxTurns rounds.
// turns is shared with the timeout guard so a cut-off run still reports how
// far it got. Errors from the backend propagate out; the guard converts them
// into a failure outcome.
func runLoop(ctx context.Context, req Request, exec *executor, maxTurns int, turns *atomic.Int32, log *slog.Logger) (Outcome, error) {
	history := buildSeedMessages(req.Role, req.Task)
	defs := exec.grantedDefs()
	backend := req.Backend.Name()

	for turn := 1; turn <= maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		turns.Store(int32(turn))

		reply, err := req.Backend.Chat(ctx, history, defs)
		if err != nil {
			return Outcome{}, fmt.Errorf("turn %d: %w", turn, err)
		}

		if reply.Kind == provider.ReplyToolCalls {
			// Native tool calling: one assistant message and one
			// correlated result message per call, in order.
			for i, call := range reply.Calls {
				assistant := provider.Message{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{call}}
				if i == 0 {
					assistant.Content = reply.Content
				}
				history = append(history, assistant)

				result := exec.execute(ctx, call.Name, call.Arguments)
				call.Result = result
				history = append(history, provider.Message{
					Role:      provider.RoleTool,
					Content:   result,
					ToolCalls: []provider.ToolCall{call},
				})
			}
			continue
		}

		// Text reply. Backends without native tool calling embed the
		// call as a JSON object in prose; recover it if present.
		ext := ExtractToolCall(reply.Content)
		switch ext.Status {
		case ExtractFound:
			call := ext.Call
			history = append(history, provider.Message{
				Role:      provider.RoleAssistant,
				Content:   reply.Content,
				ToolCalls: []provider.ToolCall{call},
			})
			result := exec.execute(ctx, call.Name, call.Arguments)
			call.Result = result
			history = append(history, provider.Message{
				Role:      provider.RoleTool,
				Content:   result,
				ToolCalls: []provider.ToolCall{call},
			})
			continue
		case ExtractMalformed:
			log.Debug("unusable embedded tool call", "reason", ext.Reason)
		}

		// No actionable call: this text is the final answer.
		return Outcome{
			Success:    true,
			Response:   reply.Content,
			Iterations: turn,
			Backend:    backend,
		}, nil
	}

	return Outcome{
		Success:    false,
		Response:   exhaustedMessage,
		Iterations: maxTurns,
		Backend:    backend,
	}, nil
}
