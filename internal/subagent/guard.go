package subagent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

type loopResult struct {
	outcome Outcome
	err     error
}

// runGuarded wraps the loop in a wall-clock deadline. The deadline context is
// passed into the loop so in-flight backend and tool calls are cancelled, and
// the guard also stops waiting as soon as the deadline fires even if the loop
// goroutine has not noticed yet. The turn counter is shared so a cut-off run
// still reports a best-effort iteration count.
func (d *Delegator) runGuarded(ctx context.Context, req Request, exec *executor) Outcome {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var turns atomic.Int32
	results := make(chan loopResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- loopResult{err: fmt.Errorf("sub-agent panicked: %v", r)}
			}
		}()
		out, err := runLoop(ctx, req, exec, d.maxTurns, &turns, d.log)
		results <- loopResult{outcome: out, err: err}
	}()

	backend := req.Backend.Name()
	select {
	case res := <-results:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return d.timeoutOutcome(timeout, int(turns.Load()), backend)
			}
			return Outcome{
				Success:    false,
				Response:   "Error: " + res.err.Error(),
				Iterations: int(turns.Load()),
				Backend:    backend,
			}
		}
		return res.outcome
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return d.timeoutOutcome(timeout, int(turns.Load()), backend)
		}
		return Outcome{
			Success:    false,
			Response:   "Error: " + ctx.Err().Error(),
			Iterations: int(turns.Load()),
			Backend:    backend,
		}
	}
}

func (d *Delegator) timeoutOutcome(timeout time.Duration, turns int, backend string) Outcome {
	return Outcome{
		Success:    false,
		Response:   fmt.Sprintf("Error: sub-agent timed out after %s", timeout),
		Iterations: turns,
		Backend:    backend,
	}
}
