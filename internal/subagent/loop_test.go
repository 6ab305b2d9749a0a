package subagent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stellarlinkco/tinyclaw/internal/config"
	"github.com/stellarlinkco/tinyclaw/internal/provider"
	"github.com/stellarlinkco/tinyclaw/internal/router"
	"github.com/stellarlinkco/tinyclaw/internal/tool"
)

// scriptedBackend replays a fixed sequence of replies; once the script is
// exhausted the last entry repeats, which lets tests model a backend that
// never stops calling tools.
type scriptedBackend struct {
	name     string
	replies  []*provider.ChatReply
	errs     []error
	delay    time.Duration
	calls    int
	histLens []int
}

func (b *scriptedBackend) Name() string { return b.name }

func (b *scriptedBackend) Chat(ctx context.Context, msgs []provider.Message, _ []provider.ToolDef) (*provider.ChatReply, error) {
	i := b.calls
	b.calls++
	b.histLens = append(b.histLens, len(msgs))
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if i < len(b.errs) && b.errs[i] != nil {
		return nil, b.errs[i]
	}
	if i >= len(b.replies) {
		i = len(b.replies) - 1
	}
	return b.replies[i], nil
}

func textReply(content string) *provider.ChatReply {
	return &provider.ChatReply{Kind: provider.ReplyText, Content: content}
}

func callReply(names ...string) *provider.ChatReply {
	calls := make([]provider.ToolCall, len(names))
	for i, name := range names {
		calls[i] = provider.ToolCall{ID: "call-" + name, Name: name, Arguments: map[string]any{}}
	}
	return &provider.ChatReply{Kind: provider.ReplyToolCalls, Calls: calls}
}

type stubTool struct {
	name   string
	result string
	err    error
	panics bool
	calls  int
	args   map[string]any
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub" }
func (s *stubTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (s *stubTool) Execute(_ context.Context, args map[string]any) (string, error) {
	s.calls++
	s.args = args
	if s.panics {
		panic("stub blew up")
	}
	return s.result, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDelegator(t *testing.T, reg *tool.Registry, backend provider.Provider) *Delegator {
	t.Helper()
	factory := func(_ config.ProviderConfig, _, _ string, _ int) (provider.Provider, error) {
		return backend, nil
	}
	r := router.NewWithFactory(config.DefaultConfig(), testLogger(), factory)
	return NewDelegator(reg, r, config.SubAgentConfig{MaxTurns: DefaultMaxTurns, TimeoutSeconds: 60}, testLogger())
}

func TestRun_TextOnFirstTurn(t *testing.T) {
	backend := &scriptedBackend{name: "anthropic/test", replies: []*provider.ChatReply{textReply("Done.")}}
	d := newTestDelegator(t, tool.NewRegistry(), backend)

	out := d.Run(context.Background(), Request{Task: "say done", Role: "tester", Backend: backend})
	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if out.Response != "Done." {
		t.Errorf("response = %q", out.Response)
	}
	if out.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", out.Iterations)
	}
	if out.Backend != "anthropic/test" {
		t.Errorf("backend = %q", out.Backend)
	}
}

func TestRun_NativeCallsThenAnswer(t *testing.T) {
	reg := tool.NewRegistry()
	read := &stubTool{name: "read_file", result: "contents"}
	list := &stubTool{name: "list_dir", result: "a b c"}
	reg.Register(read)
	reg.Register(list)

	backend := &scriptedBackend{name: "b", replies: []*provider.ChatReply{
		callReply("read_file", "list_dir"),
		textReply("summary"),
	}}
	d := newTestDelegator(t, reg, backend)

	out := d.Run(context.Background(), Request{
		Task: "look around", Role: "scout",
		Tools:   []string{"read_file", "list_dir"},
		Backend: backend,
	})
	if !out.Success || out.Iterations != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if read.calls != 1 || list.calls != 1 {
		t.Errorf("tool calls = %d/%d, want 1/1", read.calls, list.calls)
	}
	// Seed is two messages; each executed call appends an assistant and a
	// tool-result message.
	if got := backend.histLens[1]; got != 6 {
		t.Errorf("second-turn history length = %d, want 6", got)
	}
}

func TestRun_EmbeddedCallExecuted(t *testing.T) {
	reg := tool.NewRegistry()
	read := &stubTool{name: "read_file", result: "file body"}
	reg.Register(read)

	backend := &scriptedBackend{name: "b", replies: []*provider.ChatReply{
		textReply(`I need the file. {"action": "read_file", "file_path": "notes.md"}`),
		textReply("here is the answer"),
	}}
	d := newTestDelegator(t, reg, backend)

	out := d.Run(context.Background(), Request{
		Task: "read notes", Role: "reader",
		Tools:   []string{"read_file"},
		Backend: backend,
	})
	if !out.Success || out.Iterations != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if read.calls != 1 {
		t.Fatalf("read called %d times", read.calls)
	}
	if read.args["filename"] != "notes.md" {
		t.Errorf("args = %v, want filename adopted from file_path", read.args)
	}
}

func TestRun_MalformedEmbeddedIsFinalAnswer(t *testing.T) {
	text := `the map {"broken": } explains it`
	backend := &scriptedBackend{name: "b", replies: []*provider.ChatReply{textReply(text)}}
	d := newTestDelegator(t, tool.NewRegistry(), backend)

	out := d.Run(context.Background(), Request{Task: "t", Role: "r", Backend: backend})
	if !out.Success || out.Iterations != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Response != text {
		t.Errorf("response = %q, want the raw text", out.Response)
	}
}

func TestRun_UnknownToolKeepsLooping(t *testing.T) {
	backend := &scriptedBackend{name: "b", replies: []*provider.ChatReply{
		callReply("launch_rockets"),
		textReply("could not do that"),
	}}
	d := newTestDelegator(t, tool.NewRegistry(), backend)

	out := d.Run(context.Background(), Request{Task: "t", Role: "r", Backend: backend})
	if !out.Success {
		t.Fatalf("outcome = %+v, want success after recovering", out)
	}
	if out.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", out.Iterations)
	}
}

func TestRun_UngrantedToolRefused(t *testing.T) {
	reg := tool.NewRegistry()
	write := &stubTool{name: "write_file", result: "written"}
	reg.Register(write)

	backend := &scriptedBackend{name: "b", replies: []*provider.ChatReply{
		callReply("write_file"),
		textReply("done"),
	}}
	d := newTestDelegator(t, reg, backend)

	out := d.Run(context.Background(), Request{
		Task: "t", Role: "r",
		Tools:   []string{"read_file"},
		Backend: backend,
	})
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if write.calls != 0 {
		t.Error("ungranted tool must not run")
	}
}

func TestRun_ExhaustsIterationCap(t *testing.T) {
	backend := &scriptedBackend{name: "b", replies: []*provider.ChatReply{callReply("read_file")}}
	d := newTestDelegator(t, tool.NewRegistry(), backend)

	out := d.Run(context.Background(), Request{Task: "t", Role: "r", Backend: backend})
	if out.Success {
		t.Fatal("want failure when the loop never answers")
	}
	if out.Iterations != DefaultMaxTurns {
		t.Errorf("iterations = %d, want %d", out.Iterations, DefaultMaxTurns)
	}
	if out.Response != exhaustedMessage {
		t.Errorf("response = %q", out.Response)
	}
	if backend.calls != DefaultMaxTurns {
		t.Errorf("backend called %d times, want %d", backend.calls, DefaultMaxTurns)
	}
}

func TestRun_Timeout(t *testing.T) {
	backend := &scriptedBackend{
		name:    "b",
		replies: []*provider.ChatReply{textReply("too late")},
		delay:   200 * time.Millisecond,
	}
	d := newTestDelegator(t, tool.NewRegistry(), backend)

	start := time.Now()
	out := d.Run(context.Background(), Request{
		Task: "t", Role: "r",
		Backend: backend,
		Timeout: 50 * time.Millisecond,
	})
	if out.Success {
		t.Fatal("want failure on timeout")
	}
	if !strings.Contains(out.Response, "timed out") {
		t.Errorf("response = %q", out.Response)
	}
	if out.Iterations != 1 {
		t.Errorf("iterations = %d, want best-effort 1", out.Iterations)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("run took %s, deadline not enforced", elapsed)
	}
}

func TestRun_BackendError(t *testing.T) {
	backend := &scriptedBackend{name: "b", errs: []error{errors.New("boom")}}
	d := newTestDelegator(t, tool.NewRegistry(), backend)

	out := d.Run(context.Background(), Request{Task: "t", Role: "r", Backend: backend})
	if out.Success {
		t.Fatal("want failure on backend error")
	}
	if !strings.Contains(out.Response, "Error") || !strings.Contains(out.Response, "boom") {
		t.Errorf("response = %q", out.Response)
	}
}

func TestRun_ToolErrorFedBack(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&stubTool{name: "read_file", err: errors.New("no such file")})

	backend := &scriptedBackend{name: "b", replies: []*provider.ChatReply{
		callReply("read_file"),
		textReply("the file is missing"),
	}}
	d := newTestDelegator(t, reg, backend)

	out := d.Run(context.Background(), Request{
		Task: "t", Role: "r",
		Tools:   []string{"read_file"},
		Backend: backend,
	})
	if !out.Success || out.Iterations != 2 {
		t.Fatalf("outcome = %+v, want the loop to survive a tool error", out)
	}
}

func TestRun_ToolPanicRecovered(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&stubTool{name: "read_file", panics: true})

	backend := &scriptedBackend{name: "b", replies: []*provider.ChatReply{
		callReply("read_file"),
		textReply("recovered"),
	}}
	d := newTestDelegator(t, reg, backend)

	out := d.Run(context.Background(), Request{
		Task: "t", Role: "r",
		Tools:   []string{"read_file"},
		Backend: backend,
	})
	if !out.Success {
		t.Fatalf("outcome = %+v, want panic converted to a tool result", out)
	}
}
