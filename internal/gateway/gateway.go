// Package gateway assembles the full runtime: bus, channels, cron, memory,
// the tool catalog with delegation, and the primary agent loop.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/stellarlinkco/tinyclaw/internal/agent"
	"github.com/stellarlinkco/tinyclaw/internal/bus"
	"github.com/stellarlinkco/tinyclaw/internal/channel"
	"github.com/stellarlinkco/tinyclaw/internal/config"
	"github.com/stellarlinkco/tinyclaw/internal/cron"
	"github.com/stellarlinkco/tinyclaw/internal/memory"
	"github.com/stellarlinkco/tinyclaw/internal/provider"
	"github.com/stellarlinkco/tinyclaw/internal/router"
	"github.com/stellarlinkco/tinyclaw/internal/subagent"
	"github.com/stellarlinkco/tinyclaw/internal/tool"
)

// Runtime handles one user message; tests substitute a fake.
type Runtime interface {
	Process(ctx context.Context, sessionID, content string) (string, error)
}

// RuntimeFactory builds the Runtime from the assembled tool catalog.
type RuntimeFactory func(cfg *config.Config, registry *tool.Registry, systemPrompt string) (Runtime, error)

// Options carries test injection points.
type Options struct {
	RuntimeFactory RuntimeFactory
	SignalChan     chan os.Signal
}

// DefaultRuntimeFactory builds the real agent on the configured provider.
func DefaultRuntimeFactory(cfg *config.Config, registry *tool.Registry, systemPrompt string) (Runtime, error) {
	backend, err := provider.New(cfg.Provider, cfg.Provider.Type, cfg.Agent.Model, cfg.Agent.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	return agent.New(backend, registry, systemPrompt, cfg.Agent.MaxToolIterations, slog.Default()), nil
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	runtime    Runtime
	registry   *tool.Registry
	channels   *channel.Manager
	cron       *cron.Service
	store      *memory.Store
	log        *slog.Logger
	signalChan chan os.Signal
}

func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg: cfg,
		log: slog.Default().With("component", "gateway"),
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	registry, store, err := BuildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	g.registry = registry
	g.store = store

	factory := opts.RuntimeFactory
	if factory == nil {
		factory = DefaultRuntimeFactory
	}
	runtime, err := factory(cfg, g.registry, g.buildSystemPrompt())
	if err != nil {
		g.closeStore()
		return nil, err
	}
	g.runtime = runtime
	g.signalChan = opts.SignalChan

	g.cron = cron.NewService(filepath.Join(config.ConfigDir(), "data", "cron", "jobs.json"))
	g.cron.OnJob = func(job cron.CronJob) (string, error) {
		result, err := g.runtime.Process(context.Background(), "cron:"+job.ID, job.Payload.Message)
		if err != nil {
			return "", err
		}
		if job.Payload.Deliver && job.Payload.Channel != "" {
			g.bus.Outbound <- bus.OutboundMessage{
				Channel: job.Payload.Channel,
				ChatID:  job.Payload.To,
				Content: result,
			}
		}
		return result, nil
	}

	channels, err := channel.NewManager(cfg.Channels, g.bus)
	if err != nil {
		g.closeStore()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = channels

	return g, nil
}

// BuildRegistry assembles the full tool catalog: workspace file tools, the
// memory tools when memory is enabled, and the delegation tool wired to the
// tier router. The returned store is nil when memory is disabled; the caller
// owns closing it.
func BuildRegistry(cfg *config.Config) (*tool.Registry, *memory.Store, error) {
	registry := tool.NewRegistry()

	workspace := cfg.Agent.Workspace
	restrict := cfg.Tools.RestrictToWorkspace
	registry.Register(&tool.ReadFileTool{Root: workspace, Restrict: restrict})
	registry.Register(&tool.ListDirTool{Root: workspace, Restrict: restrict})
	registry.Register(&tool.SearchFilesTool{Root: workspace, Restrict: restrict})
	registry.Register(&tool.WriteFileTool{Root: workspace, Restrict: restrict})

	var store *memory.Store
	if cfg.Memory.Enabled {
		dbPath := strings.TrimSpace(cfg.Memory.DBPath)
		if dbPath == "" {
			dbPath = filepath.Join(config.ConfigDir(), "data", "memory.db")
		}
		s, err := memory.NewStore(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open memory store: %w", err)
		}
		store = s
		registry.Register(&memory.SaveTool{Store: store})
		registry.Register(&memory.RecallTool{Store: store})
	}

	rt := router.New(cfg, slog.Default())
	delegator := subagent.NewDelegator(registry, rt, cfg.SubAgent, slog.Default())
	registry.Register(subagent.NewDelegateTool(delegator))

	return registry, store, nil
}

// buildSystemPrompt assembles the primary agent's system prompt from the
// workspace bootstrap files, when present.
func (g *Gateway) buildSystemPrompt() string {
	var sb strings.Builder
	for _, name := range []string{"AGENTS.md", "SOUL.md"} {
		if data, err := os.ReadFile(filepath.Join(g.cfg.Agent.Workspace, name)); err == nil {
			sb.Write(data)
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	g.log.Info("channels started", "channels", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		g.log.Warn("cron start failed", "error", err)
	}

	go g.processLoop(ctx)

	g.log.Info("running", "host", g.cfg.Gateway.Host, "port", g.cfg.Gateway.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	g.log.Info("shutting down")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.log.Info("inbound message", "channel", msg.Channel, "sender", msg.SenderID)

			result, err := g.runtime.Process(ctx, msg.SessionKey(), msg.Content)
			if err != nil {
				g.log.Error("agent failed", "error", err)
				result = fmt.Sprintf("Error: %v", err)
			}
			if result == "" {
				continue
			}
			g.bus.Outbound <- bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: result,
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) Shutdown() error {
	if g.channels != nil {
		_ = g.channels.StopAll()
	}
	if g.cron != nil {
		g.cron.Stop()
	}
	g.closeStore()
	return nil
}

func (g *Gateway) closeStore() {
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			g.log.Warn("close memory store failed", "error", err)
		}
		g.store = nil
	}
}

// Cron exposes the scheduler for CLI management commands.
func (g *Gateway) Cron() *cron.Service { return g.cron }
