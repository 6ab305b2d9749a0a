package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/tinyclaw/internal/agent"
	"github.com/stellarlinkco/tinyclaw/internal/config"
	"github.com/stellarlinkco/tinyclaw/internal/gateway"
	"github.com/stellarlinkco/tinyclaw/internal/provider"
)

// Runtime is the agent surface the CLI drives; tests substitute a fake.
type Runtime interface {
	Process(ctx context.Context, sessionID, content string) (string, error)
}

// RuntimeFactory creates a Runtime from loaded config.
type RuntimeFactory func(cfg *config.Config) (Runtime, error)

// DefaultRuntimeFactory builds the real agent with the full tool catalog.
func DefaultRuntimeFactory(cfg *config.Config) (Runtime, error) {
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("API key not set. Run 'tinyclaw onboard' or set TINYCLAW_API_KEY / ANTHROPIC_API_KEY")
	}

	registry, _, err := gateway.BuildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := provider.New(cfg.Provider, cfg.Provider.Type, cfg.Agent.Model, cfg.Agent.MaxTokens)
	if err != nil {
		return nil, err
	}
	return agent.New(backend, registry, "", cfg.Agent.MaxToolIterations, slog.Default()), nil
}

// AgentOptions carries injectable dependencies for the agent command.
type AgentOptions struct {
	RuntimeFactory RuntimeFactory
	Stdin          io.Reader
	Stdout         io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "tinyclaw",
	Short: "tinyclaw - personal AI assistant with sub-agent delegation",
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the agent in single-message or REPL mode",
	RunE:  runAgent,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (channels + cron)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and workspace",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tinyclaw status",
	RunE:  runStatus,
}

var messageFlag string

func init() {
	agentCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	rootCmd.AddCommand(agentCmd, gatewayCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	return runAgentWithOptions(AgentOptions{})
}

func runAgentWithOptions(opts AgentOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.RuntimeFactory
	if factory == nil {
		factory = DefaultRuntimeFactory
	}
	rt, err := factory(cfg)
	if err != nil {
		return err
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	ctx := context.Background()

	if messageFlag != "" {
		reply, err := rt.Process(ctx, "cli", messageFlag)
		if err != nil {
			return fmt.Errorf("agent error: %w", err)
		}
		fmt.Fprintln(stdout, reply)
		return nil
	}

	fmt.Fprintln(stdout, "tinyclaw agent (type 'exit' to quit)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		reply, err := rt.Process(ctx, "cli", input)
		if err != nil {
			fmt.Fprintf(stdout, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(stdout, reply)
	}
	return nil
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	g, err := gateway.New(cfg)
	if err != nil {
		return err
	}
	return g.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	return onboard(os.Stdout)
}

func onboard(stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.Agent.Workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	agentsPath := filepath.Join(cfg.Agent.Workspace, "AGENTS.md")
	if _, err := os.Stat(agentsPath); os.IsNotExist(err) {
		starter := "# Agent Instructions\n\nYou are a helpful personal assistant.\n" +
			"Delegate self-contained research or analysis tasks to sub-agents with delegate_task.\n"
		if err := os.WriteFile(agentsPath, []byte(starter), 0644); err != nil {
			return fmt.Errorf("write AGENTS.md: %w", err)
		}
	}

	if err := config.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "config written to %s\n", config.ConfigPath())
	fmt.Fprintf(stdout, "workspace at %s\n", cfg.Agent.Workspace)
	if cfg.Provider.APIKey == "" {
		fmt.Fprintln(stdout, "note: no API key configured; set TINYCLAW_API_KEY or ANTHROPIC_API_KEY")
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	return status(os.Stdout)
}

func status(stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Fprintf(stdout, "config:    %s\n", config.ConfigPath())
	fmt.Fprintf(stdout, "workspace: %s\n", cfg.Agent.Workspace)
	providerType := cfg.Provider.Type
	if providerType == "" {
		providerType = "anthropic"
	}
	fmt.Fprintf(stdout, "provider:  %s (%s)\n", providerType, cfg.Agent.Model)
	if cfg.Provider.APIKey == "" {
		fmt.Fprintln(stdout, "api key:   not set")
	} else {
		fmt.Fprintln(stdout, "api key:   set")
	}

	fmt.Fprintln(stdout, "tiers:")
	for _, tier := range []string{config.TierSimple, config.TierModerate, config.TierComplex, config.TierReasoning} {
		if tc, ok := cfg.Routing.Tiers[tier]; ok {
			fmt.Fprintf(stdout, "  %-10s %s\n", tier, tc.Model)
		}
	}

	fmt.Fprintf(stdout, "telegram:  enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Fprintf(stdout, "memory:    enabled=%v\n", cfg.Memory.Enabled)
	return nil
}
