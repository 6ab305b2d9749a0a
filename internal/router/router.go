// Package router resolves which chat backend a task runs against. A caller
// may name one of the four tier tokens directly, or hand over the task text
// and let the classifier pick a tier.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/stellarlinkco/tinyclaw/internal/config"
	"github.com/stellarlinkco/tinyclaw/internal/provider"
)

const (
	SourceExplicit      = "explicit"
	SourceModel         = "model"
	SourceDeterministic = "deterministic_fallback"
)

var tierOrder = []string{
	config.TierSimple,
	config.TierModerate,
	config.TierComplex,
	config.TierReasoning,
}

// Factory builds a Provider for a tier. Injectable for tests.
type Factory func(cfg config.ProviderConfig, providerType, model string, maxTokens int) (provider.Provider, error)

// Resolution carries the chosen backend plus classification metadata.
type Resolution struct {
	Tier     string
	Backend  provider.Provider
	Source   string
	Reason   string
}

type Router struct {
	cfg     *config.Config
	factory Factory
	log     *slog.Logger

	mu    sync.Mutex
	cache map[string]provider.Provider
}

func New(cfg *config.Config, log *slog.Logger) *Router {
	return NewWithFactory(cfg, log, provider.New)
}

func NewWithFactory(cfg *config.Config, log *slog.Logger, factory Factory) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		cfg:     cfg,
		factory: factory,
		log:     log.With("component", "router"),
		cache:   make(map[string]provider.Provider),
	}
}

// Resolve returns the backend for an explicit tier token.
func (r *Router) Resolve(tier string) (Resolution, error) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	if !validTier(tier) {
		return Resolution{}, fmt.Errorf("unknown tier %q (expected one of %s)", tier, strings.Join(tierOrder, ", "))
	}
	backend, err := r.backendFor(tier)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Tier: tier, Backend: backend, Source: SourceExplicit}, nil
}

// Classify picks a tier for the task text. It asks the simple-tier backend
// for a single tier token and falls back to a keyword heuristic when the
// classifier is unavailable or answers garbage.
func (r *Router) Classify(ctx context.Context, task string) (Resolution, error) {
	tier, source, reason := r.classifyTier(ctx, task)
	backend, err := r.backendFor(tier)
	if err != nil {
		return Resolution{}, err
	}
	r.log.Info("task classified", "tier", tier, "source", source, "reason", reason)
	return Resolution{Tier: tier, Backend: backend, Source: source, Reason: reason}, nil
}

func (r *Router) classifyTier(ctx context.Context, task string) (tier, source, reason string) {
	classifier, err := r.backendFor(config.TierSimple)
	if err == nil {
		msgs := []provider.Message{
			{Role: provider.RoleSystem, Content: classifierPrompt},
			{Role: provider.RoleUser, Content: task},
		}
		reply, err := classifier.Chat(ctx, msgs, nil)
		if err == nil && reply != nil {
			if parsed := parseTierToken(reply.Content); parsed != "" {
				return parsed, SourceModel, "classifier"
			}
			reason = "classifier_unparseable"
		} else {
			reason = "classifier_failed"
		}
	} else {
		reason = "classifier_unavailable"
	}
	return heuristicTier(task), SourceDeterministic, reason
}

const classifierPrompt = "You route tasks to a model tier. Reply with exactly one word, " +
	"one of: simple, moderate, complex, reasoning. " +
	"simple = short lookups and rewording; moderate = everyday multi-step work; " +
	"complex = long or multi-file work; reasoning = math, logic, planning, debugging."

// parseTierToken scans a classifier reply for a tier token.
func parseTierToken(reply string) string {
	reply = strings.ToLower(reply)
	for _, tier := range tierOrder {
		if strings.Contains(reply, tier) {
			return tier
		}
	}
	return ""
}

var reasoningHints = []string{"prove", "why", "debug", "plan", "analyze", "analyse", "reason", "math", "calculate"}

// heuristicTier is the deterministic fallback when no classifier answer is
// usable.
func heuristicTier(task string) string {
	lower := strings.ToLower(task)
	for _, hint := range reasoningHints {
		if strings.Contains(lower, hint) {
			return config.TierReasoning
		}
	}
	words := len(strings.Fields(task))
	switch {
	case words <= 12:
		return config.TierSimple
	case words <= 60:
		return config.TierModerate
	default:
		return config.TierComplex
	}
}

func (r *Router) backendFor(tier string) (provider.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if backend, ok := r.cache[tier]; ok {
		return backend, nil
	}

	tc, ok := r.cfg.Routing.Tiers[tier]
	if !ok {
		return nil, fmt.Errorf("tier %q has no routing entry", tier)
	}
	maxTokens := tc.MaxTokens
	if maxTokens <= 0 {
		maxTokens = r.cfg.Agent.MaxTokens
	}
	backend, err := r.factory(r.cfg.Provider, tc.Provider, tc.Model, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("build %s backend: %w", tier, err)
	}
	r.cache[tier] = backend
	return backend, nil
}

func validTier(tier string) bool {
	for _, t := range tierOrder {
		if t == tier {
			return true
		}
	}
	return false
}
