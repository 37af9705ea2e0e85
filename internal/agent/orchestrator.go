package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/animus-coder/contractfix/internal/config"
	"github.com/animus-coder/contractfix/internal/llm"
	"github.com/animus-coder/contractfix/internal/observability"
	"github.com/animus-coder/contractfix/internal/patch"
)

// Orchestrator drives the model backend for each completion role.
type Orchestrator struct {
	registry *llm.Registry
	strategy *StrategyEngine
	adapters map[string]llm.Adapter

	agentCfg     config.AgentConfig
	diffLimit    int
	stream       bool
	requireDiffs bool

	logger   *zap.Logger
	metrics  *observability.Metrics
	progress io.Writer
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records role calls into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithProgress echoes streamed fragments to w as they arrive.
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) { o.progress = w }
}

// NewOrchestrator resolves one adapter per role up front; an unresolvable role
// fails construction.
func NewOrchestrator(reg *llm.Registry, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if reg == nil || cfg == nil {
		return nil, errors.New("registry and config are required")
	}
	o := &Orchestrator{
		registry:     reg,
		strategy:     NewStrategyEngine(reg, cfg.Strategy),
		adapters:     make(map[string]llm.Adapter, len(config.Roles)),
		agentCfg:     cfg.Agent,
		diffLimit:    cfg.FastLimit(config.RoleDiffs),
		stream:       cfg.Agent.Verbose || cfg.Agent.Stream,
		requireDiffs: cfg.Agent.RequireDiffs,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, role := range config.Roles {
		p, route, err := o.strategy.ResolveModel(role)
		if err != nil {
			return nil, fmt.Errorf("resolve model for %s: %w", role, err)
		}
		o.adapters[role] = o.newAdapter(p, route)
	}
	return o, nil
}

func (o *Orchestrator) newAdapter(p llm.Provider, route llm.ModelRoute) llm.Adapter {
	if route.Temperature == nil {
		t := o.agentCfg.Temperature
		route.Temperature = &t
	}
	route.MaxTokens = pickMaxTokens(route.MaxTokens, o.agentCfg.MaxTokens)
	return llm.NewAdapter(p, route)
}

// Route reports the model route bound to role.
func (o *Orchestrator) Route(role string) (llm.ModelRoute, error) {
	a, ok := o.adapters[role]
	if !ok {
		return llm.ModelRoute{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return a.Route(), nil
}

// Capabilities reports what the backend bound to role supports.
func (o *Orchestrator) Capabilities(role string) (llm.Capabilities, error) {
	a, ok := o.adapters[role]
	if !ok {
		return llm.Capabilities{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return a.Capabilities(), nil
}

// Complete issues one request for role.
func (o *Orchestrator) Complete(ctx context.Context, role, prompt string) (CompletionResult, error) {
	return o.complete(ctx, role, prompt, o.flags(false), 1)
}

func (o *Orchestrator) flags(forceFast bool) llm.AuxFlags {
	return llm.AuxFlags{Fast: o.agentCfg.Fast || forceFast, Verbose: o.agentCfg.Verbose}
}

func (o *Orchestrator) complete(ctx context.Context, role, prompt string, flags llm.AuxFlags, attempt int) (CompletionResult, error) {
	adapter, ok := o.adapters[role]
	if !ok {
		return CompletionResult{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	o.logger.Debug("completion request",
		zap.String("role", role),
		zap.String("model", adapter.Route().Name),
		zap.Int("prompt_chars", len(prompt)),
		zap.Bool("fast", flags.Fast),
		zap.Int("attempt", attempt),
	)

	start := time.Now()
	text, source, err := o.deliver(ctx, role, adapter, prompt, flags)
	if err != nil {
		o.metrics.RecordRoleFailure(role, adapter.Route().Name)
		fb := o.strategy.NextFallback(adapter.Route().Name)
		if fb == "" {
			return CompletionResult{}, fmt.Errorf("%s completion: %w", role, err)
		}
		p, route, rerr := o.registry.Resolve(fb)
		if rerr != nil {
			return CompletionResult{}, fmt.Errorf("%s completion: %w", role, err)
		}
		o.logger.Warn("completion failed, trying fallback model",
			zap.String("role", role),
			zap.String("model", adapter.Route().Name),
			zap.String("fallback", fb),
			zap.Error(err),
		)
		adapter = o.newAdapter(p, route)
		source = SourceBatch
		text, err = adapter.Complete(ctx, prompt, flags)
		if err != nil {
			o.metrics.RecordRoleFailure(role, adapter.Route().Name)
			return CompletionResult{}, fmt.Errorf("%s completion via fallback %s: %w", role, fb, err)
		}
	}

	elapsed := time.Since(start)
	o.metrics.RecordRoleCall(role, adapter.Route().Name, string(source), elapsed)
	o.logger.Debug("completion done",
		zap.String("role", role),
		zap.String("source", string(source)),
		zap.Duration("elapsed", elapsed),
		zap.Int("output_chars", len(text)),
	)
	return CompletionResult{
		Role:    role,
		Text:    text,
		Elapsed: elapsed,
		Source:  source,
		Model:   adapter.Route().Name,
		Attempt: attempt,
	}, nil
}

// deliver streams when enabled and supported; a stream that fails mid-flight
// is replaced by exactly one batch request.
func (o *Orchestrator) deliver(ctx context.Context, role string, adapter llm.Adapter, prompt string, flags llm.AuxFlags) (string, Source, error) {
	if s, ok := adapter.(llm.Streamer); ok && o.stream {
		text, err := o.consumeStream(ctx, s, prompt, flags)
		if err == nil {
			return text, SourceStreamed, nil
		}
		o.logger.Warn("stream failed, falling back to batch",
			zap.String("role", role),
			zap.String("model", adapter.Route().Name),
			zap.Error(err),
		)
		o.metrics.RecordStreamFallback(role)
		text, err = adapter.Complete(ctx, prompt, flags)
		return text, SourceFallback, err
	}
	text, err := adapter.Complete(ctx, prompt, flags)
	return text, SourceBatch, err
}

func (o *Orchestrator) consumeStream(ctx context.Context, s llm.Streamer, prompt string, flags llm.AuxFlags) (string, error) {
	var b strings.Builder
	defer o.echo("\n")
	for frag, err := range s.StreamComplete(ctx, prompt, flags) {
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
		o.echo(frag)
	}
	return b.String(), nil
}

func (o *Orchestrator) echo(s string) {
	if o.progress == nil || s == "" {
		return
	}
	_, _ = io.WriteString(o.progress, s)
}

// DiffOutcome is the final result of the diffs role.
type DiffOutcome struct {
	Result    CompletionResult
	Patches   patch.Set
	FullFiles []patch.FullFile
	Retried   bool
}

// CompleteDiffs runs the diffs role with its retry contract. fullPrompt is the
// untrimmed diffs prompt; fast mode trims the first attempt, and the second
// attempt is always trimmed and carries the stricter instructions. There is
// never a third request.
func (o *Orchestrator) CompleteDiffs(ctx context.Context, fullPrompt string) (DiffOutcome, error) {
	first := fullPrompt
	if o.agentCfg.Fast {
		first = trimPrompt(fullPrompt, o.diffLimit)
	}
	res, err := o.complete(ctx, config.RoleDiffs, first, o.flags(false), 1)
	if err != nil {
		return DiffOutcome{}, err
	}
	out := DiffOutcome{Result: res}
	out.Patches, out.FullFiles = o.extract(res.Text)

	if len(out.Patches) == 0 {
		o.metrics.RecordDiffRetry()
		o.logger.Warn("no unified diffs extracted, retrying with stricter instructions",
			zap.String("role", config.RoleDiffs),
			zap.String("model", res.Model),
		)
		retry, err := o.complete(ctx, config.RoleDiffs, strictDiffPrompt(fullPrompt, o.diffLimit), o.flags(true), 2)
		if err != nil {
			return out, err
		}
		out.Result = retry
		out.Patches, out.FullFiles = o.extract(retry.Text)
		out.Retried = true
	}

	for _, d := range out.Patches {
		if d.Headerless {
			o.logger.Warn("diff block without file headers", zap.String("path", d.Path))
		}
		if d.Hunkless {
			o.logger.Warn("diff block without hunk marker", zap.String("path", d.Path))
		}
	}
	o.metrics.SetPatchesExtracted(len(out.Patches))

	if len(out.Patches) == 0 && o.requireDiffs {
		return out, ErrNoDiffs
	}
	return out, nil
}

// extract skips both extractors when the reply holds no fenced code at all.
func (o *Orchestrator) extract(text string) (patch.Set, []patch.FullFile) {
	if !patch.HasAnyCode(text) {
		o.logger.Debug("reply carries no code blocks", zap.Int("chars", len(text)))
		return nil, nil
	}
	return patch.ExtractUnifiedDiffs(text), patch.ExtractFullFiles(text)
}

func pickMaxTokens(routeMax int, agentMax int) int {
	if routeMax > 0 {
		return routeMax
	}
	if agentMax > 0 {
		return agentMax
	}
	return 0
}
