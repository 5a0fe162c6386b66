// Copyright 2025 The NLP Odyssey Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/config"
	"github.com/nlpodyssey/agentflow/memory"
	"github.com/nlpodyssey/agentflow/orchestrator"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/types/optional"
)

// app holds what a command needs to run conversations: the loaded
// configuration plus the infrastructure built from it.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry config.ToolRegistry
	provider agents.ModelProvider
	session  memory.ClosableSession
	limiter  agents.Limiter
	hooks    agents.RunHooks
	printer  *transcript
	closers  []func() error
}

type appOptions struct {
	// Session to use. Empty means the configured default.
	SessionID string

	// Open an in-memory session when none is configured, so that
	// consecutive turns share history.
	EphemeralSession bool

	Verbose bool
	Out     io.Writer
	LogOut  io.Writer

	// Overrides the OpenAI provider.
	Provider agents.ModelProvider
	Now      func() time.Time
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.LogOut == nil {
		opts.LogOut = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger, err := cfg.Log.NewLogger(opts.LogOut)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: builtinTools(opts.Now),
		provider: opts.Provider,
		printer:  newTranscript(opts.Out, opts.Verbose),
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.Close())
		}
	}()

	if err = a.check(cfg); err != nil {
		return nil, err
	}

	if a.provider == nil {
		if a.provider, err = newProvider(cfg.Model); err != nil {
			return nil, err
		}
	}

	switch {
	case cfg.Session.Enabled():
		if a.session, err = cfg.Session.Open(ctx, opts.SessionID); err != nil {
			return nil, fmt.Errorf("failed to open session: %w", err)
		}
		a.closers = append(a.closers, a.session.Close)
	case opts.EphemeralSession:
		s, err := memory.NewSQLiteSession(ctx, memory.SQLiteSessionParams{SessionID: "chat"})
		if err != nil {
			return nil, fmt.Errorf("failed to open in-memory session: %w", err)
		}
		a.session = s
		a.closers = append(a.closers, s.Close)
	}

	limiter, closeLimiter, err := cfg.RateLimit.NewLimiter(ctx)
	if err != nil {
		return nil, err
	}
	a.limiter = limiter
	a.closers = append(a.closers, closeLimiter)

	sink, err := cfg.Events.Dial(logger)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		a.closers = append(a.closers, sink.Close)
		a.hooks = agents.MultiRunHooks(a.printer, sink.Hooks)
	} else {
		a.hooks = a.printer
	}
	return a, nil
}

// check verifies that the workflow can be built with the available tools.
func (a *app) check(cfg *config.Config) error {
	if _, _, err := cfg.Workflow.BuildAgents(a.registry, cfg.Model.Name); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}
	return nil
}

// reload replaces the configuration used by the next turns. Infrastructure
// sections (session, rate limit, events, model endpoint) keep the values
// they were started with.
func (a *app) reload(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err = a.check(cfg); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger.Info("Configuration reloaded", slog.String("path", path), slog.String("mode", cfg.Run.Mode))
	return nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ask runs one user turn in the configured mode and prints it.
func (a *app) ask(ctx context.Context, input string) (*runSummary, error) {
	a.printer.OnRunStarted(input)

	var (
		summary *runSummary
		err     error
	)
	switch a.cfg.Run.Mode {
	case config.ModeOrchestrator:
		summary, err = a.askOrchestrator(ctx, input)
	default:
		summary, err = a.askRunner(ctx, input)
	}
	if err != nil {
		a.printer.OnRunFailed(err)
		return nil, err
	}
	a.printer.OnRunCompleted(*summary)
	return summary, nil
}

func (a *app) askRunner(ctx context.Context, input string) (*runSummary, error) {
	start, _, err := a.cfg.Workflow.BuildAgents(a.registry, a.cfg.Model.Name)
	if err != nil {
		return nil, err
	}

	rc := a.cfg.AgentRunConfig(a.logger)
	rc.ModelProvider = a.provider
	rc.Hooks = a.hooks
	rc.Limiter = a.limiter
	if a.session != nil {
		rc.Session = a.session
	}

	result, err := agents.Runner{Config: rc}.Run(ctx, start, input)
	if err != nil {
		return nil, err
	}
	return &runSummary{
		FinalOutput: result.FinalOutput,
		LastAgent:   result.LastAgent.Name,
		Turns:       uint64(len(result.RawResponses)),
		Usage:       result.Usage,
		Handled:     len(result.Handled),
		Degraded:    result.Degraded,
	}, nil
}

func (a *app) askOrchestrator(ctx context.Context, input string) (*runSummary, error) {
	complete, err := a.completion()
	if err != nil {
		return nil, err
	}
	oc, err := orchestrator.FromWorkflow(a.cfg.Workflow, complete, a.registry)
	if err != nil {
		return nil, err
	}
	for i := range oc.Agents {
		if oc.Agents[i].MaxTurns == 0 {
			oc.Agents[i].MaxTurns = a.cfg.Run.MaxTurns
		}
	}
	oc.ErrorStrategy = a.cfg.Run.Strategy()
	oc.MaxRetries = a.cfg.Run.MaxRetries
	oc.Hooks = a.hooks
	oc.Limiter = a.limiter
	oc.LimiterTimeout = a.cfg.RateLimit.Timeout
	oc.Logger = a.logger

	orch, err := orchestrator.New(oc)
	if err != nil {
		return nil, err
	}

	var prior []message.Item
	if a.session != nil {
		if prior, err = a.session.GetItems(ctx, a.cfg.Session.HistoryLimit); err != nil {
			return nil, fmt.Errorf("failed to load session history: %w", err)
		}
	}
	history := append(prior, message.UserMessage(input))

	result, err := orch.RunItems(ctx, history)
	if err != nil {
		return nil, err
	}

	if a.session != nil {
		newItems := result.History[min(len(prior), len(result.History)):]
		if err = a.session.AddItems(ctx, newItems); err != nil {
			return nil, fmt.Errorf("failed to save session history: %w", err)
		}
	}

	if len(result.Chain) > 0 {
		a.logger.Debug("Handoff chain", slog.Any("chain", result.Chain))
	}
	return &runSummary{
		FinalOutput: result.FinalOutput,
		LastAgent:   result.LastAgent,
		Turns:       result.Turns,
		Usage:       result.Usage,
		Handled:     len(result.Handled),
		Degraded:    result.Degraded,
	}, nil
}

// completion resolves one model per declared agent through the provider.
func (a *app) completion() (orchestrator.CompletionFunc, error) {
	completions := make(map[string]orchestrator.CompletionFunc, len(a.cfg.Workflow.Agents))
	for _, decl := range a.cfg.Workflow.Agents {
		name := decl.Model
		if name == "" {
			name = a.cfg.Model.Name
		}
		model, err := a.provider.GetModel(name)
		if err != nil {
			return nil, fmt.Errorf("agent %q: failed to get model %q: %w", decl.Name, name, err)
		}
		completions[decl.Name] = orchestrator.ModelCompletion(model)
	}
	return func(ctx context.Context, agent orchestrator.AgentConfig, history []message.Item) (*agents.ModelResponse, error) {
		complete, ok := completions[agent.Name]
		if !ok {
			return nil, fmt.Errorf("no model for agent %q", agent.Name)
		}
		return complete(ctx, agent, history)
	}, nil
}

func newProvider(cfg config.ModelConfig) (agents.ModelProvider, error) {
	key, err := resolveAPIKey(cfg.APIKeyEnv, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	params := agents.OpenAIProviderParams{
		APIKey:       optional.Value(key),
		DefaultModel: cfg.Name,
	}
	if cfg.BaseURL != "" {
		params.BaseURL = optional.Value(cfg.BaseURL)
	}
	return agents.NewOpenAIProvider(params), nil
}
