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

package config

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/eventsink"
	"github.com/nlpodyssey/agentflow/memory"
	"github.com/nlpodyssey/agentflow/modelsettings"
	"github.com/nlpodyssey/agentflow/ratelimit"
)

// ToolRegistry maps the tool names used in workflow declarations to tools.
type ToolRegistry map[string]agents.FunctionTool

// Resolve returns the tools named, in order.
func (r ToolRegistry) Resolve(names []string) ([]agents.FunctionTool, error) {
	tools := make([]agents.FunctionTool, 0, len(names))
	for _, name := range names {
		tool, ok := r[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// NewLogger builds a slog.Logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (c RunConfig) Strategy() agents.ErrorStrategy {
	s, _ := agents.ParseErrorStrategy(c.ErrorStrategy)
	return s
}

// Enabled reports whether a session backend is configured.
func (c SessionConfig) Enabled() bool {
	return !strings.EqualFold(c.Backend, BackendNone)
}

// Open opens the session with the given ID, or c.ID when empty.
func (c SessionConfig) Open(ctx context.Context, sessionID string) (memory.ClosableSession, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("no session backend configured")
	}
	if sessionID == "" {
		sessionID = c.ID
	}
	return memory.Open(ctx, memory.Options{
		Backend:       c.Backend,
		SessionID:     sessionID,
		DSN:           c.DSN,
		SessionTable:  c.SessionTable,
		MessagesTable: c.MessagesTable,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		TTL:           c.TTL,
	})
}

// NewLimiter builds the configured limiter. It returns a nil limiter for the
// none backend. The returned function releases its resources.
func (c RateLimitConfig) NewLimiter(ctx context.Context) (agents.Limiter, func() error, error) {
	noop := func() error { return nil }
	switch c.Backend {
	case LimiterMemory:
		return ratelimit.NewTokenBucket(c.PerSecond, c.Burst), noop, nil
	case LimiterRedis:
		w, err := ratelimit.NewRedisFixedWindow(ctx, ratelimit.RedisFixedWindowParams{
			Addr:   c.RedisAddr,
			Limit:  c.Limit,
			Window: c.Window,
		})
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	default:
		return nil, noop, nil
	}
}

// Dial connects the lifecycle event sink. It returns nil when no URL is
// configured.
func (c EventsConfig) Dial(logger *slog.Logger) (*eventsink.Sink, error) {
	if c.AMQPURL == "" {
		return nil, nil
	}
	sink, err := eventsink.DialAMQP(c.AMQPURL, c.Exchange)
	if err != nil {
		return nil, err
	}
	sink.Hooks.Logger = logger
	sink.Hooks.FailOnError = c.FailOnError
	return sink, nil
}

// AgentRunConfig returns the agents.RunConfig matching the run, session and
// rate limit sections. Session, Limiter and Hooks are left to the caller.
func (c *Config) AgentRunConfig(logger *slog.Logger) agents.RunConfig {
	return agents.RunConfig{
		ModelSettings:       c.Model.Settings,
		MaxTurns:            c.Run.MaxTurns,
		SessionHistoryLimit: c.Session.HistoryLimit,
		LimiterTimeout:      c.RateLimit.Timeout,
		ErrorStrategy:       c.Run.Strategy(),
		MaxRetries:          c.Run.MaxRetries,
		AllowHandoffCycles:  c.Run.AllowHandoffCycles,
		Logger:              logger,
	}
}

// ParseToolChoice converts "auto", "required", "none" or a tool name.
func ParseToolChoice(s string) modelsettings.ToolChoice {
	switch s {
	case "":
		return nil
	case string(modelsettings.ToolChoiceAuto), string(modelsettings.ToolChoiceRequired), string(modelsettings.ToolChoiceNone):
		return modelsettings.ToolChoiceString(s)
	default:
		return modelsettings.ToolChoiceFunction{Name: s}
	}
}

// ModelSettings returns the model settings of the agent, including its tool choice.
func (d AgentDeclaration) ModelSettings() modelsettings.ModelSettings {
	settings := d.Settings
	if tc := ParseToolChoice(d.ToolChoice); tc != nil {
		settings.ToolChoice = tc
	}
	return settings
}

// BuildAgents creates the agents of the workflow, wired with native
// handoffs, and returns the starting agent. Agents without a model use
// defaultModel.
func (w WorkflowDeclaration) BuildAgents(registry ToolRegistry, defaultModel string) (*agents.Agent, map[string]*agents.Agent, error) {
	if err := validateWorkflowDeclaration(w); err != nil {
		return nil, nil, fmt.Errorf("workflow invalid: %w", err)
	}

	built := make(map[string]*agents.Agent, len(w.Agents))
	for _, decl := range w.Agents {
		functionTools, err := registry.Resolve(decl.Tools)
		if err != nil {
			return nil, nil, fmt.Errorf("agent %q: %w", decl.Name, err)
		}
		tools := make([]agents.Tool, len(functionTools))
		for i, t := range functionTools {
			tools[i] = t
		}
		behavior, err := agents.ParseToolUseBehavior(decl.ToolUseBehavior, decl.StopAtTools)
		if err != nil {
			return nil, nil, fmt.Errorf("agent %q: %w", decl.Name, err)
		}

		agent := agents.New(decl.Name).
			WithInstructions(decl.Instructions).
			WithHandoffDescription(decl.HandoffDescription).
			WithTools(tools...).
			WithToolUseBehavior(behavior).
			WithModelSettings(decl.ModelSettings()).
			WithMaxTurns(decl.MaxTurns)
		if model := cmp.Or(decl.Model, defaultModel); model != "" {
			agent.WithModel(model)
		}
		built[decl.Name] = agent
	}

	for _, decl := range w.Agents {
		for _, target := range decl.Handoffs {
			built[decl.Name].AgentHandoffs = append(built[decl.Name].AgentHandoffs, built[target])
		}
	}

	start := w.StartingAgent
	if start == "" {
		start = w.Agents[0].Name
	}
	return built[start], built, nil
}
