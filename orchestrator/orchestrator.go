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

// Package orchestrator runs a set of named agents that hand the conversation
// to each other by calling an explicit transfer tool.
//
// Unlike the handoffs of agents.Runner, transfers carry a structured payload
// (reason, summary, priority and extra facts) that is rendered into the
// history of the receiving agent, and cycles between agents are rejected.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/usage"
)

type node struct {
	config AgentConfig
	agent  *agents.Agent
}

// Orchestrator is safe for concurrent use: every Run has its own state.
type Orchestrator struct {
	config   Config
	nodes    map[string]*node
	starting *node
	logger   *slog.Logger
}

// New validates the configuration and builds the agents.
func New(config Config) (*Orchestrator, error) {
	if config.Complete == nil {
		return nil, agents.NewUserError("orchestrator completion function is required")
	}
	if len(config.Agents) == 0 {
		return nil, agents.NewUserError("orchestrator needs at least one agent")
	}

	o := &Orchestrator{
		config: config,
		nodes:  make(map[string]*node, len(config.Agents)),
		logger: config.Logger,
	}
	if o.logger == nil {
		o.logger = agents.NopLogger()
	}

	for i, ac := range config.Agents {
		if ac.Name == "" {
			return nil, agents.UserErrorf("agents[%d] is missing a name", i)
		}
		if _, dup := o.nodes[ac.Name]; dup {
			return nil, agents.UserErrorf("duplicate agent name %q", ac.Name)
		}
		o.nodes[ac.Name] = &node{config: ac}
	}

	for _, ac := range config.Agents {
		for _, target := range ac.HandoffTargets {
			if target == ac.Name {
				return nil, agents.UserErrorf("agent %q cannot hand off to itself", ac.Name)
			}
			if _, ok := o.nodes[target]; !ok {
				return nil, agents.UserErrorf("agent %q hands off to unknown agent %q", ac.Name, target)
			}
		}
		for _, t := range ac.Tools {
			if t.Name == TransferToolName {
				return nil, agents.UserErrorf("agent %q declares reserved tool name %q", ac.Name, TransferToolName)
			}
		}

		n := o.nodes[ac.Name]
		n.config.Tools = slices.Clone(ac.Tools)
		if len(ac.HandoffTargets) > 0 {
			n.config.Tools = append(n.config.Tools, transferTool(ac.HandoffTargets))
		}

		tools := make([]agents.Tool, len(n.config.Tools))
		for i, t := range n.config.Tools {
			tools[i] = t
		}
		n.agent = agents.New(ac.Name).
			WithInstructions(ac.Instructions).
			WithTools(tools...).
			WithModelSettings(ac.ModelSettings).
			WithMaxTurns(ac.MaxTurns)
	}

	startName := config.StartingAgent
	if startName == "" {
		startName = config.Agents[0].Name
	}
	start, ok := o.nodes[startName]
	if !ok {
		return nil, agents.UserErrorf("starting agent %q not found", startName)
	}
	o.starting = start
	return o, nil
}

// Agent returns the agent built for name.
func (o *Orchestrator) Agent(name string) (*agents.Agent, bool) {
	n, ok := o.nodes[name]
	if !ok {
		return nil, false
	}
	return n.agent, true
}

type Result struct {
	FinalOutput any

	// Name of the agent that was active when the run ended.
	LastAgent string

	History []message.Item
	Usage   *usage.Usage

	// Total turns across all agents.
	Turns uint64

	// Agents that handed off, oldest first.
	Chain []string

	// Errors converted by the error handler, in order.
	Handled []*agents.HandledError

	// Whether FinalOutput is a degraded message.
	Degraded bool
}

// Run starts a conversation with a user message.
func (o *Orchestrator) Run(ctx context.Context, input string) (*Result, error) {
	return o.RunItems(ctx, []message.Item{message.UserMessage(input)})
}

// RunItems starts a conversation from the given history.
func (o *Orchestrator) RunItems(ctx context.Context, history []message.Item) (*Result, error) {
	var opts []agents.HandoffStateOption
	if o.config.Now != nil {
		opts = append(opts, agents.WithClock(o.config.Now))
	}
	r := &orchestratorRun{
		o:       o,
		state:   agents.NewHandoffState(o.starting.config.Name, opts...),
		tracker: agents.NewAgentToolUseTracker(),
		handler: &agents.ErrorHandler{
			Strategy:   o.config.ErrorStrategy,
			MaxRetries: o.config.MaxRetries,
			Logger:     o.config.Logger,
		},
	}
	ctx = contextWithRun(ctx, r)

	manager := agents.NewConversationManager(o.starting.agent,
		agents.WithMaxTurns(o.config.MaxTurns),
		agents.WithStopSignal(o.config.Stop),
		agents.WithErrorHandler(r.handler),
		agents.WithLogger(o.config.Logger),
		agents.WithHistory(history),
	)

	cr, err := manager.Run(ctx, r.turn)
	if err != nil {
		return nil, err
	}
	return &Result{
		FinalOutput: cr.FinalOutput,
		LastAgent:   cr.LastAgent.Name,
		History:     cr.History,
		Usage:       cr.Usage,
		Turns:       cr.Turns,
		Chain:       r.state.Chain(),
		Handled:     cr.Handled,
		Degraded:    cr.Degraded,
	}, nil
}

type orchestratorRun struct {
	o       *Orchestrator
	state   *agents.HandoffState
	tracker *agents.AgentToolUseTracker
	handler *agents.ErrorHandler

	// Set before the tools of a step run, read by the transfer tool.
	firstTransferCall string
}

type runContextKey struct{}

func contextWithRun(ctx context.Context, r *orchestratorRun) context.Context {
	return context.WithValue(ctx, runContextKey{}, r)
}

func runFromContext(ctx context.Context) *orchestratorRun {
	r, _ := ctx.Value(runContextKey{}).(*orchestratorRun)
	return r
}

func (r *orchestratorRun) turn(ctx context.Context, in agents.TurnInput) (*agents.TurnOutcome, error) {
	n := r.o.nodes[in.Agent.Name]
	hooks := r.o.config.Hooks

	if in.Turn == 1 && hooks != nil {
		if err := hooks.OnAgentStart(ctx, n.agent); err != nil {
			return nil, fmt.Errorf("RunHooks.OnAgentStart failed: %w", err)
		}
	}

	// A transfer requested by a failed or retried turn must not carry over.
	r.state.ClearPending()

	response, err := r.complete(ctx, n, in.History)
	if err != nil {
		return nil, err
	}

	r.firstTransferCall = firstTransferCall(response.Output)
	step, err := agents.RunImpl().WithLogger(r.o.config.Logger).ExecuteStep(ctx, agents.StepParams{
		Agent:          n.agent,
		AllTools:       n.agent.Tools,
		OriginalInput:  in.History,
		ModelResponse:  *response,
		Hooks:          hooks,
		ToolUseTracker: r.tracker,
		Limiter:        r.o.config.Limiter,
		LimiterTimeout: r.o.config.LimiterTimeout,
	})
	if err != nil {
		if r.state.ClearPending() {
			r.o.logger.Warn("Dropping transfer requested by a failed step",
				slog.String("agentName", n.config.Name))
		}
		return &agents.TurnOutcome{Usage: response.Usage}, err
	}

	outcome := &agents.TurnOutcome{
		Items: agents.RunItemsToInputItems(step.NewStepItems),
		Usage: response.Usage,
	}

	if _, pending := r.state.PendingTarget(); pending {
		return r.transfer(ctx, n, outcome)
	}

	switch next := step.NextStep.(type) {
	case agents.NextStepFinalOutput:
		if hooks != nil {
			if err := hooks.OnAgentEnd(ctx, n.agent, next.Output); err != nil {
				return outcome, fmt.Errorf("RunHooks.OnAgentEnd failed: %w", err)
			}
		}
		outcome.FinalOutput = next.Output
	case agents.NextStepHandoff:
		outcome.HandoffTo = next.NewAgent
	default:
		outcome.Continue = true
	}
	return outcome, nil
}

func (r *orchestratorRun) transfer(ctx context.Context, from *node, outcome *agents.TurnOutcome) (*agents.TurnOutcome, error) {
	result := r.state.ExecuteHandoff()
	if !result.OK {
		outcome.Items = append(outcome.Items, message.SystemMessage("Transfer rejected: "+result.Err.Error()))
		return outcome, result.Err
	}

	to := r.o.nodes[result.To]
	r.o.logger.Debug("Transfer",
		slog.String("from", result.From),
		slog.String("to", result.To),
		slog.String("reason", result.Payload.Reason))

	if hooks := r.o.config.Hooks; hooks != nil {
		if err := hooks.OnHandoff(ctx, from.agent, to.agent); err != nil {
			return outcome, fmt.Errorf("RunHooks.OnHandoff failed: %w", err)
		}
	}

	if msg := r.state.BuildHandoffMessage(); msg != "" {
		outcome.Items = append(outcome.Items, message.UserMessage(msg))
	}
	outcome.HandoffTo = to.agent
	return outcome, nil
}

func (r *orchestratorRun) complete(ctx context.Context, n *node, history []message.Item) (*agents.ModelResponse, error) {
	err := agents.WaitLimiter(ctx, r.o.config.Limiter, r.o.config.LimiterTimeout, agents.ModelLimiterKey(n.config.Name))
	if err != nil {
		return nil, err
	}
	response, err := r.o.config.Complete(ctx, n.config, history)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, agents.ModelBehaviorErrorf("completion for agent %s returned no response", n.config.Name)
	}
	if response.Usage == nil {
		response.Usage = &usage.Usage{Requests: 1}
	}
	return response, nil
}
