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

package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nlpodyssey/agentflow/asyncqueue"
	"github.com/nlpodyssey/agentflow/asynctask"
	"github.com/nlpodyssey/agentflow/memory"
	"github.com/nlpodyssey/agentflow/modelsettings"
	"github.com/nlpodyssey/agentflow/runcontext"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/types/optional"
	"github.com/nlpodyssey/agentflow/usage"
)

// DefaultRunner is the Runner used by the package-level Run helpers.
var DefaultRunner = Runner{}

// Runner executes agents using the configured RunConfig.
//
// The zero value is valid.
type Runner struct {
	Config RunConfig
}

// RunConfig configures settings for the entire agent run.
type RunConfig struct {
	// The model to use for the entire run, overriding the model of every agent.
	Model optional.Optional[AgentModel]

	// Resolves model names. Defaults to an OpenAIProvider configured from
	// the environment.
	ModelProvider ModelProvider

	// Non-zero values override the agent-specific model settings.
	ModelSettings modelsettings.ModelSettings

	// Per-agent turn budget. Zero means Agent.MaxTurns, then DefaultMaxTurns.
	MaxTurns uint64

	// Optional object that receives callbacks on lifecycle events.
	Hooks RunHooks

	// Optional session: its history is prepended to the input, and the
	// input and generated items are saved to it after the run.
	Session memory.Session

	// Maximum number of session items to load. Zero or less loads everything.
	SessionHistoryLimit int

	// Optional throttle consulted before every model and tool invocation.
	Limiter Limiter

	// Maximum wait on Limiter. Zero means no timeout beyond the context.
	LimiterTimeout time.Duration

	// How failures are handled. FailFast by default.
	ErrorStrategy ErrorStrategy

	// Re-runs under RetryOnce. Defaults to 1.
	MaxRetries int

	// Strategy applied when retries are exhausted. FailFast by default.
	RetryFallback ErrorStrategy

	// Global input filter applied to handoffs without their own InputFilter.
	HandoffInputFilter HandoffInputFilter

	// Input guardrails run on the initial input.
	InputGuardrails []InputGuardrail

	// Output guardrails run on the final output.
	OutputGuardrails []OutputGuardrail

	// Disables circular handoff detection.
	AllowHandoffCycles bool

	// Optional signal polled between turns.
	Stop *StopSignal

	Logger *slog.Logger

	// Optional caller value, made available to tools and hooks through
	// runcontext.FromContext.
	Context any

	// Optional ID of the previous response, for the OpenAI Responses API.
	PreviousResponseID string
}

// Run executes startingAgent with the given input using DefaultRunner.
func Run(ctx context.Context, startingAgent *Agent, input string) (*RunResult, error) {
	return DefaultRunner.Run(ctx, startingAgent, input)
}

// RunInputs executes startingAgent with the given input items using DefaultRunner.
func RunInputs(ctx context.Context, startingAgent *Agent, input []message.Item) (*RunResult, error) {
	return DefaultRunner.RunInputs(ctx, startingAgent, input)
}

// Run a workflow starting at the given agent. The agent runs in a loop
// until a final output is generated:
//  1. The agent is invoked with the given input.
//  2. If there is a final output, the loop terminates.
//  3. If there's a handoff, the loop runs again with the new agent.
//  4. Else, tool calls (if any) are run and the loop runs again.
//
// Turn budgets apply to each agent and are reset on handoff. Failures are
// routed through the configured ErrorStrategy; unrecovered errors carry a
// RunErrorDetails with the partial progress of the run.
func (r Runner) Run(ctx context.Context, startingAgent *Agent, input string) (*RunResult, error) {
	return r.RunInputs(ctx, startingAgent, []message.Item{message.UserMessage(input)})
}

func (r Runner) RunInputs(ctx context.Context, startingAgent *Agent, input []message.Item) (*RunResult, error) {
	return r.run(ctx, startingAgent, input, nil)
}

// RunStreamed runs the workflow in the background, publishing run items as
// they are generated.
func (r Runner) RunStreamed(ctx context.Context, startingAgent *Agent, input string) (*RunResultStreaming, error) {
	return r.RunInputsStreamed(ctx, startingAgent, []message.Item{message.UserMessage(input)})
}

func (r Runner) RunInputsStreamed(ctx context.Context, startingAgent *Agent, input []message.Item) (*RunResultStreaming, error) {
	if startingAgent == nil {
		return nil, NewUserError("startingAgent must not be nil")
	}

	ctx, cancel := context.WithCancel(ctx)
	streamed := &RunResultStreaming{
		queue:  asyncqueue.New[StreamEvent](),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer cancel()
		result, err := r.run(ctx, startingAgent, input, streamed.queue)
		streamed.finish(result, err)
	}()
	return streamed, nil
}

// runState is the bookkeeping of a single run, shared by its turns.
type runState struct {
	runID         string
	originalInput []message.Item
	generated     []RunItem
	responses     []ModelResponse
	currentAgent  *Agent
	agentStarted  bool
	firstTurn     bool

	inputGuardrailResults  []InputGuardrailResult
	outputGuardrailResults []OutputGuardrailResult
}

func (r Runner) run(ctx context.Context, startingAgent *Agent, input []message.Item, queue *asyncqueue.Queue[StreamEvent]) (*RunResult, error) {
	if startingAgent == nil {
		return nil, NewUserError("startingAgent must not be nil")
	}

	logger := loggerOrNop(r.Config.Logger)

	preparedInput, err := r.prepareInputWithSession(ctx, input)
	if err != nil {
		return nil, err
	}

	state := &runState{
		runID:         uuid.NewString(),
		originalInput: slices.Clone(preparedInput),
		currentAgent:  startingAgent,
		firstTurn:     true,
	}

	wrapper := runcontext.NewWrapper(state.runID, r.Config.Context)
	ctx = runcontext.NewContext(ctx, wrapper)
	parentUsage, _ := usage.FromContext(ctx)
	ctx = usage.NewContext(ctx, wrapper.Usage)

	hooks := r.Config.Hooks
	if hooks == nil {
		hooks = NoOpRunHooks{}
	}

	errorHandler := &ErrorHandler{
		Strategy:      r.Config.ErrorStrategy,
		MaxRetries:    r.Config.MaxRetries,
		RetryFallback: r.Config.RetryFallback,
		Logger:        logger,
	}

	manager := NewConversationManager(
		startingAgent,
		WithMaxTurns(r.Config.MaxTurns),
		WithStopSignal(r.Config.Stop),
		WithErrorHandler(errorHandler),
		WithLogger(logger),
		WithHistory(preparedInput),
	)
	manager.Usage = wrapper.Usage

	t := &runTurns{
		runner:       r,
		state:        state,
		hooks:        hooks,
		tracker:      NewAgentToolUseTracker(),
		handoffState: NewHandoffState(startingAgent.Name),
		impl:         RunImpl().WithLogger(logger),
		logger:       logger,
		queue:        queue,
	}

	logger.Debug("Starting run",
		slog.String("runID", state.runID),
		slog.String("agentName", startingAgent.Name))

	conversation, err := manager.Run(ctx, t.turn)
	if parentUsage != nil {
		parentUsage.Add(wrapper.Usage)
	}
	if err != nil {
		if agentsErr, ok := AsAgentsError(err); ok && agentsErr.RunData != nil {
			agentsErr.RunData.NewItems = slices.Clone(state.generated)
			agentsErr.RunData.RawResponses = slices.Clone(state.responses)
		}
		return nil, err
	}

	newItems := state.generated
	if conversation.Degraded && len(conversation.History) > 0 {
		newItems = append(slices.Clone(newItems), MessageOutputItem{
			Agent:   conversation.LastAgent,
			RawItem: conversation.History[len(conversation.History)-1],
		})
	}

	result := &RunResult{
		Input:                  state.originalInput,
		NewItems:               newItems,
		RawResponses:           state.responses,
		FinalOutput:            conversation.FinalOutput,
		LastAgent:              conversation.LastAgent,
		Usage:                  wrapper.Usage,
		Handled:                conversation.Handled,
		Degraded:               conversation.Degraded,
		InputGuardrailResults:  state.inputGuardrailResults,
		OutputGuardrailResults: state.outputGuardrailResults,
		RunID:                  state.runID,
	}

	if err = r.saveResultToSession(ctx, input, result); err != nil {
		return nil, err
	}
	return result, nil
}

// runTurns implements the TurnFunc of a run.
type runTurns struct {
	runner       Runner
	state        *runState
	hooks        RunHooks
	tracker      *AgentToolUseTracker
	handoffState *HandoffState
	impl         runImpl
	logger       *slog.Logger
	queue        *asyncqueue.Queue[StreamEvent]
}

func (t *runTurns) turn(ctx context.Context, in TurnInput) (*TurnOutcome, error) {
	state := t.state
	agent := in.Agent
	config := t.runner.Config

	if agent != state.currentAgent || !state.agentStarted {
		state.currentAgent = agent
		if err := t.runAgentStartHooks(ctx, agent); err != nil {
			return nil, err
		}
		state.agentStarted = true
	}

	t.logger.Debug("Running agent",
		slog.String("agentName", agent.Name),
		slog.Uint64("turn", in.Turn))

	allTools, err := agent.GetAllTools(ctx)
	if err != nil {
		return nil, err
	}
	handoffs, err := agent.GetHandoffs(ctx)
	if err != nil {
		return nil, err
	}

	if state.firstTurn {
		results, err := t.runner.runInputGuardrails(
			ctx,
			agent,
			slices.Concat(agent.InputGuardrails, config.InputGuardrails),
			slices.Clone(state.originalInput),
		)
		if err != nil {
			return nil, err
		}
		state.inputGuardrailResults = results
		state.firstTurn = false
	}

	response, err := t.getNewResponse(ctx, agent, allTools, handoffs)
	if err != nil {
		return nil, err
	}

	var guard HandoffGuard
	if !config.AllowHandoffCycles {
		guard = t.guardHandoff
	}

	step, err := t.impl.ExecuteStep(ctx, StepParams{
		Agent:              agent,
		AllTools:           allTools,
		Handoffs:           handoffs,
		OriginalInput:      state.originalInput,
		PreStepItems:       state.generated,
		ModelResponse:      *response,
		Hooks:              t.hooks,
		ToolUseTracker:     t.tracker,
		Limiter:            config.Limiter,
		LimiterTimeout:     config.LimiterTimeout,
		HandoffInputFilter: config.HandoffInputFilter,
		HandoffGuard:       guard,
	})
	if err != nil {
		return &TurnOutcome{Usage: response.Usage}, err
	}

	state.responses = append(state.responses, *response)
	state.originalInput = step.OriginalInput
	state.generated = step.GeneratedItems()
	if t.queue != nil {
		t.impl.StreamStepResultToQueue(*step, t.queue)
	}

	outcome := &TurnOutcome{
		Items:           RunItemsToInputItems(step.NewStepItems),
		Usage:           response.Usage,
		HistoryOverride: slices.Concat(step.OriginalInput, RunItemsToInputItems(step.PreStepItems)),
	}

	switch next := step.NextStep.(type) {
	case NextStepFinalOutput:
		results, err := t.runner.runOutputGuardrails(
			ctx,
			slices.Concat(agent.OutputGuardrails, config.OutputGuardrails),
			agent,
			next.Output,
		)
		if err != nil {
			return nil, err
		}
		state.outputGuardrailResults = results
		if err = t.runAgentEndHooks(ctx, agent, next.Output); err != nil {
			return nil, err
		}
		outcome.FinalOutput = next.Output
	case NextStepHandoff:
		outcome.HandoffTo = next.NewAgent
	case NextStepRunAgain:
		outcome.Continue = true
	default:
		// This would be an unrecoverable implementation bug, so a panic is appropriate.
		panic(fmt.Errorf("unexpected NextStep type %T", next))
	}
	return outcome, nil
}

// guardHandoff commits the transfer on the run's HandoffState, rejecting
// circular handoffs.
func (t *runTurns) guardHandoff(_ context.Context, from, to *Agent) error {
	t.handoffState.SetHandoff(to.Name, HandoffPayload{}, "")
	result := t.handoffState.ExecuteHandoff()
	if !result.OK {
		t.logger.Warn("Handoff rejected",
			slog.String("from", from.Name),
			slog.String("to", to.Name),
			slog.String("reason", result.Err.Error()))
		return result.Err
	}
	return nil
}

func (t *runTurns) runAgentStartHooks(ctx context.Context, agent *Agent) error {
	if t.queue != nil {
		t.queue.Put(AgentUpdatedStreamEvent{NewAgent: agent})
	}
	if err := t.hooks.OnAgentStart(ctx, agent); err != nil {
		return fmt.Errorf("RunHooks.OnAgentStart failed: %w", err)
	}
	if agent.Hooks != nil {
		if err := agent.Hooks.OnStart(ctx, agent); err != nil {
			return fmt.Errorf("AgentHooks.OnStart failed: %w", err)
		}
	}
	return nil
}

func (t *runTurns) runAgentEndHooks(ctx context.Context, agent *Agent, output any) error {
	if err := t.hooks.OnAgentEnd(ctx, agent, output); err != nil {
		return fmt.Errorf("RunHooks.OnAgentEnd failed: %w", err)
	}
	if agent.Hooks != nil {
		if err := agent.Hooks.OnEnd(ctx, agent, output); err != nil {
			return fmt.Errorf("AgentHooks.OnEnd failed: %w", err)
		}
	}
	return nil
}

func (t *runTurns) getNewResponse(ctx context.Context, agent *Agent, allTools []Tool, handoffs []Handoff) (*ModelResponse, error) {
	config := t.runner.Config

	model, err := t.runner.getModel(agent)
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	systemPrompt, err := agent.GetSystemPrompt(ctx)
	if err != nil {
		return nil, err
	}

	modelSettings := agent.ModelSettings.Resolve(config.ModelSettings)
	modelSettings = t.impl.MaybeResetToolChoice(agent, t.tracker, modelSettings)

	input := slices.Concat(t.state.originalInput, RunItemsToInputItems(t.state.generated))

	params := ModelResponseParams{
		SystemInstructions: systemPrompt,
		Input:              input,
		ModelSettings:      modelSettings,
		Tools:              allTools,
		OutputType:         agent.OutputType,
		Handoffs:           handoffs,
		PreviousResponseID: config.PreviousResponseID,
	}

	if err = WaitLimiter(ctx, config.Limiter, config.LimiterTimeout, ModelLimiterKey(agent.Name)); err != nil {
		return nil, err
	}
	response, err := model.GetResponse(ctx, params)
	if err != nil {
		return nil, err
	}

	if response.Usage == nil {
		response.Usage = &usage.Usage{Requests: 1}
	} else if response.Usage.Requests == 0 {
		response.Usage.Requests = 1
	}
	return response, nil
}

func (r Runner) getModel(agent *Agent) (Model, error) {
	resolve := func(am AgentModel) (Model, error) {
		if m, ok := am.SafeModel(); ok {
			return m, nil
		}
		name, _ := am.SafeModelName()
		return r.modelProvider().GetModel(name)
	}

	if am, ok := r.Config.Model.Get(); ok {
		return resolve(am)
	}
	if am, ok := agent.Model.Get(); ok {
		return resolve(am)
	}
	return r.modelProvider().GetModel("")
}

func (r Runner) modelProvider() ModelProvider {
	if r.Config.ModelProvider != nil {
		return r.Config.ModelProvider
	}
	return defaultModelProvider()
}

// runInputGuardrails runs the guardrails concurrently. A triggered tripwire
// takes precedence over guardrail failures.
func (Runner) runInputGuardrails(
	ctx context.Context,
	agent *Agent,
	guardrails []InputGuardrail,
	input []message.Item,
) ([]InputGuardrailResult, error) {
	if len(guardrails) == 0 {
		return nil, nil
	}

	tasks := make([]*asynctask.Task[InputGuardrailResult], len(guardrails))
	for i, guardrail := range guardrails {
		tasks[i] = asynctask.CreateTask(ctx, func(ctx context.Context) (InputGuardrailResult, error) {
			result, err := guardrail.Run(ctx, agent, input)
			if err != nil {
				return result, fmt.Errorf("failed to run input guardrail %s: %w", guardrail.Name, err)
			}
			return result, nil
		})
	}

	results := asynctask.AwaitAll(tasks)
	guardrailResults := make([]InputGuardrailResult, len(results))
	guardrailErrors := make([]error, len(results))
	for i, result := range results {
		if result.Error == nil && result.Value.Output.TripwireTriggered {
			return nil, NewInputGuardrailTripwireTriggeredError(result.Value)
		}
		guardrailResults[i], guardrailErrors[i] = result.Value, result.Error
	}
	if err := errors.Join(guardrailErrors...); err != nil {
		return nil, err
	}
	return guardrailResults, nil
}

func (Runner) runOutputGuardrails(
	ctx context.Context,
	guardrails []OutputGuardrail,
	agent *Agent,
	agentOutput any,
) ([]OutputGuardrailResult, error) {
	if len(guardrails) == 0 {
		return nil, nil
	}

	tasks := make([]*asynctask.Task[OutputGuardrailResult], len(guardrails))
	for i, guardrail := range guardrails {
		tasks[i] = asynctask.CreateTask(ctx, func(ctx context.Context) (OutputGuardrailResult, error) {
			result, err := guardrail.Run(ctx, agent, agentOutput)
			if err != nil {
				return result, fmt.Errorf("failed to run output guardrail %s: %w", guardrail.Name, err)
			}
			return result, nil
		})
	}

	results := asynctask.AwaitAll(tasks)
	guardrailResults := make([]OutputGuardrailResult, len(results))
	guardrailErrors := make([]error, len(results))
	for i, result := range results {
		if result.Error == nil && result.Value.Output.TripwireTriggered {
			return nil, NewOutputGuardrailTripwireTriggeredError(result.Value.Guardrail.Name, result.Value)
		}
		guardrailResults[i], guardrailErrors[i] = result.Value, result.Error
	}
	if err := errors.Join(guardrailErrors...); err != nil {
		return nil, err
	}
	return guardrailResults, nil
}

// prepareInputWithSession prepends the session history to the input.
func (r Runner) prepareInputWithSession(ctx context.Context, input []message.Item) ([]message.Item, error) {
	session := r.Config.Session
	if session == nil {
		return input, nil
	}

	history, err := session.GetItems(ctx, r.Config.SessionHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get session items: %w", err)
	}
	return slices.Concat(history, input), nil
}

// saveResultToSession saves the new input and the generated items.
func (r Runner) saveResultToSession(ctx context.Context, input []message.Item, result *RunResult) error {
	session := r.Config.Session
	if session == nil {
		return nil
	}

	itemsToSave := slices.Concat(input, RunItemsToInputItems(result.NewItems))
	if err := session.AddItems(ctx, itemsToSave); err != nil {
		return fmt.Errorf("failed to add session items: %w", err)
	}
	return nil
}
