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

	"github.com/nlpodyssey/agentflow/asyncqueue"
	"github.com/nlpodyssey/agentflow/asynctask"
	"github.com/nlpodyssey/agentflow/computer"
	"github.com/nlpodyssey/agentflow/modelsettings"
	"github.com/nlpodyssey/agentflow/types/message"
)

// MultipleHandoffsMessage is the output of every handoff call beyond the
// first one in a single model response.
const MultipleHandoffsMessage = "multiple handoffs detected, ignoring this one"

type NextStep interface {
	isNextStep()
}

type NextStepHandoff struct {
	NewAgent *Agent
}

func (NextStepHandoff) isNextStep() {}

type NextStepFinalOutput struct {
	Output any
}

func (NextStepFinalOutput) isNextStep() {}

type NextStepRunAgain struct{}

func (NextStepRunAgain) isNextStep() {}

type SingleStepResult struct {
	// The input items, i.e. the items before the run started. Handoff input
	// filters may have changed them.
	OriginalInput []message.Item

	// The model response for the current step.
	ModelResponse ModelResponse

	// Items generated before the current step.
	PreStepItems []RunItem

	// Items generated during this current step.
	NewStepItems []RunItem

	// The next step to take.
	NextStep NextStep
}

// GeneratedItems returns the items generated during the agent run (i.e.
// everything generated after OriginalInput).
func (result SingleStepResult) GeneratedItems() []RunItem {
	return slices.Concat(result.PreStepItems, result.NewStepItems)
}

// HandoffGuard is consulted before a handoff is committed. A non-nil error
// aborts the step.
type HandoffGuard func(ctx context.Context, from, to *Agent) error

// StepParams holds everything needed to turn one model response into a
// SingleStepResult.
type StepParams struct {
	Agent         *Agent
	AllTools      []Tool
	Handoffs      []Handoff
	OriginalInput []message.Item
	PreStepItems  []RunItem
	ModelResponse ModelResponse

	// Optional. NoOpRunHooks when nil.
	Hooks RunHooks

	// Optional. Tool usage is not recorded when nil.
	ToolUseTracker *AgentToolUseTracker

	// Optional throttle consulted before each tool invocation.
	Limiter        Limiter
	LimiterTimeout time.Duration

	// Applied when the selected Handoff has no InputFilter of its own.
	HandoffInputFilter HandoffInputFilter

	HandoffGuard HandoffGuard
}

type runImpl struct {
	logger *slog.Logger
}

// RunImpl gives access to the single step machinery used by the Runner and
// the orchestrator.
func RunImpl() runImpl { return runImpl{logger: NopLogger()} }

// WithLogger returns a copy that logs to l.
func (ri runImpl) WithLogger(l *slog.Logger) runImpl {
	ri.logger = loggerOrNop(l)
	return ri
}

// ExecuteStep categorizes the model response, records tool usage and runs
// tools and side effects, deciding the next step.
func (ri runImpl) ExecuteStep(ctx context.Context, params StepParams) (*SingleStepResult, error) {
	if params.Agent == nil {
		return nil, NewUserError("step agent must not be nil")
	}
	processed, err := ri.ProcessModelResponse(ctx, params.Agent, params.AllTools, params.ModelResponse, params.Handoffs)
	if err != nil {
		return nil, err
	}
	if params.ToolUseTracker != nil {
		params.ToolUseTracker.AddToolUse(params.Agent, processed.ToolsUsed)
	}
	return ri.ExecuteToolsAndSideEffects(ctx, params, *processed)
}

// ProcessModelResponse categorizes every item of the response. Function calls
// matching an enabled handoff become handoffs; other calls must match a tool
// of the agent.
func (ri runImpl) ProcessModelResponse(
	_ context.Context,
	agent *Agent,
	allTools []Tool,
	response ModelResponse,
	handoffs []Handoff,
) (*ProcessedResponse, error) {
	handoffMap := make(map[string]Handoff, len(handoffs))
	for _, h := range handoffs {
		handoffMap[h.ToolName] = h
	}

	functionMap := make(map[string]FunctionTool)
	var (
		computerTool   *ComputerTool
		localShellTool *LocalShellTool
	)
	for _, tool := range allTools {
		switch t := tool.(type) {
		case FunctionTool:
			functionMap[t.Name] = t
		case ComputerTool:
			computerTool = &t
		case LocalShellTool:
			localShellTool = &t
		}
	}

	var pr ProcessedResponse
	for _, output := range response.Output {
		switch {
		case output.Type == message.TypeMessage:
			pr.NewItems = append(pr.NewItems, MessageOutputItem{Agent: agent, RawItem: output})

		case output.Type == message.TypeReasoning:
			pr.NewItems = append(pr.NewItems, ReasoningItem{Agent: agent, RawItem: output})

		case output.IsHostedToolCall():
			pr.NewItems = append(pr.NewItems, ToolCallItem{Agent: agent, RawItem: output})
			pr.HostedToolCalls = append(pr.HostedToolCalls, output)
			pr.ToolsUsed = append(pr.ToolsUsed, output.HostedToolName())

		case output.Type == message.TypeComputerCall:
			pr.NewItems = append(pr.NewItems, ToolCallItem{Agent: agent, RawItem: output})
			pr.ToolsUsed = append(pr.ToolsUsed, ComputerTool{}.ToolName())
			if computerTool == nil {
				return nil, ModelBehaviorErrorf("model produced computer action without a computer tool (agent %s)", agent.Name)
			}
			pr.ComputerActions = append(pr.ComputerActions, ToolRunComputerAction{
				ToolCall:     output,
				ComputerTool: *computerTool,
			})

		case output.Type == message.TypeLocalShellCall:
			pr.NewItems = append(pr.NewItems, ToolCallItem{Agent: agent, RawItem: output})
			pr.ToolsUsed = append(pr.ToolsUsed, LocalShellTool{}.ToolName())
			if localShellTool == nil {
				return nil, ModelBehaviorErrorf("model produced local shell call without a local shell tool (agent %s)", agent.Name)
			}
			pr.LocalShellCalls = append(pr.LocalShellCalls, ToolRunLocalShellCall{
				ToolCall:       output,
				LocalShellTool: *localShellTool,
			})

		case output.Type == message.TypeFunctionCall:
			pr.ToolsUsed = append(pr.ToolsUsed, output.Name)

			if handoff, ok := handoffMap[output.Name]; ok {
				pr.NewItems = append(pr.NewItems, HandoffCallItem{Agent: agent, RawItem: output})
				pr.Handoffs = append(pr.Handoffs, ToolRunHandoff{Handoff: handoff, ToolCall: output})
				continue
			}

			functionTool, ok := functionMap[output.Name]
			if !ok {
				return nil, ModelBehaviorErrorf("tool %s not found in agent %s", output.Name, agent.Name)
			}
			pr.NewItems = append(pr.NewItems, ToolCallItem{Agent: agent, RawItem: output})
			pr.Functions = append(pr.Functions, ToolRunFunction{ToolCall: output, FunctionTool: functionTool})

		default:
			ri.logger.Warn("Unexpected output item type, ignoring",
				slog.String("agentName", agent.Name),
				slog.String("type", string(output.Type)))
		}
	}
	return &pr, nil
}

// ExecuteToolsAndSideEffects runs function tools concurrently, then computer
// actions and shell calls sequentially, then resolves handoffs and final output.
func (ri runImpl) ExecuteToolsAndSideEffects(
	ctx context.Context,
	params StepParams,
	processed ProcessedResponse,
) (*SingleStepResult, error) {
	agent := params.Agent
	if params.Hooks == nil {
		params.Hooks = NoOpRunHooks{}
	}

	preStepItems := slices.Clone(params.PreStepItems)
	newStepItems := slices.Clone(processed.NewItems)

	functionResults, err := ri.ExecuteFunctionToolCalls(ctx, params, processed.Functions)
	if err != nil {
		return nil, err
	}
	for _, result := range functionResults {
		newStepItems = append(newStepItems, result.RunItem)
	}

	computerResults, err := ri.ExecuteComputerActions(ctx, params, processed.ComputerActions)
	if err != nil {
		return nil, err
	}
	newStepItems = append(newStepItems, computerResults...)

	shellResults, err := ri.ExecuteLocalShellCalls(ctx, params, processed.LocalShellCalls)
	if err != nil {
		return nil, err
	}
	newStepItems = append(newStepItems, shellResults...)

	// Handoffs win over any final output candidate.
	if len(processed.Handoffs) > 0 {
		return ri.ExecuteHandoffs(ctx, params, preStepItems, newStepItems, processed.Handoffs)
	}

	step := func(next NextStep) *SingleStepResult {
		return &SingleStepResult{
			OriginalInput: params.OriginalInput,
			ModelResponse: params.ModelResponse,
			PreStepItems:  preStepItems,
			NewStepItems:  newStepItems,
			NextStep:      next,
		}
	}

	if len(functionResults) > 0 {
		check, err := toolUseBehaviorOrDefault(agent.ToolUseBehavior).ToolsToFinalOutput(ctx, functionResults)
		if err != nil {
			return nil, err
		}
		if check.IsFinalOutput {
			return step(NextStepFinalOutput{Output: check.FinalOutput.ValueOrFallback(nil)}), nil
		}
	}

	if !processed.HasToolsToRun() {
		if text, ok := lastMessageText(processed.NewItems); ok {
			if agent.OutputType != nil && !agent.OutputType.IsPlainText() {
				output, err := agent.OutputType.ValidateJSON(ctx, text)
				if err != nil {
					return nil, err
				}
				return step(NextStepFinalOutput{Output: output}), nil
			}
			// An empty reply is terminal too.
			return step(NextStepFinalOutput{Output: text}), nil
		}
		if len(processed.NewItems) == 0 {
			return step(NextStepFinalOutput{Output: ""}), nil
		}
	}

	return step(NextStepRunAgain{}), nil
}

func lastMessageText(items []RunItem) (string, bool) {
	for _, item := range slices.Backward(items) {
		if m, ok := item.(MessageOutputItem); ok {
			return ItemHelpers().ExtractLastText(m.RawItem)
		}
	}
	return "", false
}

// ExecuteFunctionToolCalls runs every call in its own task and joins the
// results in call order, regardless of completion order. Tool failures are
// turned into outputs; only limiter timeouts, hook failures and failing
// error functions abort the step.
func (ri runImpl) ExecuteFunctionToolCalls(
	ctx context.Context,
	params StepParams,
	toolRuns []ToolRunFunction,
) ([]FunctionToolResult, error) {
	if len(toolRuns) == 0 {
		return nil, nil
	}

	tasks := make([]*asynctask.Task[FunctionToolResult], len(toolRuns))
	for i, toolRun := range toolRuns {
		tasks[i] = asynctask.CreateTask(ctx, func(ctx context.Context) (FunctionToolResult, error) {
			return ri.runFunctionTool(ctx, params, toolRun)
		})
	}

	results := asynctask.AwaitAll(tasks)
	out := make([]FunctionToolResult, len(results))
	errs := make([]error, len(results))
	for i, result := range results {
		out[i], errs[i] = result.Value, result.Error
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func (ri runImpl) runFunctionTool(ctx context.Context, params StepParams, toolRun ToolRunFunction) (FunctionToolResult, error) {
	agent := params.Agent
	tool := toolRun.FunctionTool
	call := toolRun.ToolCall

	ctx = ContextWithToolData(ctx, tool.Name, call)

	if err := WaitLimiter(ctx, params.Limiter, params.LimiterTimeout, ToolLimiterKey(tool.Name)); err != nil {
		return FunctionToolResult{}, err
	}
	if err := runToolStartHooks(ctx, params.Hooks, agent, tool); err != nil {
		return FunctionToolResult{}, err
	}

	arguments := normalizeArguments(call.Arguments)
	if arguments != call.Arguments {
		ri.logger.Warn("Malformed tool arguments, using empty arguments",
			slog.String("toolName", tool.Name),
			slog.String("callID", call.CallID),
			slog.String("arguments", call.Arguments))
	}

	output, err := invokeFunctionTool(ctx, tool, arguments)
	if err != nil {
		ri.logger.Warn("Tool execution failed",
			slog.String("agentName", agent.Name),
			slog.String("toolName", tool.Name),
			slog.String("error", err.Error()))

		errorFunction := tool.FailureErrorFunction
		if errorFunction == nil {
			errorFunction = DefaultToolErrorFunction
		}
		output, err = errorFunction(ctx, err)
		if err != nil {
			return FunctionToolResult{}, NewToolExecutionError(tool.Name, err)
		}
	}

	if err := runToolEndHooks(ctx, params.Hooks, agent, tool, output); err != nil {
		return FunctionToolResult{}, err
	}

	return FunctionToolResult{
		Tool:   tool,
		Output: output,
		RunItem: ToolCallOutputItem{
			Agent:   agent,
			RawItem: ItemHelpers().ToolCallOutputItem(call, output),
			Output:  output,
		},
	}, nil
}

func invokeFunctionTool(ctx context.Context, tool FunctionTool, arguments string) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	if tool.OnInvokeTool == nil {
		return nil, fmt.Errorf("tool %s has no implementation", tool.Name)
	}
	return tool.OnInvokeTool(ctx, arguments)
}

// ExecuteComputerActions performs the actions one at a time, in response order.
func (ri runImpl) ExecuteComputerActions(
	ctx context.Context,
	params StepParams,
	actions []ToolRunComputerAction,
) ([]RunItem, error) {
	results := make([]RunItem, 0, len(actions))
	for _, action := range actions {
		item, err := ri.runComputerAction(ctx, params, action)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, nil
}

func (ri runImpl) runComputerAction(ctx context.Context, params StepParams, action ToolRunComputerAction) (RunItem, error) {
	agent := params.Agent
	tool := action.ComputerTool
	call := action.ToolCall
	ctx = ContextWithToolData(ctx, tool.ToolName(), call)

	if err := WaitLimiter(ctx, params.Limiter, params.LimiterTimeout, ToolLimiterKey(tool.ToolName())); err != nil {
		return nil, err
	}
	if err := runToolStartHooks(ctx, params.Hooks, agent, tool); err != nil {
		return nil, err
	}

	var output string
	if err := ri.acknowledgeSafetyChecks(ctx, agent, tool, call); err != nil {
		output = ToolErrorOutput(ctx, err)
	} else if call.Action == nil || tool.Computer == nil {
		output = ToolErrorOutput(ctx, errors.New("missing computer action or implementation"))
	} else if screenshot, err := computer.Perform(ctx, tool.Computer, *call.Action); err != nil {
		ri.logger.Warn("Computer action failed",
			slog.String("agentName", agent.Name),
			slog.String("error", err.Error()))
		output = ToolErrorOutput(ctx, err)
	} else {
		output = "data:image/png;base64," + screenshot
	}

	if err := runToolEndHooks(ctx, params.Hooks, agent, tool, output); err != nil {
		return nil, err
	}

	return ToolCallOutputItem{
		Agent:   agent,
		RawItem: message.ComputerCallOutput(call.CallID, output),
		Output:  output,
	}, nil
}

func (ri runImpl) acknowledgeSafetyChecks(ctx context.Context, agent *Agent, tool ComputerTool, call message.Item) error {
	if tool.OnSafetyCheck == nil {
		return nil
	}
	for _, check := range call.PendingSafetyChecks {
		ack, err := tool.OnSafetyCheck(ctx, ComputerToolSafetyCheckData{
			Agent:       agent,
			ToolCall:    call,
			SafetyCheck: check,
		})
		if err != nil {
			return fmt.Errorf("safety check %s failed: %w", check.ID, err)
		}
		if !ack {
			return fmt.Errorf("safety check %s (%s) was not acknowledged", check.ID, check.Code)
		}
	}
	return nil
}

// ExecuteLocalShellCalls runs the calls one at a time, in response order.
func (ri runImpl) ExecuteLocalShellCalls(
	ctx context.Context,
	params StepParams,
	calls []ToolRunLocalShellCall,
) ([]RunItem, error) {
	results := make([]RunItem, 0, len(calls))
	for _, call := range calls {
		item, err := ri.runLocalShellCall(ctx, params, call)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, nil
}

func (ri runImpl) runLocalShellCall(ctx context.Context, params StepParams, toolRun ToolRunLocalShellCall) (RunItem, error) {
	agent := params.Agent
	tool := toolRun.LocalShellTool
	call := toolRun.ToolCall
	ctx = ContextWithToolData(ctx, tool.ToolName(), call)

	if err := WaitLimiter(ctx, params.Limiter, params.LimiterTimeout, ToolLimiterKey(tool.ToolName())); err != nil {
		return nil, err
	}
	if err := runToolStartHooks(ctx, params.Hooks, agent, tool); err != nil {
		return nil, err
	}

	var output string
	if tool.Executor == nil {
		output = ToolErrorOutput(ctx, errors.New("no local shell executor configured"))
	} else if result, err := tool.Executor(ctx, LocalShellCommandRequest{Data: call}); err != nil {
		ri.logger.Warn("Local shell call failed",
			slog.String("agentName", agent.Name),
			slog.String("error", err.Error()))
		output = ToolErrorOutput(ctx, err)
	} else {
		output = result
	}

	if err := runToolEndHooks(ctx, params.Hooks, agent, tool, output); err != nil {
		return nil, err
	}

	return ToolCallOutputItem{
		Agent:   agent,
		RawItem: message.LocalShellCallOutput(call.CallID, output),
		Output:  output,
	}, nil
}

// ExecuteHandoffs honors the first handoff of the step. Every other handoff
// call is answered with MultipleHandoffsMessage.
func (ri runImpl) ExecuteHandoffs(
	ctx context.Context,
	params StepParams,
	preStepItems []RunItem,
	newStepItems []RunItem,
	runHandoffs []ToolRunHandoff,
) (*SingleStepResult, error) {
	agent := params.Agent
	actualHandoff := runHandoffs[0]

	if len(runHandoffs) > 1 {
		ri.logger.Warn("Multiple handoffs detected, honoring the first one",
			slog.String("agentName", agent.Name),
			slog.String("handoff", actualHandoff.Handoff.ToolName),
			slog.Int("ignored", len(runHandoffs)-1))
		for _, ignored := range runHandoffs[1:] {
			newStepItems = append(newStepItems, ToolCallOutputItem{
				Agent:   agent,
				RawItem: ItemHelpers().ToolCallOutputItem(ignored.ToolCall, MultipleHandoffsMessage),
				Output:  MultipleHandoffsMessage,
			})
		}
	}

	handoff := actualHandoff.Handoff
	if handoff.OnInvokeHandoff == nil {
		return nil, UserErrorf("handoff %s has no implementation", handoff.ToolName)
	}
	newAgent, err := handoff.OnInvokeHandoff(ctx, actualHandoff.ToolCall.Arguments)
	if err != nil {
		return nil, err
	}
	if newAgent == nil {
		return nil, UserErrorf("handoff %s returned no agent", handoff.ToolName)
	}

	if params.HandoffGuard != nil {
		if err := params.HandoffGuard(ctx, agent, newAgent); err != nil {
			return nil, err
		}
	}

	transferMessage := handoff.GetTransferMessage(newAgent)
	newStepItems = append(newStepItems, HandoffOutputItem{
		Agent:       agent,
		RawItem:     ItemHelpers().ToolCallOutputItem(actualHandoff.ToolCall, transferMessage),
		SourceAgent: agent,
		TargetAgent: newAgent,
	})

	hooks := params.Hooks
	if hooks == nil {
		hooks = NoOpRunHooks{}
	}
	if err := hooks.OnHandoff(ctx, agent, newAgent); err != nil {
		return nil, fmt.Errorf("RunHooks.OnHandoff failed: %w", err)
	}
	if newAgent.Hooks != nil {
		if err := newAgent.Hooks.OnHandoff(ctx, newAgent, agent); err != nil {
			return nil, fmt.Errorf("AgentHooks.OnHandoff failed: %w", err)
		}
	}

	originalInput := params.OriginalInput
	inputFilter := handoff.InputFilter
	if inputFilter == nil {
		inputFilter = params.HandoffInputFilter
	}
	if inputFilter != nil {
		ri.logger.Debug("Filtering handoff inputs", slog.String("handoff", handoff.ToolName))
		filtered, err := inputFilter(ctx, HandoffInputData{
			InputHistory:    slices.Clone(originalInput),
			PreHandoffItems: slices.Clone(preStepItems),
			NewItems:        slices.Clone(newStepItems),
		})
		if err != nil {
			return nil, fmt.Errorf("handoff input filter failed: %w", err)
		}
		originalInput = filtered.InputHistory
		preStepItems = filtered.PreHandoffItems
		newStepItems = filtered.NewItems
	}

	return &SingleStepResult{
		OriginalInput: originalInput,
		ModelResponse: params.ModelResponse,
		PreStepItems:  preStepItems,
		NewStepItems:  newStepItems,
		NextStep:      NextStepHandoff{NewAgent: newAgent},
	}, nil
}

// MaybeResetToolChoice clears a forced tool choice once the agent has used
// tools, unless the agent opted out with ResetToolChoice.
func (runImpl) MaybeResetToolChoice(
	agent *Agent,
	toolUseTracker *AgentToolUseTracker,
	modelSettings modelsettings.ModelSettings,
) modelsettings.ModelSettings {
	if agent.ResetToolChoice.ValueOrFallback(true) && toolUseTracker != nil && toolUseTracker.HasUsedTools(agent) {
		modelSettings.ToolChoice = nil
	}
	return modelSettings
}

// StreamStepResultToQueue pushes one event per new step item.
func (runImpl) StreamStepResultToQueue(stepResult SingleStepResult, queue *asyncqueue.Queue[StreamEvent]) {
	for _, item := range stepResult.NewStepItems {
		if event, ok := newRunItemStreamEvent(item); ok {
			queue.Put(event)
		}
	}
}

func runToolStartHooks(ctx context.Context, hooks RunHooks, agent *Agent, tool Tool) error {
	if hooks != nil {
		if err := hooks.OnToolStart(ctx, agent, tool); err != nil {
			return fmt.Errorf("RunHooks.OnToolStart failed: %w", err)
		}
	}
	if agent.Hooks != nil {
		if err := agent.Hooks.OnToolStart(ctx, agent, tool); err != nil {
			return fmt.Errorf("AgentHooks.OnToolStart failed: %w", err)
		}
	}
	return nil
}

func runToolEndHooks(ctx context.Context, hooks RunHooks, agent *Agent, tool Tool, output any) error {
	if hooks != nil {
		if err := hooks.OnToolEnd(ctx, agent, tool, output); err != nil {
			return fmt.Errorf("RunHooks.OnToolEnd failed: %w", err)
		}
	}
	if agent.Hooks != nil {
		if err := agent.Hooks.OnToolEnd(ctx, agent, tool, output); err != nil {
			return fmt.Errorf("AgentHooks.OnToolEnd failed: %w", err)
		}
	}
	return nil
}

// WaitLimiter blocks on limiter for at most timeout. Running out of time is
// reported as an ErrorKindTimeout error.
func WaitLimiter(ctx context.Context, limiter Limiter, timeout time.Duration, key string) error {
	if limiter == nil {
		return nil
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := limiter.Wait(waitCtx, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return NewTimeoutError(fmt.Sprintf("rate limit wait for %s timed out after %s", key, timeout), err)
	default:
		return fmt.Errorf("rate limit wait for %s failed: %w", key, err)
	}
}
