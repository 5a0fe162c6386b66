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
	"sync"

	"github.com/nlpodyssey/agentflow/modelsettings"
	"github.com/nlpodyssey/agentflow/types/optional"
	"github.com/nlpodyssey/agentflow/util/transforms"
)

// An Agent is a model configured with instructions, tools, guardrails, handoffs and more.
//
// Instructions are the "system prompt" of the agent. HandoffDescription is a
// human-readable description of the agent, used when the agent is the target
// of a handoff or is exposed as a tool.
type Agent struct {
	// The name of the agent. Names are expected to be unique within a run,
	// since handoff cycle detection works on names.
	Name string

	// Optional instructions, used as the "system prompt" when this agent is invoked.
	Instructions InstructionsGetter

	// Optional description used when the agent is a handoff target, so that
	// a model knows what it does and when to invoke it.
	HandoffDescription string

	// Handoffs are sub-agents that the agent can delegate to.
	// To use Agent objects as handoffs, add them to AgentHandoffs.
	Handoffs []Handoff

	// Agents converted to Handoff objects with default settings before use.
	AgentHandoffs []*Agent

	// The model to use when invoking the LLM. When missing, the run
	// configuration decides.
	Model optional.Optional[AgentModel]

	// Model-specific tuning parameters (e.g. temperature, top_p).
	ModelSettings modelsettings.ModelSettings

	// A list of tools that the agent can use.
	Tools []Tool

	// Checks that run before the agent generates a response. Only run when
	// the agent is the first agent of the run.
	InputGuardrails []InputGuardrail

	// Checks that run on the final output of the agent.
	OutputGuardrails []OutputGuardrail

	// Optional description of a structured output. If missing, the output is
	// a plain string.
	OutputType OutputTypeInterface

	// Optional callbacks on lifecycle events for this agent.
	Hooks AgentHooks

	// How function tool results are handled:
	//   - RunLLMAgain (default): tools run, then the LLM receives the results and responds.
	//   - StopOnFirstTool: the output of the first tool call is the final output.
	//   - StopAtTools: the run stops if any of the named tools is called.
	//   - ToolsToFinalOutputFunction: a custom decision over the tool results.
	//
	// Hosted tools are always processed by the LLM.
	ToolUseBehavior ToolUseBehavior

	// Whether to reset a forced tool choice once a tool has been called.
	// Defaults to true, which prevents infinite loops of tool usage.
	ResetToolChoice optional.Optional[bool]

	// Per-agent turn budget. Zero means the run default.
	MaxTurns uint64
}

type AgentAsToolParams struct {
	// Optional name of the tool. If not provided, the agent's name will be used.
	ToolName string

	// Optional description of the tool, which should indicate what it does and when to use it.
	ToolDescription string

	// Optional runner used to run the agent. DefaultRunner when nil.
	Runner *Runner

	// Optional function that extracts the output from the agent.
	// If not provided, the text of the agent's messages is used.
	CustomOutputExtractor func(RunResult) (string, error)
}

// AsTool transforms this agent into a tool, callable by other agents.
//
// Unlike a handoff, the agent receives generated input instead of the
// conversation history, and the conversation is continued by the calling agent.
func (a *Agent) AsTool(params AgentAsToolParams) FunctionTool {
	name := params.ToolName
	if name == "" {
		name = transforms.TransformStringFunctionStyle(a.Name)
	}
	runner := params.Runner
	if runner == nil {
		runner = &DefaultRunner
	}

	type argsType struct {
		Input string `json:"input"`
	}

	runAgent := func(ctx context.Context, args argsType) (string, error) {
		output, err := runner.Run(ctx, a, args.Input)
		if err != nil {
			return "", fmt.Errorf("failed to run agent %s as tool: %w", a.Name, err)
		}
		if params.CustomOutputExtractor != nil {
			return params.CustomOutputExtractor(*output)
		}
		return ItemHelpers().TextMessageOutputs(output.NewItems), nil
	}

	return NewFunctionTool(name, params.ToolDescription, runAgent)
}

// GetSystemPrompt returns the system prompt for the agent.
func (a *Agent) GetSystemPrompt(ctx context.Context) (optional.Optional[string], error) {
	if a.Instructions == nil {
		return optional.None[string](), nil
	}
	v, err := a.Instructions.GetInstructions(ctx, a)
	if err != nil {
		return optional.None[string](), err
	}
	return optional.Value(v), nil
}

// GetAllTools returns the tools enabled for the current run, in declaration
// order. Enablement checks run concurrently.
func (a *Agent) GetAllTools(ctx context.Context) ([]Tool, error) {
	enabled, err := checkEnabled(ctx, a, a.Tools, func(tool Tool) FunctionToolEnabler {
		if ft, ok := tool.(FunctionTool); ok {
			return ft.IsEnabled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var enabledTools []Tool
	for i, tool := range a.Tools {
		if enabled[i] {
			enabledTools = append(enabledTools, tool)
		}
	}
	return enabledTools, nil
}

// GetHandoffs returns the enabled handoffs of the agent: explicit Handoffs
// first, followed by the converted AgentHandoffs.
func (a *Agent) GetHandoffs(ctx context.Context) ([]Handoff, error) {
	handoffs := make([]Handoff, 0, len(a.Handoffs)+len(a.AgentHandoffs))
	handoffs = append(handoffs, a.Handoffs...)
	for _, target := range a.AgentHandoffs {
		h, err := SafeHandoffFromAgent(HandoffFromAgentParams{Agent: target})
		if err != nil {
			return nil, fmt.Errorf("failed to make handoff to agent %q: %w", target.Name, err)
		}
		handoffs = append(handoffs, *h)
	}

	enabled, err := checkEnabled(ctx, a, handoffs, func(h Handoff) FunctionToolEnabler {
		return h.IsEnabled
	})
	if err != nil {
		return nil, err
	}

	var enabledHandoffs []Handoff
	for i, h := range handoffs {
		if enabled[i] {
			enabledHandoffs = append(enabledHandoffs, h)
		}
	}
	return enabledHandoffs, nil
}

func checkEnabled[T any](ctx context.Context, agent *Agent, values []T, enablerOf func(T) FunctionToolEnabler) ([]bool, error) {
	results := make([]bool, len(values))
	errs := make([]error, len(values))

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(len(values))

	for i, v := range values {
		go func() {
			defer wg.Done()

			enabler := enablerOf(v)
			if enabler == nil {
				results[i] = true
				return
			}
			results[i], errs[i] = enabler.IsEnabled(childCtx, agent)
			if errs[i] != nil {
				cancel()
			}
		}()
	}

	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

// InstructionsGetter is implemented by objects that can provide instructions to an Agent.
type InstructionsGetter interface {
	GetInstructions(context.Context, *Agent) (string, error)
}

// InstructionsStr provides a constant string as instructions.
type InstructionsStr string

func (s InstructionsStr) GetInstructions(context.Context, *Agent) (string, error) {
	return string(s), nil
}

// InstructionsFunc dynamically generates instructions for an Agent.
type InstructionsFunc func(context.Context, *Agent) (string, error)

func (fn InstructionsFunc) GetInstructions(ctx context.Context, a *Agent) (string, error) {
	return fn(ctx, a)
}

// AgentModel is either a model name, resolved through a ModelProvider, or a
// Model instance.
type AgentModel struct {
	name  string
	model Model
}

func NewAgentModelName(modelName string) AgentModel {
	return AgentModel{name: modelName}
}

func NewAgentModel(m Model) AgentModel {
	if m == nil {
		panic("Model cannot be nil")
	}
	return AgentModel{model: m}
}

func (am AgentModel) SafeModelName() (string, bool) {
	return am.name, am.model == nil && am.name != ""
}

func (am AgentModel) SafeModel() (Model, bool) {
	return am.model, am.model != nil
}
