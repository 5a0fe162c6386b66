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
	"slices"

	"github.com/nlpodyssey/agentflow/types/optional"
)

// ToolUseBehavior lets you configure how tool use is handled.
// See Agent.ToolUseBehavior.
//
// The set of behaviors is closed: RunLLMAgain, StopOnFirstTool, StopAtTools
// and ToolsToFinalOutputFunction.
type ToolUseBehavior interface {
	ToolsToFinalOutput(context.Context, []FunctionToolResult) (ToolsToFinalOutputResult, error)
	toolUseBehavior()
}

type ToolsToFinalOutputResult struct {
	// Whether this is the final output.
	// If false, the LLM will run again and receive the tool call output.
	IsFinalOutput bool

	// The final output. Can be missing if IsFinalOutput is false.
	FinalOutput optional.Optional[any]
}

var notFinalOutput = ToolsToFinalOutputResult{}

// RunLLMAgain returns a ToolUseBehavior that ignores any FunctionToolResults
// and always returns a non-final output result. With this behavior, the LLM
// receives the tool results and gets to respond.
func RunLLMAgain() ToolUseBehavior { return runLLMAgain{} }

type runLLMAgain struct{}

func (runLLMAgain) toolUseBehavior() {}

func (runLLMAgain) ToolsToFinalOutput(context.Context, []FunctionToolResult) (ToolsToFinalOutputResult, error) {
	return notFinalOutput, nil
}

// StopOnFirstTool returns a ToolUseBehavior which uses the output of the first
// tool call as the final output. The LLM does not process the result of the
// tool call.
func StopOnFirstTool() ToolUseBehavior { return stopOnFirstTool{} }

type stopOnFirstTool struct{}

func (stopOnFirstTool) toolUseBehavior() {}

func (stopOnFirstTool) ToolsToFinalOutput(_ context.Context, toolResults []FunctionToolResult) (ToolsToFinalOutputResult, error) {
	if len(toolResults) == 0 {
		return notFinalOutput, nil
	}
	return ToolsToFinalOutputResult{
		IsFinalOutput: true,
		FinalOutput:   optional.Value(toolResults[0].Output),
	}, nil
}

// StopAtTools returns a ToolUseBehavior which causes the agent to stop running
// if any of the named tools is called. The final output is the output of the
// first matching tool call, in call order.
func StopAtTools(toolNames ...string) ToolUseBehavior {
	return stopAtTools{names: slices.Clone(toolNames)}
}

type stopAtTools struct {
	names []string
}

func (stopAtTools) toolUseBehavior() {}

func (sat stopAtTools) ToolsToFinalOutput(_ context.Context, toolResults []FunctionToolResult) (ToolsToFinalOutputResult, error) {
	for _, toolResult := range toolResults {
		if slices.Contains(sat.names, toolResult.Tool.Name) {
			return ToolsToFinalOutputResult{
				IsFinalOutput: true,
				FinalOutput:   optional.Value(toolResult.Output),
			}, nil
		}
	}
	return notFinalOutput, nil
}

// ToolsToFinalOutputFunction lets you implement a custom ToolUseBehavior.
type ToolsToFinalOutputFunction func(context.Context, []FunctionToolResult) (ToolsToFinalOutputResult, error)

func (ToolsToFinalOutputFunction) toolUseBehavior() {}

func (f ToolsToFinalOutputFunction) ToolsToFinalOutput(ctx context.Context, toolResults []FunctionToolResult) (ToolsToFinalOutputResult, error) {
	return f(ctx, toolResults)
}

// ParseToolUseBehavior resolves a declarative behavior name, as found in
// configuration files. toolNames is only used by "stop_at_tools".
func ParseToolUseBehavior(name string, toolNames []string) (ToolUseBehavior, error) {
	switch name {
	case "", "run_llm_again":
		return RunLLMAgain(), nil
	case "stop_on_first_tool":
		return StopOnFirstTool(), nil
	case "stop_at_tools":
		if len(toolNames) == 0 {
			return nil, NewUserError("stop_at_tools requires at least one tool name")
		}
		return StopAtTools(toolNames...), nil
	default:
		return nil, UserErrorf("unknown tool use behavior %q", name)
	}
}

// toolUseBehaviorOrDefault returns RunLLMAgain for a nil behavior.
func toolUseBehaviorOrDefault(b ToolUseBehavior) ToolUseBehavior {
	if b == nil {
		return RunLLMAgain()
	}
	return b
}
