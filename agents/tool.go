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
	"fmt"

	"github.com/nlpodyssey/agentflow/computer"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/types/optional"
)

// Names under which the hosted tools are exposed to the model.
const (
	ComputerToolName   = "computer_use_preview"
	LocalShellToolName = "local_shell"
)

// A Tool that can be used in an agent.
type Tool interface {
	ToolName() string
	isTool()
}

// FunctionTool is a tool that wraps a function.
type FunctionTool struct {
	// The name of the tool, as shown to the LLM. Generally the name of the function.
	Name string

	// A description of the tool, as shown to the LLM.
	Description string

	// The JSON schema for the tool's parameters.
	ParamsJSONSchema map[string]any

	// A function that invokes the tool with the arguments from the LLM, as a
	// JSON string. Malformed arguments are replaced with "{}" before the call.
	//
	// A returned error does not fail the run: it is converted by
	// FailureErrorFunction into an output sent back to the LLM.
	OnInvokeTool func(ctx context.Context, arguments string) (any, error)

	// Whether the JSON schema is in strict mode.
	// Defaults to true if omitted.
	StrictJSONSchema optional.Optional[bool]

	// Optional flag reporting whether the tool is enabled.
	// It can be either a boolean or a function which allows you to dynamically
	// enable/disable a tool based on your context/state.
	// Default value, if nil: true.
	IsEnabled FunctionToolEnabler

	// Optional function producing the output sent to the LLM when the tool
	// returns an error. Defaults to DefaultToolErrorFunction.
	FailureErrorFunction ToolErrorFunction
}

func (t FunctionTool) ToolName() string { return t.Name }
func (FunctionTool) isTool()            {}

type FunctionToolEnabler interface {
	IsEnabled(ctx context.Context, agent *Agent) (bool, error)
}

type FunctionToolEnabledFlag bool

func (f FunctionToolEnabledFlag) IsEnabled(context.Context, *Agent) (bool, error) {
	return bool(f), nil
}

type FunctionToolEnablerFunc func(ctx context.Context, agent *Agent) (bool, error)

func (f FunctionToolEnablerFunc) IsEnabled(ctx context.Context, agent *Agent) (bool, error) {
	return f(ctx, agent)
}

// ToolErrorFunction converts a tool failure into the output sent to the LLM.
// Returning an error aborts the current step.
type ToolErrorFunction func(ctx context.Context, err error) (any, error)

// DefaultToolErrorFunction renders the failure as "Error running tool <name>: <error>".
func DefaultToolErrorFunction(ctx context.Context, err error) (any, error) {
	return ToolErrorOutput(ctx, err), nil
}

// ToolErrorOutput is the error-prefixed text reported for a failed tool.
func ToolErrorOutput(ctx context.Context, err error) string {
	name := "unknown"
	if data := ToolDataFromContext(ctx); data != nil {
		name = data.ToolName
	}
	return fmt.Sprintf("Error running tool %s: %v", name, err)
}

type FunctionToolResult struct {
	// The tool that was run.
	Tool FunctionTool

	// The output of the tool.
	Output any

	// The run item that was produced as a result of the tool call.
	RunItem RunItem
}

// ComputerTool lets the LLM control a computer.
type ComputerTool struct {
	// The computer implementation, which describes the environment and
	// dimensions of the computer, as well as implements the computer actions
	// like click, screenshot, etc.
	Computer computer.Computer

	// Optional callback to acknowledge computer tool safety checks.
	// Without it, pending safety checks are acknowledged implicitly.
	OnSafetyCheck func(context.Context, ComputerToolSafetyCheckData) (bool, error)
}

func (ComputerTool) ToolName() string { return ComputerToolName }
func (ComputerTool) isTool()          {}

// ComputerToolSafetyCheckData provides information about a computer tool safety check.
type ComputerToolSafetyCheckData struct {
	// The agent performing the computer action.
	Agent *Agent

	// The computer tool call.
	ToolCall message.Item

	// The pending safety check to acknowledge.
	SafetyCheck message.SafetyCheck
}

// LocalShellTool lets the LLM execute commands on a shell.
type LocalShellTool struct {
	// A function that executes a command on a shell.
	Executor LocalShellExecutor
}

func (LocalShellTool) ToolName() string { return LocalShellToolName }
func (LocalShellTool) isTool()          {}

type LocalShellExecutor = func(context.Context, LocalShellCommandRequest) (string, error)

// LocalShellCommandRequest is a request to execute a command on a shell.
type LocalShellCommandRequest struct {
	// The local shell call, whose Action holds the command and its options.
	Data message.Item
}
