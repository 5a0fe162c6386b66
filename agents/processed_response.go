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
	"github.com/nlpodyssey/agentflow/types/message"
)

// ProcessedResponse is the categorization of one model response into the
// actions the step has to perform.
type ProcessedResponse struct {
	NewItems        []RunItem
	Handoffs        []ToolRunHandoff
	Functions       []ToolRunFunction
	ComputerActions []ToolRunComputerAction
	LocalShellCalls []ToolRunLocalShellCall

	// Calls already executed by the model provider. They are recorded but
	// nothing runs locally.
	HostedToolCalls []message.Item

	// Names of all tools used, including hosted tools.
	ToolsUsed []string
}

// HasToolsToRun reports whether any local tool or side effect is pending.
// Handoffs are not included.
func (pr ProcessedResponse) HasToolsToRun() bool {
	return len(pr.Functions) > 0 || len(pr.ComputerActions) > 0 || len(pr.LocalShellCalls) > 0
}

// ToolCallCount returns the number of tool calls found in the response,
// whatever their category.
func (pr ProcessedResponse) ToolCallCount() int {
	return len(pr.Handoffs) + len(pr.Functions) + len(pr.ComputerActions) +
		len(pr.LocalShellCalls) + len(pr.HostedToolCalls)
}

type ToolRunHandoff struct {
	Handoff  Handoff
	ToolCall message.Item
}

type ToolRunFunction struct {
	ToolCall     message.Item
	FunctionTool FunctionTool
}

type ToolRunComputerAction struct {
	ToolCall     message.Item
	ComputerTool ComputerTool
}

type ToolRunLocalShellCall struct {
	ToolCall       message.Item
	LocalShellTool LocalShellTool
}
