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
	"testing"

	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTextMessage(content string) message.Item {
	return message.Item{
		Type:    message.TypeMessage,
		ID:      "1",
		Role:    message.RoleAssistant,
		Status:  "completed",
		Content: []message.Content{{Type: message.ContentOutputText, Text: content}},
	}
}

func getFunctionTool(name, returnValue string) FunctionTool {
	return FunctionTool{
		Name:             name,
		ParamsJSONSchema: emptyObjectSchema(),
		OnInvokeTool: func(context.Context, string) (any, error) {
			return returnValue, nil
		},
	}
}

func getFunctionToolCall(name, arguments, callID string) message.Item {
	return message.Item{
		Type:      message.TypeFunctionCall,
		ID:        "1",
		CallID:    callID,
		Name:      name,
		Arguments: arguments,
	}
}

type getExecuteResultParams struct {
	agent         *Agent
	response      ModelResponse
	originalInput []message.Item
	generated     []RunItem
	hooks         RunHooks
	tracker       *AgentToolUseTracker
	guard         HandoffGuard
	limiter       Limiter
}

func getExecuteResult(t *testing.T, params getExecuteResultParams) *SingleStepResult {
	t.Helper()
	result, err := executeStep(t, params)
	require.NoError(t, err)
	return result
}

func executeStep(t *testing.T, params getExecuteResultParams) (*SingleStepResult, error) {
	t.Helper()
	ctx := t.Context()

	handoffs, err := params.agent.GetHandoffs(ctx)
	require.NoError(t, err)
	allTools, err := params.agent.GetAllTools(ctx)
	require.NoError(t, err)

	originalInput := params.originalInput
	if originalInput == nil {
		originalInput = []message.Item{message.UserMessage("hello")}
	}
	if params.response.Usage == nil {
		params.response.Usage = usage.NewUsage()
	}

	return RunImpl().ExecuteStep(ctx, StepParams{
		Agent:          params.agent,
		AllTools:       allTools,
		Handoffs:       handoffs,
		OriginalInput:  originalInput,
		PreStepItems:   params.generated,
		ModelResponse:  params.response,
		Hooks:          params.hooks,
		ToolUseTracker: params.tracker,
		HandoffGuard:   params.guard,
		Limiter:        params.limiter,
	})
}

func assertItemIsMessage(t *testing.T, item RunItem, agent *Agent, text string) {
	t.Helper()
	require.IsType(t, MessageOutputItem{}, item)
	m := item.(MessageOutputItem)
	assert.Same(t, agent, m.Agent)
	assert.Equal(t, text, m.RawItem.Text())
}

func assertItemIsFunctionToolCall(t *testing.T, item RunItem, name, arguments string) {
	t.Helper()
	require.IsType(t, ToolCallItem{}, item)
	raw := item.(ToolCallItem).RawItem
	assert.Equal(t, message.TypeFunctionCall, raw.Type)
	assert.Equal(t, name, raw.Name)
	assert.Equal(t, arguments, raw.Arguments)
}

func assertItemIsFunctionToolCallOutput(t *testing.T, item RunItem, callID, output string) {
	t.Helper()
	require.IsType(t, ToolCallOutputItem{}, item)
	raw := item.(ToolCallOutputItem).RawItem
	assert.Equal(t, message.TypeFunctionCallOutput, raw.Type)
	assert.Equal(t, callID, raw.CallID)
	assert.Equal(t, output, raw.Output)
}
