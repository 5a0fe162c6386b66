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

package openaitypes

import (
	"encoding/json"
	"testing"

	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/openai/openai-go/v2/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOutput(t *testing.T, raw string) responses.ResponseOutputItemUnion {
	t.Helper()
	var out responses.ResponseOutputItemUnion
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestItemsFromOutputs(t *testing.T) {
	outputs := []responses.ResponseOutputItemUnion{
		decodeOutput(t, `{
			"type": "message", "id": "msg_1", "status": "completed", "role": "assistant",
			"content": [{"type": "output_text", "text": "Hi", "annotations": []}]
		}`),
		decodeOutput(t, `{
			"type": "function_call", "id": "fc_1", "call_id": "call_1",
			"name": "get_weather", "arguments": "{\"city\":\"Rome\"}"
		}`),
		decodeOutput(t, `{
			"type": "computer_call", "id": "cc_1", "call_id": "call_2", "status": "completed",
			"action": {"type": "click", "x": 10, "y": 20, "button": "left"},
			"pending_safety_checks": []
		}`),
	}

	items, err := ItemsFromOutputs(outputs)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, message.TypeMessage, items[0].Type)
	assert.Equal(t, "Hi", items[0].Text())

	assert.Equal(t, message.TypeFunctionCall, items[1].Type)
	assert.Equal(t, "call_1", items[1].CallID)
	assert.Equal(t, `{"city":"Rome"}`, items[1].Arguments)

	require.NotNil(t, items[2].Action)
	assert.Equal(t, "click", items[2].Action.Type)
	assert.EqualValues(t, 10, items[2].Action.X)
}

func TestInputParams(t *testing.T) {
	items := []message.Item{
		message.UserMessage("hello"),
		message.AssistantMessage("hi there"),
		message.FunctionCallOutput("call_1", "42"),
		message.ComputerCallOutput("call_2", "data:image/png;base64,AAA"),
	}

	params, err := InputParams(items)
	require.NoError(t, err)
	require.Len(t, params, 4)

	assert.Equal(t, map[string]any{"type": "message", "role": "user", "content": "hello"}, params[0])
	assert.Equal(t, map[string]any{"type": "message", "role": "assistant", "content": "hi there"}, params[1])
	assert.Equal(t, map[string]any{"type": "function_call_output", "call_id": "call_1", "output": "42"}, params[2])
	assert.Equal(t, map[string]any{
		"type":      "computer_screenshot",
		"image_url": "data:image/png;base64,AAA",
	}, params[3]["output"])
}

func TestFunctionToolParam(t *testing.T) {
	schema := map[string]any{"type": "object", "properties": map[string]any{}}
	tool := FunctionToolParam("lookup", "", schema, true)
	require.NotNil(t, tool.OfFunction)
	assert.Equal(t, "lookup", tool.OfFunction.Name)
	assert.False(t, tool.OfFunction.Description.Valid())
	assert.True(t, tool.OfFunction.Strict.Value)
}
