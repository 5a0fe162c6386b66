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
	"strings"
	"testing"

	"github.com/nlpodyssey/agentflow/modelsettings"
	"github.com/nlpodyssey/agentflow/types/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherArgs struct {
	City string `json:"city"`
	Unit string `json:"unit" jsonschema:"enum=celsius,enum=fahrenheit"`
}

type weatherReport struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
}

func TestNewFunctionTool(t *testing.T) {
	tool := NewFunctionTool("get_weather", "Get the weather", func(_ context.Context, args weatherArgs) (weatherReport, error) {
		return weatherReport{City: args.City, Temperature: 21.5}, nil
	})

	assert.Equal(t, "get_weather", tool.ToolName())
	assert.Equal(t, "Get the weather", tool.Description)
	assert.True(t, tool.StrictJSONSchema.ValueOrFallback(false))

	schema := tool.ParamsJSONSchema
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "unit")

	out, err := tool.OnInvokeTool(t.Context(), `{"city": "Rome", "unit": "celsius"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"city": "Rome", "temperature": 21.5}`, out.(string))
}

func TestNewFunctionTool_StringResultIsNotEncoded(t *testing.T) {
	tool := NewFunctionTool("echo", "", func(_ context.Context, args weatherArgs) (string, error) {
		return strings.ToUpper(args.City), nil
	})
	out, err := tool.OnInvokeTool(t.Context(), `{"city": "oslo", "unit": "celsius"}`)
	require.NoError(t, err)
	assert.Equal(t, "OSLO", out)
}

func TestNewFunctionTool_Errors(t *testing.T) {
	failure := errors.New("service down")
	tool := NewFunctionTool("fail", "", func(context.Context, weatherArgs) (string, error) {
		return "", failure
	})

	_, err := tool.OnInvokeTool(t.Context(), `{"city": "x", "unit": "celsius"}`)
	assert.ErrorIs(t, err, failure)

	_, err = tool.OnInvokeTool(t.Context(), `not json`)
	assert.ErrorContains(t, err, "failed to parse arguments")
}

func TestToolErrorOutput(t *testing.T) {
	ctx := ContextWithToolData(t.Context(), "calc", getFunctionToolCall("calc", "{}", "c1"))
	assert.Equal(t, "Error running tool calc: overflow", ToolErrorOutput(ctx, errors.New("overflow")))
	assert.Equal(t, "Error running tool unknown: overflow", ToolErrorOutput(t.Context(), errors.New("overflow")))

	data := ToolDataFromContext(ctx)
	require.NotNil(t, data)
	assert.Equal(t, "c1", data.ToolCallID)
}

func TestToolUseBehaviors(t *testing.T) {
	ctx := t.Context()
	results := []FunctionToolResult{
		{Tool: FunctionTool{Name: "a"}, Output: "out_a"},
		{Tool: FunctionTool{Name: "b"}, Output: "out_b"},
	}

	check, err := RunLLMAgain().ToolsToFinalOutput(ctx, results)
	require.NoError(t, err)
	assert.False(t, check.IsFinalOutput)

	check, err = StopOnFirstTool().ToolsToFinalOutput(ctx, results)
	require.NoError(t, err)
	assert.True(t, check.IsFinalOutput)
	assert.Equal(t, "out_a", check.FinalOutput.Value)

	check, err = StopAtTools("b", "c").ToolsToFinalOutput(ctx, results)
	require.NoError(t, err)
	assert.True(t, check.IsFinalOutput)
	assert.Equal(t, "out_b", check.FinalOutput.Value)

	check, err = StopAtTools("c").ToolsToFinalOutput(ctx, results)
	require.NoError(t, err)
	assert.False(t, check.IsFinalOutput)

	custom := ToolsToFinalOutputFunction(func(_ context.Context, rs []FunctionToolResult) (ToolsToFinalOutputResult, error) {
		return ToolsToFinalOutputResult{IsFinalOutput: true, FinalOutput: optional.Value[any](len(rs))}, nil
	})
	check, err = custom.ToolsToFinalOutput(ctx, results)
	require.NoError(t, err)
	assert.Equal(t, 2, check.FinalOutput.Value)
}

func TestParseToolUseBehavior(t *testing.T) {
	b, err := ParseToolUseBehavior("", nil)
	require.NoError(t, err)
	assert.Equal(t, RunLLMAgain(), b)

	b, err = ParseToolUseBehavior("stop_on_first_tool", nil)
	require.NoError(t, err)
	assert.Equal(t, StopOnFirstTool(), b)

	b, err = ParseToolUseBehavior("stop_at_tools", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, StopAtTools("x"), b)

	_, err = ParseToolUseBehavior("stop_at_tools", nil)
	assert.ErrorIs(t, err, ErrUser)

	_, err = ParseToolUseBehavior("whatever", nil)
	assert.ErrorIs(t, err, ErrUser)
}

func TestAgentToolUseTracker(t *testing.T) {
	a := &Agent{Name: "a"}
	b := &Agent{Name: "b"}
	tracker := NewAgentToolUseTracker()

	assert.False(t, tracker.HasUsedTools(a))
	tracker.AddToolUse(a, nil)
	assert.False(t, tracker.HasUsedTools(a))

	tracker.AddToolUse(a, []string{"x", "y"})
	tracker.AddToolUse(b, []string{"z"})
	tracker.AddToolUse(a, []string{"y", "w"})

	assert.True(t, tracker.HasUsedTools(a))
	assert.Equal(t, []string{"x", "y", "w"}, tracker.ToolsUsed(a))
	assert.Equal(t, []*Agent{a, b}, tracker.Agents())

	used := tracker.ToolsUsed(a)
	used[0] = "mutated"
	assert.Equal(t, "x", tracker.ToolsUsed(a)[0])
}

func TestMaybeResetToolChoice(t *testing.T) {
	agent := &Agent{Name: "a"}
	tracker := NewAgentToolUseTracker()
	settings := agent.ModelSettings
	settings.ToolChoice = modelsettings.ToolChoiceRequired

	got := RunImpl().MaybeResetToolChoice(agent, tracker, settings)
	assert.Equal(t, modelsettings.ToolChoiceRequired, got.ToolChoice)

	tracker.AddToolUse(agent, []string{"t"})
	got = RunImpl().MaybeResetToolChoice(agent, tracker, settings)
	assert.Nil(t, got.ToolChoice)

	agent.ResetToolChoice = optional.Value(false)
	got = RunImpl().MaybeResetToolChoice(agent, tracker, settings)
	assert.Equal(t, modelsettings.ToolChoiceRequired, got.ToolChoice)

	assert.Equal(t, modelsettings.ToolChoiceRequired, RunImpl().MaybeResetToolChoice(&Agent{}, nil, settings).ToolChoice)
}
