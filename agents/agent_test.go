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

package agents_test

import (
	"testing"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/agentstesting"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentAsTool(t *testing.T) {
	innerModel := agentstesting.NewFakeModel(&agentstesting.FakeModelTurnOutput{
		Value: []message.Item{agentstesting.GetTextMessage("bonjour")},
	})
	translator := agents.New("French Translator").WithModelInstance(innerModel)

	tool := translator.AsTool(agents.AgentAsToolParams{ToolDescription: "Translate to French"})
	assert.Equal(t, "french_translator", tool.Name)
	assert.Equal(t, "Translate to French", tool.Description)

	out, err := tool.OnInvokeTool(t.Context(), `{"input": "hello"}`)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", out)

	input := innerModel.LastTurnArgs().Input
	require.Len(t, input, 1)
	assert.Equal(t, "hello", input[0].Text())
}

func TestAgentAsTool_CustomOutputExtractor(t *testing.T) {
	innerModel := agentstesting.NewFakeModel(&agentstesting.FakeModelTurnOutput{
		Value: []message.Item{agentstesting.GetTextMessage("raw")},
	})
	inner := agents.New("inner").WithModelInstance(innerModel)
	tool := inner.AsTool(agents.AgentAsToolParams{
		ToolName: "ask_inner",
		CustomOutputExtractor: func(r agents.RunResult) (string, error) {
			return "extracted: " + r.FinalOutput.(string), nil
		},
	})

	out, err := tool.OnInvokeTool(t.Context(), `{"input": "q"}`)
	require.NoError(t, err)
	assert.Equal(t, "extracted: raw", out)
}

func TestAgentAsTool_InsideOuterRun(t *testing.T) {
	innerModel := agentstesting.NewFakeModel(&agentstesting.FakeModelTurnOutput{
		Value: []message.Item{agentstesting.GetTextMessage("42")},
	})
	inner := agents.New("calculator").WithModelInstance(innerModel)

	outerModel := agentstesting.NewFakeModel(nil)
	outerModel.AddMultipleTurnOutputs([]agentstesting.FakeModelTurnOutput{
		{Value: []message.Item{agentstesting.GetFunctionToolCall("calculator", `{"input": "6*7"}`)}},
		{Value: []message.Item{agentstesting.GetTextMessage("the answer is 42")}},
	})
	outer := agents.New("outer").
		WithModelInstance(outerModel).
		WithTools(inner.AsTool(agents.AgentAsToolParams{}))

	result, err := agents.Run(t.Context(), outer, "what is 6*7?")
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", result.FinalOutput)

	var toolOutput *agents.ToolCallOutputItem
	for _, item := range result.NewItems {
		if o, ok := item.(agents.ToolCallOutputItem); ok {
			toolOutput = &o
		}
	}
	require.NotNil(t, toolOutput)
	assert.Equal(t, "42", toolOutput.Output)
	assert.Equal(t, 2, outerModel.Calls())
	assert.Equal(t, 1, innerModel.Calls())
}
