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
	"errors"
	"testing"

	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputType_PlainText(t *testing.T) {
	ot := OutputType[string]()
	assert.True(t, ot.IsPlainText())
	assert.Equal(t, "string", ot.Name())

	_, err := ot.JSONSchema()
	assert.ErrorIs(t, err, ErrUser)
	_, err = ot.ValidateJSON(t.Context(), `"x"`)
	assert.ErrorIs(t, err, ErrUser)
}

func TestOutputType_Struct(t *testing.T) {
	ot := OutputType[weatherReport]()
	assert.False(t, ot.IsPlainText())
	assert.True(t, ot.IsStrictJSONSchema())

	schema, err := ot.JSONSchema()
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])

	v, err := ot.ValidateJSON(t.Context(), `{"city": "Rome", "temperature": 30}`)
	require.NoError(t, err)
	assert.Equal(t, weatherReport{City: "Rome", Temperature: 30}, v)

	_, err = ot.ValidateJSON(t.Context(), `{"city": 1}`)
	assert.ErrorIs(t, err, ErrModelBehavior)
	assert.ErrorContains(t, err, "JSON validation failed")

	_, err = ot.ValidateJSON(t.Context(), `not json`)
	assert.ErrorIs(t, err, ErrModelBehavior)
}

func TestOutputType_WrappedList(t *testing.T) {
	ot := OutputType[[]string]()

	schema, err := ot.JSONSchema()
	require.NoError(t, err)
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "response")

	v, err := ot.ValidateJSON(t.Context(), `{"response": ["a", "b"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)
}

func TestSafeOutputType_NonStrict(t *testing.T) {
	ot, err := SafeOutputType[weatherReport](OutputTypeOpts{StrictJSONSchema: false})
	require.NoError(t, err)
	assert.False(t, ot.IsStrictJSONSchema())

	_, err = ot.ValidateJSON(t.Context(), `{"city": "Rome", "temperature": 1, "extra": true}`)
	assert.NoError(t, err)
}

func TestItemHelpers(t *testing.T) {
	h := ItemHelpers()
	agent := &Agent{Name: "a"}

	text, err := h.ExtractLastContent(getTextMessage("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	refusal := message.Item{
		Type:    message.TypeMessage,
		Role:    message.RoleAssistant,
		Content: []message.Content{{Type: message.ContentRefusal, Refusal: "no"}},
	}
	text, err = h.ExtractLastContent(refusal)
	require.NoError(t, err)
	assert.Equal(t, "no", text)

	_, ok := h.ExtractLastText(refusal)
	assert.False(t, ok)
	text, ok = h.ExtractLastText(getTextMessage("hi"))
	assert.True(t, ok)
	assert.Equal(t, "hi", text)

	text, err = h.ExtractLastContent(getFunctionToolCall("f", "{}", "1"))
	require.NoError(t, err)
	assert.Empty(t, text)

	items := []RunItem{
		MessageOutputItem{Agent: agent, RawItem: getTextMessage("a")},
		ToolCallItem{Agent: agent, RawItem: getFunctionToolCall("f", "{}", "1")},
		MessageOutputItem{Agent: agent, RawItem: getTextMessage("b")},
	}
	assert.Equal(t, "ab", h.TextMessageOutputs(items))
	assert.Len(t, RunItemsToInputItems(items), 3)

	out := h.ToolCallOutputItem(getFunctionToolCall("f", "{}", "7"), map[string]int{"n": 1})
	assert.Equal(t, "7", out.CallID)
	assert.Equal(t, `{"n":1}`, out.Output)
}

func TestStringifyOutput(t *testing.T) {
	assert.Equal(t, "", stringifyOutput(nil))
	assert.Equal(t, "s", stringifyOutput("s"))
	assert.Equal(t, "boom", stringifyOutput(errors.New("boom")))
	assert.Equal(t, "42", stringifyOutput(42))
	assert.Equal(t, `["x"]`, stringifyOutput([]string{"x"}))
}
