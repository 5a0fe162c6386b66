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

package handoff_filters_test

import (
	"testing"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/agents/extensions/handoff_filters"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakeAgent = &agents.Agent{Name: "fake_agent"}

func messageRunItem(content string) agents.MessageOutputItem {
	return agents.MessageOutputItem{Agent: fakeAgent, RawItem: message.AssistantMessage(content)}
}

func toolCallRunItem() agents.ToolCallItem {
	return agents.ToolCallItem{Agent: fakeAgent, RawItem: message.FunctionCall("1", "lookup", "{}")}
}

func toolOutputRunItem(content string) agents.ToolCallOutputItem {
	return agents.ToolCallOutputItem{
		Agent:   fakeAgent,
		RawItem: message.FunctionCallOutput("1", content),
		Output:  content,
	}
}

func handoffOutputRunItem() agents.HandoffOutputItem {
	return agents.HandoffOutputItem{
		Agent:       fakeAgent,
		RawItem:     message.FunctionCallOutput("2", `{"assistant":"fake_agent"}`),
		SourceAgent: fakeAgent,
		TargetAgent: fakeAgent,
	}
}

func TestRemoveAllTools_EmptyData(t *testing.T) {
	data := agents.HandoffInputData{}
	filtered, err := handoff_filters.RemoveAllTools(t.Context(), data)
	require.NoError(t, err)
	assert.Equal(t, data, filtered)
}

func TestRemoveAllTools_MessagesOnly(t *testing.T) {
	data := agents.HandoffInputData{
		InputHistory:    []message.Item{message.UserMessage("Hello")},
		PreHandoffItems: []agents.RunItem{messageRunItem("123")},
		NewItems:        []agents.RunItem{messageRunItem("World")},
	}
	filtered, err := handoff_filters.RemoveAllTools(t.Context(), data)
	require.NoError(t, err)
	assert.Equal(t, data, filtered)
}

func TestRemoveAllTools_DropsToolItems(t *testing.T) {
	data := agents.HandoffInputData{
		InputHistory: []message.Item{
			message.UserMessage("Hello"),
			message.FunctionCall("1", "lookup", "{}"),
			message.FunctionCallOutput("1", "found"),
			message.AssistantMessage("World"),
		},
		PreHandoffItems: []agents.RunItem{
			messageRunItem("123"),
			toolCallRunItem(),
			toolOutputRunItem("abc"),
		},
		NewItems: []agents.RunItem{
			messageRunItem("456"),
			handoffOutputRunItem(),
		},
	}
	filtered, err := handoff_filters.RemoveAllTools(t.Context(), data)
	require.NoError(t, err)

	require.Len(t, filtered.InputHistory, 2)
	assert.Equal(t, "Hello", filtered.InputHistory[0].Text())
	assert.Equal(t, "World", filtered.InputHistory[1].Text())
	require.Len(t, filtered.PreHandoffItems, 1)
	assert.Equal(t, "123", filtered.PreHandoffItems[0].ToInputItem().Text())
	require.Len(t, filtered.NewItems, 1)
	assert.Equal(t, "456", filtered.NewItems[0].ToInputItem().Text())
}

func TestKeepLastMessages(t *testing.T) {
	data := agents.HandoffInputData{
		InputHistory: []message.Item{
			message.UserMessage("one"),
			message.FunctionCall("1", "lookup", "{}"),
			message.FunctionCallOutput("1", "found"),
			message.AssistantMessage("two"),
		},
		NewItems: []agents.RunItem{messageRunItem("new")},
	}

	filtered, err := handoff_filters.KeepLastMessages(2)(t.Context(), data)
	require.NoError(t, err)
	require.Len(t, filtered.InputHistory, 1)
	assert.Equal(t, "two", filtered.InputHistory[0].Text())
	assert.Len(t, filtered.NewItems, 1)

	filtered, err = handoff_filters.KeepLastMessages(10)(t.Context(), data)
	require.NoError(t, err)
	assert.Len(t, filtered.InputHistory, 4)

	filtered, err = handoff_filters.KeepLastMessages(0)(t.Context(), data)
	require.NoError(t, err)
	assert.Empty(t, filtered.InputHistory)
}
