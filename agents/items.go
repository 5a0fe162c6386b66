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
	"encoding/json"
	"fmt"

	"github.com/nlpodyssey/agentflow/types/message"
)

// RunItem is an item generated by an agent during a run.
type RunItem interface {
	isRunItem()

	// ToInputItem converts the item into the form used as model input and
	// stored in conversation history.
	ToInputItem() message.Item
}

// MessageOutputItem represents a message from the LLM.
type MessageOutputItem struct {
	Agent   *Agent
	RawItem message.Item
}

func (MessageOutputItem) isRunItem()                     {}
func (item MessageOutputItem) ToInputItem() message.Item { return item.RawItem }

// ToolCallItem represents a tool call, e.g. a function call or a computer action.
// Calls to hosted tools are recorded here too, even though nothing runs locally.
type ToolCallItem struct {
	Agent   *Agent
	RawItem message.Item
}

func (ToolCallItem) isRunItem()                     {}
func (item ToolCallItem) ToInputItem() message.Item { return item.RawItem }

// ToolCallOutputItem represents the output of a tool call.
type ToolCallOutputItem struct {
	Agent   *Agent
	RawItem message.Item

	// The output of the tool call, before it was stringified.
	Output any
}

func (ToolCallOutputItem) isRunItem()                     {}
func (item ToolCallOutputItem) ToInputItem() message.Item { return item.RawItem }

// HandoffCallItem represents a tool call for a handoff from one agent to another.
type HandoffCallItem struct {
	Agent   *Agent
	RawItem message.Item
}

func (HandoffCallItem) isRunItem()                     {}
func (item HandoffCallItem) ToInputItem() message.Item { return item.RawItem }

// HandoffOutputItem represents the output of a handoff.
type HandoffOutputItem struct {
	Agent       *Agent
	RawItem     message.Item
	SourceAgent *Agent
	TargetAgent *Agent
}

func (HandoffOutputItem) isRunItem()                     {}
func (item HandoffOutputItem) ToInputItem() message.Item { return item.RawItem }

// ReasoningItem represents a reasoning item.
type ReasoningItem struct {
	Agent   *Agent
	RawItem message.Item
}

func (ReasoningItem) isRunItem()                     {}
func (item ReasoningItem) ToInputItem() message.Item { return item.RawItem }

// RunItemsToInputItems converts run items to history items, preserving order.
func RunItemsToInputItems(items []RunItem) []message.Item {
	out := make([]message.Item, len(items))
	for i, item := range items {
		out[i] = item.ToInputItem()
	}
	return out
}

type itemHelpers struct{}

func ItemHelpers() itemHelpers { return itemHelpers{} }

// ExtractLastContent returns the last text or refusal content of a message.
func (itemHelpers) ExtractLastContent(item message.Item) (string, error) {
	if item.Type != message.TypeMessage {
		return "", nil
	}
	if len(item.Content) == 0 {
		return "", nil
	}
	last := item.Content[len(item.Content)-1]
	switch last.Type {
	case message.ContentOutputText, message.ContentInputText:
		return last.Text, nil
	case message.ContentRefusal:
		if last.Refusal != "" {
			return last.Refusal, nil
		}
		return last.Text, nil
	default:
		return "", ModelBehaviorErrorf("unexpected content type %q", last.Type)
	}
}

// ExtractLastText returns the last text content of a message, ignoring
// refusals. It reports false when no text content is present.
func (itemHelpers) ExtractLastText(item message.Item) (string, bool) {
	if item.Type != message.TypeMessage || len(item.Content) == 0 {
		return "", false
	}
	last := item.Content[len(item.Content)-1]
	if last.Type != message.ContentOutputText {
		return "", false
	}
	return last.Text, true
}

// TextMessageOutputs concatenates the text of all message outputs.
func (h itemHelpers) TextMessageOutputs(items []RunItem) string {
	var text string
	for _, item := range items {
		if m, ok := item.(MessageOutputItem); ok {
			text += m.RawItem.Text()
		}
	}
	return text
}

// ToolCallOutputItem creates the output item for a function tool call.
func (itemHelpers) ToolCallOutputItem(toolCall message.Item, output any) message.Item {
	return message.FunctionCallOutput(toolCall.CallID, stringifyOutput(output))
}

func stringifyOutput(output any) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	}
	if b, err := json.Marshal(output); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", output)
}
