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

// StreamEvent is an event emitted by a streamed run.
type StreamEvent interface {
	isStreamEvent()
}

// RunItemStreamEvent wraps a RunItem generated while processing a model
// response: messages, tool calls, tool outputs, handoffs, etc.
type RunItemStreamEvent struct {
	Name RunItemStreamEventName
	Item RunItem
}

func (RunItemStreamEvent) isStreamEvent() {}

type RunItemStreamEventName string

const (
	StreamEventMessageOutputCreated RunItemStreamEventName = "message_output_created"
	StreamEventHandoffRequested     RunItemStreamEventName = "handoff_requested"
	StreamEventHandoffOccurred      RunItemStreamEventName = "handoff_occurred"
	StreamEventToolCalled           RunItemStreamEventName = "tool_called"
	StreamEventToolOutput           RunItemStreamEventName = "tool_output"
	StreamEventReasoningItemCreated RunItemStreamEventName = "reasoning_item_created"
)

func newRunItemStreamEvent(item RunItem) (RunItemStreamEvent, bool) {
	var name RunItemStreamEventName
	switch item.(type) {
	case MessageOutputItem:
		name = StreamEventMessageOutputCreated
	case HandoffCallItem:
		name = StreamEventHandoffRequested
	case HandoffOutputItem:
		name = StreamEventHandoffOccurred
	case ToolCallItem:
		name = StreamEventToolCalled
	case ToolCallOutputItem:
		name = StreamEventToolOutput
	case ReasoningItem:
		name = StreamEventReasoningItemCreated
	default:
		return RunItemStreamEvent{}, false
	}
	return RunItemStreamEvent{Name: name, Item: item}, true
}

// AgentUpdatedStreamEvent notifies that a new agent is running.
type AgentUpdatedStreamEvent struct {
	NewAgent *Agent
}

func (AgentUpdatedStreamEvent) isStreamEvent() {}
