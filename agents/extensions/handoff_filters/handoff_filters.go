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

// Package handoff_filters contains ready-made agents.HandoffInputFilter
// implementations.
package handoff_filters

import (
	"context"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/types/message"
)

var (
	_ agents.HandoffInputFilter = RemoveAllTools
	_ agents.HandoffInputFilter = KeepLastMessages(1)
)

// RemoveAllTools drops every tool call, tool output and handoff item, so the
// next agent only sees the conversational messages.
func RemoveAllTools(_ context.Context, data agents.HandoffInputData) (agents.HandoffInputData, error) {
	return agents.HandoffInputData{
		InputHistory:    removeToolItems(data.InputHistory),
		PreHandoffItems: removeToolRunItems(data.PreHandoffItems),
		NewItems:        removeToolRunItems(data.NewItems),
	}, nil
}

// KeepLastMessages returns a filter that trims the input history to its last
// n messages. Items generated during the run are left untouched, and tool
// outputs left without their call at the start of the history are dropped.
func KeepLastMessages(n int) agents.HandoffInputFilter {
	return func(_ context.Context, data agents.HandoffInputData) (agents.HandoffInputData, error) {
		history := data.InputHistory
		if n >= 0 && len(history) > n {
			history = history[len(history)-n:]
		}
		for len(history) > 0 && history[0].IsToolOutput() {
			history = history[1:]
		}
		data.InputHistory = history
		return data, nil
	}
}

func removeToolRunItems(items []agents.RunItem) []agents.RunItem {
	if items == nil {
		return nil
	}
	filtered := make([]agents.RunItem, 0, len(items))
	for _, item := range items {
		switch item.(type) {
		case agents.HandoffCallItem, agents.HandoffOutputItem, agents.ToolCallItem, agents.ToolCallOutputItem:
			continue
		default:
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func removeToolItems(items []message.Item) []message.Item {
	if items == nil {
		return nil
	}
	filtered := make([]message.Item, 0, len(items))
	for _, item := range items {
		if item.IsToolCall() || item.IsToolOutput() {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered
}
