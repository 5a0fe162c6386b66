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
	"context"
	"slices"
	"sync"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/types/message"
)

type recordingHooks struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHooks) record(event string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHooks) OnAgentStart(_ context.Context, agent *agents.Agent) error {
	return h.record("agent_start:" + agent.Name)
}

func (h *recordingHooks) OnAgentEnd(_ context.Context, agent *agents.Agent, _ any) error {
	return h.record("agent_end:" + agent.Name)
}

func (h *recordingHooks) OnHandoff(_ context.Context, from, to *agents.Agent) error {
	return h.record("handoff:" + from.Name + "->" + to.Name)
}

func (h *recordingHooks) OnToolStart(_ context.Context, _ *agents.Agent, tool agents.Tool) error {
	return h.record("tool_start:" + tool.ToolName())
}

func (h *recordingHooks) OnToolEnd(_ context.Context, _ *agents.Agent, tool agents.Tool, _ any) error {
	return h.record("tool_end:" + tool.ToolName())
}

type memorySession struct {
	mu    sync.Mutex
	items []message.Item
}

func (s *memorySession) SessionID(context.Context) string { return "memory" }

func (s *memorySession) GetItems(_ context.Context, limit int) ([]message.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit >= len(s.items) {
		return slices.Clone(s.items), nil
	}
	return slices.Clone(s.items[len(s.items)-limit:]), nil
}

func (s *memorySession) AddItems(_ context.Context, items []message.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	return nil
}

func (s *memorySession) PopItem(context.Context) (*message.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return nil, nil
	}
	item := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return &item, nil
}

func (s *memorySession) ClearSession(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return nil
}
