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
	"slices"
	"sync"
)

// AgentToolUseTracker records, per agent, the names of the tools the model
// has called during a run.
type AgentToolUseTracker struct {
	mu       sync.Mutex
	agents   []*Agent
	toolUses map[*Agent][]string
}

func NewAgentToolUseTracker() *AgentToolUseTracker {
	return &AgentToolUseTracker{
		toolUses: make(map[*Agent][]string),
	}
}

// AddToolUse merges toolNames into the set recorded for agent. The result is
// a deduplicated union that keeps first-use order.
func (t *AgentToolUseTracker) AddToolUse(agent *Agent, toolNames []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.toolUses[agent]
	if !ok {
		t.agents = append(t.agents, agent)
	}
	for _, name := range toolNames {
		if !slices.Contains(existing, name) {
			existing = append(existing, name)
		}
	}
	t.toolUses[agent] = existing
}

func (t *AgentToolUseTracker) HasUsedTools(agent *Agent) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.toolUses[agent]) > 0
}

// ToolsUsed returns a copy of the tool names recorded for agent.
func (t *AgentToolUseTracker) ToolsUsed(agent *Agent) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.toolUses[agent])
}

// Agents returns the agents that used at least one tool, in first-use order.
func (t *AgentToolUseTracker) Agents() []*Agent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.agents)
}
