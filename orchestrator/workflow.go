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

package orchestrator

import (
	"fmt"

	"github.com/nlpodyssey/agentflow/config"
)

// FromWorkflow builds the agent configurations of a declared workflow.
// The returned Config still needs run settings such as ErrorStrategy.
func FromWorkflow(w config.WorkflowDeclaration, complete CompletionFunc, registry config.ToolRegistry) (Config, error) {
	agentConfigs := make([]AgentConfig, 0, len(w.Agents))
	for _, decl := range w.Agents {
		tools, err := registry.Resolve(decl.Tools)
		if err != nil {
			return Config{}, fmt.Errorf("agent %q: %w", decl.Name, err)
		}
		agentConfigs = append(agentConfigs, AgentConfig{
			Name:           decl.Name,
			Instructions:   decl.Instructions,
			Tools:          tools,
			HandoffTargets: decl.Handoffs,
			MaxTurns:       decl.MaxTurns,
			ModelSettings:  decl.ModelSettings(),
		})
	}
	return Config{
		Agents:        agentConfigs,
		StartingAgent: w.StartingAgent,
		Complete:      complete,
	}, nil
}
