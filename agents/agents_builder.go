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
	"github.com/nlpodyssey/agentflow/modelsettings"
	"github.com/nlpodyssey/agentflow/types/optional"
)

// New creates a new Agent with the given name.
//
// The returned Agent can be further configured using the builder methods.
func New(name string) *Agent {
	return &Agent{Name: name}
}

// WithInstructions sets static instructions.
func (a *Agent) WithInstructions(instr string) *Agent {
	a.Instructions = InstructionsStr(instr)
	return a
}

// WithInstructionsFunc sets dynamic instructions.
func (a *Agent) WithInstructionsFunc(fn InstructionsFunc) *Agent {
	a.Instructions = fn
	return a
}

func (a *Agent) WithHandoffDescription(desc string) *Agent {
	a.HandoffDescription = desc
	return a
}

func (a *Agent) WithHandoffs(handoffs ...Handoff) *Agent {
	a.Handoffs = handoffs
	return a
}

// WithAgentHandoffs sets the handoff targets using Agent pointers.
func (a *Agent) WithAgentHandoffs(agents ...*Agent) *Agent {
	a.AgentHandoffs = agents
	return a
}

// WithModel sets the model to use by name.
func (a *Agent) WithModel(name string) *Agent {
	a.Model = optional.Value(NewAgentModelName(name))
	return a
}

// WithModelInstance sets the model using a Model implementation.
func (a *Agent) WithModelInstance(m Model) *Agent {
	a.Model = optional.Value(NewAgentModel(m))
	return a
}

func (a *Agent) WithModelSettings(settings modelsettings.ModelSettings) *Agent {
	a.ModelSettings = settings
	return a
}

// WithTools replaces the list of tools available to the agent.
func (a *Agent) WithTools(t ...Tool) *Agent {
	a.Tools = append([]Tool{}, t...)
	return a
}

// AddTool appends a tool to the agent's tool list.
func (a *Agent) AddTool(t Tool) *Agent {
	a.Tools = append(a.Tools, t)
	return a
}

func (a *Agent) WithInputGuardrails(gr ...InputGuardrail) *Agent {
	a.InputGuardrails = gr
	return a
}

func (a *Agent) WithOutputGuardrails(gr ...OutputGuardrail) *Agent {
	a.OutputGuardrails = gr
	return a
}

func (a *Agent) WithOutputType(outputType OutputTypeInterface) *Agent {
	a.OutputType = outputType
	return a
}

func (a *Agent) WithHooks(hooks AgentHooks) *Agent {
	a.Hooks = hooks
	return a
}

// WithToolUseBehavior configures how tool use is handled.
func (a *Agent) WithToolUseBehavior(b ToolUseBehavior) *Agent {
	a.ToolUseBehavior = b
	return a
}

// WithResetToolChoice sets whether a forced tool choice is reset after use.
func (a *Agent) WithResetToolChoice(v bool) *Agent {
	a.ResetToolChoice = optional.Value(v)
	return a
}

// WithMaxTurns sets the per-agent turn budget.
func (a *Agent) WithMaxTurns(n uint64) *Agent {
	a.MaxTurns = n
	return a
}
