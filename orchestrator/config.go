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
	"context"
	"log/slog"
	"time"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/modelsettings"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/types/optional"
)

// AgentConfig declares one agent of an orchestrated workflow.
type AgentConfig struct {
	Name         string
	Instructions string

	// Tools available to the agent. The orchestrator adds its transfer tool
	// when HandoffTargets is not empty.
	Tools []agents.FunctionTool

	// Names of the agents this agent may transfer to.
	HandoffTargets []string

	// Per-agent turn budget. Zero means Config.MaxTurns, then agents.DefaultMaxTurns.
	MaxTurns uint64

	ModelSettings modelsettings.ModelSettings
}

// CompletionFunc asks a model for the next response of agent, given the
// conversation so far. The agent's Tools include the transfer tool.
type CompletionFunc func(ctx context.Context, agent AgentConfig, history []message.Item) (*agents.ModelResponse, error)

// ModelCompletion adapts an agents.Model to a CompletionFunc.
func ModelCompletion(model agents.Model) CompletionFunc {
	return func(ctx context.Context, agent AgentConfig, history []message.Item) (*agents.ModelResponse, error) {
		tools := make([]agents.Tool, len(agent.Tools))
		for i, t := range agent.Tools {
			tools[i] = t
		}
		var instructions optional.Optional[string]
		if agent.Instructions != "" {
			instructions = optional.Value(agent.Instructions)
		}
		return model.GetResponse(ctx, agents.ModelResponseParams{
			SystemInstructions: instructions,
			Input:              history,
			ModelSettings:      agent.ModelSettings,
			Tools:              tools,
		})
	}
}

type Config struct {
	Agents []AgentConfig

	// Name of the first agent. Defaults to the first of Agents.
	StartingAgent string

	Complete CompletionFunc

	ErrorStrategy agents.ErrorStrategy

	// Maximum model call retries under agents.RetryOnce. Defaults to 1.
	MaxRetries int

	// Turn budget applied to every agent, overriding AgentConfig.MaxTurns
	// when positive.
	MaxTurns uint64

	Stop *agents.StopSignal

	// Optional lifecycle callbacks.
	Hooks agents.RunHooks

	// Optional throttle consulted before every model call and tool invocation.
	Limiter        agents.Limiter
	LimiterTimeout time.Duration

	Logger *slog.Logger

	// Optional clock used to stamp handoff messages.
	Now func() time.Time
}
