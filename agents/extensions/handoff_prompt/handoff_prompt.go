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

// Package handoff_prompt provides the system prompt prefix recommended for
// agents that take part in handoffs.
package handoff_prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlpodyssey/agentflow/agents"
)

const RecommendedPromptPrefix = "# System context\n" +
	"You are part of a multi-agent system designed to make agent coordination and " +
	"execution easy. Each agent has its own instructions and tools, and can hand off " +
	"the conversation to another agent when the request is better served elsewhere. " +
	"Handoffs are achieved by calling a handoff function, generally named " +
	"`transfer_to_<agent_name>`. Transfers between agents are handled seamlessly in the background;" +
	" do not mention or draw attention to these transfers in your conversation with the user.\n"

func PromptWithHandoffInstructions(prompt string) string {
	return fmt.Sprintf("%s\n\n%s", RecommendedPromptPrefix, prompt)
}

// InstructionsWithHandoffs wraps base so that the resulting instructions start
// with RecommendedPromptPrefix and list the handoffs currently enabled for
// the agent. A nil base yields the prefix and the list alone.
func InstructionsWithHandoffs(base agents.InstructionsGetter) agents.InstructionsGetter {
	return agents.InstructionsFunc(func(ctx context.Context, agent *agents.Agent) (string, error) {
		var prompt string
		if base != nil {
			var err error
			if prompt, err = base.GetInstructions(ctx, agent); err != nil {
				return "", err
			}
		}

		handoffs, err := agent.GetHandoffs(ctx)
		if err != nil {
			return "", err
		}
		if len(handoffs) > 0 {
			var sb strings.Builder
			sb.WriteString("\n\n## Available handoffs\n")
			for _, h := range handoffs {
				_, _ = fmt.Fprintf(&sb, "- `%s`: %s\n", h.ToolName, h.ToolDescription)
			}
			prompt = strings.TrimLeft(prompt+sb.String(), "\n")
		}
		return PromptWithHandoffInstructions(prompt), nil
	})
}
