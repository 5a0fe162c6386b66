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
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/types/optional"
)

// TransferToolName is the name of the function tool agents call to hand
// the conversation over to another agent.
const TransferToolName = "transfer_to_agent"

type transferArgs struct {
	Agent    string            `json:"agent"`
	Reason   string            `json:"reason"`
	Summary  string            `json:"summary"`
	Priority string            `json:"priority"`
	Extra    map[string]string `json:"extra"`
}

func transferSchema(targets []string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent": map[string]any{
				"type":        "string",
				"enum":        slices.Clone(targets),
				"description": "Name of the agent taking over the conversation.",
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "Why the conversation is being transferred.",
			},
			"summary": map[string]any{
				"type":        "string",
				"description": "What the next agent needs to know.",
			},
			"priority": map[string]any{
				"type":        "string",
				"description": "Urgency of the request, e.g. low, normal, high.",
			},
			"extra": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
				"description":          "Additional key/value facts for the next agent.",
			},
		},
		"required":             []string{"agent"},
		"additionalProperties": false,
	}
}

func transferTool(targets []string) agents.FunctionTool {
	return agents.FunctionTool{
		Name: TransferToolName,
		Description: "Transfer the conversation to another agent. Available agents: " +
			strings.Join(targets, ", ") + ".",
		ParamsJSONSchema: transferSchema(targets),
		StrictJSONSchema: optional.Value(false),
		OnInvokeTool: func(ctx context.Context, arguments string) (any, error) {
			return invokeTransfer(ctx, targets, arguments)
		},
	}
}

func invokeTransfer(ctx context.Context, targets []string, arguments string) (any, error) {
	run := runFromContext(ctx)
	if run == nil {
		return nil, errors.New("transfer requested outside of an orchestrator run")
	}

	var args transferArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("invalid transfer arguments: %w", err)
	}
	if !slices.Contains(targets, args.Agent) {
		return nil, fmt.Errorf("unknown agent %q, expected one of: %s", args.Agent, strings.Join(targets, ", "))
	}

	if data := agents.ToolDataFromContext(ctx); data != nil && data.ToolCallID != run.firstTransferCall {
		return agents.MultipleHandoffsMessage, nil
	}

	run.state.SetHandoff(args.Agent, agents.HandoffPayload{
		Summary:  args.Summary,
		Priority: args.Priority,
		Extra:    args.Extra,
	}, args.Reason)
	return fmt.Sprintf("Transfer to %s requested.", args.Agent), nil
}

// firstTransferCall returns the call ID of the first transfer call in output.
func firstTransferCall(output []message.Item) string {
	for _, item := range output {
		if item.Type == message.TypeFunctionCall && item.Name == TransferToolName {
			return item.CallID
		}
	}
	return ""
}
