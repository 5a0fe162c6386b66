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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/types/optional"
	"github.com/nlpodyssey/agentflow/util/transforms"
	"github.com/xeipuuv/gojsonschema"
)

// A Handoff is when an agent delegates a task to another agent.
//
// For example, a "triage agent" determines which agent should handle the
// user's request, and sub-agents specialize in billing, account management, etc.
// The model sees each handoff as a function tool.
type Handoff struct {
	// The name of the tool that represents the handoff.
	ToolName string

	// The description of the tool that represents the handoff.
	ToolDescription string

	// The JSON schema for the handoff input.
	InputJSONSchema map[string]any

	// Invokes the handoff with the arguments from the LLM, as a JSON string,
	// and returns the agent to hand off to.
	OnInvokeHandoff func(context.Context, string) (*Agent, error)

	// The name of the agent that is being handed off to.
	AgentName string

	// Optional function that filters the inputs passed to the next agent.
	// By default the new agent sees the entire conversation history.
	// RunConfig.HandoffInputFilter applies when this is nil.
	InputFilter HandoffInputFilter

	// Whether the input JSON schema is in strict mode. Defaults to true.
	StrictJSONSchema optional.Optional[bool]

	// Optional predicate excluding the handoff from a run.
	IsEnabled FunctionToolEnabler
}

// GetTransferMessage returns the output of the handoff tool call.
func (h Handoff) GetTransferMessage(agent *Agent) string {
	b, _ := json.Marshal(map[string]string{"assistant": agent.Name})
	return string(b)
}

func DefaultHandoffToolName(agent *Agent) string {
	return transforms.TransformStringFunctionStyle("transfer_to_" + agent.Name)
}

func DefaultHandoffToolDescription(agent *Agent) string {
	desc := fmt.Sprintf("Handoff to the %s agent to handle the request.", agent.Name)
	if agent.HandoffDescription != "" {
		desc += " " + agent.HandoffDescription
	}
	return desc
}

// HandoffInputFilter filters the input data passed to the next agent.
type HandoffInputFilter = func(context.Context, HandoffInputData) (HandoffInputData, error)

type HandoffInputData struct {
	// The input history before the run started.
	InputHistory []message.Item

	// The items generated before the agent turn where the handoff was invoked.
	PreHandoffItems []RunItem

	// The new items generated during the current agent turn, including the
	// item that triggered the handoff and its output.
	NewItems []RunItem
}

// AllItems returns the history the next agent would receive.
func (d HandoffInputData) AllItems() []message.Item {
	items := append([]message.Item(nil), d.InputHistory...)
	items = append(items, RunItemsToInputItems(d.PreHandoffItems)...)
	return append(items, RunItemsToInputItems(d.NewItems)...)
}

type OnHandoff interface {
	isOnHandoff()
}

// OnHandoffWithInput receives the validated handoff input as a JSON string.
type OnHandoffWithInput func(ctx context.Context, jsonInput string) error

func (OnHandoffWithInput) isOnHandoff() {}

type OnHandoffWithoutInput func(context.Context) error

func (OnHandoffWithoutInput) isOnHandoff() {}

type HandoffFromAgentParams struct {
	// The agent to hand off to.
	Agent *Agent

	// Optional override for the name of the tool that represents the handoff.
	ToolNameOverride string

	// Optional override for the description of the tool that represents the handoff.
	ToolDescriptionOverride string

	// Optional function that runs when the handoff is invoked.
	OnHandoff OnHandoff

	// Optional JSON schema of the handoff input. Requires an OnHandoffWithInput.
	InputJSONSchema map[string]any

	// Optional function that filters the inputs that are passed to the next agent.
	InputFilter HandoffInputFilter

	IsEnabled FunctionToolEnabler
}

// HandoffFromAgent creates a Handoff from an Agent. It panics in case of problems.
func HandoffFromAgent(params HandoffFromAgentParams) Handoff {
	h, err := SafeHandoffFromAgent(params)
	if err != nil {
		panic(err)
	}
	return *h
}

// SafeHandoffFromAgent creates a Handoff from an Agent. It returns an error in case of problems.
func SafeHandoffFromAgent(params HandoffFromAgentParams) (*Handoff, error) {
	if params.Agent == nil {
		return nil, NewUserError("handoff target agent is nil")
	}

	rawInputJSONSchema := params.InputJSONSchema
	hasInput := len(rawInputJSONSchema) > 0
	if hasInput {
		if _, ok := params.OnHandoff.(OnHandoffWithInput); !ok {
			return nil, errors.New("OnHandoff must be of type OnHandoffWithInput since InputJSONSchema is given")
		}
	} else {
		rawInputJSONSchema = emptyObjectSchema()
		if params.OnHandoff != nil {
			if _, ok := params.OnHandoff.(OnHandoffWithoutInput); !ok {
				return nil, errors.New("OnHandoff must be of type OnHandoffWithoutInput")
			}
		}
	}

	inputSchema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(rawInputJSONSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to load and compile JSON schema: %w", err)
	}

	invokeHandoff := func(ctx context.Context, jsonInput string) (*Agent, error) {
		if !hasInput {
			if params.OnHandoff != nil {
				if err := params.OnHandoff.(OnHandoffWithoutInput)(ctx); err != nil {
					return params.Agent, err
				}
			}
			return params.Agent, nil
		}

		jsonInput = normalizeArguments(jsonInput)
		if err := validateJSONWithSchema(inputSchema, jsonInput, "handoff input JSON"); err != nil {
			return params.Agent, err
		}
		if err := params.OnHandoff.(OnHandoffWithInput)(ctx, jsonInput); err != nil {
			return params.Agent, err
		}
		return params.Agent, nil
	}

	toolName := params.ToolNameOverride
	if toolName == "" {
		toolName = DefaultHandoffToolName(params.Agent)
	}
	toolDescription := params.ToolDescriptionOverride
	if toolDescription == "" {
		toolDescription = DefaultHandoffToolDescription(params.Agent)
	}

	return &Handoff{
		ToolName:         toolName,
		ToolDescription:  toolDescription,
		InputJSONSchema:  rawInputJSONSchema,
		OnInvokeHandoff:  invokeHandoff,
		AgentName:        params.Agent.Name,
		InputFilter:      params.InputFilter,
		StrictJSONSchema: optional.Value(true),
		IsEnabled:        params.IsEnabled,
	}, nil
}

// normalizeArguments returns "{}" for empty or unparseable argument payloads.
func normalizeArguments(arguments string) string {
	if strings.TrimSpace(arguments) == "" || !json.Valid([]byte(arguments)) {
		return "{}"
	}
	return arguments
}
