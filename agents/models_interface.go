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

	"github.com/nlpodyssey/agentflow/modelsettings"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/types/optional"
	"github.com/nlpodyssey/agentflow/usage"
)

// Model is the base interface for calling an LLM.
//
// The core never shapes the outbound request beyond these parameters; it
// only interprets the returned ModelResponse.
type Model interface {
	GetResponse(context.Context, ModelResponseParams) (*ModelResponse, error)
}

type ModelResponseParams struct {
	// The system instructions to use.
	SystemInstructions optional.Optional[string]

	// The conversation so far.
	Input []message.Item

	ModelSettings modelsettings.ModelSettings

	// The tools available to the model.
	Tools []Tool

	// Optional structured output description.
	OutputType OutputTypeInterface

	// The handoffs available to the model, exposed as function tools.
	Handoffs []Handoff

	// Optional ID of the previous response, for providers that keep
	// server-side conversation state.
	PreviousResponseID string
}

type ModelResponse struct {
	// The items generated by the model.
	Output []message.Item

	// The usage information for the response.
	Usage *usage.Usage

	// Optional ID for the response, which can be used to refer to it in
	// subsequent calls.
	ResponseID string
}

// ToInputItems returns the output items, ready to be appended to the next input.
func (mr ModelResponse) ToInputItems() []message.Item {
	return append([]message.Item(nil), mr.Output...)
}

// ModelProvider looks up Models by name.
type ModelProvider interface {
	GetModel(modelName string) (Model, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(context.Context, ModelResponseParams) (*ModelResponse, error)

func (f ModelFunc) GetResponse(ctx context.Context, params ModelResponseParams) (*ModelResponse, error) {
	return f(ctx, params)
}

// A Limiter throttles tool and model invocations. Keys have the form
// "tool:<tool name>" and "model:<agent name>".
//
// Wait blocks until the call identified by key may proceed, or ctx is done.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

func ToolLimiterKey(toolName string) string   { return "tool:" + toolName }
func ModelLimiterKey(agentName string) string { return "model:" + agentName }
