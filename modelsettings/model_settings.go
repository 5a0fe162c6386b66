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

package modelsettings

import (
	"maps"
	"slices"

	"github.com/nlpodyssey/agentflow/types/optional"
)

// ModelSettings holds optional model configuration parameters (e.g. temperature,
// top-p, penalties, truncation, etc.).
//
// Not all models/providers support all of these parameters, so please check
// the API documentation for the specific model and provider you are using.
type ModelSettings struct {
	Temperature      optional.Optional[float64] `json:"temperature" yaml:"temperature"`
	TopP             optional.Optional[float64] `json:"top_p" yaml:"top_p"`
	FrequencyPenalty optional.Optional[float64] `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  optional.Optional[float64] `json:"presence_penalty" yaml:"presence_penalty"`

	// Optional tool choice to use when calling the model.
	ToolChoice ToolChoice `json:"tool_choice" yaml:"-"`

	// Controls whether the model can make multiple parallel tool calls in a single turn.
	// If not provided, this behavior defers to the underlying model provider's default.
	ParallelToolCalls optional.Optional[bool] `json:"parallel_tool_calls" yaml:"parallel_tool_calls"`

	Truncation optional.Optional[Truncation] `json:"truncation" yaml:"truncation"`

	// The maximum number of output tokens to generate.
	MaxTokens optional.Optional[int64] `json:"max_tokens" yaml:"max_tokens"`

	// Reasoning effort for reasoning models ("low", "medium", "high").
	ReasoningEffort optional.Optional[string] `json:"reasoning_effort" yaml:"reasoning_effort"`

	Verbosity optional.Optional[Verbosity] `json:"verbosity" yaml:"verbosity"`

	Metadata map[string]string `json:"metadata" yaml:"metadata"`

	// Whether to store the generated model response for later retrieval.
	Store optional.Optional[bool] `json:"store" yaml:"store"`

	// Additional output data to include in the model response.
	ResponseInclude []string `json:"response_include" yaml:"response_include"`

	ExtraHeaders map[string]string `json:"extra_headers" yaml:"extra_headers"`
}

type Verbosity string

const (
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
)

type ToolChoice interface {
	isToolChoice()
}

type ToolChoiceString string

func (ToolChoiceString) isToolChoice()     {}
func (tc ToolChoiceString) String() string { return string(tc) }

const (
	ToolChoiceAuto     ToolChoiceString = "auto"
	ToolChoiceRequired ToolChoiceString = "required"
	ToolChoiceNone     ToolChoiceString = "none"
)

// ToolChoiceFunction forces the model to call the named function tool.
type ToolChoiceFunction struct {
	Name string `json:"name"`
}

func (ToolChoiceFunction) isToolChoice() {}

type Truncation string

const (
	TruncationAuto     Truncation = "auto"
	TruncationDisabled Truncation = "disabled"
)

// Resolve produces a new ModelSettings by overlaying any present values from
// the override on top of this instance.
func (ms ModelSettings) Resolve(override ModelSettings) ModelSettings {
	newSettings := ms
	resolveOpt(&newSettings.Temperature, override.Temperature)
	resolveOpt(&newSettings.TopP, override.TopP)
	resolveOpt(&newSettings.FrequencyPenalty, override.FrequencyPenalty)
	resolveOpt(&newSettings.PresencePenalty, override.PresencePenalty)
	if override.ToolChoice != nil {
		newSettings.ToolChoice = override.ToolChoice
	}
	resolveOpt(&newSettings.ParallelToolCalls, override.ParallelToolCalls)
	resolveOpt(&newSettings.Truncation, override.Truncation)
	resolveOpt(&newSettings.MaxTokens, override.MaxTokens)
	resolveOpt(&newSettings.ReasoningEffort, override.ReasoningEffort)
	resolveOpt(&newSettings.Verbosity, override.Verbosity)
	resolveMap(&newSettings.Metadata, override.Metadata)
	resolveOpt(&newSettings.Store, override.Store)
	if len(override.ResponseInclude) > 0 {
		newSettings.ResponseInclude = slices.Clone(override.ResponseInclude)
	}
	resolveMap(&newSettings.ExtraHeaders, override.ExtraHeaders)
	return newSettings
}

func resolveOpt[T any](base *optional.Optional[T], override optional.Optional[T]) {
	if override.Present {
		*base = override
	}
}

func resolveMap[M ~map[K]V, K comparable, V any](base *M, override M) {
	if len(override) > 0 {
		*base = maps.Clone(override)
	}
}
