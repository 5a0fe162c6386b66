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

package agentstesting

import (
	"context"
	"slices"
	"sync"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/modelsettings"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/types/optional"
	"github.com/nlpodyssey/agentflow/usage"
)

// FakeModel is an agents.Model returning scripted outputs, one per call.
type FakeModel struct {
	mu             sync.Mutex
	turnOutputs    []FakeModelTurnOutput
	lastTurnArgs   FakeModelLastTurnArgs
	hardcodedUsage *usage.Usage
	calls          int
}

type FakeModelTurnOutput struct {
	Value []message.Item
	Error error
}

type FakeModelLastTurnArgs struct {
	SystemInstructions optional.Optional[string]
	Input              []message.Item
	ModelSettings      modelsettings.ModelSettings
	Tools              []agents.Tool
	Handoffs           []agents.Handoff
	OutputType         agents.OutputTypeInterface
	PreviousResponseID string
}

func NewFakeModel(initialOutput *FakeModelTurnOutput) *FakeModel {
	m := new(FakeModel)
	if initialOutput != nil && (initialOutput.Value != nil || initialOutput.Error != nil) {
		m.turnOutputs = []FakeModelTurnOutput{*initialOutput}
	}
	return m
}

func (m *FakeModel) SetHardcodedUsage(u usage.Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hardcodedUsage = &u
}

func (m *FakeModel) SetNextOutput(output FakeModelTurnOutput) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnOutputs = append(m.turnOutputs, output)
}

func (m *FakeModel) AddMultipleTurnOutputs(outputs []FakeModelTurnOutput) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnOutputs = append(m.turnOutputs, outputs...)
}

// LastTurnArgs returns the parameters of the most recent call.
func (m *FakeModel) LastTurnArgs() FakeModelLastTurnArgs {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTurnArgs
}

// Calls returns the number of GetResponse calls so far.
func (m *FakeModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// GetResponse returns the next scripted output. Once the script is exhausted,
// it returns an empty response.
func (m *FakeModel) GetResponse(_ context.Context, params agents.ModelResponseParams) (*agents.ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastTurnArgs = FakeModelLastTurnArgs{
		SystemInstructions: params.SystemInstructions,
		Input:              slices.Clone(params.Input),
		ModelSettings:      params.ModelSettings,
		Tools:              params.Tools,
		Handoffs:           params.Handoffs,
		OutputType:         params.OutputType,
		PreviousResponseID: params.PreviousResponseID,
	}

	var output FakeModelTurnOutput
	if len(m.turnOutputs) > 0 {
		output = m.turnOutputs[0]
		m.turnOutputs = m.turnOutputs[1:]
	}
	if output.Error != nil {
		return nil, output.Error
	}

	u := usage.NewUsage()
	if m.hardcodedUsage != nil {
		u = m.hardcodedUsage.Clone()
	}
	return &agents.ModelResponse{
		Output:     output.Value,
		Usage:      u,
		ResponseID: message.NewID("resp"),
	}, nil
}
