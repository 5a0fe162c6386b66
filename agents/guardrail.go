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

	"github.com/nlpodyssey/agentflow/types/message"
)

// An InputGuardrail is a check that runs before the first agent of a run
// generates a response, e.g. to reject off-topic input.
//
// If the result has TripwireTriggered set, the run stops with an
// InputGuardrailTripwireTriggeredError.
type InputGuardrail struct {
	// Receives the agent input and returns a GuardrailFunctionOutput.
	GuardrailFunction InputGuardrailFunction

	// The name of the guardrail, used for error reporting and debugging.
	Name string
}

type InputGuardrailFunction = func(context.Context, *Agent, []message.Item) (GuardrailFunctionOutput, error)

func (ig InputGuardrail) Run(ctx context.Context, agent *Agent, input []message.Item) (InputGuardrailResult, error) {
	output, err := ig.GuardrailFunction(ctx, agent, input)
	return InputGuardrailResult{
		Guardrail: ig,
		Output:    output,
	}, err
}

// InputGuardrailResult is the result of a guardrail run.
type InputGuardrailResult struct {
	Guardrail InputGuardrail
	Output    GuardrailFunctionOutput
}

// GuardrailFunctionOutput is the output of a guardrail function.
type GuardrailFunctionOutput struct {
	// Optional information about the checks performed.
	OutputInfo any

	// Whether the tripwire was triggered. If triggered, the run is halted.
	TripwireTriggered bool
}

// An OutputGuardrail is a check that runs on the final output of an agent.
//
// If the result has TripwireTriggered set, the run stops with an
// OutputGuardrailTripwireTriggeredError.
type OutputGuardrail struct {
	GuardrailFunction OutputGuardrailFunction
	Name              string
}

type OutputGuardrailFunction = func(context.Context, *Agent, any) (GuardrailFunctionOutput, error)

func (og OutputGuardrail) Run(ctx context.Context, agent *Agent, agentOutput any) (OutputGuardrailResult, error) {
	output, err := og.GuardrailFunction(ctx, agent, agentOutput)
	return OutputGuardrailResult{
		Guardrail:   og,
		Agent:       agent,
		AgentOutput: agentOutput,
		Output:      output,
	}, err
}

// OutputGuardrailResult is the result of a guardrail run.
type OutputGuardrailResult struct {
	Guardrail OutputGuardrail

	// The output of the agent that was checked by the guardrail.
	AgentOutput any

	// The agent that was checked by the guardrail.
	Agent *Agent

	Output GuardrailFunctionOutput
}
