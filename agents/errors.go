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
	"errors"
	"fmt"

	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/usage"
)

// ErrorKind classifies failures so that recovery policies can be applied
// without inspecting concrete error types.
type ErrorKind string

const (
	ErrorKindTurnLimitExceeded ErrorKind = "turn_limit_exceeded"
	ErrorKindExecutionStopped  ErrorKind = "execution_stopped"
	ErrorKindResponseParsing   ErrorKind = "response_parsing"
	ErrorKindToolExecution     ErrorKind = "tool_execution"
	ErrorKindHandoffRejected   ErrorKind = "handoff_rejected"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindTransport         ErrorKind = "transport"
	ErrorKindPolicyTripwire    ErrorKind = "policy_tripwire"
	ErrorKindUser              ErrorKind = "user"
	ErrorKindUnclassified      ErrorKind = "unclassified"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ErrorKindAttributes struct {
	Retryable bool
	Severity  Severity
}

var errorKindAttributes = map[ErrorKind]ErrorKindAttributes{
	ErrorKindTurnLimitExceeded: {Retryable: false, Severity: SeverityMedium},
	ErrorKindExecutionStopped:  {Retryable: false, Severity: SeverityLow},
	ErrorKindResponseParsing:   {Retryable: true, Severity: SeverityMedium},
	ErrorKindToolExecution:     {Retryable: false, Severity: SeverityLow},
	ErrorKindHandoffRejected:   {Retryable: false, Severity: SeverityMedium},
	ErrorKindTimeout:           {Retryable: true, Severity: SeverityHigh},
	ErrorKindTransport:         {Retryable: true, Severity: SeverityHigh},
	ErrorKindPolicyTripwire:    {Retryable: false, Severity: SeverityHigh},
	ErrorKindUser:              {Retryable: false, Severity: SeverityCritical},
	ErrorKindUnclassified:      {Retryable: true, Severity: SeverityCritical},
}

// Attributes returns the registered attributes of the kind. Unknown kinds
// are treated as unclassified.
func (k ErrorKind) Attributes() ErrorKindAttributes {
	if attrs, ok := errorKindAttributes[k]; ok {
		return attrs
	}
	return errorKindAttributes[ErrorKindUnclassified]
}

func (k ErrorKind) Retryable() bool { return k.Attributes().Retryable }

// AgentsError is the error type returned by the run loop and its components.
type AgentsError struct {
	Kind    ErrorKind
	Message string
	Err     error

	// Partial progress of the run, when the error ended one.
	RunData *RunErrorDetails
}

func (e *AgentsError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *AgentsError) Unwrap() error { return e.Err }

// Is reports whether target is a bare AgentsError of the same kind, which
// allows errors.Is(err, ErrMaxTurnsExceeded) style checks.
func (e *AgentsError) Is(target error) bool {
	t, ok := target.(*AgentsError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrMaxTurnsExceeded   = &AgentsError{Kind: ErrorKindTurnLimitExceeded}
	ErrExecutionStopped   = &AgentsError{Kind: ErrorKindExecutionStopped}
	ErrModelBehavior      = &AgentsError{Kind: ErrorKindResponseParsing}
	ErrToolExecution      = &AgentsError{Kind: ErrorKindToolExecution}
	ErrHandoffRejected    = &AgentsError{Kind: ErrorKindHandoffRejected}
	ErrTimeout            = &AgentsError{Kind: ErrorKindTimeout}
	ErrTransport          = &AgentsError{Kind: ErrorKindTransport}
	ErrUser               = &AgentsError{Kind: ErrorKindUser}
	ErrGuardrailTriggered = &AgentsError{Kind: ErrorKindPolicyTripwire}
)

// RunErrorDetails carries the state of a run at the moment it failed.
type RunErrorDetails struct {
	History      []message.Item
	NewItems     []RunItem
	LastAgent    *Agent
	Usage        *usage.Usage
	RawResponses []ModelResponse
}

func newError(kind ErrorKind, message string) *AgentsError {
	return &AgentsError{Kind: kind, Message: message}
}

func newErrorf(kind ErrorKind, format string, a ...any) *AgentsError {
	err := fmt.Errorf(format, a...)
	return &AgentsError{Kind: kind, Message: err.Error(), Err: errors.Unwrap(err)}
}

func NewMaxTurnsExceededError(message string) *AgentsError {
	return newError(ErrorKindTurnLimitExceeded, message)
}

func MaxTurnsExceededErrorf(format string, a ...any) *AgentsError {
	return newErrorf(ErrorKindTurnLimitExceeded, format, a...)
}

// NewModelBehaviorError is returned when the model does something unexpected,
// e.g. calling a tool that doesn't exist, or providing malformed JSON.
func NewModelBehaviorError(message string) *AgentsError {
	return newError(ErrorKindResponseParsing, message)
}

func ModelBehaviorErrorf(format string, a ...any) *AgentsError {
	return newErrorf(ErrorKindResponseParsing, format, a...)
}

// NewUserError is returned when the package is used incorrectly.
func NewUserError(message string) *AgentsError {
	return newError(ErrorKindUser, message)
}

func UserErrorf(format string, a ...any) *AgentsError {
	return newErrorf(ErrorKindUser, format, a...)
}

func NewExecutionStoppedError(message string) *AgentsError {
	return newError(ErrorKindExecutionStopped, message)
}

func NewTimeoutError(message string, err error) *AgentsError {
	return &AgentsError{Kind: ErrorKindTimeout, Message: message, Err: err}
}

func NewTransportError(err error) *AgentsError {
	return &AgentsError{Kind: ErrorKindTransport, Message: fmt.Sprintf("model transport error: %v", err), Err: err}
}

func HandoffRejectedErrorf(format string, a ...any) *AgentsError {
	return newErrorf(ErrorKindHandoffRejected, format, a...)
}

func NewToolExecutionError(toolName string, err error) *AgentsError {
	return &AgentsError{
		Kind:    ErrorKindToolExecution,
		Message: fmt.Sprintf("error running tool %s: %v", toolName, err),
		Err:     err,
	}
}

// InputGuardrailTripwireTriggeredError is returned when a guardrail tripwire is triggered.
type InputGuardrailTripwireTriggeredError struct {
	// The result data of the guardrail that was triggered.
	GuardrailResult InputGuardrailResult
}

func (err InputGuardrailTripwireTriggeredError) Error() string {
	return fmt.Sprintf("input guardrail %s triggered tripwire", err.GuardrailResult.Guardrail.Name)
}

func NewInputGuardrailTripwireTriggeredError(guardrailResult InputGuardrailResult) InputGuardrailTripwireTriggeredError {
	return InputGuardrailTripwireTriggeredError{
		GuardrailResult: guardrailResult,
	}
}

// OutputGuardrailTripwireTriggeredError is returned when a guardrail tripwire is triggered.
type OutputGuardrailTripwireTriggeredError struct {
	GuardrailName string

	// The result data of the guardrail that was triggered.
	GuardrailResult OutputGuardrailResult
}

func (err OutputGuardrailTripwireTriggeredError) Error() string {
	return fmt.Sprintf("output guardrail %s triggered tripwire", err.GuardrailName)
}

func NewOutputGuardrailTripwireTriggeredError(guardrailName string, guardrailResult OutputGuardrailResult) OutputGuardrailTripwireTriggeredError {
	return OutputGuardrailTripwireTriggeredError{
		GuardrailName:   guardrailName,
		GuardrailResult: guardrailResult,
	}
}

// AsAgentsError returns the first AgentsError in err's chain.
func AsAgentsError(err error) (*AgentsError, bool) {
	var agentsErr *AgentsError
	if errors.As(err, &agentsErr) {
		return agentsErr, true
	}
	return nil, false
}

// ClassifyError maps an arbitrary error to its ErrorKind. It returns an empty
// kind for a nil error.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if agentsErr, ok := AsAgentsError(err); ok {
		return agentsErr.Kind
	}

	var inputTripwire InputGuardrailTripwireTriggeredError
	var outputTripwire OutputGuardrailTripwireTriggeredError
	switch {
	case errors.As(err, &inputTripwire), errors.As(err, &outputTripwire):
		return ErrorKindPolicyTripwire
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrorKindExecutionStopped
	default:
		return ErrorKindUnclassified
	}
}

// attachRunData records run progress on the AgentsError in err, wrapping
// unclassified errors so that the details are never lost.
func attachRunData(err error, details *RunErrorDetails) error {
	if agentsErr, ok := AsAgentsError(err); ok {
		if agentsErr.RunData == nil {
			agentsErr.RunData = details
		}
		return err
	}
	return &AgentsError{Kind: ClassifyError(err), Err: err, RunData: details}
}
