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
	"testing"

	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationManager_FinalOutput(t *testing.T) {
	agent := &Agent{Name: "a"}
	m := NewConversationManager(agent, WithHistory([]message.Item{message.UserMessage("hi")}))

	result, err := m.Run(t.Context(), func(_ context.Context, in TurnInput) (*TurnOutcome, error) {
		assert.Len(t, in.History, 1)
		return &TurnOutcome{
			Items:       []message.Item{message.AssistantMessage("hello")},
			Usage:       &usage.Usage{Requests: 1, TotalTokens: 7},
			FinalOutput: "hello",
		}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "hello", result.FinalOutput)
	assert.Same(t, agent, result.LastAgent)
	assert.Equal(t, uint64(1), result.Turns)
	assert.Len(t, result.History, 2)
	assert.Equal(t, uint64(7), result.Usage.TotalTokens)
}

func TestConversationManager_TurnBudgetIsPerAgent(t *testing.T) {
	a := &Agent{Name: "a"}
	b := &Agent{Name: "b", MaxTurns: 3}

	var turns []string
	m := NewConversationManager(a, WithMaxTurns(0))
	result, err := m.Run(t.Context(), func(_ context.Context, in TurnInput) (*TurnOutcome, error) {
		turns = append(turns, in.Agent.Name)
		switch {
		case in.Agent == a && in.Turn < DefaultMaxTurns:
			return &TurnOutcome{Continue: true}, nil
		case in.Agent == a:
			return &TurnOutcome{HandoffTo: b}, nil
		case in.Turn < 3:
			return &TurnOutcome{Continue: true}, nil
		default:
			return &TurnOutcome{FinalOutput: "done"}, nil
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "done", result.FinalOutput)
	assert.Same(t, b, result.LastAgent)
	assert.Equal(t, uint64(DefaultMaxTurns+3), result.Turns)
	assert.Len(t, turns, DefaultMaxTurns+3)
}

func TestConversationManager_MaxTurnsExceeded(t *testing.T) {
	agent := &Agent{Name: "looper"}
	calls := 0
	m := NewConversationManager(agent, WithMaxTurns(2))
	_, err := m.Run(t.Context(), func(context.Context, TurnInput) (*TurnOutcome, error) {
		calls++
		return &TurnOutcome{Continue: true}, nil
	})
	require.ErrorIs(t, err, ErrMaxTurnsExceeded)
	assert.Equal(t, 2, calls)

	last := m.History[len(m.History)-1]
	assert.Equal(t, message.RoleAssistant, last.Role)
	assert.Equal(t, "Maximum turns (2) exceeded for agent looper.", last.Text())

	agentsErr, ok := AsAgentsError(err)
	require.True(t, ok)
	require.NotNil(t, agentsErr.RunData)
	assert.Same(t, agent, agentsErr.RunData.LastAgent)
}

func TestConversationManager_StopSignal(t *testing.T) {
	stop := NewStopSignal()
	m := NewConversationManager(&Agent{Name: "a"},
		WithStopSignal(stop),
		WithErrorHandler(&ErrorHandler{Strategy: GracefulDegradation}))

	calls := 0
	result, err := m.Run(t.Context(), func(context.Context, TurnInput) (*TurnOutcome, error) {
		calls++
		stop.Stop()
		return &TurnOutcome{Continue: true}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, result.Degraded)
	assert.Equal(t, DegradedMessage(ErrorKindExecutionStopped), result.FinalOutput)

	// The explanatory message precedes the degraded one.
	n := len(result.History)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, "Execution stopped by caller.", result.History[n-2].Text())
	assert.Equal(t, result.FinalOutput, result.History[n-1].Text())

	stop.Reset()
	assert.False(t, stop.Stopped())
}

func TestConversationManager_NilStopSignal(t *testing.T) {
	var stop *StopSignal
	assert.False(t, stop.Stopped())
}

func TestConversationManager_ErrorStrategies(t *testing.T) {
	failing := errors.New("boom")

	t.Run("fail fast appends explanation", func(t *testing.T) {
		m := NewConversationManager(&Agent{Name: "a"})
		_, err := m.Run(t.Context(), func(context.Context, TurnInput) (*TurnOutcome, error) {
			return nil, failing
		})
		require.ErrorIs(t, err, failing)
		assert.Equal(t, "Run failed: boom", m.History[len(m.History)-1].Text())
	})

	t.Run("continue on handled errors", func(t *testing.T) {
		m := NewConversationManager(&Agent{Name: "a"},
			WithErrorHandler(&ErrorHandler{Strategy: LogAndContinue}))
		calls := 0
		result, err := m.Run(t.Context(), func(context.Context, TurnInput) (*TurnOutcome, error) {
			calls++
			if calls == 1 {
				return nil, NewTransportError(failing)
			}
			return &TurnOutcome{FinalOutput: "ok"}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", result.FinalOutput)
		require.Len(t, result.Handled, 1)
		assert.Equal(t, ErrorKindTransport, result.Handled[0].Kind)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		m := NewConversationManager(&Agent{Name: "a"})
		_, err := m.Run(ctx, func(context.Context, TurnInput) (*TurnOutcome, error) {
			t.Fatal("turn must not run")
			return nil, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestConversationManager_HistoryOverride(t *testing.T) {
	m := NewConversationManager(&Agent{Name: "a"}, WithHistory([]message.Item{
		message.UserMessage("one"),
		message.UserMessage("two"),
	}))
	result, err := m.Run(t.Context(), func(context.Context, TurnInput) (*TurnOutcome, error) {
		return &TurnOutcome{
			HistoryOverride: []message.Item{message.UserMessage("two")},
			Items:           []message.Item{message.AssistantMessage("three")},
			FinalOutput:     "three",
		}, nil
	})
	require.NoError(t, err)
	require.Len(t, result.History, 2)
	assert.Equal(t, "two", result.History[0].Text())
	assert.Equal(t, "three", result.History[1].Text())
}

func TestConversationManager_PartialOutcomeOnError(t *testing.T) {
	m := NewConversationManager(&Agent{Name: "a"},
		WithErrorHandler(&ErrorHandler{Strategy: LogAndContinue}))
	calls := 0
	result, err := m.Run(t.Context(), func(context.Context, TurnInput) (*TurnOutcome, error) {
		calls++
		if calls == 1 {
			return &TurnOutcome{
				Items: []message.Item{message.FunctionCall("call_1", "transfer_to_agent", `{"agent":"a"}`)},
				Usage: &usage.Usage{Requests: 1},
			}, HandoffRejectedErrorf("circular handoff rejected")
		}
		return &TurnOutcome{FinalOutput: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.FinalOutput)
	require.Len(t, result.History, 1)
	assert.Equal(t, "call_1", result.History[0].CallID)
	assert.Equal(t, uint64(1), result.Usage.Requests)
	require.Len(t, result.Handled, 1)
	assert.Equal(t, ErrorKindHandoffRejected, result.Handled[0].Kind)
}

func TestConversationManager_RetryOnceRerunsTurn(t *testing.T) {
	t.Run("retryable failure", func(t *testing.T) {
		m := NewConversationManager(&Agent{Name: "a"},
			WithErrorHandler(&ErrorHandler{Strategy: RetryOnce}),
			WithHistory([]message.Item{message.UserMessage("hi")}))
		var histories [][]message.Item
		result, err := m.Run(t.Context(), func(_ context.Context, in TurnInput) (*TurnOutcome, error) {
			histories = append(histories, in.History)
			if len(histories) == 1 {
				return &TurnOutcome{
					Items: []message.Item{message.AssistantMessage("partial")},
					Usage: &usage.Usage{Requests: 1},
				}, NewTransportError(errors.New("503"))
			}
			return &TurnOutcome{
				Items:       []message.Item{message.AssistantMessage("ok")},
				Usage:       &usage.Usage{Requests: 1},
				FinalOutput: "ok",
			}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", result.FinalOutput)
		assert.Empty(t, result.Handled)
		assert.Equal(t, uint64(1), result.Turns)
		assert.Equal(t, uint64(2), result.Usage.Requests)

		require.Len(t, histories, 2)
		assert.Equal(t, histories[0], histories[1])
		require.Len(t, result.History, 2)
		assert.Equal(t, "ok", result.History[1].Text())
	})

	t.Run("falls back after retries", func(t *testing.T) {
		m := NewConversationManager(&Agent{Name: "a"},
			WithErrorHandler(&ErrorHandler{Strategy: RetryOnce, MaxRetries: 2, RetryFallback: GracefulDegradation}))
		calls := 0
		result, err := m.Run(t.Context(), func(context.Context, TurnInput) (*TurnOutcome, error) {
			calls++
			return nil, ModelBehaviorErrorf("tool nope not found")
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.True(t, result.Degraded)
		require.Len(t, result.Handled, 1)
		assert.Equal(t, 3, result.Handled[0].Attempts)
	})

	t.Run("non-retryable failure runs once", func(t *testing.T) {
		m := NewConversationManager(&Agent{Name: "a"},
			WithErrorHandler(&ErrorHandler{Strategy: RetryOnce}))
		calls := 0
		_, err := m.Run(t.Context(), func(context.Context, TurnInput) (*TurnOutcome, error) {
			calls++
			return nil, NewInputGuardrailTripwireTriggeredError(InputGuardrailResult{})
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
