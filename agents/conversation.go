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
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/usage"
)

// DefaultMaxTurns is the per-agent turn budget used when neither the
// ConversationManager nor the agent sets one.
const DefaultMaxTurns = 10

// StopSignal asks a running conversation to stop at the next turn boundary.
// In-flight turns are allowed to complete. A nil *StopSignal never stops.
type StopSignal struct {
	stopped atomic.Bool
}

func NewStopSignal() *StopSignal { return new(StopSignal) }

func (s *StopSignal) Stop() { s.stopped.Store(true) }

func (s *StopSignal) Stopped() bool {
	return s != nil && s.stopped.Load()
}

// Reset clears the signal so that the conversation can be resumed.
func (s *StopSignal) Reset() { s.stopped.Store(false) }

type TurnInput struct {
	// The active agent.
	Agent *Agent

	// A copy of the conversation so far.
	History []message.Item

	// The turn number for the active agent, starting at 1.
	Turn uint64
}

// TurnOutcome is what a single turn produced.
type TurnOutcome struct {
	// Items to append to the history.
	Items []message.Item

	// Usage of the turn, accumulated by the manager.
	Usage *usage.Usage

	// When set, the conversation continues with this agent and a fresh turn budget.
	HandoffTo *Agent

	// Whether another turn of the same agent is needed.
	Continue bool

	// The result of the conversation, when it ends with this turn.
	FinalOutput any

	// When non-nil, replaces the history before Items are appended.
	HistoryOverride []message.Item
}

// TurnFunc performs one turn: typically a model call followed by a step.
// When it fails after producing items, it may return a partial outcome
// together with the error; its items and usage are kept.
type TurnFunc func(ctx context.Context, input TurnInput) (*TurnOutcome, error)

type ConversationResult struct {
	FinalOutput any
	LastAgent   *Agent
	History     []message.Item
	Usage       *usage.Usage

	// Total turns across all agents.
	Turns uint64

	// Errors converted by the error handler, in order.
	Handled []*HandledError

	// Whether FinalOutput is a degraded message.
	Degraded bool
}

// ConversationManager drives turns for a sequence of agents. The turn
// budget applies to the active agent and is reset by every handoff.
type ConversationManager struct {
	Agent *Agent

	// Per-agent budget. Zero means Agent.MaxTurns, then DefaultMaxTurns.
	MaxTurns uint64

	Stop *StopSignal

	// Optional. Failures are returned to the caller when nil.
	ErrorHandler *ErrorHandler

	Logger *slog.Logger

	// The conversation so far. It is updated by Run.
	History []message.Item

	// Accumulated usage. It is created by Run when nil.
	Usage *usage.Usage
}

type ConversationOption func(*ConversationManager)

func WithMaxTurns(n uint64) ConversationOption {
	return func(m *ConversationManager) { m.MaxTurns = n }
}

func WithStopSignal(s *StopSignal) ConversationOption {
	return func(m *ConversationManager) { m.Stop = s }
}

func WithErrorHandler(h *ErrorHandler) ConversationOption {
	return func(m *ConversationManager) { m.ErrorHandler = h }
}

func WithLogger(l *slog.Logger) ConversationOption {
	return func(m *ConversationManager) { m.Logger = l }
}

// WithHistory seeds the conversation.
func WithHistory(items []message.Item) ConversationOption {
	return func(m *ConversationManager) { m.History = slices.Clone(items) }
}

func NewConversationManager(agent *Agent, opts ...ConversationOption) *ConversationManager {
	m := &ConversationManager{Agent: agent}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Explanatory messages appended to the history before a run ends abnormally.
const (
	executionStoppedMessage = "Execution stopped by caller."
	maxTurnsMessageFormat   = "Maximum turns (%d) exceeded for agent %s."
	runFailedMessageFormat  = "Run failed: %v"
)

// Run executes turns until one ends the conversation, a limit is hit, or the
// stop signal is observed.
func (m *ConversationManager) Run(ctx context.Context, turn TurnFunc) (*ConversationResult, error) {
	if m.Agent == nil {
		return nil, NewUserError("conversation agent must not be nil")
	}
	if m.Usage == nil {
		m.Usage = usage.NewUsage()
	}

	logger := loggerOrNop(m.Logger)
	handler := m.ErrorHandler
	if handler == nil {
		handler = &ErrorHandler{Strategy: FailFast, Logger: m.Logger}
	}

	r := &conversationRun{m: m, handler: handler, agent: m.Agent}

	for {
		if m.Stop.Stopped() {
			m.appendAssistant(executionStoppedMessage)
			return r.fail(ctx, NewExecutionStoppedError("execution stopped by caller"))
		}
		if err := ctx.Err(); err != nil {
			m.appendAssistant(fmt.Sprintf(runFailedMessageFormat, err))
			return r.fail(ctx, err)
		}

		budget := m.maxTurnsFor(r.agent)
		r.agentTurn++
		if r.agentTurn > budget {
			m.appendAssistant(fmt.Sprintf(maxTurnsMessageFormat, budget, r.agent.Name))
			return r.fail(ctx, MaxTurnsExceededErrorf("max turns %d exceeded for agent %s", budget, r.agent.Name))
		}
		r.totalTurns++

		logger.Debug("Running turn",
			slog.String("agentName", r.agent.Name),
			slog.Uint64("turn", r.agentTurn))

		// Under RetryOnce a failed turn is re-run from the same history. Only
		// the usage of the discarded attempts is kept.
		var outcome *TurnOutcome
		handled, err := handler.Wrap(ctx, func(ctx context.Context) error {
			if outcome != nil {
				m.Usage.Add(outcome.Usage)
			}
			var err error
			outcome, err = turn(ctx, TurnInput{
				Agent:   r.agent,
				History: slices.Clone(m.History),
				Turn:    r.agentTurn,
			})
			return err
		})
		if err != nil || handled != nil {
			if outcome != nil {
				m.Usage.Add(outcome.Usage)
				m.History = append(m.History, outcome.Items...)
			}
			if err != nil {
				m.appendAssistant(fmt.Sprintf(runFailedMessageFormat, err))
				return nil, r.errorWithDetails(err)
			}
			r.handled = append(r.handled, handled)
			switch {
			case handled.Degraded:
				m.appendAssistant(handled.Message)
				return r.result(handled.Message, true), nil
			case handled.Continue:
				continue
			default:
				return r.result(nil, false), nil
			}
		}
		if outcome == nil {
			outcome = &TurnOutcome{}
		}

		m.Usage.Add(outcome.Usage)
		if outcome.HistoryOverride != nil {
			m.History = slices.Clone(outcome.HistoryOverride)
		}
		m.History = append(m.History, outcome.Items...)

		if next := outcome.HandoffTo; next != nil {
			logger.Debug("Handoff",
				slog.String("from", r.agent.Name),
				slog.String("to", next.Name))
			r.agent = next
			r.agentTurn = 0
			continue
		}
		if !outcome.Continue {
			return r.result(outcome.FinalOutput, false), nil
		}
	}
}

func (m *ConversationManager) maxTurnsFor(agent *Agent) uint64 {
	switch {
	case m.MaxTurns > 0:
		return m.MaxTurns
	case agent.MaxTurns > 0:
		return agent.MaxTurns
	default:
		return DefaultMaxTurns
	}
}

func (m *ConversationManager) appendAssistant(text string) {
	m.History = append(m.History, message.AssistantMessage(text))
}

// conversationRun is the state of a single ConversationManager.Run call.
type conversationRun struct {
	m          *ConversationManager
	handler    *ErrorHandler
	agent      *Agent
	agentTurn  uint64
	totalTurns uint64
	handled    []*HandledError
}

// fail routes a loop-level failure through the error handler.
func (r *conversationRun) fail(ctx context.Context, err error) (*ConversationResult, error) {
	handled, err := r.handler.Handle(ctx, err)
	if err != nil {
		return nil, r.errorWithDetails(err)
	}
	r.handled = append(r.handled, handled)
	if handled.Degraded {
		r.m.appendAssistant(handled.Message)
		return r.result(handled.Message, true), nil
	}
	return r.result(nil, false), nil
}

func (r *conversationRun) errorWithDetails(err error) error {
	return attachRunData(err, &RunErrorDetails{
		History:   slices.Clone(r.m.History),
		LastAgent: r.agent,
		Usage:     r.m.Usage.Clone(),
	})
}

func (r *conversationRun) result(finalOutput any, degraded bool) *ConversationResult {
	return &ConversationResult{
		FinalOutput: finalOutput,
		LastAgent:   r.agent,
		History:     slices.Clone(r.m.History),
		Usage:       r.m.Usage,
		Turns:       r.totalTurns,
		Handled:     r.handled,
		Degraded:    degraded,
	}
}
