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

package eventsink_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/agentstesting"
	"github.com/nlpodyssey/agentflow/eventsink"
	"github.com/nlpodyssey/agentflow/types/message"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (p *recordingPublisher) events(t *testing.T) []eventsink.Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]eventsink.Event, len(p.msgs))
	for i, m := range p.msgs {
		require.NoError(t, json.Unmarshal(m.msg.Body, &events[i]))
		assert.Equal(t, "agentflow."+string(events[i].Type), m.key)
		assert.Equal(t, "application/json", m.msg.ContentType)
		assert.Equal(t, events[i].ID, m.msg.MessageId)
	}
	return events
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func TestAMQPHooks_ToolRun(t *testing.T) {
	publisher := &recordingPublisher{}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	hooks := &eventsink.AMQPHooks{
		Publisher: publisher,
		Exchange:  "events",
		Now:       func() time.Time { return at },
	}

	model := agentstesting.NewFakeModel(nil)
	model.AddMultipleTurnOutputs([]agentstesting.FakeModelTurnOutput{
		{Value: []message.Item{agentstesting.GetFunctionToolCall("lookup", "{}")}},
		{Value: []message.Item{agentstesting.GetTextMessage("done")}},
	})
	agent := agents.New("support").
		WithModelInstance(model).
		WithTools(agentstesting.GetFunctionTool("lookup", "found"))

	runner := agents.Runner{Config: agents.RunConfig{Hooks: hooks}}
	_, err := runner.Run(t.Context(), agent, "hi")
	require.NoError(t, err)

	events := publisher.events(t)
	require.Len(t, events, 4)

	var types []eventsink.EventType
	for _, e := range events {
		types = append(types, e.Type)
		assert.Equal(t, "support", e.Agent)
		assert.True(t, at.Equal(e.Time))
		assert.NotEmpty(t, e.ID)
	}
	assert.Equal(t, []eventsink.EventType{
		eventsink.EventAgentStart,
		eventsink.EventToolStart,
		eventsink.EventToolEnd,
		eventsink.EventAgentEnd,
	}, types)
	assert.Equal(t, "lookup", events[1].Tool)
	assert.Equal(t, "found", events[2].Output)
	assert.Equal(t, "done", events[3].Output)

	for _, m := range publisher.msgs {
		assert.Equal(t, "events", m.exchange)
	}
}

func TestAMQPHooks_Handoff(t *testing.T) {
	publisher := &recordingPublisher{}
	hooks := &eventsink.AMQPHooks{Publisher: publisher, Exchange: "events"}

	model := agentstesting.NewFakeModel(nil)
	billing := agents.New("billing").WithModelInstance(model)
	triage := agents.New("triage").WithModelInstance(model).WithAgentHandoffs(billing)
	model.AddMultipleTurnOutputs([]agentstesting.FakeModelTurnOutput{
		{Value: []message.Item{agentstesting.GetHandoffToolCall(billing, "", "")}},
		{Value: []message.Item{agentstesting.GetTextMessage("refunded")}},
	})

	runner := agents.Runner{Config: agents.RunConfig{Hooks: hooks}}
	result, err := runner.Run(t.Context(), triage, "refund please")
	require.NoError(t, err)
	assert.Same(t, billing, result.LastAgent)

	events := publisher.events(t)
	require.Len(t, events, 4)
	assert.Equal(t, eventsink.EventAgentStart, events[0].Type)
	assert.Equal(t, "triage", events[0].Agent)
	assert.Equal(t, eventsink.EventHandoff, events[1].Type)
	assert.Equal(t, "triage", events[1].Agent)
	assert.Equal(t, "billing", events[1].Target)
	assert.Equal(t, eventsink.EventAgentStart, events[2].Type)
	assert.Equal(t, "billing", events[2].Agent)
	assert.Equal(t, eventsink.EventAgentEnd, events[3].Type)
}

func TestAMQPHooks_PublishFailure(t *testing.T) {
	newRun := func(hooks agents.RunHooks) (*agents.RunResult, error) {
		model := agentstesting.NewFakeModel(&agentstesting.FakeModelTurnOutput{
			Value: []message.Item{agentstesting.GetTextMessage("ok")},
		})
		agent := agents.New("a").WithModelInstance(model)
		return agents.Runner{Config: agents.RunConfig{Hooks: hooks}}.Run(t.Context(), agent, "hi")
	}

	t.Run("logged by default", func(t *testing.T) {
		publisher := new(MockPublisher)
		publisher.On("PublishWithContext", mock.Anything, "ex", mock.Anything, false, false, mock.Anything).
			Return(errors.New("channel closed"))

		result, err := newRun(&eventsink.AMQPHooks{Publisher: publisher, Exchange: "ex"})
		require.NoError(t, err)
		assert.Equal(t, "ok", result.FinalOutput)
		publisher.AssertNumberOfCalls(t, "PublishWithContext", 2)
	})

	t.Run("fail on error", func(t *testing.T) {
		publisher := new(MockPublisher)
		publisher.On("PublishWithContext", mock.Anything, "ex", "agentflow.agent_start", false, false, mock.Anything).
			Return(errors.New("channel closed"))

		_, err := newRun(&eventsink.AMQPHooks{Publisher: publisher, Exchange: "ex", FailOnError: true})
		require.Error(t, err)
		assert.ErrorContains(t, err, "failed to publish agent_start event: channel closed")
		publisher.AssertExpectations(t)
	})
}

func TestDialAMQP_RequiresURL(t *testing.T) {
	_, err := eventsink.DialAMQP("", "x")
	assert.ErrorContains(t, err, "RabbitMQ URL is required")
}
