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

// Package eventsink publishes agent lifecycle events to RabbitMQ.
package eventsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nlpodyssey/agentflow/agents"
	amqp "github.com/rabbitmq/amqp091-go"
)

type EventType string

const (
	EventAgentStart EventType = "agent_start"
	EventAgentEnd   EventType = "agent_end"
	EventHandoff    EventType = "handoff"
	EventToolStart  EventType = "tool_start"
	EventToolEnd    EventType = "tool_end"
)

// Event is the JSON body of every published message.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	Agent  string    `json:"agent"`
	Target string    `json:"target,omitempty"`
	Tool   string    `json:"tool,omitempty"`
	Output string    `json:"output,omitempty"`
	Time   time.Time `json:"time"`
}

// Publisher is satisfied by *amqp.Channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPHooks is an agents.RunHooks publishing one message per lifecycle event.
// Routing keys have the form "agentflow.<event type>".
type AMQPHooks struct {
	Publisher Publisher
	Exchange  string

	// Optional logger for publish failures.
	Logger *slog.Logger

	// When true, a failed publish is returned to the run and aborts it.
	// Otherwise it is only logged.
	FailOnError bool

	// Optional clock, mainly for testing.
	Now func() time.Time
}

var _ agents.RunHooks = (*AMQPHooks)(nil)

func (h *AMQPHooks) OnAgentStart(ctx context.Context, agent *agents.Agent) error {
	return h.publish(ctx, Event{Type: EventAgentStart, Agent: agent.Name})
}

func (h *AMQPHooks) OnAgentEnd(ctx context.Context, agent *agents.Agent, output any) error {
	return h.publish(ctx, Event{Type: EventAgentEnd, Agent: agent.Name, Output: fmt.Sprint(output)})
}

func (h *AMQPHooks) OnHandoff(ctx context.Context, fromAgent, toAgent *agents.Agent) error {
	return h.publish(ctx, Event{Type: EventHandoff, Agent: fromAgent.Name, Target: toAgent.Name})
}

func (h *AMQPHooks) OnToolStart(ctx context.Context, agent *agents.Agent, tool agents.Tool) error {
	return h.publish(ctx, Event{Type: EventToolStart, Agent: agent.Name, Tool: tool.ToolName()})
}

func (h *AMQPHooks) OnToolEnd(ctx context.Context, agent *agents.Agent, tool agents.Tool, result any) error {
	return h.publish(ctx, Event{Type: EventToolEnd, Agent: agent.Name, Tool: tool.ToolName(), Output: fmt.Sprint(result)})
}

func (h *AMQPHooks) publish(ctx context.Context, event Event) error {
	event.ID = uuid.NewString()
	if h.Now != nil {
		event.Time = h.Now().UTC()
	} else {
		event.Time = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	err = h.Publisher.PublishWithContext(ctx, h.Exchange, "agentflow."+string(event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Time,
		Body:         body,
	})
	if err == nil {
		return nil
	}
	if h.FailOnError {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	if h.Logger != nil {
		h.Logger.Warn("Failed to publish lifecycle event",
			slog.String("eventType", string(event.Type)),
			slog.String("agentName", event.Agent),
			slog.String("error", err.Error()))
	}
	return nil
}

// Sink owns the RabbitMQ connection behind its Hooks.
type Sink struct {
	Hooks *AMQPHooks
	conn  *amqp.Connection
	ch    *amqp.Channel
}

// DialAMQP connects to RabbitMQ and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*Sink, error) {
	if url == "" {
		return nil, errors.New("RabbitMQ URL is required")
	}
	if exchange == "" {
		exchange = "agentflow.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open RabbitMQ channel: %w", err), conn.Close())
	}
	if err = ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to declare RabbitMQ exchange: %w", err), ch.Close(), conn.Close())
	}
	return &Sink{
		Hooks: &AMQPHooks{Publisher: ch, Exchange: exchange},
		conn:  conn,
		ch:    ch,
	}, nil
}

func (s *Sink) Close() error {
	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
