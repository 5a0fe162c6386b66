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
)

// RunHooks receives callbacks on lifecycle events of a run.
type RunHooks interface {
	// OnAgentStart is called before the agent is invoked, each time the current agent changes.
	OnAgentStart(ctx context.Context, agent *Agent) error

	// OnAgentEnd is called when the agent produces a final output.
	OnAgentEnd(ctx context.Context, agent *Agent, output any) error

	// OnHandoff is called when a handoff is committed.
	OnHandoff(ctx context.Context, fromAgent, toAgent *Agent) error

	// OnToolStart is called before a tool is invoked.
	OnToolStart(ctx context.Context, agent *Agent, tool Tool) error

	// OnToolEnd is called after a tool is invoked, with its output.
	OnToolEnd(ctx context.Context, agent *Agent, tool Tool, result any) error
}

// NoOpRunHooks can be embedded to implement only a subset of RunHooks.
type NoOpRunHooks struct{}

func (NoOpRunHooks) OnAgentStart(context.Context, *Agent) error         { return nil }
func (NoOpRunHooks) OnAgentEnd(context.Context, *Agent, any) error      { return nil }
func (NoOpRunHooks) OnHandoff(context.Context, *Agent, *Agent) error    { return nil }
func (NoOpRunHooks) OnToolStart(context.Context, *Agent, Tool) error    { return nil }
func (NoOpRunHooks) OnToolEnd(context.Context, *Agent, Tool, any) error { return nil }

// AgentHooks receives callbacks on lifecycle events of a specific agent.
// Set it on Agent.Hooks.
type AgentHooks interface {
	// OnStart is called each time the running agent is changed to this agent.
	OnStart(ctx context.Context, agent *Agent) error

	// OnEnd is called when the agent produces a final output.
	OnEnd(ctx context.Context, agent *Agent, output any) error

	// OnHandoff is called when the agent is being handed off to.
	// The source is the agent that is handing off to this agent.
	OnHandoff(ctx context.Context, agent, source *Agent) error

	OnToolStart(ctx context.Context, agent *Agent, tool Tool) error
	OnToolEnd(ctx context.Context, agent *Agent, tool Tool, result any) error
}

// runHooksList fans a lifecycle event out to several RunHooks, in order.
type runHooksList []RunHooks

// MultiRunHooks combines several RunHooks. Nil entries are skipped.
func MultiRunHooks(hooks ...RunHooks) RunHooks {
	var list runHooksList
	for _, h := range hooks {
		if h != nil {
			list = append(list, h)
		}
	}
	return list
}

func (l runHooksList) each(fn func(RunHooks) error) error {
	for _, h := range l {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

func (l runHooksList) OnAgentStart(ctx context.Context, agent *Agent) error {
	return l.each(func(h RunHooks) error { return h.OnAgentStart(ctx, agent) })
}

func (l runHooksList) OnAgentEnd(ctx context.Context, agent *Agent, output any) error {
	return l.each(func(h RunHooks) error { return h.OnAgentEnd(ctx, agent, output) })
}

func (l runHooksList) OnHandoff(ctx context.Context, fromAgent, toAgent *Agent) error {
	return l.each(func(h RunHooks) error { return h.OnHandoff(ctx, fromAgent, toAgent) })
}

func (l runHooksList) OnToolStart(ctx context.Context, agent *Agent, tool Tool) error {
	return l.each(func(h RunHooks) error { return h.OnToolStart(ctx, agent, tool) })
}

func (l runHooksList) OnToolEnd(ctx context.Context, agent *Agent, tool Tool, result any) error {
	return l.each(func(h RunHooks) error { return h.OnToolEnd(ctx, agent, tool, result) })
}
