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

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/computer"
	"github.com/nlpodyssey/agentflow/types/message"
)

func GetTextInputItem(content string) message.Item {
	return message.UserMessage(content)
}

func GetTextMessage(content string) message.Item {
	return message.Item{
		Type:   message.TypeMessage,
		ID:     "1",
		Role:   message.RoleAssistant,
		Status: "completed",
		Content: []message.Content{{
			Type: message.ContentOutputText,
			Text: content,
		}},
	}
}

func GetFunctionTool(name string, returnValue string) agents.FunctionTool {
	return agents.FunctionTool{
		Name:             name,
		ParamsJSONSchema: emptyArgsSchema(name),
		OnInvokeTool: func(context.Context, string) (any, error) {
			return returnValue, nil
		},
	}
}

func GetFunctionToolErr(name string, returnErr error) agents.FunctionTool {
	return agents.FunctionTool{
		Name:             name,
		ParamsJSONSchema: emptyArgsSchema(name),
		OnInvokeTool: func(context.Context, string) (any, error) {
			return nil, returnErr
		},
	}
}

func emptyArgsSchema(name string) map[string]any {
	return map[string]any{
		"title":                name + "_args",
		"type":                 "object",
		"required":             []string{},
		"additionalProperties": false,
		"properties":           map[string]any{},
	}
}

// GetFunctionToolCall returns a function call. The call ID defaults to "2".
func GetFunctionToolCall(name string, arguments string, callID ...string) message.Item {
	id := "2"
	if len(callID) > 0 {
		id = callID[0]
	}
	return message.Item{
		Type:      message.TypeFunctionCall,
		ID:        "1",
		CallID:    id,
		Name:      name,
		Arguments: arguments,
	}
}

func GetHandoffToolCall(toAgent *agents.Agent, overrideName string, args string) message.Item {
	name := overrideName
	if name == "" {
		name = agents.DefaultHandoffToolName(toAgent)
	}
	return GetFunctionToolCall(name, args)
}

func GetFinalOutputMessage(args string) message.Item {
	return GetTextMessage(args)
}

func GetComputerCall(callID string, action message.Action) message.Item {
	return message.Item{
		Type:   message.TypeComputerCall,
		ID:     "1",
		CallID: callID,
		Action: &action,
		Status: "completed",
	}
}

func GetLocalShellCall(callID string, command ...string) message.Item {
	return message.Item{
		Type:   message.TypeLocalShellCall,
		ID:     "1",
		CallID: callID,
		Action: &message.Action{Type: "exec", Command: command},
		Status: "completed",
	}
}

// FakeComputer records the actions it performs.
type FakeComputer struct {
	Actions []string
}

func (c *FakeComputer) Environment(context.Context) (computer.Environment, error) {
	return computer.EnvironmentBrowser, nil
}

func (c *FakeComputer) Dimensions(context.Context) (computer.Dimensions, error) {
	return computer.Dimensions{Width: 1024, Height: 768}, nil
}

func (c *FakeComputer) Screenshot(context.Context) (string, error) {
	c.Actions = append(c.Actions, "screenshot")
	return "c2NyZWVu", nil
}

func (c *FakeComputer) Click(_ context.Context, _, _ int64, button computer.Button) error {
	c.Actions = append(c.Actions, "click:"+string(button))
	return nil
}

func (c *FakeComputer) DoubleClick(context.Context, int64, int64) error {
	c.Actions = append(c.Actions, "double_click")
	return nil
}

func (c *FakeComputer) Scroll(context.Context, int64, int64, int64, int64) error {
	c.Actions = append(c.Actions, "scroll")
	return nil
}

func (c *FakeComputer) Type(_ context.Context, text string) error {
	c.Actions = append(c.Actions, "type:"+text)
	return nil
}

func (c *FakeComputer) Wait(context.Context) error {
	c.Actions = append(c.Actions, "wait")
	return nil
}

func (c *FakeComputer) Move(context.Context, int64, int64) error {
	c.Actions = append(c.Actions, "move")
	return nil
}

func (c *FakeComputer) Keypress(context.Context, []string) error {
	c.Actions = append(c.Actions, "keypress")
	return nil
}

func (c *FakeComputer) Drag(context.Context, []computer.Position) error {
	c.Actions = append(c.Actions, "drag")
	return nil
}
