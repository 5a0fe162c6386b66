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

// Package message defines the wire-neutral conversation item exchanged
// between the run loop, model adapters and session storage.
//
// An Item follows the shape of the Responses API items: a type discriminator
// plus the fields relevant to that type. Only the fields used by a given
// type are set; the rest are left at their zero value and omitted from JSON.
package message

import (
	"strings"

	"github.com/google/uuid"
)

type Type string

const (
	TypeMessage              Type = "message"
	TypeFunctionCall         Type = "function_call"
	TypeFunctionCallOutput   Type = "function_call_output"
	TypeComputerCall         Type = "computer_call"
	TypeComputerCallOutput   Type = "computer_call_output"
	TypeLocalShellCall       Type = "local_shell_call"
	TypeLocalShellCallOutput Type = "local_shell_call_output"
	TypeReasoning            Type = "reasoning"

	// Calls to tools hosted and executed by the model provider.
	TypeFileSearchCall      Type = "file_search_call"
	TypeWebSearchCall       Type = "web_search_call"
	TypeImageGenerationCall Type = "image_generation_call"
	TypeCodeInterpreterCall Type = "code_interpreter_call"
	TypeMCPCall             Type = "mcp_call"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
)

// Content types used in Content.Type.
const (
	ContentInputText   = "input_text"
	ContentOutputText  = "output_text"
	ContentRefusal     = "refusal"
	ContentSummaryText = "summary_text"
)

type Item struct {
	Type   Type   `json:"type"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`

	// Messages.
	Role    Role      `json:"role,omitempty"`
	Content []Content `json:"content,omitempty"`

	// Tool calls and their outputs.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`

	// Computer and local shell calls.
	Action              *Action       `json:"action,omitempty"`
	PendingSafetyChecks []SafetyCheck `json:"pending_safety_checks,omitempty"`

	// Reasoning.
	Summary []Content `json:"summary,omitempty"`
}

type Content struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

// Action describes a computer action or a local shell command.
type Action struct {
	Type string `json:"type"`

	// Computer actions.
	X       int64    `json:"x,omitempty"`
	Y       int64    `json:"y,omitempty"`
	Button  string   `json:"button,omitempty"`
	Keys    []string `json:"keys,omitempty"`
	Text    string   `json:"text,omitempty"`
	ScrollX int64    `json:"scroll_x,omitempty"`
	ScrollY int64    `json:"scroll_y,omitempty"`
	Path    []Point  `json:"path,omitempty"`

	// Local shell ("exec") actions.
	Command          []string          `json:"command,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	TimeoutMs        int64             `json:"timeout_ms,omitempty"`
	User             string            `json:"user,omitempty"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
}

type Point struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

type SafetyCheck struct {
	ID      string `json:"id"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewID returns a fresh item identifier.
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func UserMessage(text string) Item {
	return textMessage(RoleUser, ContentInputText, text)
}

func SystemMessage(text string) Item {
	return textMessage(RoleSystem, ContentInputText, text)
}

func AssistantMessage(text string) Item {
	item := textMessage(RoleAssistant, ContentOutputText, text)
	item.ID = NewID("msg")
	item.Status = "completed"
	return item
}

func textMessage(role Role, contentType, text string) Item {
	return Item{
		Type:    TypeMessage,
		Role:    role,
		Content: []Content{{Type: contentType, Text: text}},
	}
}

func FunctionCall(callID, name, arguments string) Item {
	return Item{
		Type:      TypeFunctionCall,
		ID:        NewID("fc"),
		CallID:    callID,
		Name:      name,
		Arguments: arguments,
	}
}

func FunctionCallOutput(callID, output string) Item {
	return Item{Type: TypeFunctionCallOutput, CallID: callID, Output: output}
}

// ComputerCallOutput carries a screenshot, encoded as an image URL.
func ComputerCallOutput(callID, imageURL string) Item {
	return Item{Type: TypeComputerCallOutput, CallID: callID, Output: imageURL}
}

func LocalShellCallOutput(callID, output string) Item {
	return Item{Type: TypeLocalShellCallOutput, CallID: callID, Output: output}
}

// Text concatenates the textual content of a message. Refusals are skipped.
func (it Item) Text() string {
	var sb strings.Builder
	for _, c := range it.Content {
		if c.Type == ContentRefusal {
			continue
		}
		sb.WriteString(c.Text)
	}
	return sb.String()
}

// Refusal returns the refusal text of a message, if any.
func (it Item) Refusal() string {
	for _, c := range it.Content {
		if c.Type == ContentRefusal {
			if c.Refusal != "" {
				return c.Refusal
			}
			return c.Text
		}
	}
	return ""
}

func (it Item) IsMessage() bool { return it.Type == TypeMessage }

// IsToolCall reports whether the item is a call the model asked to run,
// including calls to provider-hosted tools.
func (it Item) IsToolCall() bool {
	switch it.Type {
	case TypeFunctionCall, TypeComputerCall, TypeLocalShellCall:
		return true
	}
	return it.IsHostedToolCall()
}

// IsHostedToolCall reports whether the item is a call already executed by the
// model provider.
func (it Item) IsHostedToolCall() bool {
	switch it.Type {
	case TypeFileSearchCall, TypeWebSearchCall, TypeImageGenerationCall, TypeCodeInterpreterCall, TypeMCPCall:
		return true
	}
	return false
}

// IsToolOutput reports whether the item is the output of a locally executed call.
func (it Item) IsToolOutput() bool {
	switch it.Type {
	case TypeFunctionCallOutput, TypeComputerCallOutput, TypeLocalShellCallOutput:
		return true
	}
	return false
}

// HostedToolName returns the tool name a hosted call is attributed to.
func (it Item) HostedToolName() string {
	switch it.Type {
	case TypeFileSearchCall:
		return "file_search"
	case TypeWebSearchCall:
		return "web_search"
	case TypeImageGenerationCall:
		return "image_generation"
	case TypeCodeInterpreterCall:
		return "code_interpreter"
	case TypeMCPCall:
		return "mcp"
	}
	return ""
}
