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

// Package openaitypes converts between conversation items and the
// Responses API types of the openai-go client.
package openaitypes

import (
	"encoding/json"
	"fmt"

	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared/constant"
)

// ItemFromOutput decodes a response output item into a message.Item.
func ItemFromOutput(output responses.ResponseOutputItemUnion) (message.Item, error) {
	raw := output.RawJSON()
	if raw == "" {
		data, err := json.Marshal(output)
		if err != nil {
			return message.Item{}, fmt.Errorf("failed to encode output item: %w", err)
		}
		raw = string(data)
	}
	var item message.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return message.Item{}, fmt.Errorf("failed to decode output item of type %q: %w", output.Type, err)
	}
	return item, nil
}

func ItemsFromOutputs(outputs []responses.ResponseOutputItemUnion) ([]message.Item, error) {
	items := make([]message.Item, 0, len(outputs))
	for _, output := range outputs {
		item, err := ItemFromOutput(output)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// InputParam renders an item in the wire shape accepted as Responses API
// input. Messages are flattened to the easy input form, with plain string
// content, so assistant turns can be replayed without annotations.
func InputParam(item message.Item) (map[string]any, error) {
	if item.Type == message.TypeMessage {
		role := item.Role
		if role == "" {
			role = message.RoleUser
		}
		text := item.Text()
		if text == "" {
			text = item.Refusal()
		}
		return map[string]any{
			"type":    string(message.TypeMessage),
			"role":    string(role),
			"content": text,
		}, nil
	}

	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input item of type %q: %w", item.Type, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode input item of type %q: %w", item.Type, err)
	}

	if item.Type == message.TypeComputerCallOutput {
		m["output"] = map[string]any{
			"type":      "computer_screenshot",
			"image_url": item.Output,
		}
	}
	return m, nil
}

func InputParams(items []message.Item) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, err := InputParam(item)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func FunctionToolParam(name, description string, schema map[string]any, strict bool) responses.ToolUnionParam {
	return responses.ToolUnionParam{
		OfFunction: &responses.FunctionToolParam{
			Name:        name,
			Parameters:  schema,
			Strict:      param.NewOpt(strict),
			Description: makeOpt(description),
			Type:        constant.ValueOf[constant.Function](),
		},
	}
}

func ComputerToolParam(width, height int64, environment string) responses.ToolUnionParam {
	return responses.ToolUnionParam{
		OfComputerUsePreview: &responses.ComputerToolParam{
			DisplayHeight: height,
			DisplayWidth:  width,
			Environment:   responses.ComputerToolEnvironment(environment),
			Type:          constant.ValueOf[constant.ComputerUsePreview](),
		},
	}
}

func LocalShellToolParam() responses.ToolUnionParam {
	return responses.ToolUnionParam{
		OfLocalShell: &responses.ToolLocalShellParam{
			Type: constant.ValueOf[constant.LocalShell](),
		},
	}
}

func makeOpt[T comparable](v T) param.Opt[T] {
	var zero T
	if v == zero {
		return param.Opt[T]{}
	}
	return param.NewOpt(v)
}
