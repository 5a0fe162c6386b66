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
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/nlpodyssey/agentflow/types/optional"
)

// NewFunctionTool creates a FunctionTool with automatic JSON schema generation
// from the argument type T.
//
// The schema honors `json` and `jsonschema` struct tags, e.g.
// `jsonschema:"enum=celsius,enum=fahrenheit"`, and is strict by default.
// The handler result is JSON-encoded unless it is already a string.
//
// The context passed to the handler carries the run context wrapper
// (see runcontext.FromContext) and the tool call data (see ToolDataFromContext).
//
// Example:
//
//	type WeatherArgs struct {
//	    City string `json:"city"`
//	}
//
//	func getWeather(ctx context.Context, args WeatherArgs) (string, error) {
//	    return "sunny", nil
//	}
//
//	tool := agents.NewFunctionTool("get_weather", "Get current weather", getWeather)
func NewFunctionTool[T, R any](name string, description string, handler func(ctx context.Context, args T) (R, error)) FunctionTool {
	var zero T
	return FunctionTool{
		Name:             name,
		Description:      description,
		ParamsJSONSchema: reflectParamsSchema(&zero),
		StrictJSONSchema: optional.Value(true),
		OnInvokeTool: func(ctx context.Context, arguments string) (any, error) {
			var args T
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse arguments: %w", err)
			}
			result, err := handler(ctx, args)
			if err != nil {
				return nil, err
			}
			if s, ok := any(result).(string); ok {
				return s, nil
			}
			out, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("failed to encode tool result: %w", err)
			}
			return string(out), nil
		},
	}
}

func reflectParamsSchema(v any) map[string]any {
	reflector := &jsonschema.Reflector{
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: false,
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(v)

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return emptyObjectSchema()
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil || schemaMap == nil {
		return emptyObjectSchema()
	}
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")
	return schemaMap
}

func emptyObjectSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]any{},
		"required":             []string{},
	}
}
