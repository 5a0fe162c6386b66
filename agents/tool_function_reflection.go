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
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/matteo-grella/dwarfreflect"
	"github.com/nlpodyssey/agentflow/types/optional"
	"github.com/nlpodyssey/agentflow/util/transforms"
	"github.com/stoewer/go-strcase"
)

// NewFunctionToolAny creates a FunctionTool from an arbitrary function,
// reading parameter names from DWARF debug info. Binaries stripped with
// -ldflags="-w" cannot be inspected and yield an error.
//
// context.Context parameters may appear in any position: they are excluded
// from the schema and injected on call. When name is empty it is derived from
// the function name, using the naming convention selected by the
// AGENTFLOW_NAMING_CONVENTION environment variable ("snake_case" by default).
func NewFunctionToolAny(name string, description string, handler any) (FunctionTool, error) {
	fn, err := dwarfreflect.NewFunction(handler)
	if err != nil {
		return FunctionTool{}, fmt.Errorf("failed to inspect tool function: %w", err)
	}

	if name == "" {
		name = transforms.ToCase(fn.GetBaseFunctionName())
	}

	argStructType := fn.GetNonContextStructTypeWithOptions(reflectedStructOptions())
	argParamNames, _ := fn.GetNonContextParameters()
	extract := reflectedResultExtractor(fn)

	schema := emptyObjectSchema()
	if len(argParamNames) > 0 {
		schema = reflectedParamsSchema(argStructType, fn.GetBaseFunctionName())
	}

	return FunctionTool{
		Name:             name,
		Description:      description,
		ParamsJSONSchema: schema,
		StrictJSONSchema: optional.Value(true),
		OnInvokeTool: func(ctx context.Context, arguments string) (any, error) {
			if len(argParamNames) == 0 {
				results, err := fn.CallWithContext(ctx)
				if err != nil {
					return nil, err
				}
				return extract(results)
			}

			argStructPtr := reflect.New(argStructType)
			if err := json.Unmarshal([]byte(arguments), argStructPtr.Interface()); err != nil {
				return nil, fmt.Errorf("failed to parse arguments: %w", err)
			}
			results, err := fn.CallWithNonContextStructAndContext(ctx, argStructPtr.Elem().Interface())
			if err != nil {
				return nil, err
			}
			return extract(results)
		},
	}, nil
}

func reflectedStructOptions() dwarfreflect.StructOptions {
	return dwarfreflect.StructOptions{
		FieldNamer: strcase.UpperCamelCase,
		TagBuilder: func(paramName string, paramType reflect.Type) string {
			tag := fmt.Sprintf(`json:"%s"`, transforms.ToCase(paramName))
			if constraints := jsonSchemaConstraints(paramType); constraints != "" {
				tag += fmt.Sprintf(` jsonschema:"%s"`, constraints)
			}
			return tag
		},
	}
}

func reflectedParamsSchema(structType reflect.Type, functionName string) map[string]any {
	reflector := &jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Namer: func(t reflect.Type) string {
			if t == structType {
				return functionName + "Params"
			}
			return t.Name()
		},
	}

	b, err := json.Marshal(reflector.ReflectFromType(structType))
	if err != nil {
		return emptyObjectSchema()
	}
	var schema map[string]any
	if err := json.Unmarshal(b, &schema); err != nil || schema == nil {
		return emptyObjectSchema()
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema
}

// reflectedResultExtractor maps the returned values to a single output and error.
// A trailing error return is honored; multiple values become a slice.
func reflectedResultExtractor(fn *dwarfreflect.Function) func([]reflect.Value) (any, error) {
	_, lastIsError := fn.GetReturnInfo()

	return func(results []reflect.Value) (any, error) {
		values := results
		if lastIsError && len(results) > 0 {
			last := results[len(results)-1]
			values = results[:len(results)-1]
			if !last.IsNil() {
				err, _ := last.Interface().(error)
				return valuesToOutput(values), err
			}
		}
		return valuesToOutput(values), nil
	}
}

func valuesToOutput(values []reflect.Value) any {
	switch len(values) {
	case 0:
		return nil
	case 1:
		return values[0].Interface()
	default:
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = v.Interface()
		}
		return out
	}
}

func jsonSchemaConstraints(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "type=integer"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "type=integer,minimum=0"
	case reflect.Float32, reflect.Float64:
		return "type=number"
	case reflect.Bool:
		return "type=boolean"
	case reflect.Slice:
		return "type=array"
	case reflect.Map:
		return "type=object"
	default:
		return ""
	}
}
