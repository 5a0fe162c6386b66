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
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// OutputTypeInterface describes an agent's output type. Unless the output is
// plain text, it captures the JSON schema of the output and validates/parses
// the JSON produced by the LLM.
type OutputTypeInterface interface {
	// IsPlainText reports whether the output type is plain text (versus a JSON object).
	IsPlainText() bool

	// The Name of the output type.
	Name() string

	// JSONSchema returns the JSON schema of the output.
	// It will only be called if the output type is not plain text.
	JSONSchema() (map[string]any, error)

	// IsStrictJSONSchema reports whether the JSON schema is in strict mode.
	IsStrictJSONSchema() bool

	// ValidateJSON validates a JSON string against the output type, returning
	// the parsed value or an error of kind ErrorKindResponseParsing.
	ValidateJSON(ctx context.Context, jsonStr string) (any, error)
}

type outputTypeImpl[T any] struct {
	// Whether the output is wrapped in an object, for types that cannot be
	// represented as a JSON Schema object.
	isWrapped bool

	outputSchema     map[string]any
	strictJSONSchema bool
	isPlainText      bool
	name             string

	compiled func() (*gojsonschema.Schema, error)
}

type wrappedOutputType[T any] struct {
	Response T `json:"response"`
}

// OutputType creates a new output type for T with default options (strict schema).
// It panics in case of errors. For a safer variant, see SafeOutputType.
func OutputType[T any]() OutputTypeInterface {
	result, err := SafeOutputType[T](defaultOutputTypeOpts)
	if err != nil {
		panic(err)
	}
	return result
}

type OutputTypeOpts struct {
	StrictJSONSchema bool
}

var defaultOutputTypeOpts = OutputTypeOpts{
	StrictJSONSchema: true,
}

// SafeOutputType creates a new output type for T with custom options.
func SafeOutputType[T any](opts OutputTypeOpts) (OutputTypeInterface, error) {
	var zero T
	_, isPlainText := any(zero).(string)

	impl := &outputTypeImpl[T]{
		strictJSONSchema: opts.StrictJSONSchema,
		isPlainText:      isPlainText,
		name:             fmt.Sprintf("%T", zero),
	}

	if isPlainText {
		impl.outputSchema = map[string]any{"type": "string"}
		return impl, nil
	}

	impl.isWrapped = !isStruct[T]()
	reflector := jsonschema.Reflector{
		Anonymous:                 true,
		AllowAdditionalProperties: !opts.StrictJSONSchema,
		ExpandedStruct:            true,
		DoNotReference:            true,
	}

	var valueToReflect any = zero
	if impl.isWrapped {
		valueToReflect = wrappedOutputType[T]{}
	}

	b, err := json.Marshal(reflector.Reflect(valueToReflect))
	if err != nil {
		return nil, fmt.Errorf("failed to JSON-marshal JSON schema: %w", err)
	}
	if err = json.Unmarshal(b, &impl.outputSchema); err != nil {
		return nil, fmt.Errorf("failed to JSON-unmarshal JSON schema: %w", err)
	}
	delete(impl.outputSchema, "$schema")
	delete(impl.outputSchema, "$id")

	impl.compiled = sync.OnceValues(func() (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewGoLoader(impl.outputSchema))
	})
	return impl, nil
}

// isStruct reports whether T is a struct or pointer to struct.
func isStruct[T any]() bool {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func (t *outputTypeImpl[T]) IsPlainText() bool        { return t.isPlainText }
func (t *outputTypeImpl[T]) Name() string             { return t.name }
func (t *outputTypeImpl[T]) IsStrictJSONSchema() bool { return t.strictJSONSchema }

func (t *outputTypeImpl[T]) JSONSchema() (map[string]any, error) {
	if t.isPlainText {
		return nil, NewUserError("output type is plain text, so no JSON schema is available")
	}
	return t.outputSchema, nil
}

func (t *outputTypeImpl[T]) ValidateJSON(ctx context.Context, jsonStr string) (any, error) {
	if t.isPlainText {
		return nil, NewUserError("output type is plain text, so JSON validation is not available")
	}

	schema, err := t.compiled()
	if err != nil {
		return nil, ModelBehaviorErrorf("failed to load and compile output JSON schema: %w", err)
	}
	if err = ValidateJSON(ctx, schema, jsonStr); err != nil {
		return nil, err
	}

	if t.isWrapped {
		var wrappedOutput wrappedOutputType[T]
		if err = json.Unmarshal([]byte(jsonStr), &wrappedOutput); err != nil {
			return nil, ModelBehaviorErrorf("failed to unmarshal JSON output (wrapped): %w", err)
		}
		return wrappedOutput.Response, nil
	}

	var output T
	if err = json.Unmarshal([]byte(jsonStr), &output); err != nil {
		return nil, ModelBehaviorErrorf("failed to unmarshal JSON output: %w", err)
	}
	return output, nil
}

// ValidateJSON validates jsonValue against schema. Failures are reported as
// errors of kind ErrorKindResponseParsing.
func ValidateJSON(_ context.Context, schema *gojsonschema.Schema, jsonValue string) error {
	return validateJSONWithSchema(schema, jsonValue, "JSON")
}

func validateJSONWithSchema(schema *gojsonschema.Schema, jsonValue, subject string) error {
	result, err := schema.Validate(gojsonschema.NewStringLoader(jsonValue))
	if err != nil {
		return ModelBehaviorErrorf("failed to load and validate %s: %w", subject, err)
	}
	if result.Valid() {
		return nil
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%s validation failed with the following errors:", subject)
	for _, e := range result.Errors() {
		_, _ = fmt.Fprintf(&sb, "\n- %s", e)
	}
	return NewModelBehaviorError(sb.String())
}
