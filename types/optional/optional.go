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

package optional

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Optional holds a value that may be absent.
type Optional[T any] struct {
	Present bool
	Value   T
}

func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Present
}

func (o Optional[T]) ValueOrFallback(fallback T) T {
	if o.Present {
		return o.Value
	}
	return fallback
}

func (o Optional[T]) ValueOrFallbackFunc(fallbackFunc func() T) T {
	if o.Present {
		return o.Value
	}
	return fallbackFunc()
}

// Or returns o if present, otherwise other.
func (o Optional[T]) Or(other Optional[T]) Optional[T] {
	if o.Present {
		return o
	}
	return other
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Present {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = None[T]()
		return nil
	}
	o.Present = true
	return json.Unmarshal(data, &o.Value)
}

// UnmarshalYAML lets optional fields be used in YAML configuration files.
// An explicit null leaves the value absent.
func (o *Optional[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		*o = None[T]()
		return nil
	}
	var v T
	if err := node.Decode(&v); err != nil {
		return err
	}
	*o = Value(v)
	return nil
}

func Value[T any](v T) Optional[T] {
	return Optional[T]{Present: true, Value: v}
}

func None[T any]() Optional[T] {
	return Optional[T]{Present: false}
}

// FromPointer returns a present Optional when p is not nil.
func FromPointer[T any](p *T) Optional[T] {
	if p == nil {
		return None[T]()
	}
	return Value(*p)
}
