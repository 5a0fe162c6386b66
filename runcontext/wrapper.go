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

package runcontext

import (
	"context"

	"github.com/nlpodyssey/agentflow/usage"
)

// Wrapper carries caller-supplied dependencies alongside the run bookkeeping
// that tools, hooks and guardrails may want to inspect.
//
// Contexts are never sent to the model.
type Wrapper struct {
	// Optional value passed by the caller to the runner.
	Context any

	// Identifier of the run this wrapper belongs to.
	RunID string

	// Usage accumulated by the run so far.
	Usage *usage.Usage
}

func NewWrapper(runID string, value any) *Wrapper {
	return &Wrapper{
		Context: value,
		RunID:   runID,
		Usage:   usage.NewUsage(),
	}
}

type contextKey struct{}

func NewContext(ctx context.Context, w *Wrapper) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext returns the Wrapper stored in ctx, if any.
func FromContext(ctx context.Context) (*Wrapper, bool) {
	w, ok := ctx.Value(contextKey{}).(*Wrapper)
	return w, ok
}
