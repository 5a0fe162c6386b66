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

// Package ratelimit provides agents.Limiter implementations.
//
// Keys passed to Wait identify what is being throttled, e.g. "tool:search"
// or "model:Triage Agent". Each implementation keeps an independent budget
// per key.
package ratelimit

import (
	"context"

	"github.com/nlpodyssey/agentflow/agents"
)

var (
	_ agents.Limiter = Noop{}
	_ agents.Limiter = (*TokenBucket)(nil)
	_ agents.Limiter = (*RedisFixedWindow)(nil)
)

// Noop never throttles. It only reports a context that is already done.
type Noop struct{}

func (Noop) Wait(ctx context.Context, _ string) error { return ctx.Err() }
