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

package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// TokenBucket is an in-process limiter keeping one token bucket per key.
type TokenBucket struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	custom   map[string]*rate.Limiter
	limiters map[string]*rate.Limiter
}

// NewTokenBucket returns a limiter allowing perSecond events per key, with
// bursts of at most burst events. A burst lower than 1 is raised to 1.
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	return &TokenBucket{
		limit:    rate.Limit(perSecond),
		burst:    max(burst, 1),
		custom:   make(map[string]*rate.Limiter),
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetKeyLimit overrides the default rate for a single key.
func (b *TokenBucket) SetKeyLimit(key string, perSecond float64, burst int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.custom[key] = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
}

func (b *TokenBucket) limiter(key string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.custom[key]; ok {
		return l
	}
	l, ok := b.limiters[key]
	if !ok {
		l = rate.NewLimiter(b.limit, b.burst)
		b.limiters[key] = l
	}
	return l
}

// Wait blocks until a token for key is available.
//
// When the context deadline is too close for a token to arrive, the returned
// error wraps context.DeadlineExceeded without waiting.
func (b *TokenBucket) Wait(ctx context.Context, key string) error {
	err := b.limiter(key).Wait(ctx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}
