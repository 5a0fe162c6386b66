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
	"cmp"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is the subset of *redis.Client used by RedisFixedWindow.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	PExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisFixedWindow shares a fixed-window counter per key across processes.
//
// Each window has its own Redis key, created by INCR and expiring with the
// window. Once the limit is reached, Wait sleeps until the next window starts
// and tries again.
type RedisFixedWindow struct {
	client RedisCounter
	closer func() error
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

type RedisFixedWindowParams struct {
	// Address of the Redis server. Ignored when Client is set.
	Addr     string
	Password string
	DB       int

	// Maximum number of events per key in each window.
	Limit int64

	// Window length. Defaults to one second.
	Window time.Duration

	// Optional key prefix. Defaults to "agentflow:ratelimit:".
	KeyPrefix string

	// Optional client, mainly for testing.
	Client RedisCounter

	// Optional clock, mainly for testing.
	Now func() time.Time
}

func NewRedisFixedWindow(ctx context.Context, params RedisFixedWindowParams) (*RedisFixedWindow, error) {
	if params.Limit <= 0 {
		return nil, errors.New("rate limit must be positive")
	}
	w := &RedisFixedWindow{
		client: params.Client,
		prefix: cmp.Or(params.KeyPrefix, "agentflow:ratelimit:"),
		limit:  params.Limit,
		window: cmp.Or(params.Window, time.Second),
		now:    params.Now,
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.client == nil {
		if params.Addr == "" {
			return nil, errors.New("redis address is required")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     params.Addr,
			Password: params.Password,
			DB:       params.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to connect to Redis: %w", err), client.Close())
		}
		w.client = client
		w.closer = client.Close
	}
	return w, nil
}

func (w *RedisFixedWindow) Wait(ctx context.Context, key string) error {
	for {
		now := w.now()
		slot := now.UnixNano() / int64(w.window)
		windowKey := w.prefix + key + ":" + strconv.FormatInt(slot, 10)

		n, err := w.client.Incr(ctx, windowKey).Result()
		if err != nil {
			return fmt.Errorf("redis rate limit increment failed: %w", err)
		}
		if n == 1 {
			if err = w.client.PExpire(ctx, windowKey, w.window).Err(); err != nil {
				return fmt.Errorf("redis rate limit expire failed: %w", err)
			}
		}
		if n <= w.limit {
			return nil
		}

		next := time.Unix(0, (slot+1)*int64(w.window))
		timer := time.NewTimer(max(next.Sub(now), time.Millisecond))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Close releases the connection if it was opened by NewRedisFixedWindow.
func (w *RedisFixedWindow) Close() error {
	if w.closer != nil {
		return w.closer()
	}
	return nil
}
