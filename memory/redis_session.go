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

package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client used by RedisSession.
type RedisClient interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	RPop(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisSession keeps each session as a Redis list of JSON-encoded items,
// oldest first.
type RedisSession struct {
	sessionID string
	key       string
	ttl       time.Duration
	client    RedisClient
	closer    func() error
}

type RedisSessionParams struct {
	SessionID string

	// Address of the Redis server, e.g. "localhost:6379". Ignored when
	// Client is set.
	Addr     string
	Password string
	DB       int

	// Optional key prefix. Defaults to "agentflow:session:".
	KeyPrefix string

	// Optional expiration, refreshed on every write. Zero keeps the session forever.
	TTL time.Duration

	// Optional client, mainly for testing.
	Client RedisClient
}

func NewRedisSession(ctx context.Context, params RedisSessionParams) (*RedisSession, error) {
	s := &RedisSession{
		sessionID: params.SessionID,
		key:       cmp.Or(params.KeyPrefix, "agentflow:session:") + params.SessionID,
		ttl:       params.TTL,
		client:    params.Client,
	}
	if s.client == nil {
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
		s.client = client
		s.closer = client.Close
	}
	return s, nil
}

func (s *RedisSession) SessionID(context.Context) string {
	return s.sessionID
}

func (s *RedisSession) GetItems(ctx context.Context, limit int) ([]message.Item, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	rows, err := s.client.LRange(ctx, s.key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading session items: %w", err)
	}
	items := decodeItems(rows)
	if limit > 0 {
		items = trimOrphanToolOutputs(items)
	}
	return items, nil
}

func (s *RedisSession) AddItems(ctx context.Context, items []message.Item) error {
	if len(items) == 0 {
		return nil
	}
	values := make([]any, len(items))
	for i, item := range items {
		data, err := encodeItem(item)
		if err != nil {
			return err
		}
		values[i] = data
	}
	if err := s.client.RPush(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("error appending session items: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			return fmt.Errorf("error refreshing session expiration: %w", err)
		}
	}
	return nil
}

func (s *RedisSession) PopItem(ctx context.Context) (*message.Item, error) {
	data, err := s.client.RPop(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error popping item: %w", err)
	}
	items := decodeItems([]string{data})
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *RedisSession) ClearSession(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("error clearing session: %w", err)
	}
	return nil
}

// Close releases the connection if it was opened by NewRedisSession.
func (s *RedisSession) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
