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

package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsage_Add(t *testing.T) {
	u := &Usage{
		Requests:          1,
		InputTokens:       2,
		CachedInputTokens: 3,
		OutputTokens:      4,
		ReasoningTokens:   5,
		TotalTokens:       6,
	}
	other := &Usage{
		Requests:          40,
		InputTokens:       50,
		CachedInputTokens: 60,
		OutputTokens:      70,
		ReasoningTokens:   80,
		TotalTokens:       90,
	}
	u.Add(other)

	expected := &Usage{
		Requests:          41,
		InputTokens:       52,
		CachedInputTokens: 63,
		OutputTokens:      74,
		ReasoningTokens:   85,
		TotalTokens:       96,
	}
	assert.Equal(t, expected, u)
}

func TestUsage_AddNil(t *testing.T) {
	u := &Usage{Requests: 1}
	u.Add(nil)
	assert.Equal(t, &Usage{Requests: 1}, u)
}

func TestUsage_Clone(t *testing.T) {
	u := &Usage{Requests: 2, TotalTokens: 10}
	c := u.Clone()
	c.Requests++
	assert.Equal(t, uint64(2), u.Requests)
	assert.Equal(t, uint64(3), c.Requests)

	var nilUsage *Usage
	assert.Equal(t, NewUsage(), nilUsage.Clone())
}

func TestContext(t *testing.T) {
	_, ok := FromContext(t.Context())
	assert.False(t, ok)

	u := &Usage{Requests: 7}
	got, ok := FromContext(NewContext(t.Context(), u))
	assert.True(t, ok)
	assert.Same(t, u, got)
}
