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

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestResolveAPIKey(t *testing.T) {
	keyring.MockInit()

	t.Run("environment first", func(t *testing.T) {
		require.NoError(t, storeAPIKey("TEST_KEY", "from-keyring"))
		t.Cleanup(func() { _, _ = deleteAPIKey("TEST_KEY") })

		key, err := resolveAPIKey("TEST_KEY", env(map[string]string{"TEST_KEY": " from-env "}))
		require.NoError(t, err)
		assert.Equal(t, "from-env", key)
	})

	t.Run("keyring fallback", func(t *testing.T) {
		require.NoError(t, storeAPIKey("TEST_KEY", "  from-keyring\n"))
		t.Cleanup(func() { _, _ = deleteAPIKey("TEST_KEY") })

		key, err := resolveAPIKey("TEST_KEY", env(map[string]string{"TEST_KEY": "  "}))
		require.NoError(t, err)
		assert.Equal(t, "from-keyring", key)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := resolveAPIKey("TEST_KEY", env(nil))
		assert.ErrorIs(t, err, errNoAPIKey)
		assert.ErrorContains(t, err, "set TEST_KEY")
	})
}

func TestStoreAPIKey_Empty(t *testing.T) {
	keyring.MockInit()
	assert.ErrorContains(t, storeAPIKey("TEST_KEY", " \n"), "cannot be empty")
}

func TestDeleteAPIKey(t *testing.T) {
	keyring.MockInit()

	deleted, err := deleteAPIKey("TEST_KEY")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, storeAPIKey("TEST_KEY", "secret"))
	deleted, err = deleteAPIKey("TEST_KEY")
	require.NoError(t, err)
	assert.True(t, deleted)
}
