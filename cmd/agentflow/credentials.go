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
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringService = "agentflow"

var errNoAPIKey = errors.New("no API key found")

// resolveAPIKey reads the key from the environment variable name, falling
// back to the keyring entry stored under the same name.
func resolveAPIKey(name string, lookupEnv func(string) (string, bool)) (string, error) {
	if v, ok := lookupEnv(name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	key, err := keyring.Get(keyringService, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: set %s or run \"agentflow auth set-key\"", errNoAPIKey, name)
		}
		return "", fmt.Errorf("read API key %q from keyring: %w", name, err)
	}
	return key, nil
}

func storeAPIKey(name, key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return fmt.Errorf("API key %q cannot be empty", name)
	}
	if err := keyring.Set(keyringService, name, trimmed); err != nil {
		return fmt.Errorf("store API key %q: %w", name, err)
	}
	return nil
}

// deleteAPIKey reports whether a key was stored.
func deleteAPIKey(name string) (bool, error) {
	if err := keyring.Delete(keyringService, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete API key %q: %w", name, err)
	}
	return true, nil
}
