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
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/nlpodyssey/agentflow/config"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the model API key stored in the system keyring",
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key [key]",
	Short: "Store the API key in the system keyring",
	Long:  "Store the API key in the system keyring. The key is read from standard input when not given as an argument.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := apiKeyName()
		if err != nil {
			return err
		}
		var key string
		if len(args) > 0 {
			key = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			key = strings.TrimSpace(line)
		}
		if err = storeAPIKey(name, key); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %s in the keyring\n", name)
		return err
	},
}

var authClearKeyCmd = &cobra.Command{
	Use:   "clear-key",
	Short: "Remove the API key from the system keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := apiKeyName()
		if err != nil {
			return err
		}
		deleted, err := deleteAPIKey(name)
		if err != nil {
			return err
		}
		if !deleted {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s was not stored in the keyring\n", name)
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s from the keyring\n", name)
		return err
	},
}

func init() {
	authCmd.AddCommand(authSetKeyCmd)
	authCmd.AddCommand(authClearKeyCmd)
}

// apiKeyName is the configured model.api_key_env, which also names the
// keyring entry. Without a configuration file the default name is used.
func apiKeyName() (string, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.DefaultAPIKeyEnv, nil
	}
	if err != nil {
		return "", err
	}
	return cfg.Model.APIKeyEnv, nil
}
