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
	"fmt"
	"io"
	"strings"

	"github.com/nlpodyssey/agentflow/config"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run the workflow on a single prompt",
	Long:  "Run the workflow on a single prompt. The prompt is read from standard input when not given as an argument.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		verbose, _ := cmd.Flags().GetBool("verbose")

		prompt, err := readPrompt(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, appOptions{
			SessionID: sessionID,
			Verbose:   verbose,
			Out:       cmd.OutOrStdout(),
			LogOut:    cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		_, err = a.ask(cmd.Context(), prompt)
		if closeErr := a.Close(); err == nil {
			err = closeErr
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringP("session", "s", "", "session ID (defaults to session.id)")
	runCmd.Flags().BoolP("verbose", "v", false, "print a summary after the run")
}

func readPrompt(in io.Reader, args []string) (string, error) {
	var prompt string
	if len(args) > 0 {
		prompt = args[0]
	} else {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt is empty")
	}
	return prompt, nil
}
