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
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/nlpodyssey/agentflow/config"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation with the workflow",
	Long: `Start an interactive conversation with the workflow. Type "exit" to quit.

Without a configured session backend the conversation is kept in memory.
With --watch, changes to the configuration file apply from the next turn.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		verbose, _ := cmd.Flags().GetBool("verbose")
		watch, _ := cmd.Flags().GetBool("watch")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, appOptions{
			SessionID:        sessionID,
			EphemeralSession: true,
			Verbose:          verbose,
			Out:              cmd.OutOrStdout(),
			LogOut:           cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		var changed atomic.Bool
		if watch {
			stop, err := watchConfig(ctx, configPath, a.logger, func() { changed.Store(true) })
			if err != nil {
				return err
			}
			defer func() { _ = stop() }()
		}

		return chatLoop(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout(), func() error {
			if !changed.Swap(false) {
				return nil
			}
			return a.reload(configPath)
		})
	},
}

func init() {
	chatCmd.Flags().StringP("session", "s", "", "session ID (defaults to session.id)")
	chatCmd.Flags().BoolP("verbose", "v", false, "print a summary after every turn")
	chatCmd.Flags().BoolP("watch", "w", false, "reload the configuration when the file changes")
}

// chatLoop reads one user message per line. beforeTurn runs ahead of every
// turn; its errors are reported and the previous configuration is kept.
// Turn failures are printed and do not end the conversation.
func chatLoop(ctx context.Context, a *app, in io.Reader, out io.Writer, beforeTurn func() error) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	prompt := func() { _, _ = fmt.Fprint(out, "> ") }
	prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			prompt()
			continue
		case "exit", "quit":
			return nil
		}

		if err := beforeTurn(); err != nil {
			a.printer.OnRunFailed(fmt.Errorf("configuration not reloaded: %w", err))
		}
		// Failures are already printed by ask.
		_, _ = a.ask(ctx, line)
		if ctx.Err() != nil {
			return nil
		}
		prompt()
	}
	return scanner.Err()
}
