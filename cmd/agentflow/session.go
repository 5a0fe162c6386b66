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

	"github.com/nlpodyssey/agentflow/config"
	"github.com/nlpodyssey/agentflow/memory"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or clear stored conversations",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Print the stored history of a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		verbose, _ := cmd.Flags().GetBool("verbose")

		session, err := openSession(cmd, args)
		if err != nil {
			return err
		}
		defer func() { _ = session.Close() }()

		items, err := session.GetItems(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "session is empty")
			return err
		}
		newTranscript(cmd.OutOrStdout(), verbose).PrintHistory(items)
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear [session-id]",
	Short: "Delete the stored history of a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := openSession(cmd, args)
		if err != nil {
			return err
		}
		defer func() { _ = session.Close() }()

		if err = session.ClearSession(cmd.Context()); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
		return err
	},
}

func init() {
	sessionShowCmd.Flags().IntP("limit", "n", 0, "number of most recent items to show (0 for all)")
	sessionShowCmd.Flags().BoolP("verbose", "v", false, "include reasoning items")

	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionClearCmd)
}

func openSession(cmd *cobra.Command, args []string) (memory.ClosableSession, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	var sessionID string
	if len(args) > 0 {
		sessionID = args[0]
	}
	return cfg.Session.Open(cmd.Context(), sessionID)
}
