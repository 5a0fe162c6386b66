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
	"os"
	"time"

	"github.com/nlpodyssey/agentflow/agents/extensions/visualization"
	"github.com/nlpodyssey/agentflow/config"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the workflow as a Graphviz DOT graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		output, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		start, _, err := cfg.Workflow.BuildAgents(builtinTools(time.Now), cfg.Model.Name)
		if err != nil {
			return fmt.Errorf("invalid workflow: %w", err)
		}

		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			var f *os.File
			if f, err = os.Create(output); err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer func() {
				if closeErr := f.Close(); err == nil {
					err = closeErr
				}
			}()
			w = f
		}
		return visualization.FromAgent(start).WriteDOT(w)
	},
}

func init() {
	graphCmd.Flags().StringP("output", "o", "", "write the graph to a file instead of standard output")
}
