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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/config"
	"github.com/nlpodyssey/agentflow/orchestrator"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without running it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err = validateWorkflow(cfg); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: workflow %q, %d agents, %s mode\n",
			cfg.Workflow.Name, len(cfg.Workflow.Agents), cfg.Run.Mode)
		return err
	},
}

var errNoCompletion = errors.New("model calls are disabled during validation")

// validateWorkflow builds the workflow for the configured run mode without
// contacting any service.
func validateWorkflow(cfg *config.Config) error {
	registry := builtinTools(time.Now)
	if _, _, err := cfg.Workflow.BuildAgents(registry, cfg.Model.Name); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}
	if cfg.Run.Mode != config.ModeOrchestrator {
		return nil
	}
	noCompletion := func(context.Context, orchestrator.AgentConfig, []message.Item) (*agents.ModelResponse, error) {
		return nil, errNoCompletion
	}
	oc, err := orchestrator.FromWorkflow(cfg.Workflow, noCompletion, registry)
	if err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}
	if _, err = orchestrator.New(oc); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}
	return nil
}
