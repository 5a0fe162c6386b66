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

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/nlpodyssey/agentflow/agents"
)

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log invalid: %w", err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("log invalid: unknown format %q", c.Log.Format)
	}
	if err := c.validateRun(); err != nil {
		return fmt.Errorf("run invalid: %w", err)
	}
	if err := c.validateSession(); err != nil {
		return fmt.Errorf("session invalid: %w", err)
	}
	if err := c.validateRateLimit(); err != nil {
		return fmt.Errorf("rate_limit invalid: %w", err)
	}
	if err := validateWorkflowDeclaration(c.Workflow); err != nil {
		return fmt.Errorf("workflow invalid: %w", err)
	}
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("unknown level %q", level)
	}
	return l, nil
}

func (c *Config) validateRun() error {
	if c.Run.Mode != ModeRunner && c.Run.Mode != ModeOrchestrator {
		return fmt.Errorf("unknown mode %q", c.Run.Mode)
	}
	if _, err := agents.ParseErrorStrategy(c.Run.ErrorStrategy); err != nil {
		return err
	}
	if c.Run.MaxRetries < 0 {
		return errors.New("max_retries cannot be negative")
	}
	return nil
}

func (c *Config) validateSession() error {
	switch strings.ToLower(c.Session.Backend) {
	case BackendNone:
		return nil
	case "sqlite", "mysql", "postgres", "redis":
	default:
		return fmt.Errorf("unknown backend %q", c.Session.Backend)
	}
	if c.Session.DSN == "" {
		return errors.New("dsn is required")
	}
	if strings.TrimSpace(c.Session.ID) == "" {
		return errors.New("id is required")
	}
	if c.Session.HistoryLimit < 0 {
		return errors.New("history_limit cannot be negative")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	switch c.RateLimit.Backend {
	case LimiterNone:
	case LimiterMemory:
		if c.RateLimit.PerSecond <= 0 {
			return errors.New("per_second must be positive")
		}
	case LimiterRedis:
		if c.RateLimit.Limit <= 0 {
			return errors.New("limit must be positive")
		}
		if c.RateLimit.RedisAddr == "" {
			return errors.New("redis_addr is required")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	return nil
}

func validateWorkflowDeclaration(workflow WorkflowDeclaration) error {
	if len(workflow.Agents) == 0 {
		return errors.New("agents cannot be empty")
	}

	seen := make(map[string]struct{}, len(workflow.Agents))
	for i, agent := range workflow.Agents {
		if agent.Name == "" {
			return fmt.Errorf("agents[%d] missing name", i)
		}
		if _, dup := seen[agent.Name]; dup {
			return fmt.Errorf("duplicate agent name %q", agent.Name)
		}
		seen[agent.Name] = struct{}{}
		if err := validateAgentDeclaration(agent); err != nil {
			return fmt.Errorf("agent %q invalid: %w", agent.Name, err)
		}
	}

	if workflow.StartingAgent != "" {
		if _, ok := seen[workflow.StartingAgent]; !ok {
			return fmt.Errorf("starting_agent %q not found in agents", workflow.StartingAgent)
		}
	}
	for _, agent := range workflow.Agents {
		for _, h := range agent.Handoffs {
			if _, ok := seen[h]; !ok {
				return fmt.Errorf("agent %q handoff %q not found", agent.Name, h)
			}
			if h == agent.Name {
				return fmt.Errorf("agent %q cannot hand off to itself", agent.Name)
			}
		}
	}
	return nil
}

func validateAgentDeclaration(agent AgentDeclaration) error {
	for _, tool := range agent.Tools {
		if strings.TrimSpace(tool) == "" {
			return errors.New("tool name cannot be empty")
		}
	}
	if _, err := agents.ParseToolUseBehavior(agent.ToolUseBehavior, agent.StopAtTools); err != nil {
		return err
	}
	for _, name := range agent.StopAtTools {
		if !slices.Contains(agent.Tools, name) {
			return fmt.Errorf("stop_at_tools references undeclared tool %q", name)
		}
	}
	return nil
}
