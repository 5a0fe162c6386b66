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

// Package config loads agentflow YAML configuration files.
//
// A file declares the workflow (agents, their tools and handoffs) along with
// the infrastructure a run needs: model, session storage, rate limiting,
// lifecycle events and logging. Values can be overridden by AGENTFLOW_*
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nlpodyssey/agentflow/modelsettings"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LogConfig           `yaml:"log"`
	Model     ModelConfig         `yaml:"model"`
	Run       RunConfig           `yaml:"run"`
	Session   SessionConfig       `yaml:"session"`
	RateLimit RateLimitConfig     `yaml:"rate_limit"`
	Events    EventsConfig        `yaml:"events"`
	Workflow  WorkflowDeclaration `yaml:"workflow"`
}

type LogConfig struct {
	// debug, info, warn or error.
	Level string `yaml:"level"`

	// text or json.
	Format string `yaml:"format"`
}

// DefaultAPIKeyEnv is the default of model.api_key_env.
const DefaultAPIKeyEnv = "OPENAI_API_KEY"

type ModelConfig struct {
	// Default model name for agents that do not declare one.
	Name string `yaml:"name"`

	// Optional OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`

	// Environment variable holding the API key. When unset in the
	// environment, the key is looked up in the system keyring.
	APIKeyEnv string `yaml:"api_key_env"`

	Settings modelsettings.ModelSettings `yaml:"settings"`
}

// Run modes.
const (
	// ModeRunner runs the workflow with agents.Runner and native handoffs.
	ModeRunner = "runner"

	// ModeOrchestrator runs the workflow with the orchestrator and its
	// transfer tool.
	ModeOrchestrator = "orchestrator"
)

type RunConfig struct {
	Mode string `yaml:"mode"`

	// Per-agent turn budget.
	MaxTurns uint64 `yaml:"max_turns"`

	// fail-fast, log-and-continue, retry-once or graceful-degradation.
	ErrorStrategy string `yaml:"error_strategy"`
	MaxRetries    int    `yaml:"max_retries"`

	AllowHandoffCycles bool `yaml:"allow_handoff_cycles"`
}

// Session backends, in addition to those of memory.Open.
const BackendNone = "none"

// DefaultSessionID is the session used when neither the config nor the
// command line names one.
const DefaultSessionID = "default"

type SessionConfig struct {
	// none, sqlite, mysql, postgres or redis.
	Backend string `yaml:"backend"`

	// Data source name for SQL backends, server address for Redis.
	DSN string `yaml:"dsn"`

	// Default session ID when none is given on the command line.
	ID string `yaml:"id"`

	// Maximum number of stored items prepended to a run. Zero means all.
	HistoryLimit int `yaml:"history_limit"`

	SessionTable  string `yaml:"session_table"`
	MessagesTable string `yaml:"messages_table"`

	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// Rate limiter backends.
const (
	LimiterNone   = "none"
	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

type RateLimitConfig struct {
	// none, memory or redis.
	Backend string `yaml:"backend"`

	// Token bucket parameters, for the memory backend.
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`

	// Fixed window parameters, for the redis backend.
	Limit     int64         `yaml:"limit"`
	Window    time.Duration `yaml:"window"`
	RedisAddr string        `yaml:"redis_addr"`

	// Maximum wait for a single permit.
	Timeout time.Duration `yaml:"timeout"`
}

type EventsConfig struct {
	// RabbitMQ URL. Lifecycle events are not published when empty.
	AMQPURL     string `yaml:"amqp_url"`
	Exchange    string `yaml:"exchange"`
	FailOnError bool   `yaml:"fail_on_error"`
}

type WorkflowDeclaration struct {
	Name          string             `yaml:"name"`
	StartingAgent string             `yaml:"starting_agent"`
	Agents        []AgentDeclaration `yaml:"agents"`
}

type AgentDeclaration struct {
	Name               string `yaml:"name"`
	Instructions       string `yaml:"instructions"`
	HandoffDescription string `yaml:"handoff_description"`

	// Names of the agents this agent can hand off to.
	Handoffs []string `yaml:"handoffs"`

	// Names of tools from the tool registry.
	Tools []string `yaml:"tools"`

	MaxTurns uint64 `yaml:"max_turns"`

	// Optional model name, overriding model.name.
	Model string `yaml:"model"`

	// auto, required, none or a tool name.
	ToolChoice string `yaml:"tool_choice"`

	// run_llm_again, stop_on_first_tool or stop_at_tools.
	ToolUseBehavior string   `yaml:"tool_use_behavior"`
	StopAtTools     []string `yaml:"stop_at_tools"`

	Settings modelsettings.ModelSettings `yaml:"settings"`
}

// Load reads the file at path. Relative paths inside it are resolved against
// the directory of the file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config file path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, filepath.Dir(path), os.LookupEnv)
}

// Parse decodes, completes and validates a configuration. lookupEnv is
// typically os.LookupEnv.
func Parse(data []byte, baseDir string, lookupEnv func(string) (string, bool)) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults(baseDir)
	if lookupEnv != nil {
		if err := cfg.applyEnv(lookupEnv); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Model.Name == "" {
		c.Model.Name = "gpt-4.1"
	}
	if c.Model.APIKeyEnv == "" {
		c.Model.APIKeyEnv = DefaultAPIKeyEnv
	}

	if c.Run.Mode == "" {
		c.Run.Mode = ModeRunner
	}
	if c.Run.MaxTurns == 0 {
		c.Run.MaxTurns = 10
	}
	if c.Run.ErrorStrategy == "" {
		c.Run.ErrorStrategy = "fail-fast"
	}
	if c.Run.MaxRetries == 0 {
		c.Run.MaxRetries = 1
	}

	if c.Session.Backend == "" {
		c.Session.Backend = BackendNone
	}
	if c.Session.ID == "" {
		c.Session.ID = DefaultSessionID
	}
	if c.Session.Backend == "sqlite" && c.Session.DSN == "" {
		c.Session.DSN = "agentflow.db"
	}
	if c.Session.Backend == "sqlite" && !isSpecialSQLiteDSN(c.Session.DSN) && !filepath.IsAbs(c.Session.DSN) {
		c.Session.DSN = filepath.Join(baseDir, c.Session.DSN)
	}

	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = LimiterNone
	}
	if c.RateLimit.Timeout == 0 {
		c.RateLimit.Timeout = 30 * time.Second
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Second
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}

	if c.Events.Exchange == "" {
		c.Events.Exchange = "agentflow.events"
	}
}

func isSpecialSQLiteDSN(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file:")
}

// applyEnv overrides values with AGENTFLOW_* variables.
func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	str("AGENTFLOW_LOG_LEVEL", &c.Log.Level)
	str("AGENTFLOW_LOG_FORMAT", &c.Log.Format)
	str("AGENTFLOW_MODEL", &c.Model.Name)
	str("AGENTFLOW_BASE_URL", &c.Model.BaseURL)
	str("AGENTFLOW_RUN_MODE", &c.Run.Mode)
	str("AGENTFLOW_ERROR_STRATEGY", &c.Run.ErrorStrategy)
	str("AGENTFLOW_SESSION_BACKEND", &c.Session.Backend)
	str("AGENTFLOW_SESSION_DSN", &c.Session.DSN)
	str("AGENTFLOW_SESSION_ID", &c.Session.ID)
	str("AGENTFLOW_RATE_LIMIT_BACKEND", &c.RateLimit.Backend)
	str("AGENTFLOW_REDIS_ADDR", &c.RateLimit.RedisAddr)
	str("AGENTFLOW_AMQP_URL", &c.Events.AMQPURL)

	if v, ok := lookupEnv("AGENTFLOW_MAX_TURNS"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid AGENTFLOW_MAX_TURNS %q: %w", v, err)
		}
		c.Run.MaxTurns = n
	}
	return nil
}
