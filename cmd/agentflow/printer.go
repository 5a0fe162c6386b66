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
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/usage"
)

type transcriptStyles struct {
	user    lipgloss.Style
	agent   lipgloss.Style
	tool    lipgloss.Style
	handoff lipgloss.Style
	muted   lipgloss.Style
	failure lipgloss.Style
}

func newTranscriptStyles(w io.Writer) transcriptStyles {
	r := lipgloss.NewRenderer(w)
	return transcriptStyles{
		user:    r.NewStyle().Foreground(lipgloss.Color("#87afd7")).Bold(true),
		agent:   r.NewStyle().Foreground(lipgloss.Color("#f7c0af")).Bold(true),
		tool:    r.NewStyle().Foreground(lipgloss.Color("#87bf47")),
		handoff: r.NewStyle().Foreground(lipgloss.Color("#d7af5f")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#7f7f7f")),
		failure: r.NewStyle().Foreground(lipgloss.Color("#bf5d47")).Bold(true),
	}
}

// transcript prints a conversation as it happens. It implements
// agents.RunHooks, so the same output is produced in both run modes.
type transcript struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	styles  transcriptStyles
	now     func() time.Time

	startTime    time.Time
	tools        map[string]struct{}
	firstAgent   string
	lastAgent    string
	printedFinal bool
}

func newTranscript(w io.Writer, verbose bool) *transcript {
	return &transcript{
		w:       w,
		verbose: verbose,
		styles:  newTranscriptStyles(w),
		now:     time.Now,
		tools:   make(map[string]struct{}),
	}
}

// runSummary is what a finished run reports, whatever the run mode.
type runSummary struct {
	FinalOutput any
	LastAgent   string
	Turns       uint64
	Usage       *usage.Usage
	Handled     int
	Degraded    bool
}

func (p *transcript) printf(style lipgloss.Style, label, format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, "%s %s\n", style.Render(label), fmt.Sprintf(format, args...))
}

func (p *transcript) OnRunStarted(input string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = p.now()
	p.firstAgent = ""
	p.lastAgent = ""
	p.printedFinal = false
	clear(p.tools)
	p.printf(p.styles.user, "user:", "%s", shorten(input, 240))
}

func (p *transcript) OnAgentStart(_ context.Context, agent *agents.Agent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.firstAgent == "" {
		p.firstAgent = agent.Name
	}
	p.lastAgent = agent.Name
	if p.verbose {
		p.printf(p.styles.muted, "[agent start]", "%s", agent.Name)
	}
	return nil
}

func (p *transcript) OnAgentEnd(_ context.Context, agent *agents.Agent, output any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAgent = agent.Name
	p.printedFinal = true
	p.printf(p.styles.agent, "agent "+agent.Name+":", "%s", shorten(stringifyValue(output), 2000))
	return nil
}

func (p *transcript) OnHandoff(_ context.Context, fromAgent, toAgent *agents.Agent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAgent = toAgent.Name
	p.printf(p.styles.handoff, "handoff", "%s -> %s", fromAgent.Name, toAgent.Name)
	return nil
}

func (p *transcript) OnToolStart(_ context.Context, agent *agents.Agent, tool agents.Tool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tools[tool.ToolName()] = struct{}{}
	p.printf(p.styles.tool, "tool "+tool.ToolName(), "called by %s", agent.Name)
	return nil
}

func (p *transcript) OnToolEnd(_ context.Context, _ *agents.Agent, tool agents.Tool, result any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if output := shorten(stringifyValue(result), 200); output != "" {
		p.printf(p.styles.tool, "tool "+tool.ToolName()+" output:", "%s", output)
	}
	return nil
}

func (p *transcript) OnRunCompleted(s runSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.LastAgent != "" {
		p.lastAgent = s.LastAgent
	}
	if !p.printedFinal && s.FinalOutput != nil {
		p.printf(p.styles.agent, "agent "+p.lastAgent+":", "%s", shorten(stringifyValue(s.FinalOutput), 2000))
	}
	if !p.verbose {
		return
	}
	w := p.w
	_, _ = fmt.Fprintln(w, p.styles.muted.Render("---"))
	_, _ = fmt.Fprintln(w, "Session summary")
	_, _ = fmt.Fprintf(w, "  turns: %d\n", s.Turns)
	_, _ = fmt.Fprintf(w, "  starting agent: %s\n", p.firstAgent)
	_, _ = fmt.Fprintf(w, "  final agent: %s\n", p.lastAgent)
	_, _ = fmt.Fprintf(w, "  runtime: %s\n", p.now().Sub(p.startTime).Truncate(time.Millisecond))
	if len(p.tools) > 0 {
		names := make([]string, 0, len(p.tools))
		for name := range p.tools {
			names = append(names, name)
		}
		slices.Sort(names)
		_, _ = fmt.Fprintf(w, "  tools: %s\n", strings.Join(names, ", "))
	}
	if s.Usage != nil {
		_, _ = fmt.Fprintf(w, "  usage: %d requests, %d input tokens, %d output tokens\n",
			s.Usage.Requests, s.Usage.InputTokens, s.Usage.OutputTokens)
	}
	if s.Handled > 0 {
		_, _ = fmt.Fprintf(w, "  handled errors: %d\n", s.Handled)
	}
	if s.Degraded {
		_, _ = fmt.Fprintln(w, "  degraded: true")
	}
}

func (p *transcript) OnRunFailed(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printf(p.styles.failure, "error:", "%v", err)
}

// PrintHistory prints stored conversation items.
func (p *transcript) PrintHistory(items []message.Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range items {
		switch {
		case item.IsMessage():
			style := p.styles.agent
			if item.Role == message.RoleUser {
				style = p.styles.user
			} else if item.Role == message.RoleSystem || item.Role == message.RoleDeveloper {
				style = p.styles.muted
			}
			p.printf(style, string(item.Role)+":", "%s", shorten(item.Text(), 2000))
		case item.Type == message.TypeFunctionCall:
			p.printf(p.styles.tool, "tool "+item.Name, "%s", shorten(item.Arguments, 200))
		case item.IsHostedToolCall():
			p.printf(p.styles.tool, "tool "+item.HostedToolName(), "(hosted)")
		case item.IsToolOutput():
			p.printf(p.styles.tool, "tool output:", "%s", shorten(item.Output, 200))
		case item.Type == message.TypeReasoning:
			if p.verbose {
				p.printf(p.styles.muted, "reasoning", "%d summary parts", len(item.Summary))
			}
		}
	}
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func shorten(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
