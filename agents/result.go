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

package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/nlpodyssey/agentflow/asyncqueue"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/nlpodyssey/agentflow/usage"
)

type RunResult struct {
	// The original input items, i.e. the items before the run started,
	// possibly mutated by handoff input filters.
	Input []message.Item

	// The items generated during the run: messages, tool calls, tool
	// outputs, handoffs, etc.
	NewItems []RunItem

	// The raw model responses generated during the run.
	RawResponses []ModelResponse

	// The output of the last agent.
	FinalOutput any

	// The last agent that was run.
	LastAgent *Agent

	Usage *usage.Usage

	// Failures converted by the error strategy of the run.
	Handled []*HandledError

	// Whether FinalOutput is a degraded message produced by the error strategy.
	Degraded bool

	InputGuardrailResults  []InputGuardrailResult
	OutputGuardrailResults []OutputGuardrailResult

	RunID string
}

// ToInputList merges the original input with the new items, ready to be
// used as input for a follow-up run.
func (r RunResult) ToInputList() []message.Item {
	return slices.Concat(r.Input, RunItemsToInputItems(r.NewItems))
}

// LastResponseID returns the ID of the last model response, if any.
func (r RunResult) LastResponseID() string {
	if len(r.RawResponses) == 0 {
		return ""
	}
	return r.RawResponses[len(r.RawResponses)-1].ResponseID
}

// FinalOutputAs returns the final output of the run as T.
func FinalOutputAs[T any](r *RunResult) (T, error) {
	v, ok := r.FinalOutput.(T)
	if !ok {
		var zero T
		return zero, UserErrorf("final output is %T, not %T", r.FinalOutput, zero)
	}
	return v, nil
}

func (r RunResult) String() string {
	var sb strings.Builder

	sb.WriteString("RunResult:")
	if r.LastAgent != nil {
		_, _ = fmt.Fprintf(&sb, "\n- Last agent: %s", r.LastAgent.Name)
	}
	_, _ = fmt.Fprintf(&sb, "\n- Final output (%T):\n", r.FinalOutput)
	sb.WriteString(indent(strings.TrimSuffix(finalOutputStr(r.FinalOutput), "\n"), 2))
	_, _ = fmt.Fprintf(&sb, "\n- %d new item(s)", len(r.NewItems))
	_, _ = fmt.Fprintf(&sb, "\n- %d raw response(s)", len(r.RawResponses))
	_, _ = fmt.Fprintf(&sb, "\n- %d handled error(s)", len(r.Handled))
	if r.Usage != nil {
		_, _ = fmt.Fprintf(&sb, "\n- Usage: %d request(s), %d input token(s), %d output token(s)",
			r.Usage.Requests, r.Usage.InputTokens, r.Usage.OutputTokens)
	}
	return sb.String()
}

func indent(text string, indentLevel int) string {
	indentString := strings.Repeat("  ", indentLevel)

	var sb strings.Builder
	for line := range strings.Lines(text) {
		sb.WriteString(indentString)
		sb.WriteString(line)
	}
	return sb.String()
}

func finalOutputStr(finalOutput any) string {
	switch v := finalOutput.(type) {
	case nil:
		return "None"
	case string:
		return v
	case []byte:
		return string(v)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return fmt.Sprintf("%+v", v)
		}
		return buf.String()
	}
}

// RunResultStreaming is the handle of a run started with Runner.RunStreamed.
type RunResultStreaming struct {
	queue  *asyncqueue.Queue[StreamEvent]
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result *RunResult
	err    error
}

// StreamEvents calls fn for every event, in order, until the run completes.
// If fn returns an error the run is canceled and the error is returned.
func (r *RunResultStreaming) StreamEvents(fn func(StreamEvent) error) error {
	for {
		event, ok := r.queue.Next()
		if !ok {
			break
		}
		if err := fn(event); err != nil {
			r.cancel()
			<-r.done
			return err
		}
	}
	_, err := r.Wait()
	return err
}

// Wait blocks until the run completes.
func (r *RunResultStreaming) Wait() (*RunResult, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Cancel stops the run.
func (r *RunResultStreaming) Cancel() { r.cancel() }

func (r *RunResultStreaming) finish(result *RunResult, err error) {
	r.mu.Lock()
	r.result, r.err = result, err
	r.mu.Unlock()
	r.queue.Close()
	close(r.done)
}
