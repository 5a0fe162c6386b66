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
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyResponseIsFinalOutput(t *testing.T) {
	agent := &Agent{Name: "test"}
	result := getExecuteResult(t, getExecuteResultParams{agent: agent})

	assert.Equal(t, []message.Item{message.UserMessage("hello")}, result.OriginalInput)
	assert.Empty(t, result.GeneratedItems())

	require.IsType(t, NextStepFinalOutput{}, result.NextStep)
	assert.Equal(t, "", result.NextStep.(NextStepFinalOutput).Output)
}

func TestPlaintextAgentNoToolCallsIsFinalOutput(t *testing.T) {
	agent := &Agent{Name: "test"}
	result := getExecuteResult(t, getExecuteResultParams{
		agent:    agent,
		response: ModelResponse{Output: []message.Item{getTextMessage("hello_world")}},
	})

	require.Len(t, result.GeneratedItems(), 1)
	assertItemIsMessage(t, result.GeneratedItems()[0], agent, "hello_world")

	require.IsType(t, NextStepFinalOutput{}, result.NextStep)
	assert.Equal(t, "hello_world", result.NextStep.(NextStepFinalOutput).Output)
}

func TestPlaintextAgentMultipleMessagesUsesLastOne(t *testing.T) {
	agent := &Agent{Name: "test"}
	result := getExecuteResult(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{
			getTextMessage("hello_world"),
			getTextMessage("bye"),
		}},
		originalInput: []message.Item{
			message.UserMessage("test"),
			message.UserMessage("test2"),
		},
	})

	require.Len(t, result.OriginalInput, 2)
	require.Len(t, result.GeneratedItems(), 2)
	require.IsType(t, NextStepFinalOutput{}, result.NextStep)
	assert.Equal(t, "bye", result.NextStep.(NextStepFinalOutput).Output)
}

func TestEmptyAssistantMessageIsFinalOutput(t *testing.T) {
	agent := &Agent{Name: "test"}
	result := getExecuteResult(t, getExecuteResultParams{
		agent:    agent,
		response: ModelResponse{Output: []message.Item{getTextMessage("")}},
	})

	assert.Equal(t, NextStepFinalOutput{Output: ""}, result.NextStep)
	require.Len(t, result.NewStepItems, 1)
	assertItemIsMessage(t, result.NewStepItems[0], agent, "")
}

func TestPlaintextAgentWithToolCallIsRunAgain(t *testing.T) {
	agent := &Agent{
		Name:  "test",
		Tools: []Tool{getFunctionTool("test", "123")},
	}
	tracker := NewAgentToolUseTracker()
	result := getExecuteResult(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{
			getTextMessage("hello_world"),
			getFunctionToolCall("test", "", "c1"),
		}},
		tracker: tracker,
	})

	items := result.GeneratedItems()
	require.Len(t, items, 3)
	assertItemIsMessage(t, items[0], agent, "hello_world")
	assertItemIsFunctionToolCall(t, items[1], "test", "")
	assertItemIsFunctionToolCallOutput(t, items[2], "c1", "123")

	assert.IsType(t, NextStepRunAgain{}, result.NextStep)
	assert.Equal(t, []string{"test"}, tracker.ToolsUsed(agent))
}

func TestFunctionToolOutputsKeepCallOrder(t *testing.T) {
	sleepy := func(name string, d time.Duration) FunctionTool {
		return FunctionTool{
			Name:             name,
			ParamsJSONSchema: emptyObjectSchema(),
			OnInvokeTool: func(ctx context.Context, _ string) (any, error) {
				time.Sleep(d)
				return name + "_done", nil
			},
		}
	}
	agent := &Agent{
		Name: "test",
		Tools: []Tool{
			sleepy("slow", 60*time.Millisecond),
			sleepy("medium", 30*time.Millisecond),
			sleepy("fast", 0),
		},
	}

	result := getExecuteResult(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{
			getFunctionToolCall("slow", "{}", "c1"),
			getFunctionToolCall("medium", "{}", "c2"),
			getFunctionToolCall("fast", "{}", "c3"),
		}},
	})

	items := result.NewStepItems
	require.Len(t, items, 6)
	assertItemIsFunctionToolCallOutput(t, items[3], "c1", "slow_done")
	assertItemIsFunctionToolCallOutput(t, items[4], "c2", "medium_done")
	assertItemIsFunctionToolCallOutput(t, items[5], "c3", "fast_done")
	assert.IsType(t, NextStepRunAgain{}, result.NextStep)
}

func TestFunctionToolsRunConcurrently(t *testing.T) {
	var running, maxRunning atomic.Int32
	tool := func(name string) FunctionTool {
		return FunctionTool{
			Name:             name,
			ParamsJSONSchema: emptyObjectSchema(),
			OnInvokeTool: func(context.Context, string) (any, error) {
				n := running.Add(1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				running.Add(-1)
				return "ok", nil
			},
		}
	}
	agent := &Agent{Name: "test", Tools: []Tool{tool("a"), tool("b")}}

	getExecuteResult(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{
			getFunctionToolCall("a", "{}", "c1"),
			getFunctionToolCall("b", "{}", "c2"),
		}},
	})
	assert.Equal(t, int32(2), maxRunning.Load())
}

func TestHandoffWinsOverFinalOutput(t *testing.T) {
	agent1 := &Agent{Name: "test_1"}
	agent2 := &Agent{Name: "test_2"}
	agent3 := &Agent{Name: "test_3", AgentHandoffs: []*Agent{agent1, agent2}}

	result := getExecuteResult(t, getExecuteResultParams{
		agent: agent3,
		response: ModelResponse{Output: []message.Item{
			getTextMessage("Hello, world!"),
			getFunctionToolCall(DefaultHandoffToolName(agent1), "", "c1"),
		}},
	})

	require.IsType(t, NextStepHandoff{}, result.NextStep)
	assert.Same(t, agent1, result.NextStep.(NextStepHandoff).NewAgent)

	items := result.GeneratedItems()
	require.Len(t, items, 3)
	assert.IsType(t, MessageOutputItem{}, items[0])
	assert.IsType(t, HandoffCallItem{}, items[1])
	require.IsType(t, HandoffOutputItem{}, items[2])
	out := items[2].(HandoffOutputItem)
	assert.Same(t, agent3, out.SourceAgent)
	assert.Same(t, agent1, out.TargetAgent)
	assert.Equal(t, `{"assistant":"test_1"}`, out.RawItem.Output)
}

func TestMultipleHandoffsOnlyFirstIsHonored(t *testing.T) {
	agent1 := &Agent{Name: "test_1"}
	agent2 := &Agent{Name: "test_2"}
	agent3 := &Agent{Name: "test_3", AgentHandoffs: []*Agent{agent1, agent2}}

	result := getExecuteResult(t, getExecuteResultParams{
		agent: agent3,
		response: ModelResponse{Output: []message.Item{
			getFunctionToolCall(DefaultHandoffToolName(agent1), "", "c1"),
			getFunctionToolCall(DefaultHandoffToolName(agent2), "", "c2"),
		}},
	})

	require.IsType(t, NextStepHandoff{}, result.NextStep)
	assert.Same(t, agent1, result.NextStep.(NextStepHandoff).NewAgent)

	items := result.NewStepItems
	require.Len(t, items, 4)
	assertItemIsFunctionToolCallOutput(t, items[2], "c2", MultipleHandoffsMessage)
	require.IsType(t, HandoffOutputItem{}, items[3])
	assert.Equal(t, "c1", items[3].(HandoffOutputItem).RawItem.CallID)
}

func TestProcessModelResponseCountsEveryToolCall(t *testing.T) {
	agent1 := &Agent{Name: "test_1"}
	agent2 := &Agent{Name: "test_2"}
	agent := &Agent{Name: "test", AgentHandoffs: []*Agent{agent1, agent2}}
	handoffs, err := agent.GetHandoffs(t.Context())
	require.NoError(t, err)

	webSearch := message.Item{Type: message.TypeWebSearchCall, ID: "ws_1", Status: "completed"}
	processed, err := RunImpl().ProcessModelResponse(t.Context(), agent, nil, ModelResponse{Output: []message.Item{
		getTextMessage("routing"),
		getFunctionToolCall(DefaultHandoffToolName(agent1), "", "c1"),
		getFunctionToolCall(DefaultHandoffToolName(agent2), "", "c2"),
		getFunctionToolCall(DefaultHandoffToolName(agent1), "", "c3"),
		webSearch,
	}}, handoffs)
	require.NoError(t, err)

	assert.Equal(t, 4, processed.ToolCallCount())
	assert.Len(t, processed.Handoffs, 3)
	assert.Equal(t, []message.Item{webSearch}, processed.HostedToolCalls)
	assert.Contains(t, processed.ToolsUsed, "web_search")
	assert.False(t, processed.HasToolsToRun())

	require.Len(t, processed.NewItems, 5)
	assert.IsType(t, MessageOutputItem{}, processed.NewItems[0])
	for _, item := range processed.NewItems[1:4] {
		assert.IsType(t, HandoffCallItem{}, item)
	}
	assert.IsType(t, ToolCallItem{}, processed.NewItems[4])
}

func TestExtraHandoffsAreRejectedInCallOrder(t *testing.T) {
	agent1 := &Agent{Name: "test_1"}
	agent2 := &Agent{Name: "test_2"}
	agent := &Agent{Name: "test", AgentHandoffs: []*Agent{agent1, agent2}}

	result := getExecuteResult(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{
			getTextMessage("routing"),
			getFunctionToolCall(DefaultHandoffToolName(agent1), "", "c1"),
			getFunctionToolCall(DefaultHandoffToolName(agent2), "", "c2"),
			getFunctionToolCall(DefaultHandoffToolName(agent1), "", "c3"),
			{Type: message.TypeWebSearchCall, ID: "ws_1", Status: "completed"},
		}},
	})

	require.IsType(t, NextStepHandoff{}, result.NextStep)
	assert.Same(t, agent1, result.NextStep.(NextStepHandoff).NewAgent)

	items := result.NewStepItems
	require.Len(t, items, 8)
	assertItemIsFunctionToolCallOutput(t, items[5], "c2", MultipleHandoffsMessage)
	assertItemIsFunctionToolCallOutput(t, items[6], "c3", MultipleHandoffsMessage)
	require.IsType(t, HandoffOutputItem{}, items[7])
	assert.Equal(t, "c1", items[7].(HandoffOutputItem).RawItem.CallID)
}

func TestHandoffAfterFunctionToolsRunsTools(t *testing.T) {
	target := &Agent{Name: "target"}
	var invoked atomic.Bool
	agent := &Agent{
		Name: "source",
		Tools: []Tool{FunctionTool{
			Name:             "lookup",
			ParamsJSONSchema: emptyObjectSchema(),
			OnInvokeTool: func(context.Context, string) (any, error) {
				invoked.Store(true)
				return "found", nil
			},
		}},
		AgentHandoffs: []*Agent{target},
	}

	result := getExecuteResult(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{
			getFunctionToolCall("lookup", "{}", "c1"),
			getFunctionToolCall(DefaultHandoffToolName(target), "", "c2"),
		}},
	})

	assert.True(t, invoked.Load())
	require.IsType(t, NextStepHandoff{}, result.NextStep)
	assertItemIsFunctionToolCallOutput(t, result.NewStepItems[2], "c1", "found")
}

func TestHandoffGuardRejection(t *testing.T) {
	target := &Agent{Name: "target"}
	agent := &Agent{Name: "source", AgentHandoffs: []*Agent{target}}

	_, err := executeStep(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{
			getFunctionToolCall(DefaultHandoffToolName(target), "", "c1"),
		}},
		guard: func(_ context.Context, from, to *Agent) error {
			return HandoffRejectedErrorf("no transfer from %s to %s", from.Name, to.Name)
		},
	})
	assert.ErrorIs(t, err, ErrHandoffRejected)
}

func TestHandoffInputFilter(t *testing.T) {
	target := &Agent{Name: "target"}
	agent := &Agent{
		Name: "source",
		Handoffs: []Handoff{HandoffFromAgent(HandoffFromAgentParams{
			Agent: target,
			InputFilter: func(_ context.Context, data HandoffInputData) (HandoffInputData, error) {
				data.InputHistory = nil
				data.PreHandoffItems = nil
				return data, nil
			},
		})},
	}

	result := getExecuteResult(t, getExecuteResultParams{
		agent:     agent,
		generated: []RunItem{MessageOutputItem{Agent: agent, RawItem: getTextMessage("before")}},
		response: ModelResponse{Output: []message.Item{
			getFunctionToolCall(DefaultHandoffToolName(target), "", "c1"),
		}},
	})

	assert.Empty(t, result.OriginalInput)
	assert.Empty(t, result.PreStepItems)
	assert.Len(t, result.NewStepItems, 2)
}

type Foo struct {
	Bar string `json:"bar"`
}

func TestStructuredOutput(t *testing.T) {
	agent := &Agent{Name: "test", OutputType: OutputType[Foo]()}

	t.Run("valid", func(t *testing.T) {
		result := getExecuteResult(t, getExecuteResultParams{
			agent:    agent,
			response: ModelResponse{Output: []message.Item{getTextMessage(`{"bar": "123"}`)}},
		})
		require.IsType(t, NextStepFinalOutput{}, result.NextStep)
		assert.Equal(t, Foo{Bar: "123"}, result.NextStep.(NextStepFinalOutput).Output)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := executeStep(t, getExecuteResultParams{
			agent:    agent,
			response: ModelResponse{Output: []message.Item{getTextMessage(`{"bar": 1}`)}},
		})
		assert.ErrorIs(t, err, ErrModelBehavior)
	})
}

func TestMissingToolIsModelBehaviorError(t *testing.T) {
	agent := &Agent{Name: "test", Tools: []Tool{getFunctionTool("test", "123")}}

	_, err := executeStep(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{
			getFunctionToolCall("missing", "{}", "c1"),
		}},
	})
	assert.ErrorIs(t, err, ErrModelBehavior)
}

func TestComputerCallWithoutComputerTool(t *testing.T) {
	agent := &Agent{Name: "test"}

	_, err := executeStep(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{{
			Type:   message.TypeComputerCall,
			CallID: "c1",
			Action: &message.Action{Type: "screenshot"},
		}}},
	})
	assert.ErrorIs(t, err, ErrModelBehavior)
}

func TestToolFailureBecomesOutput(t *testing.T) {
	agent := &Agent{
		Name: "test",
		Tools: []Tool{FunctionTool{
			Name:             "broken",
			ParamsJSONSchema: emptyObjectSchema(),
			OnInvokeTool: func(context.Context, string) (any, error) {
				return nil, errors.New("boom")
			},
		}},
	}

	result := getExecuteResult(t, getExecuteResultParams{
		agent:    agent,
		response: ModelResponse{Output: []message.Item{getFunctionToolCall("broken", "{}", "c1")}},
	})
	assertItemIsFunctionToolCallOutput(t, result.NewStepItems[1], "c1", "Error running tool broken: boom")
	assert.IsType(t, NextStepRunAgain{}, result.NextStep)
}

func TestToolPanicBecomesOutput(t *testing.T) {
	agent := &Agent{
		Name: "test",
		Tools: []Tool{FunctionTool{
			Name:             "panicky",
			ParamsJSONSchema: emptyObjectSchema(),
			OnInvokeTool: func(context.Context, string) (any, error) {
				panic("oops")
			},
		}},
	}

	result := getExecuteResult(t, getExecuteResultParams{
		agent:    agent,
		response: ModelResponse{Output: []message.Item{getFunctionToolCall("panicky", "{}", "c1")}},
	})
	assertItemIsFunctionToolCallOutput(t, result.NewStepItems[1], "c1", "Error running tool panicky: tool panicked: oops")
}

func TestFailingErrorFunctionAbortsStep(t *testing.T) {
	agent := &Agent{
		Name: "test",
		Tools: []Tool{FunctionTool{
			Name:             "strict",
			ParamsJSONSchema: emptyObjectSchema(),
			OnInvokeTool: func(context.Context, string) (any, error) {
				return nil, errors.New("boom")
			},
			FailureErrorFunction: func(_ context.Context, err error) (any, error) {
				return nil, err
			},
		}},
	}

	_, err := executeStep(t, getExecuteResultParams{
		agent:    agent,
		response: ModelResponse{Output: []message.Item{getFunctionToolCall("strict", "{}", "c1")}},
	})
	assert.ErrorIs(t, err, ErrToolExecution)
}

func TestMalformedArgumentsAreNormalized(t *testing.T) {
	var got string
	agent := &Agent{
		Name: "test",
		Tools: []Tool{FunctionTool{
			Name:             "echo",
			ParamsJSONSchema: emptyObjectSchema(),
			OnInvokeTool: func(_ context.Context, args string) (any, error) {
				got = args
				return "ok", nil
			},
		}},
	}

	getExecuteResult(t, getExecuteResultParams{
		agent:    agent,
		response: ModelResponse{Output: []message.Item{getFunctionToolCall("echo", "{not json", "c1")}},
	})
	assert.Equal(t, "{}", got)
}

func TestStopOnFirstToolIsFinalOutput(t *testing.T) {
	agent := &Agent{
		Name:            "test",
		Tools:           []Tool{getFunctionTool("first", "1"), getFunctionTool("second", "2")},
		ToolUseBehavior: StopOnFirstTool(),
	}

	result := getExecuteResult(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{
			getFunctionToolCall("first", "{}", "c1"),
			getFunctionToolCall("second", "{}", "c2"),
		}},
	})
	require.IsType(t, NextStepFinalOutput{}, result.NextStep)
	assert.Equal(t, "1", result.NextStep.(NextStepFinalOutput).Output)
}

func TestLocalShellCall(t *testing.T) {
	var commands [][]string
	agent := &Agent{
		Name: "test",
		Tools: []Tool{LocalShellTool{
			Executor: func(_ context.Context, req LocalShellCommandRequest) (string, error) {
				commands = append(commands, req.Data.Action.Command)
				return "ran " + req.Data.CallID, nil
			},
		}},
	}

	shellCall := func(callID string, cmd ...string) message.Item {
		return message.Item{
			Type:   message.TypeLocalShellCall,
			CallID: callID,
			Action: &message.Action{Type: "exec", Command: cmd},
		}
	}
	result := getExecuteResult(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{
			shellCall("s1", "ls"),
			shellCall("s2", "pwd"),
		}},
	})

	assert.Equal(t, [][]string{{"ls"}, {"pwd"}}, commands)
	require.Len(t, result.NewStepItems, 4)
	out := result.NewStepItems[2].(ToolCallOutputItem)
	assert.Equal(t, message.TypeLocalShellCallOutput, out.RawItem.Type)
	assert.Equal(t, "ran s1", out.Output)
	assert.IsType(t, NextStepRunAgain{}, result.NextStep)
}

func TestReasoningOnlyResponseRunsAgain(t *testing.T) {
	agent := &Agent{Name: "test"}
	result := getExecuteResult(t, getExecuteResultParams{
		agent: agent,
		response: ModelResponse{Output: []message.Item{{
			Type:    message.TypeReasoning,
			Summary: []message.Content{{Type: message.ContentSummaryText, Text: "thinking"}},
		}}},
	})
	require.Len(t, result.NewStepItems, 1)
	assert.IsType(t, ReasoningItem{}, result.NewStepItems[0])
	assert.IsType(t, NextStepRunAgain{}, result.NextStep)
}

type recordingLimiter struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (l *recordingLimiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	return ctx.Err()
}

func TestToolCallsWaitOnLimiter(t *testing.T) {
	limiter := &recordingLimiter{}
	agent := &Agent{
		Name:  "test",
		Tools: []Tool{getFunctionTool("foo", "result")},
	}

	result := getExecuteResult(t, getExecuteResultParams{
		agent:   agent,
		limiter: limiter,
		response: ModelResponse{Output: []message.Item{
			getFunctionToolCall("foo", "{}", "c1"),
		}},
	})

	assert.Equal(t, []string{"tool:foo"}, limiter.keys)
	assertItemIsFunctionToolCallOutput(t, result.NewStepItems[1], "c1", "result")
}

func TestLimiterTimeoutAbortsStep(t *testing.T) {
	limiter := &recordingLimiter{err: context.DeadlineExceeded}
	agent := &Agent{
		Name:  "test",
		Tools: []Tool{getFunctionTool("foo", "result")},
	}

	_, err := executeStep(t, getExecuteResultParams{
		agent:   agent,
		limiter: limiter,
		response: ModelResponse{Output: []message.Item{
			getFunctionToolCall("foo", "{}", "c1"),
		}},
	})
	require.Error(t, err)
	assert.Equal(t, ErrorKindTimeout, ClassifyError(err))
}

func TestWaitLimiter(t *testing.T) {
	t.Run("nil limiter", func(t *testing.T) {
		assert.NoError(t, WaitLimiter(t.Context(), nil, time.Second, ModelLimiterKey("a")))
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err := WaitLimiter(ctx, &recordingLimiter{}, time.Second, ModelLimiterKey("a"))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotEqual(t, ErrorKindTimeout, ClassifyError(err))
	})
}
