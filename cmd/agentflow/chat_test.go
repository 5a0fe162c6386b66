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
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nlpodyssey/agentflow/agentstesting"
	"github.com/nlpodyssey/agentflow/types/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatLoop(t *testing.T) {
	model := agentstesting.NewFakeModel(nil)
	model.AddMultipleTurnOutputs([]agentstesting.FakeModelTurnOutput{
		{Value: []message.Item{agentstesting.GetTextMessage("Hello!")}},
		{Value: []message.Item{agentstesting.GetTextMessage("Bye!")}},
	})

	var out bytes.Buffer
	a := newTestApp(t, supportWorkflow, model, &out)

	var reloads int
	in := strings.NewReader("hi\n\n  \nsee you\nexit\nignored\n")
	err := chatLoop(context.Background(), a, in, &out, func() error {
		reloads++
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, reloads)
	assert.Equal(t, 2, model.Calls())
	assert.Equal(t, "> user: hi\n"+
		"agent triage: Hello!\n"+
		"> > > user: see you\n"+
		"agent triage: Bye!\n"+
		"> ", out.String())
}

func TestChatLoop_ReloadFailureKeepsGoing(t *testing.T) {
	model := agentstesting.NewFakeModel(&agentstesting.FakeModelTurnOutput{
		Value: []message.Item{agentstesting.GetTextMessage("Still here.")},
	})

	var out bytes.Buffer
	a := newTestApp(t, supportWorkflow, model, &out)

	err := chatLoop(context.Background(), a, strings.NewReader("hi\n"), &out, func() error {
		return errors.New("bad yaml")
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "error: configuration not reloaded: bad yaml\n")
	assert.Contains(t, out.String(), "agent triage: Still here.\n")
}

func TestChatLoop_CanceledContext(t *testing.T) {
	model := agentstesting.NewFakeModel(nil)
	var out bytes.Buffer
	a := newTestApp(t, supportWorkflow, model, &out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := chatLoop(ctx, a, strings.NewReader("hi\nagain\n"), &out, func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.String(), "user: "))
}
