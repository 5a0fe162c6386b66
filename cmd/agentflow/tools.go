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
	"cmp"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/agentflow/agents"
	"github.com/nlpodyssey/agentflow/config"
)

type currentTimeArgs struct {
	// IANA time zone name. Empty means UTC.
	Timezone string `json:"timezone"`
}

type wordCountArgs struct {
	Text string `json:"text"`
}

type wordCountResult struct {
	Words      int `json:"words"`
	Characters int `json:"characters"`
}

// builtinTools returns the tools workflows can refer to by name.
func builtinTools(now func() time.Time) config.ToolRegistry {
	currentTime := agents.NewFunctionTool(
		"current_time",
		"Returns the current date and time in RFC 3339 format.",
		func(_ context.Context, args currentTimeArgs) (string, error) {
			loc, err := time.LoadLocation(cmp.Or(args.Timezone, "UTC"))
			if err != nil {
				return "", fmt.Errorf("unknown time zone %q", args.Timezone)
			}
			return now().In(loc).Format(time.RFC3339), nil
		},
	)
	wordCount := agents.NewFunctionTool(
		"word_count",
		"Counts the words and characters of a text.",
		func(_ context.Context, args wordCountArgs) (wordCountResult, error) {
			return wordCountResult{
				Words:      len(strings.Fields(args.Text)),
				Characters: len([]rune(args.Text)),
			}, nil
		},
	)
	return config.ToolRegistry{
		currentTime.Name: currentTime,
		wordCount.Name:   wordCount,
	}
}
