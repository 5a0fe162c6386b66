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

// Package memory persists conversation history across runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nlpodyssey/agentflow/types/message"
)

// A Session stores conversation history for a specific session, allowing
// agents to maintain context without explicit memory management.
type Session interface {
	SessionID(context.Context) string

	// GetItems retrieves the conversation history for this session.
	//
	// limit is the maximum number of items to retrieve. If <= 0, retrieves all items.
	// When specified, returns the latest N items in chronological order.
	GetItems(ctx context.Context, limit int) ([]message.Item, error)

	// AddItems adds new items to the conversation history.
	AddItems(ctx context.Context, items []message.Item) error

	// PopItem removes and returns the most recent item from the session.
	// It returns nil if the session is empty.
	PopItem(context.Context) (*message.Item, error)

	// ClearSession clears all items for this session.
	ClearSession(context.Context) error
}

// trimOrphanToolOutputs drops tool outputs at the start of a limited read,
// whose calls fell outside the window.
func trimOrphanToolOutputs(items []message.Item) []message.Item {
	for len(items) > 0 && items[0].IsToolOutput() {
		items = items[1:]
	}
	return items
}

func encodeItem(item message.Item) (string, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("error JSON marshaling item: %w", err)
	}
	return string(b), nil
}

// decodeItems unmarshals stored rows, skipping corrupted entries.
func decodeItems(rows []string) []message.Item {
	items := make([]message.Item, 0, len(rows))
	for _, row := range rows {
		var item message.Item
		if err := json.Unmarshal([]byte(row), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}
