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
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// HandoffChainCapacity bounds the chain of previous agents consulted for
// cycle detection. Older entries are dropped once it is full, so a pipeline
// longer than this may re-enter an agent without being detected.
const HandoffChainCapacity = 10

// MaxHandoffExtraFields bounds HandoffPayload.Extra. Keys beyond the limit,
// in sorted order, are dropped.
const MaxHandoffExtraFields = 16

// HandoffPayload is the structured data transferred with a handoff.
type HandoffPayload struct {
	Reason   string            `json:"reason,omitempty"`
	Summary  string            `json:"summary,omitempty"`
	Priority string            `json:"priority,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// IsZero reports whether the payload carries no data.
func (p HandoffPayload) IsZero() bool {
	return p.Reason == "" && p.Summary == "" && p.Priority == "" && len(p.Extra) == 0
}

func (p HandoffPayload) bounded() HandoffPayload {
	if len(p.Extra) == 0 {
		p.Extra = nil
		return p
	}
	keys := slices.Sorted(maps.Keys(p.Extra))
	if len(keys) > MaxHandoffExtraFields {
		keys = keys[:MaxHandoffExtraFields]
	}
	extra := make(map[string]string, len(keys))
	for _, k := range keys {
		extra[k] = p.Extra[k]
	}
	p.Extra = extra
	return p
}

type HandoffStatus uint8

const (
	HandoffIdle HandoffStatus = iota
	HandoffPendingTransfer
)

func (s HandoffStatus) String() string {
	switch s {
	case HandoffIdle:
		return "idle"
	case HandoffPendingTransfer:
		return "pending_transfer"
	default:
		return fmt.Sprintf("HandoffStatus(%d)", s)
	}
}

// HandoffResult is the outcome of HandoffState.ExecuteHandoff. Rejections are
// reported through Err rather than as a returned error.
type HandoffResult struct {
	OK      bool
	From    string
	To      string
	Payload HandoffPayload
	Err     *AgentsError
}

type pendingHandoff struct {
	from    string
	target  string
	payload HandoffPayload
	at      time.Time
}

// HandoffState tracks the active agent of a run and the transfers between
// agents. It is safe for concurrent use.
type HandoffState struct {
	mu      sync.Mutex
	now     func() time.Time
	current string
	chain   []string
	pending *pendingHandoff
	last    *pendingHandoff
}

type HandoffStateOption func(*HandoffState)

// WithClock sets the time source used to stamp handoff messages.
func WithClock(now func() time.Time) HandoffStateOption {
	return func(s *HandoffState) { s.now = now }
}

func NewHandoffState(initialAgent string, opts ...HandoffStateOption) *HandoffState {
	s := &HandoffState{
		now:     time.Now,
		current: initialAgent,
		chain:   make([]string, 0, HandoffChainCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandoff records target as the pending transfer, replacing any previous
// one. A non-empty reason overrides payload.Reason.
func (s *HandoffState) SetHandoff(target string, payload HandoffPayload, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reason != "" {
		payload.Reason = reason
	}
	s.pending = &pendingHandoff{
		from:    s.current,
		target:  target,
		payload: payload.bounded(),
		at:      s.now(),
	}
}

// ExecuteHandoff commits the pending transfer. It is rejected when nothing is
// pending, when the target is the current agent, or when the target already
// appears in the chain. The pending transfer is cleared in every case.
func (s *HandoffState) ExecuteHandoff() HandoffResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pending
	s.pending = nil

	if p == nil {
		return HandoffResult{
			From: s.current,
			Err:  HandoffRejectedErrorf("no pending handoff for agent %s", s.current),
		}
	}

	result := HandoffResult{From: s.current, To: p.target, Payload: p.payload}
	switch {
	case p.target == s.current:
		result.Err = HandoffRejectedErrorf("circular handoff rejected: agent %s cannot hand off to itself", s.current)
		return result
	case slices.Contains(s.chain, p.target):
		result.Err = HandoffRejectedErrorf(
			"circular handoff rejected: %s already appears in chain %s",
			p.target, strings.Join(append(slices.Clone(s.chain), s.current), " -> "),
		)
		return result
	}

	if len(s.chain) == HandoffChainCapacity {
		s.chain = slices.Delete(s.chain, 0, 1)
	}
	s.chain = append(s.chain, s.current)
	s.current = p.target
	s.last = p

	result.OK = true
	return result
}

// ClearPending drops the pending transfer without committing it. It reports
// whether one was pending.
func (s *HandoffState) ClearPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := s.pending != nil
	s.pending = nil
	return cleared
}

// BuildHandoffMessage renders the payload of the pending transfer, or of the
// last committed one, as a block of text for the next agent. It returns an
// empty string when there is no payload.
func (s *HandoffState) BuildHandoffMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pending
	if p == nil {
		p = s.last
	}
	if p == nil || p.payload.IsZero() {
		return ""
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[HANDOFF FROM %s AT %s]", p.from, p.at.UTC().Format(time.RFC3339))
	writeField := func(name, value string) {
		if value != "" {
			_, _ = fmt.Fprintf(&sb, "\n%s: %s", strings.ToUpper(name), value)
		}
	}
	writeField("reason", p.payload.Reason)
	writeField("summary", p.payload.Summary)
	writeField("priority", p.payload.Priority)
	for _, k := range slices.Sorted(maps.Keys(p.payload.Extra)) {
		writeField(k, p.payload.Extra[k])
	}
	return sb.String()
}

func (s *HandoffState) CurrentAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// PendingTarget returns the target of the pending transfer, if any.
func (s *HandoffState) PendingTarget() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return "", false
	}
	return s.pending.target, true
}

// Chain returns the previous agents, oldest first.
func (s *HandoffState) Chain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.chain)
}

func (s *HandoffState) State() HandoffStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return HandoffPendingTransfer
	}
	return HandoffIdle
}
