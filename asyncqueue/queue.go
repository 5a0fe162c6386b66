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

// Package asyncqueue implements an unbounded FIFO queue that consumers can
// block on. A queue can be closed by the producer: consumers drain what is
// left and then observe the closure.
package asyncqueue

import (
	"sync"
	"time"
)

type Queue[T any] struct {
	cond   *sync.Cond
	values []T
	closed bool
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		cond: sync.NewCond(&sync.Mutex{}),
	}
}

// Put appends v. Values put after Close are dropped.
func (q *Queue[T]) Put(v T) {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	if q.closed {
		return
	}
	q.values = append(q.values, v)
	q.cond.Broadcast()
}

// Close marks the end of the stream and wakes every waiting consumer.
func (q *Queue[T]) Close() {
	q.cond.L.Lock()
	q.closed = true
	q.cond.L.Unlock()
	q.cond.Broadcast()
}

// Next blocks until a value is available or the queue is closed and empty.
// The boolean is false only in the latter case.
func (q *Queue[T]) Next() (T, bool) {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	for len(q.values) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.values) == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// GetTimeout is like Next but gives up after timeout.
func (q *Queue[T]) GetTimeout(timeout time.Duration) (T, bool) {
	timedOut := false
	timer := time.AfterFunc(timeout, func() {
		q.cond.L.Lock()
		timedOut = true
		q.cond.L.Unlock()
		q.cond.Broadcast()
	})
	defer timer.Stop()

	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	for len(q.values) == 0 && !timedOut && !q.closed {
		q.cond.Wait()
	}

	if len(q.values) == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

func (q *Queue[T]) GetNoWait() (T, bool) {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()

	if len(q.values) == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

func (q *Queue[T]) IsEmpty() bool {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	return len(q.values) == 0
}

func (q *Queue[T]) IsClosed() bool {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	return q.closed
}

func (q *Queue[T]) pop() T {
	v := q.values[0]
	var zero T
	q.values[0] = zero // helps GC
	q.values = q.values[1:]
	return v
}
