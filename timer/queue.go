/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package timer

import (
	"sync"
	"time"

	liberr "github.com/nutcore/upsched/errors"
)

// Timer is a named, delayed action pending execution.
type Timer struct {
	Name string
	Fire time.Time
}

// Queue is the scheduler's pending-timer collection. Safe for concurrent
// use: the dispatcher is the sole mutator in the single-consumer design
// (see wire/conn doc.go), but Queue takes its own lock so tests and the
// metrics reader can inspect it without coordinating with the dispatcher.
type Queue struct {
	mu      sync.Mutex
	items   []Timer
	empties int
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Insert adds a timer named name firing offset after now. offset must be
// non-negative; a negative offset is rejected (spec.md §4.3/§7 "Timer arg").
func (q *Queue) Insert(name string, offset time.Duration, now time.Time) error {
	if offset < 0 {
		return liberr.New(uint16(liberr.KindTimerArgNegativeOffset), "negative timer offset rejected: "+name, nil)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, Timer{Name: name, Fire: now.Add(offset)})
	return nil
}

// CancelFirst removes the oldest pending timer named name. It reports
// whether one was found.
func (q *Queue) CancelFirst(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.items {
		if t.Name == name {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Sweep removes and returns, in insertion order, every timer whose fire
// time is at or before now.
func (q *Queue) Sweep(now time.Time) []Timer {
	q.mu.Lock()
	defer q.mu.Unlock()

	var fired []Timer
	kept := q.items[:0]
	for _, t := range q.items {
		if !t.Fire.After(now) {
			fired = append(fired, t)
		} else {
			kept = append(kept, t)
		}
	}
	q.items = kept

	if len(q.items) == 0 {
		q.empties++
	} else {
		q.empties = 0
	}

	return fired
}

// IsEmpty reports whether the queue currently holds no pending timers.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len reports the number of pending timers (used for metrics).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// EmptyCycles reports the number of consecutive Sweep calls that left the
// queue empty (a sweep that fires the last timer counts), driving the daemon's idle-exit decision (spec.md
// §4.3 "Idle-exit coupling", §4.5 "Idle exit").
func (q *Queue) EmptyCycles() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.empties
}
