/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
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

// Package semaphore bounds the number of goroutines a caller fans out
// concurrently (the connection registry's reader goroutines), with zero
// meaning unbounded.
package semaphore

import (
	"context"
	"sync"
)

type Semaphore interface {
	// NewWorker reserves a slot, blocking if the semaphore is bounded and
	// full, until one frees up or the context is done.
	NewWorker() error

	// DeferWorker releases the slot acquired by NewWorker. Safe to call
	// via defer immediately after a successful NewWorker.
	DeferWorker()

	// WaitAll blocks until every outstanding worker has called
	// DeferWorker, or the context is done.
	WaitAll() error

	// DeferMain releases any resources held by the semaphore itself.
	DeferMain()
}

type sem struct {
	ctx context.Context
	wg  sync.WaitGroup
	c   chan struct{}
}

// NewSemaphoreWithContext creates a Semaphore bounded to max concurrent
// workers. max <= 0 means unbounded.
func NewSemaphoreWithContext(ctx context.Context, max int) Semaphore {
	if ctx == nil {
		ctx = context.Background()
	}

	s := &sem{ctx: ctx}
	if max > 0 {
		s.c = make(chan struct{}, max)
	}

	return s
}

func (s *sem) NewWorker() error {
	if s.c != nil {
		select {
		case s.c <- struct{}{}:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}

	s.wg.Add(1)
	return nil
}

func (s *sem) DeferWorker() {
	if s.c != nil {
		<-s.c
	}
	s.wg.Done()
}

func (s *sem) WaitAll() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *sem) DeferMain() {
	if s.c != nil {
		close(s.c)
	}
}
