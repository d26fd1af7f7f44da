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

// Package conn tracks accepted client connections on the scheduler/driver
// socket: per-connection read buffering, parse state, and the quiet
// (NOBROADCAST) flag, plus the accept loop itself.
//
// The source's select()-based single-threaded multiplexer is re-architected
// here as one goroutine per connection doing the (necessarily blocking, from
// Go's point of view) read syscalls, forwarding discrete Event values onto a
// single channel. A single consumer goroutine drains that channel and is the
// only mutator of the registry and the timer queue, so the cooperative,
// lock-free semantics spec.md describes for the daemon's state are preserved
// even though the I/O fan-in itself uses goroutines rather than a raw
// select() loop. See DESIGN.md for the full rationale.
package conn
