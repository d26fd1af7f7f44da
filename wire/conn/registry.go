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

package conn

import (
	"context"
	"net"
	"sync"

	liberr "github.com/nutcore/upsched/errors"
	"github.com/nutcore/upsched/runner"
	"github.com/nutcore/upsched/semaphore"
	"github.com/nutcore/upsched/size"
	"github.com/nutcore/upsched/wire"
)

// MaxRead bounds the bytes read from one connection per read() call, so a
// single noisy client cannot starve others for more than one syscall's worth
// of latency (spec.md §4.2/§5: implementation cap, >= 128 bytes).
const MaxRead = int(4 * size.KB)

// ID identifies one accepted connection for the lifetime of the process.
type ID uint64

// EventKind distinguishes the shapes of Event.
type EventKind int

const (
	// EventAccepted reports a newly accepted connection.
	EventAccepted EventKind = iota
	// EventLine reports one complete, parsed frame.
	EventLine
	// EventClosed reports that the peer closed (or a fatal write/read error
	// closed the connection locally).
	EventClosed
	// EventParseError reports a malformed frame; the connection stays open.
	EventParseError
)

// Event is one occurrence on a tracked connection, forwarded to the single
// dispatch consumer.
type Event struct {
	Kind EventKind
	Conn ID
	Args []string
	Err  error
}

// Registry owns the listener and the set of accepted connections.
type Registry struct {
	mu      sync.Mutex
	conns   map[ID]*connection
	nextID  ID
	events  chan Event
	closing bool
	fanout  semaphore.Semaphore
}

type connection struct {
	id     ID
	nc     net.Conn
	parser *wire.Parser
	quiet  bool
}

// New returns an empty Registry whose accept/read events are delivered on
// the returned channel. maxConns bounds how many reader goroutines may run
// at once (0 means unbounded); Accept blocks past that bound rather than
// spawning without limit, guarding against a connection-flood fan-out.
func New(ctx context.Context, maxConns int) *Registry {
	return &Registry{
		conns:  make(map[ID]*connection),
		events: make(chan Event, 64),
		fanout: semaphore.NewSemaphoreWithContext(ctx, maxConns),
	}
}

// Events returns the channel every accept/read/close/parse-error event is
// delivered on. There is exactly one consumer by contract: the dispatcher.
func (r *Registry) Events() <-chan Event {
	return r.events
}

// Serve accepts connections from ln, giving each its own reader goroutine,
// until Accept fails. It returns nil when that failure follows ctx being done
// or Close being called, and an error otherwise; neither ctx nor Close
// interrupts a pending Accept on their own.
func (r *Registry) Serve(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			r.mu.Lock()
			closing := r.closing
			r.mu.Unlock()
			if closing {
				return nil
			}
			return liberr.New(uint16(liberr.KindResourceSocketBind), "accept failed", err)
		}

		if err := r.fanout.NewWorker(); err != nil {
			_ = nc.Close()
			return nil
		}

		c := r.register(nc)
		r.events <- Event{Kind: EventAccepted, Conn: c.id}
		go r.readLoop(ctx, c)
	}
}

func (r *Registry) register(nc net.Conn) *connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	c := &connection{id: r.nextID, nc: nc, parser: wire.NewParser()}
	r.conns[c.id] = c
	return c
}

func (r *Registry) readLoop(ctx context.Context, c *connection) {
	defer func() {
		runner.RecoveryCaller("conn.readLoop", recover())
	}()

	buf := make([]byte, MaxRead)
	for {
		select {
		case <-ctx.Done():
			r.closeConn(c, nil)
			return
		default:
		}

		n, err := c.nc.Read(buf)
		if n > 0 {
			r.feed(c, buf[:n])
		}
		if err != nil {
			r.closeConn(c, nil)
			return
		}
	}
}

func (r *Registry) feed(c *connection, chunk []byte) {
	for _, b := range chunk {
		switch c.parser.Feed(b) {
		case wire.Complete:
			args := append([]string(nil), c.parser.Args()...)
			c.parser.Reset()
			if len(args) == 0 {
				continue
			}
			r.events <- Event{Kind: EventLine, Conn: c.id, Args: args}
		case wire.Errored:
			err := c.parser.Err()
			c.parser.Reset()
			r.events <- Event{Kind: EventParseError, Conn: c.id, Err: err}
		case wire.Pending:
		}
	}
}

func (r *Registry) closeConn(c *connection, err error) {
	r.mu.Lock()
	_, present := r.conns[c.id]
	if present {
		delete(r.conns, c.id)
	}
	r.mu.Unlock()
	if !present {
		return
	}

	_ = c.nc.Close()
	r.fanout.DeferWorker()
	r.events <- Event{Kind: EventClosed, Conn: c.id, Err: err}
}

// WriteLine writes text followed by \n. A short write is treated as a fatal
// transport error for that connection (spec.md §4.2): the expected traffic
// is small enough the kernel buffer is never full in practice.
func (r *Registry) WriteLine(id ID, text string) error {
	r.mu.Lock()
	c, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return liberr.New(uint16(liberr.KindPeerTransportWriteFailed), "write to unknown connection", nil)
	}

	payload := []byte(text + "\n")
	n, err := c.nc.Write(payload)
	if err != nil {
		r.closeConn(c, err)
		return liberr.New(uint16(liberr.KindPeerTransportWriteFailed), "write failed", err)
	}
	if n != len(payload) {
		r.closeConn(c, liberr.New(uint16(liberr.KindPeerTransportWriteFailed), "short write", nil))
		return liberr.New(uint16(liberr.KindPeerTransportWriteFailed), "short write", nil)
	}
	return nil
}

// CloseByID closes one tracked connection, e.g. after a LOGOUT reply has
// been flushed. A no-op if the connection is already gone.
func (r *Registry) CloseByID(id ID) {
	r.mu.Lock()
	c, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.closeConn(c, nil)
}

// SetQuiet marks a connection as suppressing unsolicited broadcast sends
// (the NOBROADCAST frame, spec.md §4.4).
func (r *Registry) SetQuiet(id ID, quiet bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.quiet = quiet
	}
}

// IsQuiet reports whether a connection has NOBROADCAST set.
func (r *Registry) IsQuiet(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		return c.quiet
	}
	return false
}

// Close closes every tracked connection. Idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closing = true
	conns := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		r.closeConn(c, nil)
	}
}

// Len reports the number of currently tracked connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Broadcast writes text to every connection that has not set NOBROADCAST.
// Nothing in this module calls it outside its tests; the scheduler socket
// has no broadcast frame (spec.md §4.4 table).
func (r *Registry) Broadcast(text string) {
	r.mu.Lock()
	ids := make([]ID, 0, len(r.conns))
	for id, c := range r.conns {
		if !c.quiet {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.WriteLine(id, text)
	}
}
