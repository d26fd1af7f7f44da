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

package daemon

import (
	"context"
	"fmt"
	"time"

	libctx "github.com/nutcore/upsched/context"
	"github.com/nutcore/upsched/wire/conn"
)

// connMeta is the diagnostic record kept per connection for the additive
// STATUS/DUMPALL frames (SPEC_FULL.md "Supplemented features"). It replaces
// the source's connhead global walk (spec.md §9 "Process-wide state") with
// the teacher's keyed Config[T], the same pattern used throughout golib for
// request-scoped maps over a context.
type connMeta struct {
	ConnectedAt time.Time
}

// state is the explicit, non-global bookkeeping a running Daemon threads
// through its event loop. It holds nothing the dispatcher needs to make
// protocol decisions (that stays in timer.Queue and conn.Registry); it only
// backs operator-facing introspection.
type state struct {
	conns libctx.Config[conn.ID]
	start time.Time
	pid   int
}

func newState(ctx context.Context) *state {
	return &state{
		conns: libctx.New[conn.ID](ctx),
		start: time.Now(),
	}
}

func (s *state) onAccept(id conn.ID) {
	s.conns.Store(id, connMeta{ConnectedAt: time.Now()})
}

func (s *state) onClose(id conn.ID) {
	s.conns.Delete(id)
}

// dumpLines renders one line per tracked connection, oldest first is not
// guaranteed (Walk order is unspecified) -- DUMPALL is diagnostic only and
// makes no ordering promise beyond the final DUMPDONE terminator (spec.md
// §4.4 table).
func (s *state) dumpLines() []string {
	var lines []string
	s.conns.Walk(func(key conn.ID, val interface{}) bool {
		m, ok := val.(connMeta)
		if !ok {
			return true
		}
		lines = append(lines, fmt.Sprintf("CONN %d %d", uint64(key), m.ConnectedAt.Unix()))
		return true
	})
	return lines
}

// statusLine renders the additive STATUS reply: pid, start time (unix
// seconds) and connection count (SPEC_FULL.md "Supplemented features" #3).
func (s *state) statusLine(openConns int) string {
	return fmt.Sprintf("STATUS pid=%d started=%d conns=%d", s.pid, s.start.Unix(), openConns)
}
