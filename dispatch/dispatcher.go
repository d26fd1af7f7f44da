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

package dispatch

import (
	"strconv"
	"time"

	"github.com/nutcore/upsched/logger"
	"github.com/nutcore/upsched/timer"
	"github.com/nutcore/upsched/wire"
	"github.com/nutcore/upsched/wire/conn"
)

// Dispatcher applies §4.4's frame table against a connection registry and a
// timer queue. It is built per daemon and is not safe for concurrent calls
// to Handle: callers must serialize through the single-consumer event loop
// (wire/conn's package doc explains why one dispatcher per process is the
// intended usage).
type Dispatcher struct {
	Registry *conn.Registry
	Queue    *timer.Queue
	Hook     ExecuteHook
	Log      logger.Logger

	// Now is overridable for tests; defaults to time.Now when nil.
	Now func() time.Time

	// Dump and Status back the additive DUMPALL/STATUS frames (SPEC_FULL.md
	// "Supplemented features"); both are optional. DUMPALL without a Dump
	// hook still replies DUMPDONE with no snapshot lines, matching spec.md
	// §4.4's "if supported by server role".
	Dump   func() []string
	Status func() string
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// CloseRequested is an error value describing a LOGOUT-initiated close.
// Handle does not return it: it reports that close through its closeAfter
// result.
type CloseRequested struct{}

func (CloseRequested) Error() string { return "connection closed by LOGOUT" }

// Handle applies one parsed frame from conn id and returns the reply lines
// to send back in order (each without trailing newline). A true closeAfter
// means: send the replies, if any, then close the connection.
func (d *Dispatcher) Handle(id conn.ID, args []string) (replies []string, closeAfter bool) {
	if len(args) == 0 {
		return nil, false
	}

	switch args[0] {
	case "START":
		return []string{d.handleStart(args)}, false

	case "CANCEL":
		return []string{d.handleCancel(args)}, false

	case "PING":
		return []string{"PONG"}, false

	case "NOBROADCAST":
		d.Registry.SetQuiet(id, true)
		return []string{"OK"}, false

	case "LOGOUT":
		return []string{"OK"}, true

	case "DUMPALL":
		var lines []string
		if d.Dump != nil {
			lines = append(lines, d.Dump()...)
		}
		return append(lines, "DUMPDONE"), false

	case "STATUS":
		// Additive diagnostic frame, not in spec.md's table; harmless if
		// never sent. See SPEC_FULL.md "Supplemented features".
		if d.Status != nil {
			return []string{d.Status()}, false
		}
		return []string{"OK"}, false

	default:
		if d.Log != nil {
			d.Log.Info("unknown frame", nil, "args", wire.EncodeLine(args...))
		}
		return []string{"ERR UNKNOWN"}, false
	}
}

func (d *Dispatcher) handleStart(args []string) string {
	if len(args) != 3 {
		return "ERR UNKNOWN"
	}
	name := args[1]
	secs, err := strconv.Atoi(args[2])
	if err != nil {
		return "ERR UNKNOWN"
	}

	if err := d.Queue.Insert(name, time.Duration(secs)*time.Second, d.now()); err != nil {
		if d.Log != nil {
			d.Log.Info("timer insert rejected", err, "name", name)
		}
		return "OK" // spec.md §7: ignore with info log, do not insert; reply unaffected.
	}
	return "OK"
}

func (d *Dispatcher) handleCancel(args []string) string {
	if len(args) < 2 || len(args) > 3 {
		return "ERR UNKNOWN"
	}
	name := args[1]

	if d.Queue.CancelFirst(name) {
		return "OK"
	}

	// spec.md §4.4: CANCEL with a fallback-cmd runs it when nothing matched.
	if len(args) == 3 {
		d.runHook(args[2])
	}
	return "OK"
}

func (d *Dispatcher) runHook(name string) {
	if d.Hook == nil {
		return
	}
	if err := d.Hook(name); err != nil && d.Log != nil {
		d.Log.Info("execute hook reported an error", err, "name", name)
	}
}

// FireExpired runs the execute hook for every timer Sweep just returned, in
// order (spec.md §5 "Timer expiry ordering").
func (d *Dispatcher) FireExpired(fired []timer.Timer) {
	for _, t := range fired {
		d.runHook(t.Name)
	}
}
