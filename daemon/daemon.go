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
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nutcore/upsched/daemon/lock"
	"github.com/nutcore/upsched/dispatch"
	liberr "github.com/nutcore/upsched/errors"
	"github.com/nutcore/upsched/ioutils/mapCloser"
	"github.com/nutcore/upsched/logger"
	"github.com/nutcore/upsched/metrics"
	"github.com/nutcore/upsched/runner"
	"github.com/nutcore/upsched/runner/startStop"
	"github.com/nutcore/upsched/timer"
	"github.com/nutcore/upsched/wire/conn"
)

// Daemon is one running scheduler server: a bound Unix-domain socket, the
// connection registry reading it, the pending-timer queue and the
// dispatcher that ties frames to timers and the execute hook (spec.md §3-5).
type Daemon struct {
	Opts Options
	Log  logger.Logger

	Registry   *conn.Registry
	Queue      *timer.Queue
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Collector

	st      *state
	ln      net.Listener
	acc     startStop.StartStop
	onBound func()
}

// New builds a Daemon ready for Run. Opts must already be Validate()d.
func New(ctx context.Context, opts Options, log logger.Logger) *Daemon {
	if log == nil {
		log = logger.New(ctx)
	}

	reg := conn.New(ctx, opts.MaxConns)
	q := timer.New()
	m := metrics.New()
	st := newState(ctx)
	st.pid = os.Getpid()

	d := &Daemon{
		Opts:     opts,
		Log:      log,
		Registry: reg,
		Queue:    q,
		Metrics:  m,
		st:       st,
	}

	d.Dispatcher = &dispatch.Dispatcher{
		Registry: reg,
		Queue:    q,
		Log:      log,
		Hook: (&dispatch.ScriptExecutor{
			Script: opts.CmdScript,
			Log:    log,
		}).Run,
		Dump:   st.dumpLines,
		Status: func() string { return st.statusLine(reg.Len()) },
	}

	return d
}

// bind creates the listening socket at Opts.SocketPath, removing a leftover
// stale socket file first (a prior daemon that died without releasing its
// lock leaves one behind; the lock election in spawn.go is what actually
// guards against two daemons racing to bind the same path).
func (d *Daemon) bind() error {
	_ = os.Remove(d.Opts.SocketPath)

	ln, err := net.Listen("unix", d.Opts.SocketPath)
	if err != nil {
		return liberr.New(uint16(liberr.KindResourceSocketBind), "bind failed: "+d.Opts.SocketPath, err)
	}
	if err := os.Chmod(d.Opts.SocketPath, d.Opts.SocketMode.FileMode()); err != nil {
		_ = ln.Close()
		return liberr.New(uint16(liberr.KindResourceSocketBind), "chmod failed: "+d.Opts.SocketPath, err)
	}
	d.ln = ln
	return nil
}

// Run binds the socket, serves connections and drives the dispatch loop
// until the idle-exit condition from spec.md §4.5 is reached or ctx is
// canceled. The socket file is unlinked before returning.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.bind(); err != nil {
		return err
	}
	if d.onBound != nil {
		d.onBound()
	}

	// mc owns every fd the daemon opens directly (the listener, plus the
	// metrics listener when MetricsAddr is set; the lock fd is released
	// separately by the caller that acquired it). Using the teacher's
	// mapCloser instead of a bare defer chain means serveMetrics only needs
	// an Add, not another line in this unwind path.
	mc := mapCloser.New(ctx)
	mc.Add(d.ln)
	defer func() {
		d.Registry.Close()
		_ = mc.Close()
		_ = os.Remove(d.Opts.SocketPath)
	}()

	if d.Opts.MetricsAddr != "" {
		if err := d.serveMetrics(mc); err != nil {
			d.Log.Warning("metrics listener failed to start", err, "addr", d.Opts.MetricsAddr)
		}
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.acc = startStop.New(
		func(rctx context.Context) error {
			return d.Registry.Serve(rctx, d.ln)
		},
		func(context.Context) error { return nil },
	)
	if err := d.acc.Start(cctx); err != nil {
		return err
	}

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-d.Registry.Events():
			if !ok {
				return nil
			}
			d.handleEvent(ev)

		case now := <-ticker.C:
			fired := d.Queue.Sweep(now)
			d.Metrics.SetPendingTimers(d.Queue.Len())
			d.Metrics.SetOpenConnections(d.Registry.Len())
			if len(fired) > 0 {
				d.Dispatcher.FireExpired(fired)
				d.Metrics.AddFired(len(fired))
			}

			if d.Queue.IsEmpty() && d.Registry.Len() == 0 && d.Queue.EmptyCycles() >= d.Opts.IdleThreshold {
				d.Log.Info("idle threshold reached, exiting", nil, "cycles", d.Queue.EmptyCycles())
				return nil
			}
		}
	}
}

// serveMetrics binds Opts.MetricsAddr and serves the Collector's registry at
// /metrics. The listener is handed to mc so it shares the daemon's shutdown
// path; a bind failure here is non-fatal to the daemon itself.
func (d *Daemon) serveMetrics(mc mapCloser.Closer) error {
	ln, err := net.Listen("tcp", d.Opts.MetricsAddr)
	if err != nil {
		return liberr.New(uint16(liberr.KindResourceSocketBind), "metrics bind failed: "+d.Opts.MetricsAddr, err)
	}
	mc.Add(ln)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}

	go func() {
		defer runner.RecoveryCaller("daemon.serveMetrics", recover())
		_ = srv.Serve(ln)
	}()

	return nil
}

func (d *Daemon) handleEvent(ev conn.Event) {
	defer func() {
		runner.RecoveryCaller("daemon.handleEvent", recover())
	}()

	switch ev.Kind {
	case conn.EventAccepted:
		d.st.onAccept(ev.Conn)
		d.Metrics.SetOpenConnections(d.Registry.Len())

	case conn.EventClosed:
		d.st.onClose(ev.Conn)
		d.Metrics.SetOpenConnections(d.Registry.Len())

	case conn.EventParseError:
		d.Metrics.AddFrame("parse-error")
		_ = d.Registry.WriteLine(ev.Conn, "ERR UNKNOWN")

	case conn.EventLine:
		if len(ev.Args) > 0 {
			d.Metrics.AddFrame(ev.Args[0])
		}
		replies, closeAfter := d.Dispatcher.Handle(ev.Conn, ev.Args)
		for _, line := range replies {
			if line == "" {
				continue
			}
			if err := d.Registry.WriteLine(ev.Conn, line); err != nil {
				break
			}
		}
		if closeAfter {
			d.Registry.CloseByID(ev.Conn)
		}
	}
}

// lockFile acquires Opts.LockPath through the same lock package that
// spawn.go's client-side logic uses, so both sides agree on the lock file.
func (d *Daemon) lockFile() (*lock.File, error) { return lock.Acquire(d.Opts.LockPath) }
