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

// Package metrics exposes the daemon's internal counters as Prometheus
// metrics (SPEC_FULL.md "Domain stack": client_golang is the only metrics
// library anywhere in the example pack). The daemon serves them at /metrics
// only when a metrics address is configured; the "STATUS" diagnostic frame
// does not read the Collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nutcore/upsched/atomic"
)

// Collector owns the registry-scoped gauges and counters for one daemon
// process. A fresh Collector uses its own prometheus.Registry rather than
// the global DefaultRegisterer so multiple daemons can coexist in the same
// test binary.
type Collector struct {
	Registry *prometheus.Registry

	pendingTimers prometheus.Gauge
	openConns     prometheus.Gauge
	firedTotal    prometheus.Counter
	framesTotal   *prometheus.CounterVec

	// lastActivity is stored by AddFrame from the daemon's event loop and
	// returned by LastActivity; atomic.Value keeps that read safe from any
	// goroutine without a dedicated mutex for one timestamp.
	lastActivity atomic.Value[time.Time]
}

// New builds a Collector with all metrics registered.
func New() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		pendingTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upssched_pending_timers",
			Help: "Number of timers currently queued, not yet fired or canceled.",
		}),
		openConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upssched_open_connections",
			Help: "Number of clients currently connected to the control socket.",
		}),
		firedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upssched_timers_fired_total",
			Help: "Total number of timers that have fired and run their command.",
		}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upssched_frames_total",
			Help: "Total number of protocol frames handled, by frame name.",
		}, []string{"frame"}),
	}

	c.Registry.MustRegister(c.pendingTimers, c.openConns, c.firedTotal, c.framesTotal)
	c.lastActivity = atomic.NewValue[time.Time]()
	return c
}

// SetPendingTimers records the current queue depth.
func (c *Collector) SetPendingTimers(n int) {
	c.pendingTimers.Set(float64(n))
}

// SetOpenConnections records the current connection count.
func (c *Collector) SetOpenConnections(n int) {
	c.openConns.Set(float64(n))
}

// AddFired increments the fired-timer counter by n.
func (c *Collector) AddFired(n int) {
	c.firedTotal.Add(float64(n))
}

// AddFrame increments the per-frame-name counter and records this as the
// most recent activity.
func (c *Collector) AddFrame(name string) {
	c.framesTotal.WithLabelValues(name).Inc()
	c.lastActivity.Store(time.Now())
}

// LastActivity returns the timestamp of the most recently dispatched frame,
// the zero time if none has been handled yet.
func (c *Collector) LastActivity() time.Time {
	return c.lastActivity.Load()
}
