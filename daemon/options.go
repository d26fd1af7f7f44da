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
	"time"

	liberr "github.com/nutcore/upsched/errors"
	"github.com/nutcore/upsched/file/perm"
)

// MaxSocketPathLen is the native Unix-domain pathname limit on the
// platforms this daemon targets (sizeof sun_path - 1, typically 104-108).
// spec.md §6 requires a hard abort rather than silent truncation past it.
const MaxSocketPathLen = 104

// IdleThresholdDefault is the reference empty-cycle count before the daemon
// exits (spec.md §4.5). Options.Validate substitutes it for a non-positive
// IdleThreshold; any positive value, including one outside 10-30, is used
// as given.
const IdleThresholdDefault = 15

// TickInterval is the main-loop poll ceiling (spec.md §4.5/§5): one second,
// so pending timers are checked even with no socket activity.
const TickInterval = time.Second

// DefaultSocketMode is the Unix-domain socket's permission once created
// (spec.md §5): group-writable, no world access. A deployment can override
// it through Settings.SocketMode (schedconf); Options.Validate falls back
// to this default when left zero.
const DefaultSocketMode perm.Perm = 0660

// SpawnBackoff is how long a client waits before retrying connect after
// losing the spawn-election race (spec.md's state machine, §4.5).
const SpawnBackoff = 250 * time.Millisecond

// Options configures one daemon instance (spec.md §3 "Daemon",
// process-wide state re-architected as an explicit struct per §9).
type Options struct {
	SocketPath    string
	LockPath      string
	CmdScript     string
	IdleThreshold int
	MaxConns      int

	// SocketMode overrides DefaultSocketMode; zero means "use the default".
	SocketMode perm.Perm

	// MetricsAddr, when non-empty, binds a local HTTP listener serving the
	// daemon's Prometheus registry at /metrics (SPEC_FULL.md "Domain stack").
	// Empty means no listener: the daemon's ambient metrics collector is
	// still maintained and readable via the STATUS frame either way.
	MetricsAddr string
}

// Validate applies the startup-fatal checks from spec.md §6/§7
// (Configuration/Environment/Resource kinds).
func (o *Options) Validate() error {
	if o.SocketPath == "" {
		return liberr.New(uint16(liberr.KindConfigurationMissingDirective), "PIPEFN is required", nil)
	}
	if len(o.SocketPath) > MaxSocketPathLen {
		return liberr.New(uint16(liberr.KindEnvironmentMissingVar), "socket path exceeds platform limit", nil)
	}
	if o.LockPath == "" {
		return liberr.New(uint16(liberr.KindConfigurationMissingDirective), "LOCKFN is required", nil)
	}
	if o.CmdScript == "" {
		return liberr.New(uint16(liberr.KindConfigurationMissingDirective), "CMDSCRIPT is required", nil)
	}
	if o.IdleThreshold <= 0 {
		o.IdleThreshold = IdleThresholdDefault
	}
	if o.SocketMode == 0 {
		o.SocketMode = DefaultSocketMode
	}
	return nil
}
