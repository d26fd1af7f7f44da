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
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/nutcore/upsched/daemon/lock"
	liberr "github.com/nutcore/upsched/errors"
	"github.com/nutcore/upsched/logger"
)

// InternalServeFlag is the hidden flag cmd/upssched recognizes to mean
// "run as the daemon, not as a one-shot client"; set by trySpawn on the
// child it launches. Not part of the documented CLI surface.
const InternalServeFlag = "--internal-serve"

const (
	connectAttempts = 8
	spawnWaitReady  = 5 * time.Second
)

// Dial connects to Opts.SocketPath, spawning the daemon in the background
// on demand if nothing is listening yet (spec.md §4.5's client state
// machine). It returns once connected or after exhausting connectAttempts.
func Dial(ctx context.Context, opts Options, log logger.Logger) (net.Conn, error) {
	if log == nil {
		log = logger.New(ctx)
	}

	// lockHeldLastRound tracks spec.md §4.5's conservative recovery order: a
	// stale lock is only cleared after a failed connect, AND a failed
	// Acquire (lock already exists), AND the *next* retry still can't
	// connect either. A single failed Acquire is never by itself evidence
	// of staleness (lock.Stale's own doc comment).
	lockHeldLastRound := false

	for attempt := 0; attempt < connectAttempts; attempt++ {
		nc, err := net.DialTimeout("unix", opts.SocketPath, time.Second)
		if err == nil {
			return nc, nil
		}

		if lockHeldLastRound && lock.Stale(opts.LockPath) {
			log.Warning("clearing stale lock file after repeated failed connect", nil, "path", opts.LockPath)
			if cerr := lock.Clear(opts.LockPath); cerr != nil {
				log.Warning("could not clear stale lock file", cerr, "path", opts.LockPath)
			}
			lockHeldLastRound = false
		}

		spawned, serr := trySpawn(ctx, opts, log)
		if serr != nil {
			log.Warning("spawn attempt failed", serr, "attempt", attempt)
		}
		lockHeldLastRound = !spawned && serr == nil
		if !spawned {
			// Someone else is holding the spawn lock; give them time to
			// finish their own handshake before we try connecting again.
			time.Sleep(SpawnBackoff)
		}
	}

	return nil, liberr.New(uint16(liberr.KindResourceSocketBind), "could not connect or spawn daemon: "+opts.SocketPath, nil)
}

// trySpawn attempts to win the spawn-election lock and, on success, starts
// the background daemon and waits for its readiness signal. It returns
// (true, nil) only when this call actually spawned a daemon.
func trySpawn(ctx context.Context, opts Options, log logger.Logger) (bool, error) {
	lf, err := lock.Acquire(opts.LockPath)
	if err != nil {
		// Lock held: either a sibling is mid-spawn (the common case) or a
		// previous daemon died holding it (stale). We only treat it as
		// stale after repeated failed connect+acquire rounds, handled by
		// the caller's retry loop; a single failed Acquire here is not
		// itself evidence of staleness.
		return false, nil
	}
	defer func() { _ = lf.Release() }()

	pr, pw, err := os.Pipe()
	if err != nil {
		return false, liberr.New(uint16(liberr.KindResourcePipe), "readiness pipe", err)
	}

	exe, err := os.Executable()
	if err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return false, liberr.New(uint16(liberr.KindResourcePipe), "resolve executable", err)
	}

	cmd := exec.Command(exe,
		InternalServeFlag,
		"--socket", opts.SocketPath,
		"--lock", opts.LockPath,
		"--cmdscript", opts.CmdScript,
	)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.ExtraFiles = []*os.File{pw}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return false, liberr.New(uint16(liberr.KindResourceFork), "spawn daemon", err)
	}
	_ = pw.Close()
	defer func() { _ = pr.Close() }()
	// The child owns its own process group now; we deliberately do not
	// Wait() on it so the daemon keeps running after this client exits.

	if err := waitReady(pr, spawnWaitReady); err != nil {
		log.Warning("daemon did not signal readiness in time", err, "socket", opts.SocketPath)
		return true, err
	}

	return true, nil
}

// waitReady blocks until the readiness pipe is closed (RunServer closes its
// write end right after a successful bind) or the pipe yields a byte, or
// timeout elapses.
func waitReady(pr *os.File, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := pr.Read(buf)
		if err != nil {
			done <- nil // EOF is the expected signal
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return liberr.New(uint16(liberr.KindResourcePipe), "timed out waiting for daemon readiness", nil)
	}
}

// RunServer runs a Daemon bound to opts until idle-exit or ctx cancellation.
// When readyFD is >= 0 (set by the InternalServeFlag code path in cmd/), it
// writes one byte and closes that fd right after the socket is bound, which
// is what unblocks the parent's waitReady above.
func RunServer(ctx context.Context, opts Options, log logger.Logger, readyFD int) error {
	d := New(ctx, opts, log)

	if readyFD >= 0 {
		rf := os.NewFile(uintptr(readyFD), "ready-pipe")
		d.onBound = func() {
			if rf != nil {
				_, _ = rf.Write([]byte{1})
				_ = rf.Close()
			}
		}
	}

	return d.Run(ctx)
}
