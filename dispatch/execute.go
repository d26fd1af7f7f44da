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
	"os/exec"
	"syscall"

	liberr "github.com/nutcore/upsched/errors"
	"github.com/nutcore/upsched/logger"
)

// ExecuteHook runs name as the scheduler's configured action, either on
// timer expiry or on a CANCEL fallback (spec.md §4.4 "Execute semantics").
// It runs synchronously on the dispatcher goroutine and may block; this is
// the documented backpressure point (spec.md §4.4, §5).
type ExecuteHook func(name string) error

// ScriptExecutor builds an ExecuteHook that runs "<script> <name>" as an
// argument vector (never a shell string), per spec.md §9's redesign of the
// source's shell-substitution execute. It never shares the daemon's socket
// or lock descriptors with the child (close-on-exec is Go's default for
// everything this process itself opened via the os/net packages).
type ScriptExecutor struct {
	Script string
	Log    logger.Logger
}

// Run spawns Script with name as its sole argument and reports the
// dispatcher-visible outcome: normal non-zero exit is informational,
// signal death is a warning, inability to spawn is an error (spec.md §4.4
// "Child-process observation").
func (e *ScriptExecutor) Run(name string) error {
	cmd := exec.Command(e.Script, name)

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				if e.Log != nil {
					e.Log.Warning("execute hook killed by signal", ws.Signal(), "name", name)
				}
				return liberr.New(uint16(liberr.KindSubprocessExitNonZero), "execute hook killed by signal: "+name, err)
			}
			if e.Log != nil {
				e.Log.Info("execute hook exited non-zero", exitErr.ExitCode(), "name", name)
			}
			return liberr.New(uint16(liberr.KindSubprocessExitNonZero), "execute hook exited non-zero: "+name, err)
		}

		if e.Log != nil {
			e.Log.Error("execute hook failed to spawn", err, "name", name)
		}
		return liberr.New(uint16(liberr.KindSubprocessSpawnFailed), "execute hook failed to spawn: "+name, err)
	}

	return nil
}
