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

// Package runner provides small helpers shared by long-running goroutines:
// the daemon's event handler, the connection read loops, the metrics server
// and the config watcher all recover from panics the same way so one bad
// event cannot take the process down.
package runner

import (
	"fmt"
	"os"
)

// RecoveryCaller logs a recovered panic with the caller-supplied origin tag
// and optional extra context, then returns. It is a no-op when rec is nil,
// so callers can defer it unconditionally after a recover().
func RecoveryCaller(origin string, rec any, extra ...string) {
	if rec == nil {
		return
	}

	msg := fmt.Sprintf("recovered panic in %s: %v", origin, rec)
	for _, e := range extra {
		if e != "" {
			msg += " (" + e + ")"
		}
	}

	_, _ = fmt.Fprintln(os.Stderr, msg)
}
