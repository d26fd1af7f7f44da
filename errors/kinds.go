/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package errors

// Kind codes used across the scheduler and driver-query client. Grouped by
// the layer that raises them so a caller can branch on IsCode/HasCode
// without string matching.
const (
	// KindConfiguration covers malformed or missing directives in the
	// scheduler config file (CMDSCRIPT/PIPEFN/LOCKFN/AT).
	KindConfiguration CodeError = 1000 + iota
	KindConfigurationMissingDirective
	KindConfigurationBadArgument
)

const (
	// KindEnvironment covers missing or invalid process environment,
	// such as the UPSNAME/NOTIFYTYPE variables upsmon is expected to set.
	KindEnvironment CodeError = 1100 + iota
	KindEnvironmentMissingVar
)

const (
	// KindResource covers OS-level resource failures: socket bind,
	// lock file creation, fork, pipe.
	KindResource CodeError = 1200 + iota
	KindResourceLockHeld
	KindResourceSocketBind
	KindResourceFork
	KindResourcePipe
)

const (
	// KindPeerProtocol covers malformed frames received over a connection:
	// bad quoting, unterminated tokens, unknown commands.
	KindPeerProtocol CodeError = 1300 + iota
	KindPeerProtocolMalformedFrame
	KindPeerProtocolUnknownCommand
)

const (
	// KindPeerTransport covers I/O failures on an established connection:
	// partial writes, read errors, premature close.
	KindPeerTransport CodeError = 1400 + iota
	KindPeerTransportWriteFailed
	KindPeerTransportReadFailed
	KindPeerTransportClosed
)

const (
	// KindSubprocess covers failures spawning or running the configured
	// CMDSCRIPT handler.
	KindSubprocess CodeError = 1500 + iota
	KindSubprocessSpawnFailed
	KindSubprocessExitNonZero
)

const (
	// KindTimerArg covers invalid timer directives: negative offsets,
	// unknown timer names on cancel.
	KindTimerArg CodeError = 1600 + iota
	KindTimerArgNegativeOffset
	KindTimerArgUnknownName
)

const (
	// KindTrackedRequest covers the upsdrvquery tracking dialog: timeouts
	// waiting on a TRACKING reply, malformed UUIDs, PING failures.
	KindTrackedRequest CodeError = 1700 + iota
	KindTrackedRequestTimeout
	KindTrackedRequestPingFailed
	KindTrackedRequestMalformedReply
)

const (
	// KindBroadcastLeak flags a line read on a tracked connection that
	// did not match the expected TRACKING correlation id; it is logged
	// and discarded rather than treated as fatal.
	KindBroadcastLeak CodeError = 1800 + iota
)

func init() {
	RegisterIdFctMessage(KindConfiguration, func(code CodeError) string {
		switch code {
		case KindConfigurationMissingDirective:
			return "configuration: required directive missing before AT"
		case KindConfigurationBadArgument:
			return "configuration: directive argument invalid"
		default:
			return "configuration error"
		}
	})

	RegisterIdFctMessage(KindEnvironment, func(code CodeError) string {
		switch code {
		case KindEnvironmentMissingVar:
			return "environment: required variable not set"
		default:
			return "environment error"
		}
	})

	RegisterIdFctMessage(KindResource, func(code CodeError) string {
		switch code {
		case KindResourceLockHeld:
			return "resource: lock file already held by another process"
		case KindResourceSocketBind:
			return "resource: unable to bind control socket"
		case KindResourceFork:
			return "resource: unable to fork daemon process"
		case KindResourcePipe:
			return "resource: unable to create readiness pipe"
		default:
			return "resource error"
		}
	})

	RegisterIdFctMessage(KindPeerProtocol, func(code CodeError) string {
		switch code {
		case KindPeerProtocolMalformedFrame:
			return "protocol: malformed frame"
		case KindPeerProtocolUnknownCommand:
			return "protocol: unknown command"
		default:
			return "protocol error"
		}
	})

	RegisterIdFctMessage(KindPeerTransport, func(code CodeError) string {
		switch code {
		case KindPeerTransportWriteFailed:
			return "transport: write failed"
		case KindPeerTransportReadFailed:
			return "transport: read failed"
		case KindPeerTransportClosed:
			return "transport: connection closed"
		default:
			return "transport error"
		}
	})

	RegisterIdFctMessage(KindSubprocess, func(code CodeError) string {
		switch code {
		case KindSubprocessSpawnFailed:
			return "subprocess: spawn failed"
		case KindSubprocessExitNonZero:
			return "subprocess: exited with non-zero status"
		default:
			return "subprocess error"
		}
	})

	RegisterIdFctMessage(KindTimerArg, func(code CodeError) string {
		switch code {
		case KindTimerArgNegativeOffset:
			return "timer: negative offset rejected"
		case KindTimerArgUnknownName:
			return "timer: unknown timer name"
		default:
			return "timer argument error"
		}
	})

	RegisterIdFctMessage(KindTrackedRequest, func(code CodeError) string {
		switch code {
		case KindTrackedRequestTimeout:
			return "tracked request: timed out waiting for TRACKING reply"
		case KindTrackedRequestPingFailed:
			return "tracked request: PING/PONG handshake failed"
		case KindTrackedRequestMalformedReply:
			return "tracked request: malformed TRACKING reply"
		default:
			return "tracked request error"
		}
	})

	RegisterIdFctMessage(KindBroadcastLeak, func(code CodeError) string {
		return "broadcast leak: unsolicited line discarded"
	})
}
