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

package drvquery

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"

	uuid "github.com/hashicorp/go-uuid"

	liberr "github.com/nutcore/upsched/errors"
	"github.com/nutcore/upsched/logger"
	"github.com/nutcore/upsched/wire"
)

// heartbeatInterval bounds how long a single read attempt blocks before the
// indefinite-wait path logs a liveness line (spec.md §4.6 "roughly once per
// minute") and before a finite deadline gets re-checked.
const heartbeatInterval = 5 * time.Second

const heartbeatPeriod = time.Minute

// Client is one synchronous dialog with a driver's control socket. Not safe
// for concurrent use by multiple goroutines; callers wanting concurrent
// queries should open multiple Clients.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	p    *wire.Parser

	// Verbosity above 1 makes Query log a debug line for every unrelated
	// reply it discards. Per-client, not process-global.
	Verbosity int
	// Hushed records the caller's hushed setting. Dial and Client log
	// nothing on a connect failure either way (Dial only returns the
	// error); cmd/upsdrvquery uses the setting to drop that error silently.
	Hushed bool

	Log logger.Logger

	lastHeartbeat time.Time
}

// Dial connects to a driver's Unix-domain socket and returns a ready Client.
func Dial(ctx context.Context, path string, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.New(ctx)
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, liberr.New(uint16(liberr.KindPeerTransportClosed), "dial driver socket: "+path, err)
	}

	return &Client{
		conn: nc,
		r:    bufio.NewReader(nc),
		p:    wire.NewParser(),
		Log:  log,
	}, nil
}

// Close sends a best-effort LOGOUT and gives the server a brief window to
// observe it before dropping the socket (spec.md §4.6 step 6).
func (c *Client) Close() error {
	_ = c.writeLine("LOGOUT")
	time.Sleep(50 * time.Millisecond)
	return c.conn.Close()
}

func (c *Client) writeLine(text string) error {
	payload := []byte(text + "\n")
	n, err := c.conn.Write(payload)
	if err != nil {
		return liberr.New(uint16(liberr.KindPeerTransportWriteFailed), "write to driver socket", err)
	}
	if n != len(payload) {
		return liberr.New(uint16(liberr.KindPeerTransportWriteFailed), "short write to driver socket", nil)
	}
	return nil
}

// NoBroadcast asks the driver to stop fanning out unsolicited updates on
// this connection, the first step of every tracked dialog (spec.md §4.6).
func (c *Client) NoBroadcast() error {
	return c.writeLine("NOBROADCAST")
}

// Ping sends PING and drains replies, discarding anything that is not PONG,
// until either PONG arrives or prep elapses. It reports whether PONG was
// seen.
func (c *Client) Ping(prep Timeout) bool {
	if err := c.writeLine("PING"); err != nil {
		return false
	}

	deadline := time.Now().Add(prep.Duration())

	for {
		attempt := deadline
		if prep.Indefinite() {
			attempt = time.Now().Add(heartbeatInterval)
		}
		args, err := c.readFrame(attempt)
		if err != nil {
			if prep.Indefinite() && isTimeout(err) {
				continue
			}
			return false
		}
		if len(args) == 1 && args[0] == "PONG" {
			return true
		}
		if !prep.Indefinite() && time.Now().After(deadline) {
			return false
		}
	}
}

// Query sends args with a trailing TRACKING token and blocks until the
// matching reply arrives, timeout elapses, or a transport error occurs. It
// implements the error taxonomy from spec.md §4.6: -1 for any failure, the
// server's reported status otherwise.
func (c *Client) Query(timeout Timeout, args ...string) (int, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return -1, liberr.New(uint16(liberr.KindTrackedRequestMalformedReply), "generate tracking id", err)
	}

	frame := append(append([]string{}, args...), "TRACKING", id)
	if err := c.writeLine(wire.EncodeLine(frame...)); err != nil {
		return -1, err
	}

	indefinite := timeout.Indefinite()
	deadline := time.Now().Add(timeout.Duration())
	c.lastHeartbeat = time.Now()

	for {
		attemptDeadline := time.Now().Add(heartbeatInterval)
		if !indefinite && deadline.Before(attemptDeadline) {
			attemptDeadline = deadline
		}

		reply, err := c.readFrame(attemptDeadline)
		if err != nil {
			if !isTimeout(err) {
				return -1, liberr.New(uint16(liberr.KindTrackedRequestTimeout), "tracked query transport failure", err)
			}
			if !indefinite && !time.Now().Before(deadline) {
				return -1, liberr.New(uint16(liberr.KindTrackedRequestTimeout), "tracked query deadline reached", nil)
			}
			if time.Since(c.lastHeartbeat) >= heartbeatPeriod {
				c.Log.Debug("still waiting for tracked reply", nil, "uuid", id)
				c.lastHeartbeat = time.Now()
			}
			continue
		}

		if len(reply) >= 3 && reply[0] == "TRACKING" && reply[1] == id {
			status, cerr := strconv.Atoi(reply[2])
			if cerr != nil {
				return -1, liberr.New(uint16(liberr.KindTrackedRequestMalformedReply), "non-integer status in TRACKING reply", cerr)
			}
			return status, nil
		}

		// Advisory broadcast or a stragging reply for a different id:
		// skip silently per spec.md §7 "Broadcast leak".
		if c.Verbosity > 1 {
			c.Log.Debug("discarding unrelated reply", nil, "args", wire.EncodeLine(reply...))
		}
	}
}

func isTimeout(err error) bool {
	type netTimeout interface{ Timeout() bool }
	if nt, ok := err.(netTimeout); ok {
		return nt.Timeout()
	}
	return false
}

// readFrame reads one complete line, respecting deadline, and returns its
// parsed argument vector.
func (c *Client) readFrame(deadline time.Time) ([]string, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, liberr.New(uint16(liberr.KindPeerTransportReadFailed), "set read deadline", err)
	}
	defer c.p.Reset()

	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return nil, err
		}

		switch c.p.Feed(b) {
		case wire.Complete:
			args := c.p.Args()
			if len(args) == 0 {
				c.p.Reset()
				continue
			}
			return args, nil
		case wire.Errored:
			return nil, liberr.New(uint16(liberr.KindPeerProtocolMalformedFrame), "malformed reply line", c.p.Err())
		case wire.Pending:
		}
	}
}
