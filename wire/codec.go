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

package wire

import (
	"fmt"

	"github.com/nutcore/upsched/size"
)

// MaxLineLength bounds a single frame. Overflow resynchronizes by discarding
// bytes up to the next EOL instead of growing without limit (spec.md §4.1:
// implementation cap, >= 8 KiB).
const MaxLineLength = int(8 * size.KB)

// Status reports what feed produced for the byte just consumed.
type Status int

const (
	// Pending means the line is not complete yet; keep feeding bytes.
	Pending Status = iota
	// Complete means EOL was reached; Args() holds the parsed vector.
	Complete
	// Errored means the frame is malformed; Err() holds the reason. The
	// parser keeps discarding bytes until EOL to resynchronize.
	Errored
)

type quoteState int

const (
	stateNormal quoteState = iota
	stateInQuote
	stateEscaped
	stateInQuoteEscaped
	stateResync
)

// Parser is a byte-at-a-time tokenizer for one line of the wire protocol.
// It is not safe for concurrent use; callers own one Parser per connection
// and call Reset after each Complete/Errored result.
type Parser struct {
	state  quoteState
	args   []string
	cur    []byte
	haveCur bool
	err    error
	n      int
}

// NewParser returns a ready-to-feed Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Reset discards any partial line state, ready for the next frame.
func (p *Parser) Reset() {
	p.state = stateNormal
	p.args = nil
	p.cur = nil
	p.haveCur = false
	p.err = nil
	p.n = 0
}

// Args returns the parsed argument vector of the most recent Complete result.
func (p *Parser) Args() []string {
	return p.args
}

// Err returns the reason for the most recent Errored result.
func (p *Parser) Err() error {
	return p.err
}

func isWS(b byte) bool {
	return b == ' ' || b == '\t'
}

func isEOL(b byte) bool {
	return b == '\n' || b == '\r'
}

// Feed streams one byte into the parser and reports whether the line is
// still pending, just completed, or malformed.
func (p *Parser) Feed(b byte) Status {
	if p.state == stateResync {
		if isEOL(b) {
			p.state = stateNormal
			return Errored
		}
		return Pending
	}

	p.n++
	if p.n > MaxLineLength && !isEOL(b) {
		p.err = fmt.Errorf("line too long")
		p.state = stateResync
		return Pending
	}

	switch p.state {
	case stateNormal:
		switch {
		case isEOL(b):
			p.flushCur()
			return Complete
		case b == '"':
			p.state = stateInQuote
			p.haveCur = true
		case b == '\\':
			p.err = fmt.Errorf("dangling escape outside quotes")
			p.state = stateResync
			return Pending
		case isWS(b):
			p.flushCur()
		default:
			p.haveCur = true
			p.cur = append(p.cur, b)
		}

	case stateInQuote:
		switch {
		case isEOL(b):
			p.err = fmt.Errorf("unterminated quote")
			p.state = stateNormal
			return Errored
		case b == '"':
			p.state = stateNormal
		case b == '\\':
			p.state = stateInQuoteEscaped
		default:
			p.cur = append(p.cur, b)
		}

	case stateInQuoteEscaped:
		if isEOL(b) {
			p.err = fmt.Errorf("unterminated quote")
			p.state = stateNormal
			return Errored
		}
		p.cur = append(p.cur, b)
		p.state = stateInQuote

	case stateEscaped:
		// unreachable outside quotes by construction (bare escapes are
		// rejected above), kept for completeness of the state table.
		p.cur = append(p.cur, b)
		p.state = stateNormal
	}

	return Pending
}

func (p *Parser) flushCur() {
	if p.haveCur {
		p.args = append(p.args, string(p.cur))
		p.cur = nil
		p.haveCur = false
	}
}

// Quote renders s as a single wire token, quoting it and escaping embedded
// quotes/backslashes/whitespace so it reads back as one argument.
func Quote(s string) string {
	needsQuote := s == ""
	for i := 0; i < len(s); i++ {
		if isWS(s[i]) || s[i] == '"' || s[i] == '\\' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return s
	}

	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	out = append(out, '"')
	return string(out)
}

// EncodeLine joins args into one wire frame (without trailing newline),
// quoting each token as needed.
func EncodeLine(args ...string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += Quote(a)
	}
	return out
}
