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

package schedconf

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	liberr "github.com/nutcore/upsched/errors"
)

// Verb is the action an AT line requests.
type Verb string

const (
	VerbStartTimer  Verb = "START-TIMER"
	VerbCancelTimer Verb = "CANCEL-TIMER"
	VerbExecute     Verb = "EXECUTE"
)

// WildcardUPS matches every UPS name (spec.md §6 "<upsname> ... or equals *").
const WildcardUPS = "*"

// Rule is one parsed AT directive.
type Rule struct {
	NotifyType string
	UPSName    string
	Verb       Verb
	Arg1       string
	Arg2       string
}

// Script is the fully parsed scheduler configuration file.
type Script struct {
	CmdScript string
	PipeFn    string
	LockFn    string
	Rules     []Rule
}

// Parse reads the CMDSCRIPT/PIPEFN/LOCKFN/AT grammar from r. All three
// scalar directives must appear before the first AT line (spec.md §6);
// violating that order is a Configuration error. A repeated directive
// replaces the earlier value.
func Parse(r io.Reader) (*Script, error) {
	s := &Script{}
	seenCmd, seenPipe, seenLock := false, false, false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "CMDSCRIPT":
			if len(fields) != 2 {
				return nil, badArgument(lineNo, "CMDSCRIPT requires exactly one path")
			}
			s.CmdScript = fields[1]
			seenCmd = true

		case "PIPEFN":
			if len(fields) != 2 {
				return nil, badArgument(lineNo, "PIPEFN requires exactly one path")
			}
			s.PipeFn = fields[1]
			seenPipe = true

		case "LOCKFN":
			if len(fields) != 2 {
				return nil, badArgument(lineNo, "LOCKFN requires exactly one path")
			}
			s.LockFn = fields[1]
			seenLock = true

		case "AT":
			if !seenCmd || !seenPipe || !seenLock {
				return nil, liberr.New(uint16(liberr.KindConfigurationMissingDirective),
					fmt.Sprintf("line %d: AT requires CMDSCRIPT, PIPEFN and LOCKFN to already be set", lineNo), nil)
			}
			rule, err := parseAT(lineNo, fields[1:])
			if err != nil {
				return nil, err
			}
			s.Rules = append(s.Rules, rule)

		default:
			return nil, badArgument(lineNo, "unrecognized directive: "+fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, liberr.New(uint16(liberr.KindConfigurationBadArgument), "reading config", err)
	}

	return s, nil
}

func parseAT(lineNo int, args []string) (Rule, error) {
	if len(args) != 4 && len(args) != 5 {
		return Rule{}, badArgument(lineNo, "AT requires 4 or 5 arguments")
	}

	verb := Verb(args[2])
	switch verb {
	case VerbStartTimer, VerbCancelTimer, VerbExecute:
	default:
		return Rule{}, badArgument(lineNo, "AT verb must be START-TIMER, CANCEL-TIMER or EXECUTE, got "+args[2])
	}

	r := Rule{
		NotifyType: args[0],
		UPSName:    args[1],
		Verb:       verb,
		Arg1:       args[3],
	}
	if len(args) == 5 {
		r.Arg2 = args[4]
	}
	return r, nil
}

func badArgument(lineNo int, msg string) error {
	return liberr.New(uint16(liberr.KindConfigurationBadArgument), fmt.Sprintf("line %d: %s", lineNo, msg), nil)
}

// Match returns every rule applicable to the given UPS name and notify type,
// in file order: an exact NotifyType match, and either an exact UPSName
// match or the wildcard.
func (s *Script) Match(upsName, notifyType string) []Rule {
	var out []Rule
	for _, r := range s.Rules {
		if r.NotifyType != notifyType {
			continue
		}
		if r.UPSName != upsName && r.UPSName != WildcardUPS {
			continue
		}
		out = append(out, r)
	}
	return out
}
