/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
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

// Package perm is a small os.FileMode wrapper that parses octal ("0644")
// and symbolic ("rwxr-xr-x") permission strings, used for the socket mode
// (spec.md §5) and lock file mode (spec.md §4.5) instead of raw FileMode
// literals, and wired as a Viper decode hook (ViperDecoderHook) so the same
// strings work in settings files (schedconf.Settings.SocketMode).
package perm

import (
	"os"
	"strconv"
)

type Perm os.FileMode

// Parse accepts octal ("0644") or symbolic ("rwxr-xr-x") notation.
func Parse(s string) (Perm, error) {
	return parseString(s)
}

func ParseFileMode(p os.FileMode) Perm {
	return Perm(p)
}

func ParseInt(i int) (Perm, error) {
	return parseString(strconv.FormatInt(int64(i), 8))
}

func ParseInt64(i int64) (Perm, error) {
	return parseString(strconv.FormatInt(i, 8))
}

func ParseByte(p []byte) (Perm, error) {
	return parseString(string(p))
}
