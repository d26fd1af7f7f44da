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

// Package size parses and formats human-readable byte sizes (e.g. "32KB",
// "10MB") for use in JSON/YAML/TOML configuration values.
package size

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a byte count that marshals as a human-readable string.
type Size int64

const (
	B  Size = 1
	KB      = B << 10
	MB      = KB << 10
	GB      = MB << 10
)

var units = []struct {
	suffix string
	unit   Size
}{
	{"GB", GB},
	{"MB", MB},
	{"KB", KB},
	{"B", B},
}

func (s Size) Int64() int64 {
	return int64(s)
}

func (s Size) String() string {
	for _, u := range units {
		if s >= u.unit && s%u.unit == 0 {
			return fmt.Sprintf("%d%s", int64(s)/int64(u.unit), u.suffix)
		}
	}
	return fmt.Sprintf("%dB", int64(s))
}

func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Size) UnmarshalText(text []byte) error {
	v, err := ParseSize(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSize parses strings like "32KB", "10 MB", or a bare integer (bytes).
func ParseSize(in string) (Size, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return 0, nil
	}

	upper := strings.ToUpper(in)
	for _, u := range units {
		if strings.HasSuffix(upper, u.suffix) {
			numPart := strings.TrimSpace(in[:len(in)-len(u.suffix)])
			n, err := strconv.ParseInt(numPart, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("size: invalid value %q: %w", in, err)
			}
			return Size(n) * u.unit, nil
		}
	}

	n, err := strconv.ParseInt(in, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("size: invalid value %q: %w", in, err)
	}
	return Size(n), nil
}
