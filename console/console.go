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
 */

// Package console prints colorized, human-facing messages for the command
// line tools. It wraps fatih/color behind a small typed registry so cmd/
// can ask for "the print color" without importing color itself.
package console

import (
	"fmt"

	"github.com/fatih/color"

	libatm "github.com/nutcore/upsched/atomic"
)

// ColorType names one of the console's color slots. Only ColorPrint is
// used today; the type stays open for a second slot (e.g. an error color)
// without changing call sites.
type ColorType uint8

const (
	ColorPrint ColorType = iota
)

var colors = libatm.NewMapTyped[ColorType, color.Color]()

// SetColor configures the color attributes used by ColorType.Print*.
func SetColor(id ColorType, attrs ...int) {
	a := make([]color.Attribute, 0, len(attrs))
	for _, v := range attrs {
		a = append(a, color.Attribute(v))
	}
	colors.Store(id, *color.New(a...))
}

func (c ColorType) color() *color.Color {
	if v, ok := colors.Load(c); ok {
		return &v
	}
	return &color.Color{}
}

// Println prints text to stdout in this ColorType's color, with a newline.
func (c ColorType) Println(text string) {
	_, _ = c.color().Println(text)
}

// Printf prints formatted text to stdout in this ColorType's color.
func (c ColorType) Printf(format string, args ...interface{}) {
	_, _ = c.color().Print(fmt.Sprintf(format, args...))
}
