/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2021 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

package logger

import (
	"io"
	"log/syslog"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// stdoutHook writes every entry, colorized, to stdout. It backs the
// foreground logger used by a non-daemonized scheduler and by the
// command-line tools (spec.md's notify CLI).
type stdoutHook struct {
	w io.Writer
}

func newStdoutHook() *stdoutHook {
	return &stdoutHook{w: colorable.NewColorableStdout()}
}

func (h *stdoutHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *stdoutHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	_, err = io.WriteString(h.w, line)
	return err
}

// syslogHook writes every entry to the local syslog daemon. It backs the
// logger a daemonized scheduler switches to once it has forked and closed
// its controlling terminal (spec.md §4).
type syslogHook struct {
	w *syslog.Writer
}

func newSyslogHook(tag string) (*syslogHook, error) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, err
	}
	return &syslogHook{w: w}, nil
}

func (h *syslogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *syslogHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}

	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return h.w.Crit(line)
	case logrus.ErrorLevel:
		return h.w.Err(line)
	case logrus.WarnLevel:
		return h.w.Warning(line)
	case logrus.DebugLevel:
		return h.w.Debug(line)
	default:
		return h.w.Info(line)
	}
}

func (h *syslogHook) Close() error {
	return h.w.Close()
}
