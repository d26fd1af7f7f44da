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

// Package logger is a logrus-backed logger with two interchangeable
// backends: a colorized stdout hook for a foreground process, and a
// syslog hook for a daemonized one. The daemon builds one at startup and
// hands the same Logger down through its components.
package logger

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	loglvl "github.com/nutcore/upsched/logger/level"
)

// Logger is the logging surface used throughout the scheduler and its
// command-line tools. data carries an optional payload (an error, an
// os/exec status, a signal, ...); args are alternating key/value pairs
// added as structured fields.
type Logger interface {
	// SetLevel changes the minimal level of log message that is emitted.
	SetLevel(lvl loglvl.Level)
	// GetLevel returns the minimal level of log message that is emitted.
	GetLevel() loglvl.Level

	Debug(message string, data interface{}, args ...interface{})
	Info(message string, data interface{}, args ...interface{})
	Warning(message string, data interface{}, args ...interface{})
	Error(message string, data interface{}, args ...interface{})
	// Fatal logs at FatalLevel then terminates the process (os.Exit).
	Fatal(message string, data interface{}, args ...interface{})
}

type lgr struct {
	mu   sync.RWMutex
	base *logrus.Logger
	lvl  loglvl.Level
}

// New builds a Logger that writes colorized lines to stdout, for
// interactive/foreground use: the notify CLI and a non-daemonized
// scheduler.
func New(_ context.Context) Logger {
	return newLogger(newStdoutHook(), true)
}

// NewSyslog builds a Logger that writes to the local syslog daemon under
// tag, for use once the scheduler has daemonized (spec.md §4) and its
// stdout is no longer attached to anything a human reads. The returned
// Logger's syslog connection is closed when ctx is done. If the syslog
// daemon cannot be reached the caller should fall back to New.
func NewSyslog(ctx context.Context, tag string) (Logger, error) {
	h, err := newSyslogHook(tag)
	if err != nil {
		return nil, err
	}

	l := newLogger(h, false)

	go func() {
		<-ctx.Done()
		_ = h.Close()
	}()

	return l, nil
}

func newLogger(hook logrus.Hook, color bool) Logger {
	r := logrus.New()
	r.SetOutput(io.Discard)
	r.AddHook(hook)
	r.SetFormatter(&logrus.TextFormatter{
		ForceColors:      color,
		DisableColors:    !color,
		FullTimestamp:    true,
		TimestampFormat:  time.RFC3339,
		DisableQuote:     false,
		QuoteEmptyFields: true,
	})

	l := &lgr{base: r}
	l.SetLevel(loglvl.InfoLevel)

	return l
}

func fieldsFrom(data interface{}, args []interface{}) logrus.Fields {
	f := make(logrus.Fields, 1+len(args)/2)

	if data != nil {
		f["data"] = data
	}

	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			f[k] = args[i+1]
		}
	}

	return f
}

func (l *lgr) entry(data interface{}, args []interface{}) *logrus.Entry {
	return l.base.WithFields(fieldsFrom(data, args))
}

func (l *lgr) SetLevel(lvl loglvl.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lvl = lvl
	l.base.SetLevel(lvl.Logrus())
}

func (l *lgr) GetLevel() loglvl.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.lvl
}

func (l *lgr) Debug(message string, data interface{}, args ...interface{}) {
	l.entry(data, args).Debug(message)
}

func (l *lgr) Info(message string, data interface{}, args ...interface{}) {
	l.entry(data, args).Info(message)
}

func (l *lgr) Warning(message string, data interface{}, args ...interface{}) {
	l.entry(data, args).Warning(message)
}

func (l *lgr) Error(message string, data interface{}, args ...interface{}) {
	l.entry(data, args).Error(message)
}

func (l *lgr) Fatal(message string, data interface{}, args ...interface{}) {
	l.entry(data, args).Fatal(message)
}
