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
	"context"
	"os"

	"github.com/fsnotify/fsnotify"

	liberr "github.com/nutcore/upsched/errors"
	"github.com/nutcore/upsched/logger"
	"github.com/nutcore/upsched/runner"
)

// Watcher reloads the AT script and operational settings whenever either
// file changes on disk, handing the caller a freshly parsed pair through
// OnReload. Neither spec.md's AT grammar nor the original daemon has a
// notion of live reload; this is a supplemented feature (SPEC_FULL.md) built
// on fsnotify, the only filesystem-watch library in the example pack.
type Watcher struct {
	ScriptPath   string
	SettingsPath string
	Log          logger.Logger

	OnReload func(script *Script, settings *Settings)
	OnError  func(error)

	w *fsnotify.Watcher
}

// Run watches both files until ctx is canceled. It fires OnReload once
// immediately with the current contents, then again on every subsequent
// write/create event.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		runner.RecoveryCaller("schedconf.Watcher.Run", recover())
	}()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return liberr.New(uint16(liberr.KindResourcePipe), "create fsnotify watcher", err)
	}
	w.w = fw
	defer fw.Close()

	for _, p := range []string{w.ScriptPath, w.SettingsPath} {
		if p == "" {
			continue
		}
		if err := fw.Add(p); err != nil {
			if w.Log != nil {
				w.Log.Warning("cannot watch config file", err, "path", p)
			}
		}
	}

	w.reload()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}

func (w *Watcher) reload() {
	var script *Script
	if w.ScriptPath != "" {
		f, err := os.Open(w.ScriptPath)
		if err != nil {
			w.fail(err)
			return
		}
		s, err := Parse(f)
		_ = f.Close()
		if err != nil {
			w.fail(err)
			return
		}
		script = s
	}

	settings, err := LoadSettings(w.SettingsPath)
	if err != nil {
		w.fail(err)
		return
	}

	if w.OnReload != nil {
		w.OnReload(script, settings)
	}
}

func (w *Watcher) fail(err error) {
	if w.OnError != nil {
		w.OnError(err)
	} else if w.Log != nil {
		w.Log.Warning("config reload failed", err, nil)
	}
}
