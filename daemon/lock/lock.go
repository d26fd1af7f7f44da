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

package lock

import (
	"os"

	liberr "github.com/nutcore/upsched/errors"
	"github.com/nutcore/upsched/file/perm"
)

// Mode is the lock file's permission: no readers, no writers, existence is
// the only signal that matters (spec.md §4.5).
const Mode perm.Perm = 0

// File is a held lock file. Release removes it; the zero value is not
// usable, construct via Acquire.
type File struct {
	path string
	f    *os.File
}

// Acquire attempts to create path exclusively. It returns (nil, err) when
// another process already holds the lock (including the common race: two
// clients acquiring concurrently) or the file cannot be created at all.
func Acquire(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE|os.O_EXCL, os.FileMode(Mode))
	if err != nil {
		if os.IsExist(err) {
			return nil, liberr.New(uint16(liberr.KindResourceLockHeld), "lock already held: "+path, err)
		}
		return nil, liberr.New(uint16(liberr.KindResourcePipe), "cannot create lock file: "+path, err)
	}
	return &File{path: path, f: f}, nil
}

// Release closes and removes the lock file. Safe to call once; a second
// call returns an error since the fd is already closed.
func (l *File) Release() error {
	if l == nil {
		return nil
	}
	err := l.f.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// Stale reports whether path exists. Used by the client handshake to decide
// whether a predecessor crash left a stale lock behind (spec.md §4.5): only
// called after a connect attempt AND a failed Acquire AND another failed
// connect retry, per the spec's conservative recovery order.
func Stale(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Clear unconditionally removes path. Used for the pragmatic stale-lock
// recovery path; never called speculatively.
func Clear(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
