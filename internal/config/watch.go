/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
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
 */

package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/nabbar/webservd/internal/logger"
)

// Watcher reloads the configuration file on write, swapping in the freshly parsed
// and validated Registry only if it parses cleanly — a bad edit never takes a
// running server down.
type Watcher struct {
	path string
	log  logger.Logger
	cur  atomic.Pointer[Registry]
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher loads the config once synchronously, then starts watching for writes.
func NewWatcher(path string, log logger.Logger) (*Watcher, error) {
	reg, err := Parse(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, log: log, fsw: fsw, done: make(chan struct{})}
	w.cur.Store(reg)

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reg, err := Parse(w.path)
			if err != nil {
				w.log.WithFields(logger.Fields{"path": w.path, "error": err.Error()}).
					Warn("config reload rejected, keeping previous configuration")
				continue
			}
			w.cur.Store(reg)
			w.log.Info("configuration reloaded")
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithFields(logger.Fields{"error": err.Error()}).Warn("config watcher error")
		case <-w.done:
			return
		}
	}
}

// Current returns the most recently accepted Registry.
func (w *Watcher) Current() *Registry {
	return w.cur.Load()
}

// Close stops watching the configuration file.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
