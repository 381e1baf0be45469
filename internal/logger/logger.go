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

// Package logger provides the single leveled, structured logging sink used across
// webservd. It wraps logrus rather than reinventing formatting, level filtering or
// hooks.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// FuncLog is a lazy accessor, used for dependency injection without forcing init order.
type FuncLog func() Logger

// Logger is the logging surface every subsystem takes at construction time.
type Logger interface {
	SetLevel(lvl Level)
	GetLevel() Level
	SetOutput(w io.Writer)

	WithFields(f Fields) Logger

	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type entry struct {
	mu  *sync.Mutex
	log *logrus.Logger
	lvl *Level
	fld Fields
}

// New builds a Logger writing to stderr at InfoLevel.
func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(InfoLevel.logrus())

	lvl := InfoLevel
	return &entry{
		mu:  &sync.Mutex{},
		log: l,
		lvl: &lvl,
		fld: nil,
	}
}

func (e *entry) SetLevel(lvl Level) {
	e.mu.Lock()
	defer e.mu.Unlock()
	*e.lvl = lvl
	e.log.SetLevel(lvl.logrus())
}

func (e *entry) GetLevel() Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.lvl
}

func (e *entry) SetOutput(w io.Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.SetOutput(w)
}

func (e *entry) WithFields(f Fields) Logger {
	merged := NewFields()
	for k, v := range e.fld {
		merged[k] = v
	}
	for k, v := range f {
		merged[k] = v
	}
	return &entry{
		mu:  e.mu,
		log: e.log,
		lvl: e.lvl,
		fld: merged,
	}
}

func (e *entry) logrusEntry() *logrus.Entry {
	return e.log.WithFields(e.fld.logrus())
}

func (e *entry) Debug(msg string) { e.logrusEntry().Debug(msg) }
func (e *entry) Info(msg string)  { e.logrusEntry().Info(msg) }
func (e *entry) Warn(msg string)  { e.logrusEntry().Warn(msg) }
func (e *entry) Error(msg string) { e.logrusEntry().Error(msg) }

// Discard returns a Logger that drops everything; useful as a safe default in tests.
func Discard() Logger {
	l := New()
	l.SetOutput(io.Discard)
	return l
}
