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

// Package srverr defines the coded error type used across webservd's internal
// packages, in place of ad-hoc fmt.Errorf chains.
package srverr

import (
	"errors"
	"fmt"
)

// Code is a small numeric error classifier. Where the error maps directly onto an
// HTTP status, Code carries that status; internal-only failures use the 9xx range.
type Code uint16

const (
	Unknown            Code = 0
	CodeConfigInvalid  Code = 900
	CodeConfigNotFound Code = 901
	CodeCGISpawn       Code = 902
	CodeCGITimeout     Code = 903
	CodeUploadIO       Code = 904
	CodeReactorSetup   Code = 905
)

// E is a coded error with an optional parent, forming a short cause chain.
type E struct {
	code   Code
	msg    string
	parent error
}

func New(code Code, msg string) *E {
	return &E{code: code, msg: msg}
}

func Wrap(code Code, msg string, parent error) *E {
	return &E{code: code, msg: msg, parent: parent}
}

func (e *E) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("[%d] %s: %s", e.code, e.msg, e.parent.Error())
	}
	return fmt.Sprintf("[%d] %s", e.code, e.msg)
}

func (e *E) Unwrap() error {
	return e.parent
}

func (e *E) Code() Code {
	return e.code
}

// Is reports whether err is an *E carrying the given code.
func Is(err error, code Code) bool {
	var e *E
	if errors.As(err, &e) {
		return e.code == code
	}
	return false
}
