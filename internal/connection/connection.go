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

// Package connection holds the Connection Table (spec section 4.2) and the
// per-connection state machine (spec section 3): one entry per accepted
// client, mutated only from the reactor's single thread.
package connection

import (
	"time"

	"github.com/nabbar/webservd/internal/cgi"
	"github.com/nabbar/webservd/internal/httpparse"
)

// State is where a Connection sits in its request/response lifecycle.
type State uint8

const (
	ReadingRequest State = iota
	DispatchReady
	WaitingCGI
	WritingResponse
	Done
	Errored
)

func (s State) String() string {
	switch s {
	case ReadingRequest:
		return "ReadingRequest"
	case DispatchReady:
		return "DispatchReady"
	case WaitingCGI:
		return "WaitingCGI"
	case WritingResponse:
		return "WritingResponse"
	case Done:
		return "Done"
	case Errored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// Conn is one accepted client: its fd, its place in the request/response
// cycle, and the buffers carrying it there.
type Conn struct {
	FD            int
	ListeningPort int
	State         State
	LastActivity  time.Time

	ReadBuffer []byte
	Parser     *httpparse.Parser

	// CGI is the running child a cgi-bin dispatch started, set for the
	// duration of WaitingCGI. The reactor polls CGI.StdoutFD() rather than
	// this connection's own socket while it is non-nil (spec section 4.7).
	CGI *cgi.Invocation

	ResponseBytes  []byte
	ResponseOffset int
}

// New wraps a freshly accepted client fd. The caller (the reactor) is
// responsible for setting it non-blocking and registering it with the
// notifier before or immediately after inserting it into the Table.
func New(fd, listeningPort int, now time.Time) *Conn {
	return &Conn{
		FD:            fd,
		ListeningPort: listeningPort,
		State:         ReadingRequest,
		LastActivity:  now,
		Parser:        httpparse.New(),
	}
}

// Touch refreshes last_activity; called on every successful read or write so
// the idle reaper leaves active connections alone.
func (c *Conn) Touch(now time.Time) {
	c.LastActivity = now
}

// IdleSince reports how long the connection has gone without activity.
func (c *Conn) IdleSince(now time.Time) time.Duration {
	return now.Sub(c.LastActivity)
}

// StartCGI moves the connection into WaitingCGI with inv as the pending
// child: the reactor now polls inv.StdoutFD() instead of this connection's
// own socket until Drain reports completion (spec section 4.7, step 5).
func (c *Conn) StartCGI(inv *cgi.Invocation) {
	c.CGI = inv
	c.State = WaitingCGI
}

// SetResponse stages a serialized response for writing and flips the
// connection into WritingResponse (spec section 3, invariant d: a connection
// in WritingResponse is registered for write-interest only).
func (c *Conn) SetResponse(serialized []byte) {
	c.CGI = nil
	c.ResponseBytes = serialized
	c.ResponseOffset = 0
	c.State = WritingResponse
}

// ResponsePending reports whether there are still unwritten response bytes.
func (c *Conn) ResponsePending() bool {
	return c.ResponseOffset < len(c.ResponseBytes)
}

// Table is the fd → Conn map the reactor owns exclusively (spec section 4.2).
// It is never accessed from more than one goroutine.
type Table struct {
	conns map[int]*Conn
}

// NewTable returns an empty Connection Table.
func NewTable() *Table {
	return &Table{conns: make(map[int]*Conn)}
}

// Insert adds c, keyed by its fd. Spec invariant (e): fd registration with the
// notifier and Table presence must rise and fall together; the reactor is
// responsible for registering the fd before or after calling Insert as one
// atomic step from the single-threaded caller's point of view.
func (t *Table) Insert(c *Conn) {
	t.conns[c.FD] = c
}

// Get looks up a connection by fd.
func (t *Table) Get(fd int) (*Conn, bool) {
	c, ok := t.conns[fd]
	return c, ok
}

// Remove deletes the fd from the Table. The caller is responsible for closing
// the fd and deregistering it from the notifier alongside this call.
func (t *Table) Remove(fd int) {
	delete(t.conns, fd)
}

// Len reports how many connections are currently tracked.
func (t *Table) Len() int {
	return len(t.conns)
}

// Each iterates every tracked connection. fn must not mutate the Table; queue
// fds for removal and call Remove after iteration completes instead.
func (t *Table) Each(fn func(*Conn)) {
	for _, c := range t.conns {
		fn(c)
	}
}

// IdleBeyond returns the fds of every connection whose idle duration exceeds
// threshold as of now — the idle reaper's sweep (spec section 4.9).
func (t *Table) IdleBeyond(now time.Time, threshold time.Duration) []int {
	var out []int
	for fd, c := range t.conns {
		if c.IdleSince(now) > threshold {
			out = append(out, fd)
		}
	}
	return out
}
