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

//go:build linux

// Package reactor implements the single-threaded, level-triggered event loop
// (spec section 4.1): listener accept, request-line-to-response read/write
// dispatch, and the once-a-second idle reap, all driven by one epoll instance.
package reactor

import (
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/webservd/internal/cgi"
	"github.com/nabbar/webservd/internal/config"
	"github.com/nabbar/webservd/internal/connection"
	"github.com/nabbar/webservd/internal/httpparse"
	"github.com/nabbar/webservd/internal/logger"
	"github.com/nabbar/webservd/internal/metrics"
	"github.com/nabbar/webservd/internal/response"
	"github.com/nabbar/webservd/internal/router"
	"github.com/nabbar/webservd/internal/srverr"
)

// IdleThreshold is the inactivity duration after which a connection is reaped
// without a response (spec section 4.9).
const IdleThreshold = 60 * time.Second

// waitTimeoutMillis bounds each epoll_wait call so the reaper and the
// shutdown-signal check both get a chance to run even with no I/O activity
// (spec section 4.1, step 1: "wait for readiness up to a 1-second timeout").
const waitTimeoutMillis = 1000

// Handler resolves which VirtualServer owns a listening port. Returning nil
// means the port isn't served (the reactor already won't have a listener
// for it, so this only matters for ByPort lookups after reconfiguration).
type Handler interface {
	VirtualServerFor(listeningPort int) *config.VirtualServer
}

// Reactor owns the epoll instance, the Connection Table, the set of listening
// sockets, and the idle-reaping clock. Every method except Stop is called from
// the same goroutine; only the stop flag is synchronized.
type Reactor struct {
	epfd      int
	listeners map[int]int             // listening fd -> port
	cgiPipes  map[int]*connection.Conn // CGI stdout fd -> owning connection
	table     *connection.Table
	handler   Handler
	log       logger.Logger
	metrics   *metrics.Registry

	lastReap time.Time
	stopping atomic.Bool
}

// New creates a Reactor with a fresh epoll instance.
func New(handler Handler, log logger.Logger, reg *metrics.Registry) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, srverr.Wrap(srverr.CodeReactorSetup, "create epoll instance", err)
	}
	return &Reactor{
		epfd:      epfd,
		listeners: make(map[int]int),
		cgiPipes:  make(map[int]*connection.Conn),
		table:     connection.NewTable(),
		handler:   handler,
		log:       log,
		metrics:   reg,
		lastReap:  time.Now(),
	}, nil
}

// AddListener registers an already-bound, already-listening, non-blocking
// socket fd for accept readiness on the given port.
func (r *Reactor) AddListener(fd, port int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return srverr.Wrap(srverr.CodeReactorSetup, "set listener non-blocking", err)
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	}); err != nil {
		return srverr.Wrap(srverr.CodeReactorSetup, "register listener with epoll", err)
	}
	r.listeners[fd] = port
	return nil
}

// Stop requests the run loop exit after its current iteration. It is safe to
// call from any goroutine.
func (r *Reactor) Stop() {
	r.stopping.Store(true)
}

// Close releases the epoll instance and every tracked connection's fd. Call
// after Run returns.
func (r *Reactor) Close() {
	r.table.Each(func(c *connection.Conn) {
		if c.CGI != nil {
			_ = c.CGI.Kill()
			_ = c.CGI.Wait()
		}
		_ = unix.Close(c.FD)
	})
	for fd := range r.listeners {
		_ = unix.Close(fd)
	}
	_ = unix.Close(r.epfd)
}

// Run executes the event loop until Stop is called or an unrecoverable
// epoll_wait error occurs.
func (r *Reactor) Run() error {
	events := make([]unix.EpollEvent, 128)
	for !r.stopping.Load() {
		n, err := unix.EpollWait(r.epfd, events, waitTimeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if port, isListener := r.listeners[fd]; isListener {
				r.acceptAll(fd, port)
				continue
			}
			if c, isCGIPipe := r.cgiPipes[fd]; isCGIPipe {
				r.handleCGIReady(fd, c)
				continue
			}
			r.handleReady(fd, events[i].Events)
		}

		now := time.Now()
		r.reapIfDue(now)
		r.sweepCGIDeadlines(now)
	}
	return nil
}

// acceptAll drains the accept queue for one listener (spec section 4.1, step
// 2): level-triggered readiness means every queued connection must be taken
// before returning to epoll_wait.
func (r *Reactor) acceptAll(listenFD, port int) {
	for {
		connFD, _, err := unix.Accept(listenFD)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if r.log != nil {
				r.log.WithFields(logger.NewFields().Add("error", err.Error())).Warn("accept failed")
			}
			return
		}

		if err := unix.SetNonblock(connFD, true); err != nil {
			_ = unix.Close(connFD)
			continue
		}
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, connFD, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(connFD),
		}); err != nil {
			_ = unix.Close(connFD)
			continue
		}

		now := time.Now()
		c := connection.New(connFD, port, now)
		r.table.Insert(c)
		if r.metrics != nil {
			r.metrics.ConnectionsAccepted.Inc()
			r.metrics.ConnectionsActive.Inc()
		}
	}
}

// handleReady dispatches one readiness event to the read or write handler
// depending on the connection's current state (spec section 4.1, step 2).
func (r *Reactor) handleReady(fd int, eventMask uint32) {
	c, ok := r.table.Get(fd)
	if !ok {
		return
	}

	if eventMask&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		r.closeConn(c, "closed")
		return
	}

	switch c.State {
	case connection.ReadingRequest:
		r.handleRead(c)
	case connection.WritingResponse:
		r.handleWrite(c)
	default:
	}
}

func (r *Reactor) handleRead(c *connection.Conn) {
	buf := make([]byte, 64*1024)
	for {
		n, err := unix.Read(c.FD, buf)
		if n > 0 {
			c.Touch(time.Now())
			result := c.Parser.Feed(buf[:n])
			if result != httpparse.Incomplete {
				c.State = connection.DispatchReady
				r.dispatch(c)
				return
			}
			if n < len(buf) {
				return
			}
			continue
		}
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			r.closeConn(c, "read error")
			return
		}
		if n == 0 {
			r.closeConn(c, "peer closed")
			return
		}
	}
}

func (r *Reactor) dispatch(c *connection.Conn) {
	vs := r.handler.VirtualServerFor(c.ListeningPort)
	if vs == nil {
		r.closeConn(c, "no virtual server for listening port")
		return
	}

	result := router.Dispatch(vs, c.Parser.Req, router.Context{
		ServerName:     vs.ServerName,
		ServerPort:     c.ListeningPort,
		ServerSoftware: "webservd",
		Now:            time.Now(),
	})

	if result.CGI != nil {
		r.startCGIWait(c, result.CGI)
		return
	}

	r.finishResponse(c, result.Response)
}

// startCGIWait registers inv's stdout pipe with epoll and parks c in
// WaitingCGI; the reactor keeps serving every other connection while this
// one waits (spec section 4.7, step 5; section 5).
func (r *Reactor) startCGIWait(c *connection.Conn, inv *cgi.Invocation) {
	fd := inv.StdoutFD()
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	}); err != nil {
		_ = inv.Kill()
		_ = inv.Wait()
		r.finishResponse(c, response.Error(500, "could not register CGI output with the reactor"))
		return
	}
	c.StartCGI(inv)
	r.cgiPipes[fd] = c
}

// handleCGIReady drains one readiness wake of a CGI child's stdout pipe and,
// once Drain reports EOF, builds and serializes the final response.
func (r *Reactor) handleCGIReady(fd int, c *connection.Conn) {
	inv := c.CGI
	done, err := inv.Drain()
	if err != nil {
		_ = inv.Wait()
		r.finishCGI(fd, c, response.Error(500, "CGI output read failed"))
		return
	}
	if !done {
		return
	}
	r.finishCGI(fd, c, inv.FinalizeResponse())
}

// finishCGI deregisters the CGI pipe fd and hands the connection its
// response, the same way a non-CGI dispatch would.
func (r *Reactor) finishCGI(fd int, c *connection.Conn, resp *response.Response) {
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(r.cgiPipes, fd)
	r.finishResponse(c, resp)
}

// sweepCGIDeadlines terminates any CGI child whose output deadline has
// elapsed even though its pipe never became read-ready with EOF (spec
// section 4.7, step 5) — e.g. a script that hangs without writing or closing
// its stdout. Run once per event-loop iteration rather than throttled like
// reapIfDue, since a hung CGI child blocks only its own connection, not the
// whole reactor.
func (r *Reactor) sweepCGIDeadlines(now time.Time) {
	var expired []*connection.Conn
	r.table.Each(func(c *connection.Conn) {
		if c.State == connection.WaitingCGI && c.CGI != nil && c.CGI.DeadlineExceeded(now) {
			expired = append(expired, c)
		}
	})
	for _, c := range expired {
		fd := c.CGI.StdoutFD()
		_ = c.CGI.KillForTimeout()
		_ = c.CGI.Wait()
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(r.cgiPipes, fd)
		r.finishResponse(c, cgi.TimeoutResponse())
	}
}

// finishResponse serializes resp, records it in the request metrics, and
// switches c over to write-interest — the common tail of every dispatch
// path, CGI or not.
func (r *Reactor) finishResponse(c *connection.Conn, resp *response.Response) {
	if r.metrics != nil {
		r.metrics.RequestsTotal.WithLabelValues(string(c.Parser.Req.Method), strconv.Itoa(resp.StatusCode)).Inc()
	}

	c.SetResponse(resp.Serialize())
	r.rearmForWrite(c)
	r.handleWrite(c)
}

// rearmForWrite switches the epoll registration for c's fd to write-interest
// only (spec section 3, invariant d).
func (r *Reactor) rearmForWrite(c *connection.Conn) {
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, c.FD, &unix.EpollEvent{
		Events: unix.EPOLLOUT,
		Fd:     int32(c.FD),
	})
}

func (r *Reactor) handleWrite(c *connection.Conn) {
	for c.ResponsePending() {
		n, err := unix.Write(c.FD, c.ResponseBytes[c.ResponseOffset:])
		if n > 0 {
			c.ResponseOffset += n
			c.Touch(time.Now())
			if r.metrics != nil {
				r.metrics.ResponseBytes.Add(float64(n))
			}
			continue
		}
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			r.closeConn(c, "write error")
			return
		}
	}
	// Connection: close is the only model this core supports (spec section 6) —
	// the response is fully drained, so the connection is torn down immediately.
	r.closeConn(c, "response complete")
}

func (r *Reactor) closeConn(c *connection.Conn, reason string) {
	if c.CGI != nil {
		pipeFD := c.CGI.StdoutFD()
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, pipeFD, nil)
		delete(r.cgiPipes, pipeFD)
		_ = c.CGI.Kill()
		_ = c.CGI.Wait()
		c.CGI = nil
	}
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, c.FD, nil)
	_ = unix.Close(c.FD)
	r.table.Remove(c.FD)
	if r.metrics != nil {
		r.metrics.ConnectionsActive.Dec()
		r.metrics.ConnectionsClosed.WithLabelValues(reason).Inc()
	}
}

// reapIfDue runs the idle reaper at most once per second (spec section 4.9).
func (r *Reactor) reapIfDue(now time.Time) {
	if now.Sub(r.lastReap) < time.Second {
		return
	}
	r.lastReap = now

	for _, fd := range r.table.IdleBeyond(now, IdleThreshold) {
		if c, ok := r.table.Get(fd); ok {
			r.closeConn(c, "idle timeout")
		}
	}
}
