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

// Package cgi implements the CGI/1.1 subprocess supervisor (spec section 4.7):
// interpreter lookup, RFC 3875 environment construction, fork/exec, and a
// non-blocking output drain driven by the same reactor that serves client
// sockets rather than a dedicated blocking goroutine per invocation.
package cgi

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nabbar/webservd/internal/httpparse"
	"github.com/nabbar/webservd/internal/response"
	"github.com/nabbar/webservd/internal/srverr"
)

// interpreterCandidates maps a script extension to the conventional absolute
// paths searched, in order, for its interpreter binary.
var interpreterCandidates = map[string][]string{
	".py":  {"/usr/bin/python3", "/usr/local/bin/python3"},
	".php": {"/usr/bin/php-cgi", "/usr/local/bin/php-cgi"},
	".pl":  {"/usr/bin/perl", "/usr/local/bin/perl"},
	".rb":  {"/usr/bin/ruby", "/usr/local/bin/ruby"},
	".sh":  {"/bin/bash", "/usr/bin/bash"},
}

// FindInterpreter resolves ext to the first candidate interpreter path that
// exists on disk. ok is false for an unmapped extension, surfaced as 501 by the
// caller.
func FindInterpreter(ext string) (path string, ok bool) {
	for _, candidate := range interpreterCandidates[strings.ToLower(ext)] {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// sanitizeEnvValue strips shell metacharacters and control bytes from untrusted
// request data before it is placed in the child's environment (spec section
// 4.7, step 2).
func sanitizeEnvValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		switch r {
		case '`', '$', '|', '&', ';', '<', '>', '(', ')', '\\', '"', '\'', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EnvParams carries the values BuildEnv needs beyond the Request itself.
type EnvParams struct {
	ScriptName     string
	ScriptFilename string
	DocumentRoot   string
	ServerName     string
	ServerPort     int
	ServerSoftware string
}

// BuildEnv constructs the RFC 3875 environment for one CGI invocation (spec
// section 4.7, step 2): the fixed CGI/1.1 variables plus one HTTP_* variable per
// request header, every untrusted value passed through sanitizeEnvValue.
func BuildEnv(req *httpparse.Request, p EnvParams) []string {
	env := []string{
		"REQUEST_METHOD=" + string(req.Method),
		"REQUEST_URI=" + sanitizeEnvValue(req.URIPath),
		"QUERY_STRING=" + sanitizeEnvValue(req.QueryString),
		"SERVER_NAME=" + sanitizeEnvValue(p.ServerName),
		"SERVER_PORT=" + strconv.Itoa(p.ServerPort),
		"SERVER_PROTOCOL=HTTP/1.1",
		"SERVER_SOFTWARE=" + p.ServerSoftware,
		"GATEWAY_INTERFACE=CGI/1.1",
		"SCRIPT_NAME=" + sanitizeEnvValue(p.ScriptName),
		"SCRIPT_FILENAME=" + p.ScriptFilename,
		"PATH_INFO=",
		"DOCUMENT_ROOT=" + p.DocumentRoot,
		"REDIRECT_STATUS=200",
	}

	if ct, ok := req.Headers.Get("Content-Type"); ok {
		env = append(env, "CONTENT_TYPE="+sanitizeEnvValue(ct))
	}
	if req.ContentLength > 0 {
		env = append(env, "CONTENT_LENGTH="+strconv.FormatInt(req.ContentLength, 10))
	}

	req.Headers.Each(func(key, val string) {
		name := strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if name == "CONTENT_TYPE" || name == "CONTENT_LENGTH" {
			return
		}
		env = append(env, "HTTP_"+name+"="+sanitizeEnvValue(val))
	})

	return env
}

// DefaultDeadline is the wall-clock budget given to a CGI subprocess's output
// before it is terminated (spec section 4.7, step 5).
const DefaultDeadline = 30 * time.Second

// Invocation tracks one running CGI subprocess: its pipes, accumulated stdout,
// and output deadline. The reactor polls StdoutFD() the same way it polls
// client sockets; Drain is called once per readiness wake.
type Invocation struct {
	cmd      *exec.Cmd
	stdinW   *os.File
	stdoutR  *os.File
	out      []byte
	deadline time.Time
}

// Start forks interpreterPath scriptPath with env, writes body to its stdin in
// a single non-blocking write and closes it (spec section 9, CGI body write
// note), and returns an Invocation ready for the reactor to poll.
func Start(interpreterPath, scriptPath string, env []string, body []byte) (*Invocation, error) {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, srverr.Wrap(srverr.CodeCGISpawn, "create stdin pipe", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, srverr.Wrap(srverr.CodeCGISpawn, "create stdout pipe", err)
	}

	args := []string{}
	if scriptPath != "" {
		args = append(args, scriptPath)
	}
	cmd := exec.Command(interpreterPath, args...)
	cmd.Env = env
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, srverr.Wrap(srverr.CodeCGISpawn, fmt.Sprintf("start %s", interpreterPath), err)
	}

	// Parent keeps the write end of stdin and the read end of stdout; the
	// child's ends are only needed across the fork and are closed here.
	_ = stdinR.Close()
	_ = stdoutW.Close()

	if len(body) > 0 {
		_, _ = stdinW.Write(body)
	}
	_ = stdinW.Close()

	// File.Fd() puts the descriptor into blocking mode as a side effect;
	// restore non-blocking so Drain's raw Read never stalls the reactor.
	if err := syscall.SetNonblock(int(stdoutR.Fd()), true); err != nil {
		cmd.Process.Kill()
		stdoutR.Close()
		return nil, srverr.Wrap(srverr.CodeCGISpawn, "set stdout non-blocking", err)
	}

	return &Invocation{
		cmd:      cmd,
		stdinW:   stdinW,
		stdoutR:  stdoutR,
		deadline: time.Now().Add(DefaultDeadline),
	}, nil
}

// StdoutFD is the raw descriptor the reactor registers for read-interest. It is
// fetched through SyscallConn rather than File.Fd, which would put the pipe
// back into blocking mode on every call.
func (inv *Invocation) StdoutFD() int {
	fd := -1
	if rc, err := inv.stdoutR.SyscallConn(); err == nil {
		_ = rc.Control(func(raw uintptr) { fd = int(raw) })
	}
	return fd
}

// Drain performs one non-blocking read of whatever output is currently
// available. done is true once EOF (a zero-length read) has been observed.
func (inv *Invocation) Drain() (done bool, err error) {
	buf := make([]byte, 64*1024)
	for {
		n, rerr := syscall.Read(inv.StdoutFD(), buf)
		if n > 0 {
			inv.out = append(inv.out, buf[:n]...)
		}
		if rerr != nil {
			if rerr == syscall.EAGAIN || rerr == syscall.EWOULDBLOCK {
				return false, nil
			}
			return false, rerr
		}
		if n == 0 {
			return true, nil
		}
		if n < len(buf) {
			return false, nil
		}
	}
}

// DeadlineExceeded reports whether now is past the invocation's output
// deadline (spec section 4.7, step 5).
func (inv *Invocation) DeadlineExceeded(now time.Time) bool {
	return now.After(inv.deadline)
}

// Kill terminates the child with SIGTERM, used on deadline expiry.
func (inv *Invocation) Kill() error {
	if inv.cmd.Process == nil {
		return nil
	}
	return inv.cmd.Process.Signal(syscall.SIGTERM)
}

// KillForTimeout is Kill, with the returned error coded as a CGI timeout rather
// than a generic spawn failure — callers that hit DeadlineExceeded use this
// instead of Kill so the coded error reflects why the process is being torn down.
func (inv *Invocation) KillForTimeout() error {
	if err := inv.Kill(); err != nil {
		return srverr.Wrap(srverr.CodeCGITimeout, "terminate CGI process past its deadline", err)
	}
	return nil
}

// Wait reaps the child after EOF has been observed on stdout (spec section 4.7,
// step 6) and closes the read end.
func (inv *Invocation) Wait() error {
	defer inv.stdoutR.Close()
	return inv.cmd.Wait()
}

// Output returns everything read so far.
func (inv *Invocation) Output() []byte {
	return inv.out
}

// FinalizeResponse reaps the child once Drain has reported EOF and builds
// the Response from whatever output was accumulated (spec section 4.7,
// step 6). Callers must only invoke this after Drain returns done=true.
func (inv *Invocation) FinalizeResponse() *response.Response {
	_ = inv.Wait()
	if len(inv.Output()) == 0 {
		return EmptyOutputResponse()
	}
	return ParseOutput(inv.Output())
}

// ParseOutput splits a completed CGI invocation's raw output on the first blank
// line (spec section 4.7, output parsing): a Status: header supplies the HTTP
// status, every other header is forwarded verbatim, and the remaining bytes are
// the body. Output with no blank line is treated entirely as an HTML body.
func ParseOutput(raw []byte) *response.Response {
	sep, headerLen := findHeaderSeparator(raw)
	if sep < 0 {
		r := response.New(200)
		r.SetHeader("Content-Type", "text/html")
		r.SetBody(raw)
		return r
	}

	headerBlock := string(raw[:sep])
	body := raw[sep+headerLen:]

	status := 200
	r := response.New(200)
	for _, line := range strings.Split(headerBlock, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if strings.EqualFold(key, "Status") {
			if n, err := strconv.Atoi(strings.Fields(val)[0]); err == nil {
				status = n
			}
			continue
		}
		r.SetHeader(key, val)
	}
	r.StatusCode = status
	r.SetBody(body)
	return r
}

func findHeaderSeparator(raw []byte) (index, sepLen int) {
	if i := indexOf(raw, "\r\n\r\n"); i >= 0 {
		return i, 4
	}
	if i := indexOf(raw, "\n\n"); i >= 0 {
		return i, 2
	}
	return -1, 0
}

func indexOf(haystack []byte, needle string) int {
	return indexOfBytes(haystack, []byte(needle))
}

func indexOfBytes(haystack, needle []byte) int {
	n := len(needle)
	if n == 0 || len(haystack) < n {
		return -1
	}
	for i := 0; i+n <= len(haystack); i++ {
		match := true
		for j := 0; j < n; j++ {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// UnknownInterpreterResponse builds the 501 returned for an unmapped script
// extension (spec section 4.7).
func UnknownInterpreterResponse(ext string) *response.Response {
	return response.Error(501, fmt.Sprintf("no interpreter configured for %q", ext))
}

// TimeoutResponse builds the 500 returned when the output deadline elapses
// (spec section 4.7, step 5).
func TimeoutResponse() *response.Response {
	return response.Error(500, "CGI script exceeded its output deadline")
}

// EmptyOutputResponse builds the 500 returned when the child produced zero
// bytes of output (spec section 4.7, step 6).
func EmptyOutputResponse() *response.Response {
	return response.Error(500, "CGI script produced no output")
}
