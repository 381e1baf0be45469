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

// Package httpparse implements the streaming HTTP/1.1 request parser (spec section
// 4.3): request line, headers, fixed-length and chunked bodies, over bytes that
// arrive in arbitrarily small increments across non-blocking reads.
package httpparse

import "strings"

// Method is one of the HTTP methods webservd recognizes at the wire level; anything
// else parses to Unknown and is surfaced as 501 at dispatch (spec section 4.4).
type Method string

const (
	GET     Method = "GET"
	HEAD    Method = "HEAD"
	POST    Method = "POST"
	DELETE  Method = "DELETE"
	OPTIONS Method = "OPTIONS"
	PUT     Method = "PUT"
	Unknown Method = ""
)

func parseMethod(s string) Method {
	switch s {
	case "GET", "HEAD", "POST", "DELETE", "OPTIONS", "PUT":
		return Method(s)
	default:
		return Unknown
	}
}

// Headers preserves insertion order and original case (spec section 9, ambiguity 3)
// while making lookups case-insensitive.
type Headers struct {
	keys []string
	vals []string
}

func (h *Headers) Add(key, val string) {
	h.keys = append(h.keys, key)
	h.vals = append(h.vals, val)
}

// Get returns the first value stored under key, matched case-insensitively.
func (h *Headers) Get(key string) (string, bool) {
	lk := strings.ToLower(key)
	for i, k := range h.keys {
		if strings.ToLower(k) == lk {
			return h.vals[i], true
		}
	}
	return "", false
}

// Count returns how many headers were stored under key, case-insensitively — used
// to reject duplicate Content-Length/Transfer-Encoding/Host (spec section 4.3).
func (h *Headers) Count(key string) int {
	lk := strings.ToLower(key)
	n := 0
	for _, k := range h.keys {
		if strings.ToLower(k) == lk {
			n++
		}
	}
	return n
}

// Len reports the number of stored header lines.
func (h *Headers) Len() int { return len(h.keys) }

// Each iterates headers in original insertion order, original case preserved —
// used to build CGI HTTP_* environment variables (spec section 4.7).
func (h *Headers) Each(fn func(key, val string)) {
	for i, k := range h.keys {
		fn(k, h.vals[i])
	}
}

// Request is the partial-or-complete request record the parser populates
// incrementally (spec section 3).
type Request struct {
	Method        Method
	URIPath       string
	QueryString   string
	Version       string
	Headers       Headers
	Body          []byte
	ContentLength int64
	Chunked       bool

	HeadersComplete bool
	BodyComplete    bool

	// ParseStatus is 0 (OK) until the parser determines the request is malformed,
	// at which point it holds the HTTP status code router.Dispatch returns before
	// any handler runs (spec section 9).
	ParseStatus int

	Cookies map[string]string
}

// HostHeader returns the request's Host header value, required non-empty for
// HTTP/1.1 (spec section 4.3).
func (r *Request) HostHeader() (string, bool) {
	return r.Headers.Get("Host")
}
