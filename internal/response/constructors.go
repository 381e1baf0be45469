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

package response

import (
	"fmt"
	"sort"
	"strings"
)

// Error builds a minimal default error page. Callers that have a nicer templated
// page (the out-of-scope response-template collaborator) should use Message
// instead with that body.
func Error(status int, detail string) *Response {
	body := fmt.Sprintf("<html><head><title>%d %s</title></head><body><h1>%d %s</h1>%s</body></html>",
		status, Reason(status), status, Reason(status), detailParagraph(detail))
	r := New(status)
	r.SetHeader("Content-Type", "text/html; charset=utf-8")
	r.SetBody([]byte(body))
	return r
}

func detailParagraph(detail string) string {
	if detail == "" {
		return ""
	}
	return fmt.Sprintf("<p>%s</p>", detail)
}

// File builds a 200 response serving body under the given Content-Type.
func File(contentType string, body []byte) *Response {
	r := New(200)
	r.SetHeader("Content-Type", contentType)
	r.SetBody(body)
	return r
}

// Listing builds a 200 text/html directory listing response.
func Listing(body []byte) *Response {
	r := New(200)
	r.SetHeader("Content-Type", "text/html; charset=utf-8")
	r.SetBody(body)
	return r
}

// Redirect builds a redirect response; status must be one of 301/302/307/308 per
// the Location invariant in spec section 3.
func Redirect(target string, status int) *Response {
	r := New(status)
	r.SetHeader("Location", target)
	r.SetBody(nil)
	return r
}

// Options synthesizes the Allow header response for an OPTIONS request (spec
// section 4.4, dispatch step 5): the location's allowed methods plus OPTIONS and
// HEAD, deduplicated, in a stable sorted order.
func Options(allowed map[string]bool) *Response {
	set := map[string]bool{"OPTIONS": true, "HEAD": true}
	for m := range allowed {
		set[m] = true
	}
	methods := make([]string, 0, len(set))
	for m := range set {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	r := New(200)
	r.SetHeader("Allow", strings.Join(methods, ", "))
	r.SetBody(nil)
	return r
}

// Message builds a plain response with an explicit title/body, used for simple
// non-error synthesized responses (e.g. PUT creation acknowledgements).
func Message(status int, title string, body []byte) *Response {
	r := New(status)
	if body == nil {
		body = []byte(title)
	}
	r.SetHeader("Content-Type", "text/plain; charset=utf-8")
	r.SetBody(body)
	return r
}
