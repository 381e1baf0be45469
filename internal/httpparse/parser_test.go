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

package httpparse_test

import (
	"fmt"
	"strings"

	"github.com/nabbar/webservd/internal/httpparse"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Parser", func() {
	var p *httpparse.Parser

	BeforeEach(func() {
		p = httpparse.New()
	})

	It("parses a simple GET with no body in one shot", func() {
		res := p.Feed([]byte("GET /index.html HTTP/1.1\r\nHost: localhost\r\n\r\n"))
		Expect(res).To(Equal(httpparse.Complete))
		Expect(p.Req.Method).To(Equal(httpparse.GET))
		Expect(p.Req.URIPath).To(Equal("/index.html"))
		Expect(p.Req.ParseStatus).To(Equal(0))
	})

	It("reassembles a request arriving one byte at a time", func() {
		raw := "GET /a?x=1 HTTP/1.1\r\nHost: x\r\n\r\n"
		var res httpparse.Result
		for i := 0; i < len(raw); i++ {
			res = p.Feed([]byte{raw[i]})
		}
		Expect(res).To(Equal(httpparse.Complete))
		Expect(p.Req.URIPath).To(Equal("/a"))
		Expect(p.Req.QueryString).To(Equal("x=1"))
	})

	It("reads a fixed-length body across multiple feeds", func() {
		p.Feed([]byte("POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\n"))
		Expect(p.Req.HeadersComplete).To(BeTrue())
		Expect(p.Req.BodyComplete).To(BeFalse())

		res := p.Feed([]byte("hel"))
		Expect(res).To(Equal(httpparse.Incomplete))
		res = p.Feed([]byte("lo"))
		Expect(res).To(Equal(httpparse.Complete))
		Expect(string(p.Req.Body)).To(Equal("hello"))
	})

	It("decodes a chunked body and ignores the trailing CRLF framing", func() {
		raw := "POST /c HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
			"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
		res := p.Feed([]byte(raw))
		Expect(res).To(Equal(httpparse.Complete))
		Expect(string(p.Req.Body)).To(Equal("Wikipedia"))
	})

	It("discards chunked trailers after the zero chunk", func() {
		raw := "POST /c HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
			"3\r\nfoo\r\n0\r\nX-Trailer: ignored\r\n\r\n"
		res := p.Feed([]byte(raw))
		Expect(res).To(Equal(httpparse.Complete))
		Expect(string(p.Req.Body)).To(Equal("foo"))
		_, ok := p.Req.Headers.Get("X-Trailer")
		Expect(ok).To(BeFalse())
	})

	It("rejects a request line with the wrong number of tokens", func() {
		res := p.Feed([]byte("GET /x HTTP/1.1 extra\r\nHost: x\r\n\r\n"))
		Expect(res).To(Equal(httpparse.Errored))
		Expect(p.Req.ParseStatus).To(Equal(400))
	})

	It("rejects an unsupported HTTP version", func() {
		res := p.Feed([]byte("GET /x HTTP/2.0\r\nHost: x\r\n\r\n"))
		Expect(res).To(Equal(httpparse.Errored))
		Expect(p.Req.ParseStatus).To(Equal(505))
	})

	It("rejects a path traversal attempt before any router call would happen", func() {
		res := p.Feed([]byte("GET /a/../../etc/passwd HTTP/1.1\r\nHost: x\r\n\r\n"))
		Expect(res).To(Equal(httpparse.Errored))
		Expect(p.Req.ParseStatus).To(Equal(400))
	})

	It("rejects a URI above the length limit", func() {
		long := "/" + strings.Repeat("a", httpparse.MaxURIBytes+1)
		res := p.Feed([]byte(fmt.Sprintf("GET %s HTTP/1.1\r\nHost: x\r\n\r\n", long)))
		Expect(res).To(Equal(httpparse.Errored))
		Expect(p.Req.ParseStatus).To(Equal(414))
	})

	It("rejects duplicate Content-Length headers", func() {
		res := p.Feed([]byte("POST /x HTTP/1.1\r\nHost: x\r\nContent-Length: 1\r\nContent-Length: 2\r\n\r\n"))
		Expect(res).To(Equal(httpparse.Errored))
		Expect(p.Req.ParseStatus).To(Equal(400))
	})

	It("rejects both Content-Length and Transfer-Encoding present together", func() {
		res := p.Feed([]byte("POST /x HTTP/1.1\r\nHost: x\r\nContent-Length: 1\r\nTransfer-Encoding: chunked\r\n\r\nX"))
		Expect(res).To(Equal(httpparse.Errored))
		Expect(p.Req.ParseStatus).To(Equal(400))
	})

	It("rejects a Transfer-Encoding value other than chunked", func() {
		res := p.Feed([]byte("POST /x HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: gzip\r\n\r\n"))
		Expect(res).To(Equal(httpparse.Errored))
		Expect(p.Req.ParseStatus).To(Equal(400))
	})

	It("rejects Expect values other than 100-continue", func() {
		res := p.Feed([]byte("POST /x HTTP/1.1\r\nHost: x\r\nExpect: 200-ok\r\nContent-Length: 0\r\n\r\n"))
		Expect(res).To(Equal(httpparse.Errored))
		Expect(p.Req.ParseStatus).To(Equal(417))
	})

	It("requires a non-empty Host header on HTTP/1.1", func() {
		res := p.Feed([]byte("GET /x HTTP/1.1\r\n\r\n"))
		Expect(res).To(Equal(httpparse.Errored))
		Expect(p.Req.ParseStatus).To(Equal(400))
	})

	It("surfaces an unrecognized method as Unknown rather than failing to parse", func() {
		res := p.Feed([]byte("TRACE /x HTTP/1.1\r\nHost: x\r\n\r\n"))
		Expect(res).To(Equal(httpparse.Complete))
		Expect(p.Req.Method).To(Equal(httpparse.Unknown))
		Expect(p.Req.ParseStatus).To(Equal(0))
	})

	It("parses cookies into a name to value map", func() {
		p.Feed([]byte("GET /x HTTP/1.1\r\nHost: x\r\nCookie: a=1; b=2\r\n\r\n"))
		Expect(p.Req.Cookies).To(HaveKeyWithValue("a", "1"))
		Expect(p.Req.Cookies).To(HaveKeyWithValue("b", "2"))
	})

	It("preserves header case in storage while matching lookups case-insensitively", func() {
		p.Feed([]byte("GET /x HTTP/1.1\r\nHost: x\r\nX-Custom-Header: Value\r\n\r\n"))
		var storedKey string
		p.Req.Headers.Each(func(key, val string) {
			if val == "Value" {
				storedKey = key
			}
		})
		Expect(storedKey).To(Equal("X-Custom-Header"))
		v, ok := p.Req.Headers.Get("x-custom-header")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("Value"))
	})
})
