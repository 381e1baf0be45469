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

package httpparse

import (
	"strconv"
	"strings"
)

// Limits from spec section 4.3 (typical values named in the spec text).
const (
	MaxHeaderLineBytes  = 8 * 1024
	MaxHeaderCount      = 100
	MaxTotalHeaderBytes = 16 * 1024
	MaxURIBytes         = 8192
)

// Result is what Feed returns after consuming whatever bytes were available.
type Result int

const (
	Incomplete Result = iota
	Complete
	Errored
)

type chunkPhase int

const (
	chunkAwaitingSize chunkPhase = iota
	chunkAwaitingData
	chunkAwaitingDataCRLF
	chunkAwaitingTrailerEnd
)

// Parser incrementally consumes bytes into a Request. It is restartable: Feed may
// be called once per non-blocking read, with however many bytes that read
// produced, in any split.
type Parser struct {
	Req *Request

	buf []byte
	pos int

	requestLineParsed bool
	headerBytesSeen   int

	chunkState     chunkPhase
	chunkRemaining int64
}

// New creates a Parser for a fresh request.
func New() *Parser {
	return &Parser{Req: &Request{}}
}

func (p *Parser) fail(status int) Result {
	p.Req.ParseStatus = status
	return Errored
}

// Feed appends newly read bytes and advances the state machine as far as
// possible. It never blocks and never re-scans bytes already consumed.
func (p *Parser) Feed(data []byte) Result {
	if p.Req.ParseStatus != 0 {
		return Errored
	}
	p.buf = append(p.buf, data...)

	if !p.Req.HeadersComplete {
		if r := p.consumeHeaders(); r != Incomplete {
			return r
		}
		if !p.Req.HeadersComplete {
			p.compact()
			return Incomplete
		}
	}

	if p.Req.HeadersComplete && !p.Req.BodyComplete {
		if r := p.consumeBody(); r != Incomplete {
			return r
		}
	}

	p.compact()
	if p.Req.BodyComplete {
		return Complete
	}
	return Incomplete
}

// compact drops already-consumed bytes so buf doesn't grow unboundedly across
// many small reads.
func (p *Parser) compact() {
	if p.pos == 0 {
		return
	}
	p.buf = append(p.buf[:0], p.buf[p.pos:]...)
	p.pos = 0
}

// nextLine returns the bytes of the next CRLF-terminated line (without the CRLF)
// starting at p.pos, advancing p.pos past it. ok is false if no full line is
// buffered yet.
func (p *Parser) nextLine() (line []byte, ok bool) {
	rest := p.buf[p.pos:]
	idx := indexCRLF(rest)
	if idx < 0 {
		return nil, false
	}
	line = rest[:idx]
	p.pos += idx + 2
	return line, true
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func (p *Parser) consumeHeaders() Result {
	for {
		startPos := p.pos
		// The request line is bounded by MaxURIBytes (plus a small allowance for the
		// method and version tokens) rather than MaxHeaderLineBytes, so an oversized
		// URI is reported as 414 and not folded into the generic header-line 431.
		lineLimit := MaxHeaderLineBytes
		if !p.requestLineParsed {
			lineLimit = MaxURIBytes + 32
		}

		line, ok := p.nextLine()
		if !ok {
			if len(p.buf)-startPos > lineLimit {
				if !p.requestLineParsed {
					return p.fail(414)
				}
				return p.fail(431)
			}
			return Incomplete
		}
		if len(line) > lineLimit {
			if !p.requestLineParsed {
				return p.fail(414)
			}
			return p.fail(431)
		}

		if p.requestLineParsed {
			p.headerBytesSeen += len(line) + 2
			if p.headerBytesSeen > MaxTotalHeaderBytes {
				return p.fail(431)
			}
		}

		if !p.requestLineParsed {
			if len(line) == 0 {
				// Leading blank lines before the request line are tolerated and skipped.
				continue
			}
			if status := p.parseRequestLine(string(line)); status != 0 {
				return p.fail(status)
			}
			p.requestLineParsed = true
			continue
		}

		if len(line) == 0 {
			// Blank line: headers complete.
			if status := p.finalizeHeaders(); status != 0 {
				return p.fail(status)
			}
			p.Req.HeadersComplete = true
			return Incomplete
		}

		if p.Req.Headers.Len() >= MaxHeaderCount {
			return p.fail(431)
		}
		key, val, status := parseHeaderLine(line)
		if status != 0 {
			return p.fail(status)
		}
		p.Req.Headers.Add(key, val)
	}
}

func (p *Parser) parseRequestLine(line string) int {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return 400
	}
	method, uri, version := parts[0], parts[1], parts[2]

	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return 505
	}
	if len(uri) > MaxURIBytes {
		return 414
	}
	if strings.Contains(uri, "../") || strings.Contains(uri, "..\\") {
		return 400
	}

	path, query := splitURI(uri)

	p.Req.Method = parseMethod(method)
	p.Req.URIPath = path
	p.Req.QueryString = query
	p.Req.Version = version
	return 0
}

// splitURI discards the fragment, then separates path from query string, per spec
// section 4.3: fragment is dropped first, then the query string is retained
// verbatim (percent-decoding happens later, only when query parameters are read).
func splitURI(uri string) (path, query string) {
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		uri = uri[:i]
	}
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i], uri[i+1:]
	}
	return uri, ""
}

func parseHeaderLine(line []byte) (key, val string, status int) {
	s := string(line)
	if strings.ContainsAny(s, "\r\n") {
		return "", "", 400
	}
	idx := strings.IndexByte(s, ':')
	if idx <= 0 {
		return "", "", 400
	}
	key = strings.TrimSpace(s[:idx])
	val = strings.TrimSpace(s[idx+1:])
	if key == "" {
		return "", "", 400
	}
	return key, val, 0
}

// finalizeHeaders applies the cross-header validation rules of spec section 4.3
// once the blank line terminating the header block has been seen.
func (p *Parser) finalizeHeaders() int {
	h := &p.Req.Headers

	if h.Count("Content-Length") > 1 || h.Count("Transfer-Encoding") > 1 || h.Count("Host") > 1 {
		return 400
	}

	cl, hasCL := h.Get("Content-Length")
	te, hasTE := h.Get("Transfer-Encoding")
	if hasCL && hasTE {
		return 400
	}
	if hasTE && !strings.EqualFold(te, "chunked") {
		return 400
	}
	if exp, ok := h.Get("Expect"); ok && !strings.EqualFold(exp, "100-continue") {
		return 417
	}

	for i := 0; i < h.Len(); i++ {
		if strings.ContainsAny(h.vals[i], "\r\n") {
			return 400
		}
	}

	host, hasHost := h.Get("Host")
	if p.Req.Version == "HTTP/1.1" && (!hasHost || strings.TrimSpace(host) == "") {
		return 400
	}

	if hasTE {
		p.Req.Chunked = true
	} else if hasCL {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return 400
		}
		p.Req.ContentLength = n
	}

	if p.Req.ContentLength == 0 && !p.Req.Chunked {
		p.Req.BodyComplete = true
	}

	if cookie, ok := h.Get("Cookie"); ok {
		p.Req.Cookies = parseCookies(cookie)
	}

	return 0
}

func parseCookies(header string) map[string]string {
	out := make(map[string]string)
	for _, seg := range strings.Split(header, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		idx := strings.IndexByte(seg, '=')
		if idx < 0 {
			out[seg] = ""
			continue
		}
		out[seg[:idx]] = seg[idx+1:]
	}
	return out
}

func (p *Parser) consumeBody() Result {
	if p.Req.Chunked {
		return p.consumeChunked()
	}
	return p.consumeFixed()
}

func (p *Parser) consumeFixed() Result {
	need := p.Req.ContentLength - int64(len(p.Req.Body))
	avail := int64(len(p.buf) - p.pos)
	if avail <= 0 {
		return Incomplete
	}
	take := need
	if avail < take {
		take = avail
	}
	p.Req.Body = append(p.Req.Body, p.buf[p.pos:p.pos+int(take)]...)
	p.pos += int(take)

	if int64(len(p.Req.Body)) >= p.Req.ContentLength {
		p.Req.BodyComplete = true
	}
	return Incomplete
}

func (p *Parser) consumeChunked() Result {
	for {
		switch p.chunkState {
		case chunkAwaitingSize:
			line, ok := p.nextLine()
			if !ok {
				return Incomplete
			}
			sizeStr := string(line)
			if i := strings.IndexByte(sizeStr, ';'); i >= 0 {
				sizeStr = sizeStr[:i]
			}
			n, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
			if err != nil || n < 0 {
				return p.fail(400)
			}
			if n == 0 {
				p.chunkState = chunkAwaitingTrailerEnd
				continue
			}
			p.chunkRemaining = n
			p.chunkState = chunkAwaitingData
		case chunkAwaitingData:
			avail := int64(len(p.buf) - p.pos)
			if avail <= 0 {
				return Incomplete
			}
			take := p.chunkRemaining
			if avail < take {
				take = avail
			}
			p.Req.Body = append(p.Req.Body, p.buf[p.pos:p.pos+int(take)]...)
			p.pos += int(take)
			p.chunkRemaining -= take
			if p.chunkRemaining == 0 {
				p.chunkState = chunkAwaitingDataCRLF
			} else {
				return Incomplete
			}
		case chunkAwaitingDataCRLF:
			line, ok := p.nextLine()
			if !ok {
				return Incomplete
			}
			if len(line) != 0 {
				return p.fail(400)
			}
			p.chunkState = chunkAwaitingSize
		case chunkAwaitingTrailerEnd:
			// Trailers, if any, are parsed as plain header lines and discarded (spec
			// section 9, ambiguity 2): read until the blank line that ends them.
			line, ok := p.nextLine()
			if !ok {
				return Incomplete
			}
			if len(line) == 0 {
				p.Req.BodyComplete = true
				return Incomplete
			}
			// discard trailer header line
		}
	}
}
