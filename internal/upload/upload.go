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

// Package upload implements the multipart/form-data handler (spec section 4.6):
// boundary extraction, first-part scanning, filename sanitization, extension
// allow-listing, and the on-disk write.
package upload

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nabbar/webservd/internal/response"
	"github.com/nabbar/webservd/internal/srverr"
)

// AllowedExtensions is the whitelist consulted before any upload is written to
// disk; anything else is rejected 403.
var AllowedExtensions = map[string]bool{
	".txt": true, ".pdf": true, ".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".zip": true, ".mp4": true, ".json": true, ".csv": true,
	".md": true, ".log": true,
}

// ExtractBoundary pulls the boundary parameter out of a multipart/form-data
// Content-Type header value.
func ExtractBoundary(contentType string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(contentType), "multipart/form-data") {
		return "", false
	}
	for _, part := range strings.Split(contentType, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "boundary="); ok {
			return strings.Trim(v, `"`), true
		}
	}
	return "", false
}

// sanitizeFilename applies the rules of spec section 4.6: strip path components,
// reject traversal, allow only [A-Za-z0-9._-], fall back to a fixed name when the
// result would be empty or a bare dot sequence.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "..", "_")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		return "upload_file"
	}
	return out
}

// part is the first (and only) multipart section this handler extracts.
type part struct {
	filename string
	content  []byte
}

// extractFirstPart scans body for the delimiter-bounded first part and returns
// its filename (from the Content-Disposition header) and raw content bytes.
func extractFirstPart(body []byte, boundary string) (part, bool) {
	delim := []byte("--" + boundary)
	start := bytes.Index(body, delim)
	if start < 0 {
		return part{}, false
	}
	rest := body[start+len(delim):]
	rest = bytes.TrimPrefix(rest, []byte("\r\n"))

	sep := bytes.Index(rest, []byte("\r\n\r\n"))
	if sep < 0 {
		return part{}, false
	}
	headerBlock := string(rest[:sep])
	content := rest[sep+4:]

	end := bytes.Index(content, delim)
	if end >= 0 {
		content = content[:end]
	}
	content = bytes.TrimSuffix(content, []byte("\r\n"))

	filename := ""
	for _, line := range strings.Split(headerBlock, "\r\n") {
		if !strings.HasPrefix(strings.ToLower(line), "content-disposition:") {
			continue
		}
		const marker = `filename="`
		if i := strings.Index(line, marker); i >= 0 {
			rest := line[i+len(marker):]
			if j := strings.IndexByte(rest, '"'); j >= 0 {
				filename = rest[:j]
			}
		}
	}

	return part{filename: filename, content: content}, true
}

// Complete reports whether body contains the closing boundary ("--<boundary>--")
// for the given boundary, i.e. whether the full multipart stream has arrived.
// The router calls it before Handle and answers 400 when the closing boundary
// is missing, so a truncated file is never written; no further bytes are read
// from the socket to wait for the rest of the stream.
func Complete(body []byte, boundary string) bool {
	return bytes.Contains(body, []byte("--"+boundary+"--"))
}

// Handle writes the first part of a multipart/form-data body to uploadDir,
// applying the filename and extension rules, and returns the Response for the
// request (spec section 4.6). A successful upload creating a new file returns
// 201 with the stored filename in the body; a collision resolved via the
// _copy_<timestamp> suffix returns 201 as well (PUT is the only handler that
// distinguishes create-vs-replace with 200 vs 201).
func Handle(uploadDir, contentType string, body []byte, maxBytes int64, now time.Time) *response.Response {
	boundary, ok := ExtractBoundary(contentType)
	if !ok {
		return response.Error(400, "missing multipart boundary")
	}

	p, ok := extractFirstPart(body, boundary)
	if !ok {
		return response.Error(400, "malformed multipart body")
	}

	if maxBytes > 0 && int64(len(p.content)) > maxBytes {
		return response.Error(413, "upload exceeds the configured size limit")
	}

	name := sanitizeFilename(p.filename)
	ext := strings.ToLower(filepath.Ext(name))
	if !AllowedExtensions[ext] {
		return response.Error(403, "file extension not allowed")
	}

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		wrapped := srverr.Wrap(srverr.CodeUploadIO, "prepare upload directory", err)
		return response.Error(500, wrapped.Error())
	}

	target := filepath.Join(uploadDir, name)
	if _, err := os.Stat(target); err == nil {
		stem := strings.TrimSuffix(name, ext)
		name = fmt.Sprintf("%s_copy_%d%s", stem, now.Unix(), ext)
		target = filepath.Join(uploadDir, name)
	}

	if err := os.WriteFile(target, p.content, 0o644); err != nil {
		wrapped := srverr.Wrap(srverr.CodeUploadIO, "write upload", err)
		return response.Error(500, wrapped.Error())
	}

	return response.Message(201, fmt.Sprintf("uploaded as %s", name), nil)
}
