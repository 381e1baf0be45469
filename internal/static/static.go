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

// Package static serves files and directory listings from a server-rooted
// filesystem path (spec section 4.5): index resolution, autoindex listing, and
// path-escape protection ahead of any disk read.
package static

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nabbar/webservd/internal/mimetype"
	"github.com/nabbar/webservd/internal/response"
)

// PathSecurityConfig adds defense-in-depth checks beyond the mandatory
// canonicalize-then-verify root check: a dotfile policy, a segment-depth cap, and
// a deny list of substrings, checked against the raw URI path before any
// filesystem access.
type PathSecurityConfig struct {
	Enabled         bool
	AllowDotFiles   bool
	MaxPathDepth    int
	BlockedPatterns []string
}

// DefaultPathSecurityConfig matches the conservative defaults appropriate for a
// document root served to the public Internet.
func DefaultPathSecurityConfig() PathSecurityConfig {
	return PathSecurityConfig{
		Enabled:       true,
		AllowDotFiles: false,
		MaxPathDepth:  10,
		BlockedPatterns: []string{
			".git", ".env", ".svn", ".htaccess",
		},
	}
}

// IsPathSafe applies cfg to a raw URI path. It never touches the filesystem —
// Resolve still performs the mandatory canonicalize-then-verify check
// independently of this policy layer.
func IsPathSafe(uriPath string, cfg PathSecurityConfig) bool {
	if !cfg.Enabled {
		return true
	}
	if strings.Contains(uriPath, "\x00") {
		return false
	}
	if strings.Contains(uriPath, "..\\") {
		return false
	}

	cleaned := strings.ReplaceAll(uriPath, "\\", "/")
	segments := strings.Split(strings.Trim(cleaned, "/"), "/")
	depth := 0
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		depth++
		if !cfg.AllowDotFiles && strings.HasPrefix(seg, ".") {
			return false
		}
	}
	if cfg.MaxPathDepth > 0 && depth > cfg.MaxPathDepth {
		return false
	}
	for _, pattern := range cfg.BlockedPatterns {
		if pattern != "" && strings.Contains(cleaned, pattern) {
			return false
		}
	}
	return true
}

// Resolve canonicalizes root+uriPath and verifies the result stays within the
// canonicalized root (spec section 9, open question 1: canonicalize first, then
// verify containment — never the reverse). Returns the resolved filesystem path,
// or ok=false if the request escapes root and must be answered 403.
func Resolve(root, uriPath string) (fsPath string, ok bool) {
	cleanRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", false
	}
	joined := filepath.Join(cleanRoot, uriPath)
	cleanJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", false
	}
	if cleanJoined != cleanRoot && !strings.HasPrefix(cleanJoined, cleanRoot+string(filepath.Separator)) {
		return "", false
	}
	return cleanJoined, true
}

// Serve implements the dispatch-step-11 GET workflow: directory with index,
// directory listing, regular file, or 404/403.
func Serve(root, uriPath, indexFilename string, autoindex bool, security PathSecurityConfig) *response.Response {
	if !IsPathSafe(uriPath, security) {
		return response.Error(403, "Forbidden")
	}

	fsPath, ok := Resolve(root, uriPath)
	if !ok {
		return response.Error(403, "Forbidden")
	}

	info, err := os.Stat(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return response.Error(404, "Not Found")
		}
		return response.Error(403, "Forbidden")
	}

	if info.IsDir() {
		return serveDirectory(fsPath, uriPath, indexFilename, autoindex)
	}
	return serveFile(fsPath)
}

func serveDirectory(fsPath, uriPath, indexFilename string, autoindex bool) *response.Response {
	if indexFilename != "" {
		indexPath := filepath.Join(fsPath, indexFilename)
		if info, err := os.Stat(indexPath); err == nil && !info.IsDir() {
			return serveFile(indexPath)
		}
	}
	if autoindex {
		body, err := renderListing(fsPath, uriPath)
		if err != nil {
			return response.Error(403, "Forbidden")
		}
		return response.Listing(body)
	}
	return response.Error(403, "Forbidden")
}

func serveFile(fsPath string) *response.Response {
	body, err := os.ReadFile(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return response.Error(404, "Not Found")
		}
		return response.Error(403, "Forbidden")
	}
	ct := mimetype.ForPath(fsPath, func() ([]byte, error) {
		if len(body) > 512 {
			return body[:512], nil
		}
		return body, nil
	})
	return response.File(ct, body)
}

// Put implements dispatch-step-8: writes body to root+uriPath, creating parent
// directories as needed. created reports whether the target did not previously
// exist (201 vs 200 at the call site).
func Put(root, uriPath string, body []byte) (created bool, err error) {
	fsPath, ok := Resolve(root, uriPath)
	if !ok {
		return false, os.ErrPermission
	}
	_, statErr := os.Stat(fsPath)
	created = os.IsNotExist(statErr)

	if err = os.MkdirAll(filepath.Dir(fsPath), 0o755); err != nil {
		return false, err
	}
	if err = os.WriteFile(fsPath, body, 0o644); err != nil {
		return false, err
	}
	return created, nil
}

// Delete implements dispatch-step-9: unlinks root+uriPath.
func Delete(root, uriPath string) error {
	fsPath, ok := Resolve(root, uriPath)
	if !ok {
		return os.ErrPermission
	}
	return os.Remove(fsPath)
}

// renderListing builds the minimal directory-listing HTML named in spec section
// 4.5: dotfiles excluded, subdirectories trailing-slashed, a parent-directory
// link present unless uriPath is already "/".
func renderListing(fsPath, uriPath string) ([]byte, error) {
	entries, err := os.ReadDir(fsPath)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	b.WriteString("<html><head><title>Index of ")
	b.WriteString(html.EscapeString(uriPath))
	b.WriteString("</title></head><body><h1>Index of ")
	b.WriteString(html.EscapeString(uriPath))
	b.WriteString("</h1><ul>")

	if uriPath != "/" {
		b.WriteString(`<li><a href="../">../</a></li>`)
	}

	base := strings.TrimSuffix(uriPath, "/")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		href := name
		if e.IsDir() {
			href += "/"
		}
		b.WriteString(fmt.Sprintf(`<li><a href="%s">%s</a></li>`,
			html.EscapeString(base+"/"+href), html.EscapeString(href)))
	}

	b.WriteString("</ul></body></html>")
	return []byte(b.String()), nil
}
