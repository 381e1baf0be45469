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

// Package mimetype implements the "filesystem MIME detection" collaborator named
// in spec section 1: extension to media-type resolution, falling back to content
// sniffing for extensionless or unrecognized files.
package mimetype

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var byExtension = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".xml":  "application/xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".mp4":  "video/mp4",
	".webp": "image/webp",
	".woff": "font/woff",
	".woff2": "font/woff2",
}

// ForPath resolves the Content-Type for a served path from its extension, consulting
// the file's content only when the extension is unknown or absent.
func ForPath(path string, peek func() ([]byte, error)) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := byExtension[ext]; ok {
		return ct
	}
	if peek != nil {
		if buf, err := peek(); err == nil {
			return mimetype.Detect(buf).String()
		}
	}
	return "application/octet-stream"
}

// ForExtension resolves a Content-Type purely from an extension, without
// consulting any file content.
func ForExtension(ext string) (string, bool) {
	ct, ok := byExtension[strings.ToLower(ext)]
	return ct, ok
}
