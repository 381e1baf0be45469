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

// Package router implements longest-prefix location matching and the fixed
// eleven-step dispatch order (spec section 4.4) over the Static, Upload, and
// CGI handlers.
package router

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nabbar/webservd/internal/cgi"
	"github.com/nabbar/webservd/internal/config"
	"github.com/nabbar/webservd/internal/httpparse"
	"github.com/nabbar/webservd/internal/response"
	"github.com/nabbar/webservd/internal/static"
	"github.com/nabbar/webservd/internal/upload"
)

// Context carries the per-request values Dispatch needs beyond the request
// and virtual server: identity used to build CGI environments and build
// absolute Location headers.
type Context struct {
	ServerName     string
	ServerPort     int
	ServerSoftware string
	Now            time.Time
}

// Result is what Dispatch produces. Exactly one of its fields is set: most
// requests resolve to Response directly, but a cgi-bin request that starts
// successfully resolves to CGI instead — an Invocation still running, whose
// stdout pipe the caller must poll (via its own reactor loop) rather than
// block on (spec section 4.7, step 5; section 5: "the parent continues to
// serve other connections while waiting on CGI output").
type Result struct {
	Response *response.Response
	CGI      *cgi.Invocation
}

func resolved(r *response.Response) *Result {
	return &Result{Response: r}
}

// stripLastSegment walks one directory level up, the way nginx-style location
// matching probes progressively shorter prefixes (spec section 4.4).
func stripLastSegment(path string) string {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return "/"
	}
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// matchLocation finds the longest registered prefix of uriPath, stripping one
// trailing segment at a time until a key in locs matches or "/" is reached.
func matchLocation(locs map[string]config.Location, uriPath string) (config.Location, bool) {
	candidate := uriPath
	for {
		if loc, ok := locs[candidate]; ok {
			return loc, true
		}
		if candidate == "/" {
			return config.Location{}, false
		}
		candidate = stripLastSegment(candidate)
	}
}

func effectiveRoot(vs *config.VirtualServer, loc config.Location, haveLoc bool) string {
	if haveLoc && loc.RootOverride != "" {
		return loc.RootOverride
	}
	return vs.RootPath
}

func effectiveIndex(vs *config.VirtualServer, loc config.Location, haveLoc bool) string {
	if haveLoc && loc.IndexOverride != "" {
		return loc.IndexOverride
	}
	return vs.DefaultIndexFilename
}

func effectiveAutoindex(vs *config.VirtualServer, loc config.Location, haveLoc bool) bool {
	if haveLoc && loc.AutoindexOverride != nil {
		return *loc.AutoindexOverride
	}
	return vs.Autoindex
}

func effectiveMaxBody(vs *config.VirtualServer, loc config.Location, haveLoc bool) int64 {
	if haveLoc && loc.MaxBodyBytesOverride > 0 {
		return loc.MaxBodyBytesOverride
	}
	return vs.MaxBodyBytes
}

// defaultAllowedMethods is what an unrouted path permits — safe methods only
// (spec section 4.4: "safe methods are always permitted on unrouted paths").
var defaultAllowedMethods = map[string]bool{"GET": true, "HEAD": true, "OPTIONS": true}

// Dispatch runs the fixed eleven-step order against req and returns the
// Result to serialize and write back, or, for a cgi-bin request, a started
// Invocation the caller polls to completion itself. The matched location's
// body-size limit is checked first (step 1); a non-zero req.ParseStatus is
// returned next (step 2), before any handler runs. An unrecognized method is
// answered 501.
func Dispatch(vs *config.VirtualServer, req *httpparse.Request, ctx Context) *Result {
	loc, haveLoc := matchLocation(vs.Locations, req.URIPath)

	maxBody := effectiveMaxBody(vs, loc, haveLoc)
	if maxBody > 0 && req.ContentLength > maxBody {
		return resolved(response.Error(413, "request body exceeds the configured limit"))
	}

	if req.ParseStatus != 0 {
		return resolved(response.Error(req.ParseStatus, ""))
	}

	if req.Method == httpparse.Unknown {
		return resolved(response.Error(501, "method not implemented"))
	}

	if haveLoc && loc.RedirectStatus != 0 {
		return resolved(response.Redirect(loc.RedirectTarget, loc.RedirectStatus))
	}

	allowed := defaultAllowedMethods
	if haveLoc && len(loc.AllowedMethods) > 0 {
		allowed = loc.AllowedMethods
	}

	// OPTIONS is answered for every location whatever its allow_methods list
	// (spec section 4.4 step 5), and HEAD passes the gate wherever GET does
	// (step 10): config/parse.go stores only the literal allow_methods tokens,
	// so the gate below must not reject them outright.
	if req.Method == httpparse.OPTIONS {
		return resolved(response.Options(allowed))
	}
	permitted := allowed[string(req.Method)] || (req.Method == httpparse.HEAD && allowed["GET"])
	if !permitted {
		return resolved(response.Error(405, "method not allowed for this location"))
	}

	root := effectiveRoot(vs, loc, haveLoc)

	if strings.HasPrefix(req.URIPath, "/cgi-bin/") {
		return dispatchCGI(vs, req, ctx, root)
	}

	if req.Method == httpparse.POST && haveLoc && loc.UploadDirectory != "" {
		if !upload.Complete(req.Body, boundaryOf(req)) {
			return resolved(response.Error(400, "incomplete multipart body"))
		}
		return resolved(upload.Handle(loc.UploadDirectory, headerOrEmpty(req, "Content-Type"), req.Body, maxBody, ctx.Now))
	}

	if req.Method == httpparse.PUT {
		created, err := static.Put(root, req.URIPath, req.Body)
		if err != nil {
			return resolved(response.Error(500, "could not write file"))
		}
		if created {
			r := response.Message(201, "Created", nil)
			r.SetHeader("Location", req.URIPath)
			return resolved(r)
		}
		return resolved(response.Message(200, "OK", nil))
	}

	if req.Method == httpparse.DELETE {
		if err := static.Delete(root, req.URIPath); err != nil {
			return resolved(response.Error(404, "file not found"))
		}
		return resolved(response.Message(200, "OK", nil))
	}

	index := effectiveIndex(vs, loc, haveLoc)
	autoindex := effectiveAutoindex(vs, loc, haveLoc)

	if req.Method == httpparse.HEAD {
		resp := static.Serve(root, req.URIPath, index, autoindex, static.DefaultPathSecurityConfig())
		return resolved(resp.StripBodyForHead())
	}

	return resolved(static.Serve(root, req.URIPath, index, autoindex, static.DefaultPathSecurityConfig()))
}

func headerOrEmpty(req *httpparse.Request, key string) string {
	v, _ := req.Headers.Get(key)
	return v
}

func boundaryOf(req *httpparse.Request) string {
	b, _ := upload.ExtractBoundary(headerOrEmpty(req, "Content-Type"))
	return b
}

// dispatchCGI implements step 6: hand off to the CGI Supervisor with script
// path root+uri. It only starts the child; the returned Result carries the
// running Invocation so the caller's event loop drains it via StdoutFD()
// instead of this call blocking on the child's runtime (spec section 4.7).
func dispatchCGI(vs *config.VirtualServer, req *httpparse.Request, ctx Context, root string) *Result {
	scriptPath, ok := static.Resolve(root, req.URIPath)
	if !ok {
		return resolved(response.Error(403, "Forbidden"))
	}
	ext := strings.ToLower(filepath.Ext(scriptPath))

	interpreter, ok := cgi.FindInterpreter(ext)
	if !ok {
		return resolved(cgi.UnknownInterpreterResponse(ext))
	}

	env := cgi.BuildEnv(req, cgi.EnvParams{
		ScriptName:     req.URIPath,
		ScriptFilename: scriptPath,
		DocumentRoot:   root,
		ServerName:     ctx.ServerName,
		ServerPort:     ctx.ServerPort,
		ServerSoftware: ctx.ServerSoftware,
	})

	inv, err := cgi.Start(interpreter, scriptPath, env, req.Body)
	if err != nil {
		return resolved(response.Error(500, fmt.Sprintf("could not start CGI process: %v", err)))
	}

	return &Result{CGI: inv}
}
