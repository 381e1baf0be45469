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

// Package config parses the nginx-style server/location configuration file (spec
// section 6) into a validated list of VirtualServer records. It is the only
// collaborator in webservd whose grammar is bespoke to this project; everything
// else downstream consumes plain Go structs.
package config

// Location is a per-URI-prefix override within a VirtualServer.
type Location struct {
	Prefix               string          `mapstructure:"-" validate:"required"`
	AllowedMethods       map[string]bool `mapstructure:"-"`
	RootOverride         string          `mapstructure:"root"`
	IndexOverride        string          `mapstructure:"index"`
	AutoindexOverride    *bool           `mapstructure:"autoindex"`
	UploadDirectory      string          `mapstructure:"upload_pass"`
	CGIExtensions        map[string]bool `mapstructure:"-"`
	RedirectTarget       string          `mapstructure:"-"`
	RedirectStatus       int             `mapstructure:"-" validate:"omitempty,oneof=301 302 307 308"`
	MaxBodyBytesOverride int64           `mapstructure:"client_max_body_size"`
}

// VirtualServer is one `server { }` block: immutable after startup.
type VirtualServer struct {
	ListenPort           int                 `validate:"required,min=1,max=65535"`
	ServerName           string              `mapstructure:"server_name"`
	RootPath             string              `mapstructure:"root" validate:"required"`
	DefaultIndexFilename string              `mapstructure:"index"`
	Autoindex            bool                `mapstructure:"autoindex"`
	MaxBodyBytes         int64               `mapstructure:"client_max_body_size"`
	ErrorPages           map[int]string      `mapstructure:"-"`
	Locations            map[string]Location `mapstructure:"-"`
}

// Registry is the complete, validated result of parsing one configuration file:
// every virtual server, indexed both by declaration order and by listening port.
type Registry struct {
	Servers []VirtualServer
}

// ByPort returns every VirtualServer bound to the given listening port. Several
// servers may share a port when distinguished only by server_name (not dispatched
// on in this implementation — the first match wins, matching a single-SNI-less
// plain HTTP/1.0 deployment).
func (r *Registry) ByPort(port int) []*VirtualServer {
	var out []*VirtualServer
	for i := range r.Servers {
		if r.Servers[i].ListenPort == port {
			out = append(out, &r.Servers[i])
		}
	}
	return out
}

// Ports returns the distinct set of ports this registry must listen on.
func (r *Registry) Ports() []int {
	seen := make(map[int]bool)
	var out []int
	for _, s := range r.Servers {
		if !seen[s.ListenPort] {
			seen[s.ListenPort] = true
			out = append(out, s.ListenPort)
		}
	}
	return out
}

const (
	DefaultMaxBodyBytes  = int64(1 << 20) // 1 MiB
	DefaultIndexFilename = "index.html"
)
