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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/nabbar/webservd/internal/srverr"
)

// Parse reads and validates a configuration file, producing a Registry. Errors are
// returned rather than panicking; the caller decides whether to exit (first load)
// or keep the previous Registry (hot reload, see Watcher).
func Parse(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, srverr.Wrap(srverr.CodeConfigNotFound, fmt.Sprintf("read %s", path), err)
	}
	return ParseString(string(raw))
}

// ParseString parses already-read configuration text; split out so tests don't need
// a filesystem fixture for every case.
func ParseString(src string) (*Registry, error) {
	toks := scan(src)
	blocks, err := parseBlocks(toks)
	if err != nil {
		return nil, srverr.Wrap(srverr.CodeConfigInvalid, "parse blocks", err)
	}

	reg := &Registry{}
	for _, b := range blocks {
		if b.directive {
			return nil, srverr.New(srverr.CodeConfigInvalid, fmt.Sprintf("directive %q not allowed outside any server block", b.name))
		}
		if b.name != "server" {
			return nil, srverr.New(srverr.CodeConfigInvalid, fmt.Sprintf("unknown top-level block %q", b.name))
		}
		vs, err := parseServer(b)
		if err != nil {
			return nil, srverr.Wrap(srverr.CodeConfigInvalid, "parse server block", err)
		}
		reg.Servers = append(reg.Servers, *vs)
	}

	if len(reg.Servers) == 0 {
		return nil, srverr.New(srverr.CodeConfigInvalid, "no server blocks found")
	}

	if err := validateRegistry(reg); err != nil {
		return nil, srverr.Wrap(srverr.CodeConfigInvalid, "validate registry", err)
	}
	return reg, nil
}

// serverScalars receives the single-valued server directives before mapstructure
// coerces them (string listen port -> int, etc) onto VirtualServer.
type serverScalars struct {
	ListenPort           int    `mapstructure:"listen"`
	ServerName           string `mapstructure:"server_name"`
	RootPath             string `mapstructure:"root"`
	DefaultIndexFilename string `mapstructure:"index"`
}

func parseServer(b *block) (*VirtualServer, error) {
	vs := &VirtualServer{
		DefaultIndexFilename: DefaultIndexFilename,
		MaxBodyBytes:         DefaultMaxBodyBytes,
		ErrorPages:           map[int]string{},
		Locations:            map[string]Location{},
	}

	raw := map[string]string{}

	for _, d := range b.children {
		if !d.directive {
			if d.name != "location" {
				return nil, fmt.Errorf("config: unknown block %q inside server", d.name)
			}
			loc, err := parseLocation(d, vs)
			if err != nil {
				return nil, err
			}
			vs.Locations[loc.Prefix] = *loc
			continue
		}

		switch d.name {
		case "listen", "root", "index":
			if len(d.args) != 1 {
				return nil, fmt.Errorf("config: %s takes exactly one argument", d.name)
			}
			raw[d.name] = d.args[0]
		case "server_name":
			raw[d.name] = strings.Join(d.args, " ")
		case "autoindex":
			on, err := parseOnOff(d.args)
			if err != nil {
				return nil, err
			}
			vs.Autoindex = on
		case "client_max_body_size":
			n, err := parseSize(d.args)
			if err != nil {
				return nil, err
			}
			vs.MaxBodyBytes = n
		case "error_page":
			if len(d.args) != 2 {
				return nil, fmt.Errorf("config: error_page takes <code> <path>")
			}
			code, err := strconv.Atoi(d.args[0])
			if err != nil {
				return nil, fmt.Errorf("config: invalid error_page code %q: %w", d.args[0], err)
			}
			vs.ErrorPages[code] = d.args[1]
		default:
			return nil, fmt.Errorf("config: unknown directive %q inside server", d.name)
		}
	}

	scalars := serverScalars{
		ListenPort:           vs.ListenPort,
		ServerName:           vs.ServerName,
		RootPath:             vs.RootPath,
		DefaultIndexFilename: vs.DefaultIndexFilename,
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &scalars,
	})
	if err != nil {
		return nil, fmt.Errorf("config: building decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("config: decoding server directives: %w", err)
	}
	vs.ListenPort = scalars.ListenPort
	vs.ServerName = scalars.ServerName
	vs.RootPath = scalars.RootPath
	vs.DefaultIndexFilename = scalars.DefaultIndexFilename

	return vs, nil
}

func parseLocation(b *block, vs *VirtualServer) (*Location, error) {
	if len(b.args) != 1 {
		return nil, fmt.Errorf("config: location takes exactly one prefix")
	}
	loc := &Location{
		Prefix:         b.args[0],
		AllowedMethods: map[string]bool{},
		CGIExtensions:  map[string]bool{},
	}

	for _, d := range b.children {
		if !d.directive {
			return nil, fmt.Errorf("config: nested block %q not allowed inside location", d.name)
		}
		switch d.name {
		case "allow_methods":
			for _, m := range d.args {
				loc.AllowedMethods[strings.ToUpper(m)] = true
			}
		case "root":
			if len(d.args) != 1 {
				return nil, fmt.Errorf("config: root takes exactly one path")
			}
			loc.RootOverride = d.args[0]
		case "index":
			if len(d.args) != 1 {
				return nil, fmt.Errorf("config: index takes exactly one filename")
			}
			loc.IndexOverride = d.args[0]
		case "autoindex":
			on, err := parseOnOff(d.args)
			if err != nil {
				return nil, err
			}
			loc.AutoindexOverride = &on
		case "upload_pass":
			if len(d.args) != 1 {
				return nil, fmt.Errorf("config: upload_pass takes exactly one path")
			}
			loc.UploadDirectory = d.args[0]
		case "cgi_extension":
			for _, e := range d.args {
				loc.CGIExtensions[e] = true
			}
		case "return":
			if len(d.args) != 2 {
				return nil, fmt.Errorf("config: return takes <code> <target>")
			}
			code, err := strconv.Atoi(d.args[0])
			if err != nil {
				return nil, fmt.Errorf("config: invalid return code %q: %w", d.args[0], err)
			}
			loc.RedirectStatus = code
			loc.RedirectTarget = d.args[1]
		case "client_max_body_size":
			n, err := parseSize(d.args)
			if err != nil {
				return nil, err
			}
			loc.MaxBodyBytesOverride = n
		default:
			return nil, fmt.Errorf("config: unknown directive %q inside location", d.name)
		}
	}

	return loc, nil
}

func parseOnOff(args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("config: expected exactly one on|off argument")
	}
	switch args[0] {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("config: expected on|off, got %q", args[0])
	}
}

func parseSize(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("config: expected exactly one size argument")
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid size %q: %w", args[0], err)
	}
	if n < 0 {
		return 0, fmt.Errorf("config: size cannot be negative: %d", n)
	}
	return n, nil
}

var structValidator = validator.New()

func validateRegistry(reg *Registry) error {
	seenPort := map[int]bool{}
	for i := range reg.Servers {
		vs := &reg.Servers[i]
		if err := structValidator.Struct(vs); err != nil {
			return fmt.Errorf("config: server on port %d: %w", vs.ListenPort, err)
		}
		seenPort[vs.ListenPort] = true

		for prefix, loc := range vs.Locations {
			if loc.RedirectStatus != 0 {
				if err := structValidator.Struct(&loc); err != nil {
					return fmt.Errorf("config: location %q: %w", prefix, err)
				}
			}
		}
	}
	return nil
}
