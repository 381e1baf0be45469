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

package config_test

import (
	"github.com/nabbar/webservd/internal/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const minimalConfig = `
server {
    listen 8080;
    server_name example.test;
    root ./www;
    index index.html;
    autoindex off;
    client_max_body_size 1048576;
    error_page 404 ./www/404.html;

    location /upload {
        allow_methods POST DELETE;
        upload_pass ./uploads;
        client_max_body_size 2097152;
    }

    location /cgi-bin {
        allow_methods GET POST;
        cgi_extension .py .php;
    }

    location /old {
        return 301 /new;
    }
}
`

var _ = Describe("ParseString", func() {
	It("parses a minimal single-server configuration", func() {
		reg, err := config.ParseString(minimalConfig)
		Expect(err).ToNot(HaveOccurred())
		Expect(reg.Servers).To(HaveLen(1))

		vs := reg.Servers[0]
		Expect(vs.ListenPort).To(Equal(8080))
		Expect(vs.ServerName).To(Equal("example.test"))
		Expect(vs.RootPath).To(Equal("./www"))
		Expect(vs.Autoindex).To(BeFalse())
		Expect(vs.MaxBodyBytes).To(Equal(int64(1048576)))
		Expect(vs.ErrorPages[404]).To(Equal("./www/404.html"))

		up := vs.Locations["/upload"]
		Expect(up.UploadDirectory).To(Equal("./uploads"))
		Expect(up.AllowedMethods["POST"]).To(BeTrue())
		Expect(up.AllowedMethods["DELETE"]).To(BeTrue())
		Expect(up.MaxBodyBytesOverride).To(Equal(int64(2097152)))

		cgi := vs.Locations["/cgi-bin"]
		Expect(cgi.CGIExtensions[".py"]).To(BeTrue())
		Expect(cgi.CGIExtensions[".php"]).To(BeTrue())

		old := vs.Locations["/old"]
		Expect(old.RedirectStatus).To(Equal(301))
		Expect(old.RedirectTarget).To(Equal("/new"))
	})

	It("rejects a server block missing a root", func() {
		_, err := config.ParseString(`server { listen 80; }`)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a redirect status outside the allowed set", func() {
		_, err := config.ParseString(`
server {
    listen 80;
    root ./www;
    location /x {
        return 418 /teapot;
    }
}
`)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown top-level directive", func() {
		_, err := config.ParseString(`listen 80;`)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown directive inside a server block", func() {
		_, err := config.ParseString(`
server {
    listen 80;
    root ./www;
    bogus_directive 1;
}
`)
		Expect(err).To(HaveOccurred())
	})

	It("applies default index and max body size when absent", func() {
		reg, err := config.ParseString(`
server {
    listen 80;
    root ./www;
}
`)
		Expect(err).ToNot(HaveOccurred())
		vs := reg.Servers[0]
		Expect(vs.DefaultIndexFilename).To(Equal(config.DefaultIndexFilename))
		Expect(vs.MaxBodyBytes).To(Equal(config.DefaultMaxBodyBytes))
	})
})

var _ = Describe("Registry", func() {
	It("groups servers by listen port and lists distinct ports", func() {
		reg, err := config.ParseString(`
server { listen 80; root ./a; }
server { listen 80; root ./b; server_name second; }
server { listen 443; root ./c; }
`)
		Expect(err).ToNot(HaveOccurred())
		Expect(reg.Ports()).To(ConsistOf(80, 443))
		Expect(reg.ByPort(80)).To(HaveLen(2))
		Expect(reg.ByPort(443)).To(HaveLen(1))
		Expect(reg.ByPort(9999)).To(BeEmpty())
	})
})
