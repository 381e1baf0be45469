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

package cgi_test

import (
	"os"
	"testing"
	"time"

	"github.com/nabbar/webservd/internal/cgi"
	"github.com/nabbar/webservd/internal/httpparse"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCGI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CGI Suite")
}

// drain polls an Invocation until Drain reports EOF or the deadline elapses.
func drain(inv *cgi.Invocation) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		done, err := inv.Drain()
		Expect(err).NotTo(HaveOccurred())
		if done {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

var _ = Describe("FindInterpreter", func() {
	It("resolves a known extension to an existing binary", func() {
		path, ok := cgi.FindInterpreter(".sh")
		Expect(ok).To(BeTrue())
		_, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports not-found for an unmapped extension", func() {
		_, ok := cgi.FindInterpreter(".xyz")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("BuildEnv", func() {
	It("sets the fixed CGI/1.1 variables and forwards headers as HTTP_*", func() {
		req := &httpparse.Request{
			Method:        httpparse.GET,
			URIPath:       "/cgi-bin/hello.py",
			QueryString:   "name=world",
			ContentLength: 0,
		}
		req.Headers.Add("User-Agent", "webservd-test")

		env := cgi.BuildEnv(req, cgi.EnvParams{
			ScriptName:     "/cgi-bin/hello.py",
			ScriptFilename: "/srv/www/cgi-bin/hello.py",
			DocumentRoot:   "/srv/www",
			ServerName:     "localhost",
			ServerPort:     8080,
			ServerSoftware: "webservd/1.0",
		})

		Expect(env).To(ContainElement("REQUEST_METHOD=GET"))
		Expect(env).To(ContainElement("GATEWAY_INTERFACE=CGI/1.1"))
		Expect(env).To(ContainElement("SERVER_PROTOCOL=HTTP/1.1"))
		Expect(env).To(ContainElement("QUERY_STRING=name=world"))
		Expect(env).To(ContainElement("SCRIPT_FILENAME=/srv/www/cgi-bin/hello.py"))
		Expect(env).To(ContainElement("PATH_INFO="))
		Expect(env).To(ContainElement("HTTP_USER_AGENT=webservd-test"))
	})

	It("strips shell metacharacters from header values before exporting them", func() {
		req := &httpparse.Request{Method: httpparse.GET}
		req.Headers.Add("X-Evil", "$(rm -rf /)`oops`")

		env := cgi.BuildEnv(req, cgi.EnvParams{})

		var found string
		for _, kv := range env {
			if len(kv) > len("HTTP_X_EVIL=") && kv[:len("HTTP_X_EVIL=")] == "HTTP_X_EVIL=" {
				found = kv
			}
		}
		Expect(found).NotTo(BeEmpty())
		Expect(found).NotTo(ContainSubstring("$("))
		Expect(found).NotTo(ContainSubstring("`"))
	})
})

var _ = Describe("ParseOutput", func() {
	It("extracts a Status header and leaves the rest as response headers", func() {
		raw := []byte("Status: 302 Found\r\nLocation: /elsewhere\r\n\r\nmoved")
		resp := cgi.ParseOutput(raw)
		Expect(resp.StatusCode).To(Equal(302))
		loc, ok := resp.Header("Location")
		Expect(ok).To(BeTrue())
		Expect(loc).To(Equal("/elsewhere"))
		Expect(resp.Body).To(Equal([]byte("moved")))
	})

	It("defaults to 200 and keeps the script's Content-Type when no Status header is present", func() {
		raw := []byte("Content-Type: text/plain\r\n\r\nhello")
		resp := cgi.ParseOutput(raw)
		Expect(resp.StatusCode).To(Equal(200))
		ct, _ := resp.Header("Content-Type")
		Expect(ct).To(Equal("text/plain"))
		Expect(resp.Body).To(Equal([]byte("hello")))
	})

	It("treats output with no blank-line separator as an entire HTML body", func() {
		raw := []byte("<html>no headers here</html>")
		resp := cgi.ParseOutput(raw)
		Expect(resp.StatusCode).To(Equal(200))
		ct, _ := resp.Header("Content-Type")
		Expect(ct).To(Equal("text/html"))
		Expect(resp.Body).To(Equal(raw))
	})
})

var _ = Describe("Start and Drain", func() {
	It("round-trips a script's stdin to its stdout through the non-blocking pipe", func() {
		catPath, err := os.Stat("/bin/cat")
		if err != nil || catPath.IsDir() {
			Skip("/bin/cat not available in this environment")
		}

		inv, err := cgi.Start("/bin/cat", "", []string{}, []byte("Content-Type: text/plain\r\n\r\necho-me"))
		Expect(err).NotTo(HaveOccurred())

		Expect(drain(inv)).To(BeTrue())
		Expect(inv.Wait()).To(Succeed())

		resp := cgi.ParseOutput(inv.Output())
		ct, _ := resp.Header("Content-Type")
		Expect(ct).To(Equal("text/plain"))
		Expect(resp.Body).To(Equal([]byte("echo-me")))
	})

	It("does not report its deadline exceeded immediately after starting", func() {
		if _, err := os.Stat("/bin/cat"); err != nil {
			Skip("/bin/cat not available in this environment")
		}
		inv, err := cgi.Start("/bin/cat", "", []string{}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(inv.DeadlineExceeded(time.Now())).To(BeFalse())
		drain(inv)
		_ = inv.Wait()
	})
})

var _ = Describe("DefaultDeadline", func() {
	It("is a thirty second budget", func() {
		Expect(cgi.DefaultDeadline).To(Equal(30 * time.Second))
	})
})
