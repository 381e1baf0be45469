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

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nabbar/webservd/internal/config"
	"github.com/nabbar/webservd/internal/logger"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMain_(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Webservd Command Suite")
}

var _ = Describe("newRootCommand", func() {
	It("defaults config to webservd.conf", func() {
		cmd := newRootCommand()
		val, err := cmd.Flags().GetString("config")
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(Equal("webservd.conf"))
	})

	It("defaults the metrics snapshot interval to one minute", func() {
		cmd := newRootCommand()
		val, err := cmd.Flags().GetDuration("metrics-interval")
		Expect(err).NotTo(HaveOccurred())
		Expect(val).To(Equal(time.Minute))
	})
})

var _ = Describe("dynamicHandler", func() {
	It("resolves the virtual server bound to a listening port", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "webservd.conf")
		Expect(os.WriteFile(path, []byte("server {\n  listen 8080;\n  root /var/www;\n}\n"), 0o644)).To(Succeed())

		w, err := config.NewWatcher(path, logger.Discard())
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = w.Close() }()

		h := dynamicHandler{watcher: w}
		vs := h.VirtualServerFor(8080)
		Expect(vs).NotTo(BeNil())
		Expect(vs.RootPath).To(Equal("/var/www"))

		Expect(h.VirtualServerFor(9999)).To(BeNil())
	})
})
