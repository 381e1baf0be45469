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

package upload_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nabbar/webservd/internal/upload"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestUpload(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Upload Suite")
}

const boundary = "XYZ123"

func multipartBody(filename string, content string) []byte {
	return []byte(
		"--" + boundary + "\r\n" +
			`Content-Disposition: form-data; name="file"; filename="` + filename + `"` + "\r\n" +
			"Content-Type: application/octet-stream\r\n" +
			"\r\n" +
			content + "\r\n" +
			"--" + boundary + "--\r\n",
	)
}

var _ = Describe("ExtractBoundary", func() {
	It("extracts a bare boundary parameter", func() {
		b, ok := upload.ExtractBoundary(`multipart/form-data; boundary=XYZ123`)
		Expect(ok).To(BeTrue())
		Expect(b).To(Equal("XYZ123"))
	})

	It("rejects a non-multipart content type", func() {
		_, ok := upload.ExtractBoundary("application/json")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Complete", func() {
	It("reports true once the closing boundary has arrived", func() {
		body := multipartBody("a.txt", "hello")
		Expect(upload.Complete(body, boundary)).To(BeTrue())
	})

	It("reports false while only the opening boundary is present", func() {
		body := []byte("--" + boundary + "\r\nContent-Disposition: form-data; name=\"file\"\r\n\r\npart")
		Expect(upload.Complete(body, boundary)).To(BeFalse())
	})
})

var _ = Describe("Handle", func() {
	It("writes the first part to the upload directory and returns 201", func() {
		dir := GinkgoT().TempDir()
		body := multipartBody("report.txt", "hello world")
		resp := upload.Handle(dir, "multipart/form-data; boundary="+boundary, body, 0, time.Unix(1000, 0))
		Expect(resp.StatusCode).To(Equal(201))

		data, err := os.ReadFile(filepath.Join(dir, "report.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("hello world"))
	})

	It("sanitizes a filename carrying path components and traversal", func() {
		dir := GinkgoT().TempDir()
		body := multipartBody("../../etc/passwd.txt", "x")
		resp := upload.Handle(dir, "multipart/form-data; boundary="+boundary, body, 0, time.Unix(1000, 0))
		Expect(resp.StatusCode).To(Equal(201))

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Name()).NotTo(ContainSubstring(".."))
		Expect(entries[0].Name()).NotTo(ContainSubstring("/"))
	})

	It("rejects an extension outside the allow-list", func() {
		dir := GinkgoT().TempDir()
		body := multipartBody("script.exe", "x")
		resp := upload.Handle(dir, "multipart/form-data; boundary="+boundary, body, 0, time.Unix(1000, 0))
		Expect(resp.StatusCode).To(Equal(403))
	})

	It("rejects a body larger than the configured limit", func() {
		dir := GinkgoT().TempDir()
		body := multipartBody("big.txt", "0123456789")
		resp := upload.Handle(dir, "multipart/form-data; boundary="+boundary, body, 5, time.Unix(1000, 0))
		Expect(resp.StatusCode).To(Equal(413))

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("appends a _copy_<timestamp> suffix on a filename collision", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "dup.txt"), []byte("old"), 0o644)).To(Succeed())

		body := multipartBody("dup.txt", "new")
		resp := upload.Handle(dir, "multipart/form-data; boundary="+boundary, body, 0, time.Unix(42, 0))
		Expect(resp.StatusCode).To(Equal(201))

		data, err := os.ReadFile(filepath.Join(dir, "dup_copy_42.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("new"))
	})

	It("rejects a request whose Content-Type is not multipart", func() {
		dir := GinkgoT().TempDir()
		resp := upload.Handle(dir, "application/json", []byte("{}"), 0, time.Unix(1000, 0))
		Expect(resp.StatusCode).To(Equal(400))
	})
})
