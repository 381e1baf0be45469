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

package metrics_test

import (
	"testing"

	"github.com/nabbar/webservd/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Metrics Suite")
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

var _ = Describe("Registry", func() {
	It("registers every collector on a fresh registry without panicking", func() {
		reg := prometheus.NewRegistry()
		Expect(func() { metrics.New(reg) }).NotTo(Panic())
	})

	It("starts counters at zero and lets them be incremented", func() {
		reg := prometheus.NewRegistry()
		r := metrics.New(reg)
		Expect(counterValue(r.ConnectionsAccepted)).To(Equal(0.0))
		r.ConnectionsAccepted.Inc()
		Expect(counterValue(r.ConnectionsAccepted)).To(Equal(1.0))
	})

	It("labels closed-connection reasons independently", func() {
		reg := prometheus.NewRegistry()
		r := metrics.New(reg)
		r.ConnectionsClosed.WithLabelValues("idle_timeout").Inc()
		r.ConnectionsClosed.WithLabelValues("client_reset").Inc()
		r.ConnectionsClosed.WithLabelValues("client_reset").Inc()

		Expect(counterValue(r.ConnectionsClosed.WithLabelValues("idle_timeout"))).To(Equal(1.0))
		Expect(counterValue(r.ConnectionsClosed.WithLabelValues("client_reset"))).To(Equal(2.0))
	})

	It("reports a snapshot reflecting collector updates", func() {
		reg := prometheus.NewRegistry()
		r := metrics.New(reg)

		r.ConnectionsAccepted.Inc()
		r.ConnectionsActive.Set(3)
		r.ResponseBytes.Add(128)
		r.SessionsActive.Set(2)

		snap := r.Snapshot()
		Expect(snap.ConnectionsAccepted).To(Equal(1.0))
		Expect(snap.ConnectionsActive).To(Equal(3.0))
		Expect(snap.ResponseBytes).To(Equal(128.0))
		Expect(snap.SessionsActive).To(Equal(2.0))
	})
})
