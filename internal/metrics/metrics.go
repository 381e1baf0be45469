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

// Package metrics exposes the reactor/connection/CGI counters and gauges an
// operator needs to watch this process the way the teacher's httpserver monitor
// watches a net/http server — bindable address up, request throughput, CGI
// subprocess health — except collected as first-class prometheus instruments
// instead of a custom health-check struct, since a real Prometheus collector is
// the thing this repository's domain dependency set actually wires.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry bundles every collector this server registers. A nil *Registry is not
// usable; construct with New.
type Registry struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	ConnectionsClosed   *prometheus.CounterVec

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ResponseBytes    prometheus.Counter

	CGIInvocations prometheus.Counter
	CGIFailures    prometheus.Counter
	CGIActive      prometheus.Gauge

	UploadBytesReceived prometheus.Counter

	SessionsActive prometheus.Gauge
}

// New creates a Registry and registers every collector on reg. Passing
// prometheus.NewRegistry() keeps this server's metrics isolated from the global
// default registry, which matters when multiple virtual servers share a process.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webservd",
			Subsystem: "reactor",
			Name:      "connections_accepted_total",
			Help:      "Total TCP connections accepted across all listeners.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webservd",
			Subsystem: "reactor",
			Name:      "connections_active",
			Help:      "Connections currently tracked in the connection table.",
		}),
		ConnectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webservd",
			Subsystem: "reactor",
			Name:      "connections_closed_total",
			Help:      "Closed connections, labeled by reason.",
		}, []string{"reason"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webservd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests dispatched, labeled by method and response status.",
		}, []string{"method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "webservd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time from request-line parse to response fully written.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ResponseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webservd",
			Subsystem: "http",
			Name:      "response_bytes_total",
			Help:      "Total bytes written to clients.",
		}),
		CGIInvocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webservd",
			Subsystem: "cgi",
			Name:      "invocations_total",
			Help:      "CGI subprocesses launched.",
		}),
		CGIFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webservd",
			Subsystem: "cgi",
			Name:      "failures_total",
			Help:      "CGI subprocesses that exited non-zero, timed out, or whose output failed to parse.",
		}),
		CGIActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webservd",
			Subsystem: "cgi",
			Name:      "active",
			Help:      "CGI subprocesses currently running.",
		}),
		UploadBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webservd",
			Subsystem: "upload",
			Name:      "bytes_received_total",
			Help:      "Bytes written to disk by multipart upload handling.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webservd",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held in the bonus session store.",
		}),
	}

	reg.MustRegister(
		r.ConnectionsAccepted,
		r.ConnectionsActive,
		r.ConnectionsClosed,
		r.RequestsTotal,
		r.RequestDuration,
		r.ResponseBytes,
		r.CGIInvocations,
		r.CGIFailures,
		r.CGIActive,
		r.UploadBytesReceived,
		r.SessionsActive,
	)

	return r
}

// Snapshot is a point-in-time read of the counters and gauges an operator cares
// about most, as a plain Go value rather than a scrape target — there is no
// admin listener class in this server's VirtualServer model, so this is read
// straight off the collectors and logged or dumped by the CLI on demand instead.
type Snapshot struct {
	ConnectionsAccepted float64
	ConnectionsActive   float64
	ResponseBytes       float64
	CGIInvocations      float64
	CGIFailures         float64
	CGIActive           float64
	UploadBytesReceived float64
	SessionsActive      float64
}

func gaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	_ = g.Write(m)
	return m.GetGauge().GetValue()
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

// Snapshot reads every scalar collector's current value.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsAccepted: counterValue(r.ConnectionsAccepted),
		ConnectionsActive:   gaugeValue(r.ConnectionsActive),
		ResponseBytes:       counterValue(r.ResponseBytes),
		CGIInvocations:      counterValue(r.CGIInvocations),
		CGIFailures:         counterValue(r.CGIFailures),
		CGIActive:           gaugeValue(r.CGIActive),
		UploadBytesReceived: counterValue(r.UploadBytesReceived),
		SessionsActive:      gaugeValue(r.SessionsActive),
	}
}
