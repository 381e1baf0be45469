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

// Command webservd is the origin server binary: it parses a configuration file,
// binds one listening socket per declared port, and runs the reactor until
// interrupted.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nabbar/webservd/internal/config"
	"github.com/nabbar/webservd/internal/logger"
	"github.com/nabbar/webservd/internal/metrics"
	"github.com/nabbar/webservd/internal/reactor"
	"github.com/nabbar/webservd/internal/session"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "webservd [config-file]",
		Short: "HTTP/1.1 origin server with static files, directory listings, and CGI",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := v.GetString("config")
			if len(args) == 1 {
				configPath = args[0]
			}
			return run(configPath, v)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "webservd.conf", "path to the server configuration file")
	flags.String("log-level", "info", "panic, fatal, error, warn, info, or debug")
	flags.Duration("session-ttl", 30*time.Minute, "session bag eviction timeout")
	flags.Duration("metrics-interval", time.Minute, "how often to log a metrics snapshot")

	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("log-level", flags.Lookup("log-level"))
	_ = v.BindPFlag("session-ttl", flags.Lookup("session-ttl"))
	_ = v.BindPFlag("metrics-interval", flags.Lookup("metrics-interval"))
	v.SetEnvPrefix("WEBSERVD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

// dynamicHandler resolves virtual servers against whatever Registry the Watcher
// currently holds, so a configuration reload takes effect on the very next
// dispatch without restarting the reactor or its listeners.
type dynamicHandler struct {
	watcher *config.Watcher
}

func (h dynamicHandler) VirtualServerFor(port int) *config.VirtualServer {
	servers := h.watcher.Current().ByPort(port)
	if len(servers) == 0 {
		return nil
	}
	return servers[0]
}

func run(configPath string, v *viper.Viper) error {
	log := logger.New()
	log.SetLevel(logger.ParseLevel(v.GetString("log-level")))

	watcher, err := config.NewWatcher(configPath, log)
	if err != nil {
		return fmt.Errorf("webservd: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	promReg := prometheus.NewRegistry()
	metricsReg := metrics.New(promReg)

	sessions := session.New(v.GetDuration("session-ttl"))

	re, err := reactor.New(dynamicHandler{watcher: watcher}, log, metricsReg)
	if err != nil {
		return fmt.Errorf("webservd: create reactor: %w", err)
	}

	ports := watcher.Current().Ports()
	if len(ports) == 0 {
		return fmt.Errorf("webservd: configuration declares no listening ports")
	}

	listeners := make([]*net.TCPListener, 0, len(ports))
	defer func() {
		for _, ln := range listeners {
			_ = ln.Close()
		}
	}()

	for _, port := range ports {
		ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
		if err != nil {
			return fmt.Errorf("webservd: listen on port %d: %w", port, err)
		}
		listeners = append(listeners, ln)

		f, err := ln.File()
		if err != nil {
			return fmt.Errorf("webservd: dup listener fd for port %d: %w", port, err)
		}
		if err := re.AddListener(int(f.Fd()), port); err != nil {
			return fmt.Errorf("webservd: register listener for port %d: %w", port, err)
		}
		log.WithFields(logger.NewFields().Add("port", port)).Info("listening")
	}

	runErr := make(chan error, 1)
	go func() { runErr <- re.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	reapTicker := time.NewTicker(time.Minute)
	defer reapTicker.Stop()

	metricsTicker := time.NewTicker(v.GetDuration("metrics-interval"))
	defer metricsTicker.Stop()

	for {
		select {
		case sig := <-sigCh:
			log.WithFields(logger.NewFields().Add("signal", sig.String())).Info("shutting down")
			re.Stop()
			<-runErr
			re.Close()
			return nil
		case err := <-runErr:
			re.Close()
			return err
		case now := <-reapTicker.C:
			if evicted := sessions.Sweep(now); evicted > 0 {
				log.WithFields(logger.NewFields().Add("evicted", evicted)).Debug("swept expired sessions")
			}
		case <-metricsTicker.C:
			logSnapshot(log, metricsReg.Snapshot())
		}
	}
}

// logSnapshot reports the metrics Registry's current values as a structured log
// line rather than an HTTP scrape: there is no admin listener class in the
// VirtualServer model to host a /metrics endpoint on.
func logSnapshot(log logger.Logger, s metrics.Snapshot) {
	log.WithFields(logger.NewFields().
		Add("connections_accepted", s.ConnectionsAccepted).
		Add("connections_active", s.ConnectionsActive).
		Add("response_bytes", s.ResponseBytes).
		Add("cgi_invocations", s.CGIInvocations).
		Add("cgi_failures", s.CGIFailures).
		Add("cgi_active", s.CGIActive).
		Add("upload_bytes_received", s.UploadBytesReceived).
		Add("sessions_active", s.SessionsActive)).
		Info("metrics snapshot")
}
