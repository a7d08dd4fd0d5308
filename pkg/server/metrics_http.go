package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP relay_uptime_seconds Server uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE relay_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "relay_uptime_seconds %f\n", uptime)

	write("relay_connections_active", "Current open connections.", "gauge",
		m.ActiveConnections.Load())
	write("relay_connections_total", "Lifetime TCP connections accepted.", "counter",
		m.TotalConnections.Load())
	write("relay_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())

	write("relay_auth_success_total", "Successful credential handshakes.", "counter",
		m.SuccessfulAuths.Load())
	write("relay_auth_failed_total", "Failed credential handshakes.", "counter",
		m.FailedAuths.Load())
	write("relay_name_conflicts_total", "Admissions rejected for a taken name.", "counter",
		m.NameConflicts.Load())

	write("relay_group_messages_total", "Group messages relayed.", "counter",
		m.GroupMessages.Load())
	write("relay_direct_messages_total", "Direct messages delivered.", "counter",
		m.DirectMessages.Load())
	write("relay_routing_errors_total", "Direct messages to offline recipients.", "counter",
		m.RoutingErrors.Load())
	write("relay_protocol_errors_total", "Connections dropped for bad framing.", "counter",
		m.ProtocolErrors.Load())
}
