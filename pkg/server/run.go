package server

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start opens the listener and begins accepting connections in the
// background. Each accepted connection gets its own goroutine; accept
// blocks only the acceptor, never a session.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.ln = ln
	slog.Info("relay listening", "addr", s.cfg.ListenAddr, "auth", s.cfg.RequireAuth)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					slog.Error("accept error", "err", err)
					continue
				}
			}
			go s.handleConn(conn)
		}
	}()

	return nil
}

// Run starts the server and blocks until a shutdown signal.
func (s *Server) Run() error {
	if s.store != nil {
		defer func() { _ = s.store.Close() }()
	}

	if err := s.Start(); err != nil {
		return err
	}

	s.StartMetricsHTTP()
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown stops accepting and closes every live session, which unblocks
// their pending reads and drives each handler through its cleanup path.
func (s *Server) Shutdown() {
	s.cancel()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for _, sess := range s.registry.Sessions() {
		sess.close()
	}
}
