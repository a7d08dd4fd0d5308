// Package server implements the chat relay server: the acceptor loop, the
// per-connection session handler, the connection registry, and envelope
// routing.
package server

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/sajilochat/relay/pkg/auth"
	"github.com/sajilochat/relay/pkg/store"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store store.CredentialStore
}

// Server is the relay server.
type Server struct {
	cfg      Config
	registry *Registry
	gate     *auth.Gate // nil when RequireAuth is off
	metrics  *Metrics
	store    store.CredentialStore
	ln       net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a Server instance.
func New(cfg Config, deps Dependencies) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		registry: NewRegistry(),
		metrics:  NewMetrics(),
		store:    deps.Store,
		ctx:      ctx,
		cancel:   cancel,
	}

	if cfg.RequireAuth {
		if deps.Store == nil {
			cancel()
			return nil, fmt.Errorf("server: auth requires a credential store")
		}
		secret := []byte(cfg.TokenSecret)
		if len(secret) == 0 {
			secret = make([]byte, 32)
			if _, err := io.ReadFull(rand.Reader, secret); err != nil {
				cancel()
				return nil, fmt.Errorf("server: generate token secret: %w", err)
			}
			slog.Warn("no token secret configured, using a random per-process secret; issued tokens will not outlive this process")
		}
		s.gate = auth.NewGate(deps.Store, secret)
	}

	return s, nil
}

// Registry returns the connection registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
