// Package server wires the HTTP surface together: router, middleware, and
// the lifecycle of the listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reliefmesh/reliefmesh-go/internal/cache"
	"github.com/reliefmesh/reliefmesh-go/internal/chat"
	"github.com/reliefmesh/reliefmesh-go/internal/config"
	"github.com/reliefmesh/reliefmesh-go/internal/fulfillment"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/inventory"
	"github.com/reliefmesh/reliefmesh-go/internal/platform/logutil"
	"github.com/reliefmesh/reliefmesh-go/internal/profile"
	"github.com/reliefmesh/reliefmesh-go/internal/realtime"
	"github.com/reliefmesh/reliefmesh-go/internal/request"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
	"github.com/reliefmesh/reliefmesh-go/internal/supplier"
)

// Deps carries everything the server needs. All fields except Limiter are
// required.
type Deps struct {
	Config  *config.Config
	Logger  *slog.Logger
	Backend store.Backend

	Sessions identity.SessionRepo
	Auth     *identity.UserAuth

	Requests    *request.Service
	Profiles    *profile.Service
	Ledger      *inventory.Service
	Matcher     *supplier.Matcher
	Coordinator *fulfillment.Coordinator
	Threads     *chat.Service

	Hub      *realtime.Hub
	Tickets  *realtime.TicketIssuer
	Channels *realtime.ChannelServer

	// Limiter backs login and feedback rate limiting. Nil disables it.
	Limiter cache.Counter
}

func (d *Deps) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("server: config is required")
	case d.Backend == nil:
		return errors.New("server: backend is required")
	case d.Sessions == nil:
		return errors.New("server: session repo is required")
	case d.Auth == nil:
		return errors.New("server: user auth is required")
	case d.Requests == nil || d.Profiles == nil || d.Ledger == nil ||
		d.Matcher == nil || d.Coordinator == nil || d.Threads == nil:
		return errors.New("server: all domain services are required")
	case d.Hub == nil || d.Tickets == nil || d.Channels == nil:
		return errors.New("server: realtime components are required")
	}
	return nil
}

// Server is the HTTP server for the coordination API.
type Server struct {
	deps Deps
	log  *slog.Logger
	http *http.Server
}

// New builds a Server from deps. The router is assembled eagerly so that
// misconfiguration surfaces at startup, not on first request.
func New(deps Deps) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	log := logutil.NoopIfNil(deps.Logger)

	s := &Server{
		deps: deps,
		log:  log,
	}
	s.http = &http.Server{
		Addr:         deps.Config.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.log.Info("http server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
