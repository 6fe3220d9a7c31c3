// Package server exposes nother sessions over the network: an evaluation
// service speaking Connect and gRPC, and a language server for editors.
package server

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
)

var log = commonlog.GetLogger("nother.server")

// Server hosts the evaluation service. Connect (HTTP/JSON and binary) is
// served by Handler; native gRPC is served on a separate listener.
type Server struct {
	sessions *SessionStore
	eval     *EvalService
	mux      *http.ServeMux
	grpc     *grpc.Server

	stopSweeper func()
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	newState      StateFactory
	sweepInterval time.Duration
	sessionTTL    time.Duration
}

// WithStateFactory sets how session states are built, typically to
// install an includer.
func WithStateFactory(f StateFactory) ServerOption {
	return func(c *serverConfig) { c.newState = f }
}

// WithSessionTTL sets how long an idle session survives and how often
// idle sessions are swept.
func WithSessionTTL(interval, ttl time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.sweepInterval = interval
		c.sessionTTL = ttl
	}
}

// New creates a Server.
func New(opts ...ServerOption) *Server {
	cfg := &serverConfig{
		sweepInterval: 5 * time.Minute,
		sessionTTL:    30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sessions := NewSessionStore(cfg.newState)
	s := &Server{
		sessions: sessions,
		eval:     NewEvalService(sessions),
		mux:      http.NewServeMux(),
		grpc:     grpc.NewServer(),
	}

	evalPath, evalHandler := NewEvalServiceHandler(s.eval)
	s.mux.Handle(evalPath, evalHandler)
	RegisterEvalServer(s.grpc, grpcEval{svc: s.eval})

	s.stopSweeper = sessions.StartSweeper(cfg.sweepInterval, cfg.sessionTTL)
	return s
}

// Sessions returns the session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

// Handler returns the Connect HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves Connect on addr, in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	log.Noticef("eval service listening on %s", addr)
	log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, EvalServiceEvaluateProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// ServeGRPC serves native gRPC on lis until Stop is called.
func (s *Server) ServeGRPC(lis net.Listener) error {
	log.Noticef("gRPC eval service listening on %s", lis.Addr())
	err := s.grpc.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// ListenAndServeGRPC listens on addr and serves native gRPC.
func (s *Server) ListenAndServeGRPC(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeGRPC(lis)
}

// Stop shuts down the server and every session.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.grpc.Stop()
	s.sessions.Close()
}
