// Package server implements the acceptor: it owns the listening socket and
// spawns a session.Session per accepted connection, dispatching frames to a
// shared lobby.Lobby.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/tttserver/internal/config"
	"github.com/udisondev/tttserver/internal/lobby"
	"github.com/udisondev/tttserver/internal/session"
)

// Server accepts connections for one tic-tac-toe lobby.
type Server struct {
	cfg   config.Server
	lobby *lobby.Lobby

	mu       sync.Mutex
	listener net.Listener
	sessions map[*session.Session]struct{}
}

// New constructs a Server from cfg. It does not start listening.
func New(cfg config.Server) *Server {
	idleTimeout := time.Duration(cfg.IdleQueueTimeoutSeconds) * time.Second
	return &Server{
		cfg:      cfg,
		lobby:    lobby.New(cfg.MaxNameLen, idleTimeout),
		sessions: make(map[*session.Session]struct{}),
	}
}

func (s *Server) trackSession(sess *session.Session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackSession(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// forceCloseSessions closes every session still tracked, used once the
// shutdown grace period elapses with connections still open.
func (s *Server) forceCloseSessions() {
	s.mu.Lock()
	remaining := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		remaining = append(remaining, sess)
	}
	s.mu.Unlock()

	for _, sess := range remaining {
		_ = sess.Close()
	}
}

// Addr returns the bound address once Run has started listening, or nil
// before that.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener, unblocking a concurrent Run.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on cfg.BindAddress:cfg.Port and serves until ctx is cancelled
// or an unrecoverable error occurs.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections off ln until ctx is cancelled. It blocks until
// every in-flight session has returned — sessions do not interrupt a read
// already in progress. With a positive ShutdownGraceSeconds, sessions still
// open once the grace period has elapsed after cancellation are force-closed,
// and Serve does not return before that period has elapsed; with zero, a
// session blocked on a quiet connection keeps Serve from returning until that
// connection closes.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	if grace := time.Duration(s.cfg.ShutdownGraceSeconds) * time.Second; grace > 0 {
		g.Go(func() error {
			<-gctx.Done()
			timer := time.NewTimer(grace)
			defer timer.Stop()
			<-timer.C
			slog.Warn("shutdown grace period elapsed, force-closing remaining sessions", "grace", grace)
			s.forceCloseSessions()
			return nil
		})
	}

	g.Go(func() error {
		return acceptLoop(gctx, g, s, ln)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func acceptLoop(ctx context.Context, g *errgroup.Group, srv *Server, ln net.Listener) error {
	slog.Info("tic-tac-toe server listening", "address", ln.Addr())
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("failed to accept connection", "error", err)
			continue
		}

		g.Go(func() error {
			handleConnection(ctx, srv, conn)
			return nil
		})
	}
}

func handleConnection(ctx context.Context, srv *Server, conn net.Conn) {
	defer conn.Close()

	sess := session.New(conn)
	slog.Info("connection accepted", "remote", sess.RemoteAddr())

	srv.trackSession(sess)
	defer srv.untrackSession(sess)

	sess.Run(ctx, srv.lobby)

	slog.Debug("session ended", "remote", sess.RemoteAddr(), "name", sess.Name(), "state", sess.State())
}
