// Package session implements the per-connection state machine: it owns the
// net.Conn, decodes frames off it with internal/protocol, and hands each
// one to a Coordinator (internal/lobby in production) for interpretation.
package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/tttserver/internal/protocol"
)

// Coordinator interprets frames on behalf of a Session and decides when a
// session's connection should be torn down. Defined here, on the consumer
// side, so session has no compile-time dependency on the lobby package that
// implements it.
type Coordinator interface {
	// Dispatch handles a successfully decoded frame from s. It reports
	// whether s's read loop should stop.
	Dispatch(s *Session, f protocol.Frame) (stop bool)

	// Terminate is called when s's read loop ends abnormally: err is io.EOF
	// (or wraps it) on a clean peer disconnect, or a *protocol.FrameError
	// for any framing violation.
	Terminate(s *Session, err error)
}

// Session is one accepted connection and its place in the FRESH/WAITING/
// PLAYING/FINISHED state machine.
type Session struct {
	conn      net.Conn
	createdAt time.Time
	remote    string

	mu     sync.Mutex
	state  State
	name   string
	gameID uuid.UUID

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// New wraps an accepted connection as a fresh Session.
func New(conn net.Conn) *Session {
	remote := ""
	if conn != nil {
		remote = conn.RemoteAddr().String()
	}
	return &Session{
		conn:      conn,
		createdAt: time.Now(),
		remote:    remote,
		state:     StateFresh,
	}
}

// RemoteAddr returns the connection's remote address, for logging only.
func (s *Session) RemoteAddr() string { return s.remote }

// CreatedAt returns when the Session was accepted, for logging only.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) SetName(n string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = n
}

func (s *Session) GameID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID
}

func (s *Session) SetGameID(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameID = id
}

// Send writes one frame to the peer. Concurrent Send calls from different
// goroutines (the lobby may deliver to a session from whichever goroutine
// is currently handling its opponent) are serialized so frames issued in
// order arrive in order.
func (s *Session) Send(cmd string, fields ...string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteFrame(s.conn, cmd, fields...)
}

// Close closes the underlying connection. Safe to call more than once and
// from more than one goroutine (a session's own read loop and the lobby
// tearing down its game may both try).
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// Run decodes frames from the connection and dispatches them to coord until
// the connection fails, ctx is cancelled, or coord says to stop. It does not
// return an error: all outcomes are reported to coord so the caller only
// needs to wait for Run to return.
func (s *Session) Run(ctx context.Context, coord Coordinator) {
	r := protocol.NewReader(s.conn)
	for {
		select {
		case <-ctx.Done():
			// Cancellation is only observed between reads, matching the
			// protocol's no-interrupt policy. The connection is closed
			// without calling coord, so a PLAYING peer is sent no OVER.
			s.Close()
			return
		default:
		}

		frame, err := r.ReadFrame()
		if err != nil {
			if s.State() == StateFinished {
				// Already torn down by the coordinator (e.g. our opponent
				// won and the lobby closed both connections); this read
				// error is just us noticing our own closed socket.
				return
			}
			coord.Terminate(s, err)
			return
		}

		if coord.Dispatch(s, frame) {
			return
		}
	}
}
