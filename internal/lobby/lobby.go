// Package lobby implements the process-wide coordinator: a FIFO pairing
// queue, the set of active games, and the name registry, all guarded by a
// single mutex. It implements session.Coordinator, so it's the thing that
// turns decoded frames into game state changes and outgoing frames.
package lobby

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/tttserver/internal/game"
	"github.com/udisondev/tttserver/internal/protocol"
	"github.com/udisondev/tttserver/internal/session"
)

const (
	msgOpponentResigned     = "Opponent has resigned"
	msgOpponentDisconnected = "Opponent disconnected"
	msgInvalidCommand       = "Invalid command"
)

// gameEntry bundles a Game with the two sessions occupying its seats.
type gameEntry struct {
	game *game.Game
	xs   *session.Session
	os   *session.Session
}

func (e *gameEntry) peerOf(s *session.Session) *session.Session {
	if e.xs == s {
		return e.os
	}
	return e.xs
}

func (e *gameEntry) roleOf(s *session.Session) game.Role {
	if e.xs == s {
		return game.RoleX
	}
	return game.RoleO
}

func (e *gameEntry) sessionFor(r game.Role) *session.Session {
	if r == game.RoleX {
		return e.xs
	}
	return e.os
}

// Lobby is the single process-wide registry of waiting and playing
// sessions. The zero value is not usable; construct with New.
type Lobby struct {
	maxNameLen  int
	idleTimeout time.Duration

	mu      sync.Mutex
	waiting []*session.Session
	games   map[uuid.UUID]*gameEntry
	names   map[string]*session.Session
}

// New constructs an empty Lobby. maxNameLen bounds PLAY's name field.
// idleTimeout, if positive, is how long a session may sit in the pairing
// queue before it is dropped for lack of an opponent; zero disables it.
func New(maxNameLen int, idleTimeout time.Duration) *Lobby {
	return &Lobby{
		maxNameLen:  maxNameLen,
		idleTimeout: idleTimeout,
		games:       make(map[uuid.UUID]*gameEntry),
		names:       make(map[string]*session.Session),
	}
}

// Dispatch implements session.Coordinator.
func (l *Lobby) Dispatch(s *session.Session, f protocol.Frame) bool {
	switch s.State() {
	case session.StateFresh:
		return l.dispatchFresh(s, f)
	case session.StateWaiting:
		return l.dispatchWaiting(s)
	case session.StatePlaying:
		return l.dispatchPlaying(s, f)
	default:
		return true
	}
}

func (l *Lobby) dispatchFresh(s *session.Session, f protocol.Frame) bool {
	if f.Cmd != "PLAY" {
		_ = s.Send("INVL", "Game hasn't started")
		return false
	}

	name := f.Fields[0]
	if len(name) > l.maxNameLen {
		_ = s.Send("INVL", "Name's too long")
		return false
	}

	l.mu.Lock()
	if _, taken := l.names[name]; taken {
		l.mu.Unlock()
		_ = s.Send("INVL", "Name is occupied")
		return false
	}

	s.SetName(name)
	l.names[name] = s
	s.SetState(session.StateWaiting)

	var opponent *session.Session
	if len(l.waiting) > 0 {
		opponent = l.waiting[0]
		l.waiting = l.waiting[1:]
	} else {
		l.waiting = append(l.waiting, s)
	}

	var entry *gameEntry
	if opponent != nil {
		entry = l.beginGameLocked(opponent, s)
	}
	l.mu.Unlock()

	if entry == nil {
		_ = s.Send("WAIT")
		l.scheduleIdleTimeout(s)
	} else {
		_ = entry.xs.Send("BEGN", "X", entry.game.NameOf(game.RoleO))
		_ = entry.os.Send("BEGN", "O", entry.game.NameOf(game.RoleX))
	}
	return false
}

// scheduleIdleTimeout arranges for s to be evicted from the pairing queue if
// no opponent shows up within l.idleTimeout. A no-op when idleTimeout is
// zero.
func (l *Lobby) scheduleIdleTimeout(s *session.Session) {
	if l.idleTimeout <= 0 {
		return
	}
	time.AfterFunc(l.idleTimeout, func() { l.expireIfStillWaiting(s) })
}

func (l *Lobby) expireIfStillWaiting(s *session.Session) {
	l.mu.Lock()
	found := false
	for _, w := range l.waiting {
		if w == s {
			found = true
			break
		}
	}
	if !found {
		l.mu.Unlock()
		return
	}
	l.removeFromQueueLocked(s)
	if name := s.Name(); name != "" {
		delete(l.names, name)
	}
	s.SetState(session.StateFinished)
	l.mu.Unlock()

	_ = s.Send("INVL", "No opponent found")
	s.Close()
}

// beginGameLocked must be called with l.mu held. It does not perform I/O.
func (l *Lobby) beginGameLocked(x, o *session.Session) *gameEntry {
	g := game.New(uuid.New(), x.Name(), o.Name())
	entry := &gameEntry{game: g, xs: x, os: o}
	l.games[g.ID] = entry
	x.SetState(session.StatePlaying)
	o.SetState(session.StatePlaying)
	x.SetGameID(g.ID)
	o.SetGameID(g.ID)
	return entry
}

// dispatchWaiting: a WAITING session has nothing legitimate to say (it's
// paired automatically once an opponent arrives); receiving a frame here is
// fatal.
func (l *Lobby) dispatchWaiting(s *session.Session) bool {
	l.mu.Lock()
	l.removeFromQueueLocked(s)
	if name := s.Name(); name != "" {
		delete(l.names, name)
	}
	s.SetState(session.StateFinished)
	l.mu.Unlock()

	_ = s.Send("INVL", msgInvalidCommand)
	s.Close()
	return true
}

func (l *Lobby) removeFromQueueLocked(s *session.Session) {
	for i, w := range l.waiting {
		if w == s {
			l.waiting = append(l.waiting[:i], l.waiting[i+1:]...)
			return
		}
	}
}

func (l *Lobby) dispatchPlaying(s *session.Session, f protocol.Frame) bool {
	if f.Cmd == "PLAY" {
		_ = s.Send("INVL", "Already in game")
		return false
	}

	l.mu.Lock()
	entry, ok := l.games[s.GameID()]
	l.mu.Unlock()
	if !ok {
		// Opponent's move already tore the game down; this session's
		// connection is being (or already was) closed independently.
		return true
	}

	switch f.Cmd {
	case "MOVE":
		return l.handleMove(entry, s, f.Fields)
	case "DRAW":
		return l.handleDraw(entry, s, f.Fields)
	case "RSGN":
		return l.handleResign(entry, s)
	default:
		l.fatal(s, entry, msgInvalidCommand)
		return true
	}
}

func (l *Lobby) handleMove(entry *gameEntry, s *session.Session, fields []string) bool {
	l.mu.Lock()
	g := entry.game
	role := entry.roleOf(s)

	if g.DrawOffer != game.DrawNone {
		l.mu.Unlock()
		_ = s.Send("INVL", "Draw was called")
		return false
	}
	if fields[0] != role.String() {
		l.mu.Unlock()
		_ = s.Send("INVL", "Wrong role used")
		return false
	}
	if g.Turn != role {
		l.mu.Unlock()
		_ = s.Send("INVL", "Wait your turn!")
		return false
	}

	r, c, ok := parseCell(fields[1])
	if !ok {
		l.mu.Unlock()
		l.fatal(s, entry, msgInvalidCommand)
		return true
	}

	idx := game.Cell(r, c)
	if g.Board[idx] != game.Empty {
		l.mu.Unlock()
		_ = s.Send("INVL", "Space occupied.")
		return false
	}

	g.Board[idx] = role.Mark()
	coord := formatCell(r, c)
	board := g.BoardString()
	// MOVD must precede any terminal OVER for this move, so both are sent
	// from within the same critical section that would otherwise destroy
	// the game out from under a concurrently-arriving resignation/draw.
	_ = entry.xs.Send("MOVD", role.String(), coord, board)
	_ = entry.os.Send("MOVD", role.String(), coord, board)

	if winner, won := g.Winner(); won {
		winnerSession, loserSession := entry.sessionFor(winner), entry.sessionFor(winner.Opponent())
		name := g.NameOf(winner)
		_ = winnerSession.Send("OVER", "W", name+" has won.")
		_ = loserSession.Send("OVER", "L", name+" has won.")
		l.removeLocked(entry)
		l.mu.Unlock()
		entry.xs.Close()
		entry.os.Close()
		return true
	}

	if g.IsFull() {
		_ = entry.xs.Send("OVER", "D", "No moves left.")
		_ = entry.os.Send("OVER", "D", "No moves left.")
		l.removeLocked(entry)
		l.mu.Unlock()
		entry.xs.Close()
		entry.os.Close()
		return true
	}

	g.Turn = role.Opponent()
	l.mu.Unlock()
	return false
}

func (l *Lobby) handleDraw(entry *gameEntry, s *session.Session, fields []string) bool {
	action := fields[0]
	if action != "S" && action != "A" && action != "R" {
		l.fatal(s, entry, msgInvalidCommand)
		return true
	}

	l.mu.Lock()
	g := entry.game
	role := entry.roleOf(s)

	switch action {
	case "S":
		if g.Turn != role {
			l.mu.Unlock()
			_ = s.Send("INVL", "Wait your turn!")
			return false
		}
		if g.DrawOffer != game.DrawNone {
			l.mu.Unlock()
			_ = s.Send("INVL", "Draw already called")
			return false
		}
		g.DrawOffer = game.OfferFor(role)
		g.Turn = role.Opponent()
		l.mu.Unlock()
		_ = entry.peerOf(s).Send("DRAW", "S")
		return false

	default: // "A" or "R"
		if g.DrawOffer == game.DrawNone || g.DrawOffer == game.OfferFor(role) {
			l.mu.Unlock()
			_ = s.Send("INVL", "Draw not called")
			return false
		}

		if action == "A" {
			_ = entry.xs.Send("OVER", "D", "A draw has been reached.")
			_ = entry.os.Send("OVER", "D", "A draw has been reached.")
			l.removeLocked(entry)
			l.mu.Unlock()
			entry.xs.Close()
			entry.os.Close()
			return true
		}

		proposer := entry.peerOf(s)
		g.DrawOffer = game.DrawNone
		g.Turn = role.Opponent() // play returns to whoever proposed the draw
		l.mu.Unlock()
		_ = proposer.Send("DRAW", "R")
		return false
	}
}

func (l *Lobby) handleResign(entry *gameEntry, s *session.Session) bool {
	l.mu.Lock()
	if entry.game.DrawOffer != game.DrawNone {
		l.mu.Unlock()
		_ = s.Send("INVL", "Draw was called")
		return false
	}

	name := s.Name()
	winner := entry.peerOf(s)
	_ = s.Send("OVER", "L", name+" resigned.")
	_ = winner.Send("OVER", "W", name+" resigned.")
	l.removeLocked(entry)
	l.mu.Unlock()

	entry.xs.Close()
	entry.os.Close()
	return true
}

// removeLocked drops entry from the registries and marks both seats
// FINISHED. Must be called with l.mu held; does not perform I/O or close
// connections.
func (l *Lobby) removeLocked(entry *gameEntry) {
	delete(l.games, entry.game.ID)
	delete(l.names, entry.xs.Name())
	delete(l.names, entry.os.Name())
	entry.xs.SetState(session.StateFinished)
	entry.os.SetState(session.StateFinished)
}

// fatal tears down entry because s sent something fatally malformed
// mid-dispatch: s gets an INVL, its peer gets the uniform resignation-style
// OVER, and the game is destroyed.
func (l *Lobby) fatal(s *session.Session, entry *gameEntry, offenderMsg string) {
	_ = s.Send("INVL", offenderMsg)

	l.mu.Lock()
	peer := entry.peerOf(s)
	_ = peer.Send("OVER", "W", msgOpponentResigned)
	l.removeLocked(entry)
	l.mu.Unlock()

	entry.xs.Close()
	entry.os.Close()
}

// Terminate implements session.Coordinator. It's invoked by a Session's
// read loop when the connection drops or a frame fails to parse.
func (l *Lobby) Terminate(s *session.Session, err error) {
	disconnect := errors.Is(err, io.EOF)
	if !disconnect {
		msg := msgInvalidCommand
		var ferr *protocol.FrameError
		if errors.As(err, &ferr) {
			msg = ferr.Msg
		}
		_ = s.Send("INVL", msg)
	}

	l.mu.Lock()
	if s.State() == session.StateFinished {
		l.mu.Unlock()
		return
	}
	l.removeFromQueueLocked(s)

	entry, inGame := l.games[s.GameID()]
	var peer *session.Session
	if inGame {
		peer = entry.peerOf(s)
		peerMsg := msgOpponentResigned
		if disconnect {
			peerMsg = msgOpponentDisconnected
		}
		_ = peer.Send("OVER", "W", peerMsg)
		l.removeLocked(entry)
	} else {
		if name := s.Name(); name != "" {
			delete(l.names, name)
		}
		s.SetState(session.StateFinished)
	}
	l.mu.Unlock()

	s.Close()
	if peer != nil {
		peer.Close()
	}
}
