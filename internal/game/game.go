// Package game implements the tic-tac-toe board and rules: move legality,
// win/draw detection, and draw-offer bookkeeping. A Game is a plain
// mutable value; callers (internal/lobby) are responsible for serializing
// access to it.
package game

import "github.com/google/uuid"

// Role identifies a seat at the board. Its string form doubles as the board
// mark and the wire-visible role field.
type Role byte

const (
	RoleX Role = 'X'
	RoleO Role = 'O'
)

func (r Role) String() string { return string(r) }

// Mark returns the byte Role occupies on the board.
func (r Role) Mark() byte { return byte(r) }

// Opponent returns the other seat.
func (r Role) Opponent() Role {
	if r == RoleX {
		return RoleO
	}
	return RoleX
}

// DrawOffer tracks whether a draw proposal is outstanding and who made it.
type DrawOffer int

const (
	DrawNone DrawOffer = iota
	DrawOfferedByX
	DrawOfferedByO
)

// OfferFor reports the DrawOffer value recording that r proposed a draw.
func OfferFor(r Role) DrawOffer {
	if r == RoleX {
		return DrawOfferedByX
	}
	return DrawOfferedByO
}

// Empty marks an unoccupied board cell.
const Empty byte = '.'

// Game is a single in-progress or finished match between two named seats.
type Game struct {
	ID    uuid.UUID
	XName string
	OName string

	Board     [9]byte
	Turn      Role
	DrawOffer DrawOffer
}

// New creates a fresh Game with X to move first and an empty board.
func New(id uuid.UUID, xName, oName string) *Game {
	g := &Game{ID: id, XName: xName, OName: oName, Turn: RoleX, DrawOffer: DrawNone}
	for i := range g.Board {
		g.Board[i] = Empty
	}
	return g
}

// NameOf returns the name registered for the given seat.
func (g *Game) NameOf(r Role) string {
	if r == RoleX {
		return g.XName
	}
	return g.OName
}

// BoardString renders the board as the 9-character row-major string the
// wire protocol embeds in MOVD frames.
func (g *Game) BoardString() string {
	return string(g.Board[:])
}

// Cell converts 1-indexed row/column coordinates to a board index. Callers
// must validate r and c are in [1,3] first; Cell does not bounds-check.
func Cell(r, c int) int {
	return (r-1)*3 + (c - 1)
}

var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// Winner reports the seat holding a completed line, if any.
func (g *Game) Winner() (Role, bool) {
	for _, line := range winLines {
		a, b, c := g.Board[line[0]], g.Board[line[1]], g.Board[line[2]]
		if a != Empty && a == b && b == c {
			return Role(a), true
		}
	}
	return 0, false
}

// IsFull reports whether every cell is occupied.
func (g *Game) IsFull() bool {
	for _, cell := range g.Board {
		if cell == Empty {
			return false
		}
	}
	return true
}
